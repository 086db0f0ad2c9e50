package models

import (
	"time"

	"gorm.io/gorm"
)

type Course struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"size:255;not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Instructor  string         `gorm:"size:255" json:"instructor"`
	PriceCents  int64          `gorm:"not null;default:0" json:"price_cents"`
	Currency    string         `gorm:"size:3;default:'KES'" json:"currency"`
	Published   bool           `gorm:"default:false;index" json:"published"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Sections []Section `gorm:"foreignKey:CourseID" json:"sections,omitempty"`
}

func (Course) TableName() string { return "courses" }

func (c *Course) IsFree() bool { return c.PriceCents == 0 }

type Section struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	CourseID uint   `gorm:"not null;index" json:"course_id"`
	Title    string `gorm:"size:255" json:"title"`
	Position int    `gorm:"default:0" json:"position"`

	Chapters []Chapter `gorm:"foreignKey:SectionID" json:"chapters,omitempty"`
}

type Chapter struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	SectionID uint   `gorm:"not null;index" json:"section_id"`
	Title     string `gorm:"size:255" json:"title"`
	Position  int    `gorm:"default:0" json:"position"`
	VideoURL  string `gorm:"size:512" json:"video_url,omitempty"`
}

// Enrollment is one row in a course's enrollment list.
type Enrollment struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_enrollment_user_course" json:"user_id"`
	CourseID   uint      `gorm:"not null;uniqueIndex:idx_enrollment_user_course" json:"course_id"`
	Source     string    `gorm:"size:20;not null" json:"source"` // mpesa | free
	EnrolledAt time.Time `json:"enrolled_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Enrollment) TableName() string { return "enrollments" }
