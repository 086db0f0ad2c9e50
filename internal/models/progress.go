package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// ChapterProgress is one chapter's completion state inside the progress
// document. CompletedAt is stamped on first completion and kept thereafter.
type ChapterProgress struct {
	ChapterID   uint       `json:"chapter_id"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type SectionProgress struct {
	SectionID uint              `json:"section_id"`
	Chapters  []ChapterProgress `json:"chapters"`
}

// Progress is the per-user-per-course completion document. Created exactly
// once when a payment settles (or a free enrollment completes), mutated only
// by the merge engine afterward.
type Progress struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	UserID          uint           `gorm:"not null;uniqueIndex:idx_progress_user_course" json:"user_id"`
	CourseID        uint           `gorm:"not null;uniqueIndex:idx_progress_user_course" json:"course_id"`
	EnrolledAt      time.Time      `json:"enrolled_at"`
	OverallProgress float64        `gorm:"default:0" json:"overall_progress"` // 0..1, recomputed on every merge
	Sections        datatypes.JSON `json:"sections"`
	LastAccessedAt  time.Time      `json:"last_accessed_at"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (Progress) TableName() string { return "progress_records" }

func (p *Progress) SectionList() ([]SectionProgress, error) {
	if len(p.Sections) == 0 {
		return nil, nil
	}
	var out []SectionProgress
	if err := json.Unmarshal(p.Sections, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Progress) SetSectionList(sections []SectionProgress) error {
	raw, err := json.Marshal(sections)
	if err != nil {
		return err
	}
	p.Sections = datatypes.JSON(raw)
	return nil
}
