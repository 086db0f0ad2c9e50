package repository

import (
	"errors"
	"time"

	"somahub/internal/models"

	"gorm.io/gorm"
)

type CourseRepository struct {
	db *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) Create(c *models.Course) error {
	return r.db.Create(c).Error
}

// GetByID loads a course with its full section/chapter structure, ordered.
func (r *CourseRepository) GetByID(id uint) (*models.Course, error) {
	var c models.Course
	err := r.db.
		Preload("Sections", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Sections.Chapters", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&c, id).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CourseRepository) ListPublished() ([]models.Course, error) {
	var out []models.Course
	err := r.db.Where("published = ?", true).Order("created_at DESC").Find(&out).Error
	return out, err
}

// IsEnrolled reports whether the user is in the course's enrollment list.
func (r *CourseRepository) IsEnrolled(userID, courseID uint) (bool, error) {
	var n int64
	err := r.db.Model(&models.Enrollment{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Count(&n).Error
	return n > 0, err
}

// Enroll adds the user to the enrollment list if not already present.
// Returns true when a new enrollment row was created.
func (r *CourseRepository) Enroll(userID, courseID uint, source string) (bool, error) {
	enrolled, err := r.IsEnrolled(userID, courseID)
	if err != nil {
		return false, err
	}
	if enrolled {
		return false, nil
	}
	e := &models.Enrollment{
		UserID:     userID,
		CourseID:   courseID,
		Source:     source,
		EnrolledAt: time.Now(),
	}
	if err := r.db.Create(e).Error; err != nil {
		// Unique (user_id, course_id) index: a concurrent caller got there first.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *CourseRepository) ListEnrollments(userID uint) ([]models.Enrollment, error) {
	var out []models.Enrollment
	err := r.db.Where("user_id = ?", userID).Order("enrolled_at DESC").Find(&out).Error
	return out, err
}
