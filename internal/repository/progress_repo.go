package repository

import (
	"errors"

	"somahub/internal/models"

	"gorm.io/gorm"
)

type ProgressRepository struct {
	db *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

func (r *ProgressRepository) GetByUserAndCourse(userID, courseID uint) (*models.Progress, error) {
	var p models.Progress
	err := r.db.Where("user_id = ? AND course_id = ?", userID, courseID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateIfAbsent inserts the seeded progress record unless one already exists
// for the (user, course) pair. Returns true when a record was created.
func (r *ProgressRepository) CreateIfAbsent(p *models.Progress) (bool, error) {
	_, err := r.GetByUserAndCourse(p.UserID, p.CourseID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	if err := r.db.Create(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *ProgressRepository) Update(p *models.Progress) error {
	return r.db.Save(p).Error
}

func (r *ProgressRepository) CountByCourse(courseID uint) (int64, error) {
	var n int64
	err := r.db.Model(&models.Progress{}).Where("course_id = ?", courseID).Count(&n).Error
	return n, err
}
