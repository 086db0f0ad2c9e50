package repository

import (
	"testing"
	"time"

	"somahub/internal/domain"
	"somahub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// raceCreate registers a one-shot create hook that inserts rival right before
// the next insert runs, simulating a concurrent writer winning the unique
// index between the repo's presence check and its own insert.
func raceCreate(t *testing.T, db *gorm.DB, name string, rival interface{}) {
	t.Helper()
	fired := false
	err := db.Callback().Create().Before("gorm:create").Register(name, func(tx *gorm.DB) {
		if fired {
			return
		}
		fired = true
		if err := db.Session(&gorm.Session{NewDB: true}).Create(rival).Error; err != nil {
			tx.AddError(err)
		}
	})
	require.NoError(t, err)
}

func TestEnrollLosingInsertRaceIsNoOp(t *testing.T) {
	db := testDB(t)
	repo := NewCourseRepository(db)

	rival := &models.Enrollment{UserID: 7, CourseID: 3, Source: domain.ProviderMpesa, EnrolledAt: time.Now()}
	raceCreate(t, db, "test:enroll_rival", rival)

	created, err := repo.Enroll(7, 3, domain.ProviderMpesa)
	require.NoError(t, err, "duplicate-key loss must not surface as an error")
	assert.False(t, created)

	var n int64
	require.NoError(t, db.Model(&models.Enrollment{}).
		Where("user_id = ? AND course_id = ?", 7, 3).Count(&n).Error)
	assert.Equal(t, int64(1), n, "unique index holds")
}

func TestCreateIfAbsentLosingInsertRaceIsNoOp(t *testing.T) {
	db := testDB(t)
	repo := NewProgressRepository(db)

	rival := &models.Progress{UserID: 7, CourseID: 3, EnrolledAt: time.Now()}
	require.NoError(t, rival.SetSectionList(nil))
	raceCreate(t, db, "test:progress_rival", rival)

	p := &models.Progress{UserID: 7, CourseID: 3, EnrolledAt: time.Now()}
	require.NoError(t, p.SetSectionList(nil))
	created, err := repo.CreateIfAbsent(p)
	require.NoError(t, err, "duplicate-key loss must not surface as an error")
	assert.False(t, created)

	n, err := repo.CountByCourse(3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
