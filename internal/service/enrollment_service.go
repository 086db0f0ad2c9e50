package service

import (
	"fmt"
	"log"
	"time"

	"somahub/internal/metrics"
	"somahub/internal/models"
	"somahub/internal/repository"
)

// EnrollmentService unlocks paid content on first successful settlement for a
// (user, course) pair: one enrollment row plus one seeded progress record.
// Both writes are idempotent, so the webhook path may re-invoke this freely
// and a half-applied run (enrollment written, progress creation failed) is
// repaired by calling it again.
type EnrollmentService struct {
	courseRepo   *repository.CourseRepository
	progressRepo *repository.ProgressRepository
}

func NewEnrollmentService(courseRepo *repository.CourseRepository, progressRepo *repository.ProgressRepository) *EnrollmentService {
	return &EnrollmentService{courseRepo: courseRepo, progressRepo: progressRepo}
}

// Initialize enrolls the user and seeds their progress record from the
// course's current section/chapter structure, all chapters incomplete.
func (s *EnrollmentService) Initialize(userID, courseID uint, source string) error {
	course, err := s.courseRepo.GetByID(courseID)
	if err != nil {
		return fmt.Errorf("load course %d: %w", courseID, err)
	}
	created, err := s.courseRepo.Enroll(userID, courseID, source)
	if err != nil {
		return fmt.Errorf("enroll user %d in course %d: %w", userID, courseID, err)
	}
	if created {
		metrics.EnrollmentsCreatedTotal.Inc()
		log.Printf("[ENROLL] user=%d course=%d source=%s", userID, courseID, source)
	}

	now := time.Now()
	p := &models.Progress{
		UserID:         userID,
		CourseID:       courseID,
		EnrolledAt:     now,
		LastAccessedAt: now,
	}
	if err := p.SetSectionList(seedSections(course)); err != nil {
		return err
	}
	firstSeed, err := s.progressRepo.CreateIfAbsent(p)
	if err != nil {
		return fmt.Errorf("seed progress user %d course %d: %w", userID, courseID, err)
	}
	if firstSeed {
		log.Printf("[ENROLL] seeded progress user=%d course=%d sections=%d", userID, courseID, len(course.Sections))
	}
	return nil
}

func seedSections(course *models.Course) []models.SectionProgress {
	out := make([]models.SectionProgress, 0, len(course.Sections))
	for _, sec := range course.Sections {
		sp := models.SectionProgress{SectionID: sec.ID}
		for _, ch := range sec.Chapters {
			sp.Chapters = append(sp.Chapters, models.ChapterProgress{ChapterID: ch.ID})
		}
		out = append(out, sp)
	}
	return out
}
