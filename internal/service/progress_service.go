package service

import (
	"time"

	"somahub/internal/models"
	"somahub/internal/repository"
)

// ProgressService applies partial progress deltas onto the stored progress
// document and keeps the derived overall figure consistent.
type ProgressService struct {
	progressRepo *repository.ProgressRepository
}

func NewProgressService(progressRepo *repository.ProgressRepository) *ProgressService {
	return &ProgressService{progressRepo: progressRepo}
}

// MergeSections overlays incoming section/chapter deltas onto existing ones.
// Sections are keyed by SectionID and chapters by ChapterID, never by array
// position, which makes the merge idempotent: applying the same delta twice
// yields the same document.
//
// Chapters in the delta that were not part of the seeded section are skipped —
// a chapter that did not exist at enrollment time cannot be completed. An
// incoming section with no stored counterpart is adopted wholesale. Completion
// is monotonic: an incoming completed=false never clears a stored completion.
func MergeSections(existing, incoming []models.SectionProgress) []models.SectionProgress {
	merged := make([]models.SectionProgress, len(existing))
	index := make(map[uint]int, len(existing))
	for i, s := range existing {
		merged[i] = s
		merged[i].Chapters = append([]models.ChapterProgress(nil), s.Chapters...)
		index[s.SectionID] = i
	}
	now := time.Now()
	for _, in := range incoming {
		i, ok := index[in.SectionID]
		if !ok {
			merged = append(merged, stampSection(in, now))
			index[in.SectionID] = len(merged) - 1
			continue
		}
		mergeChapters(merged[i].Chapters, in.Chapters, now)
	}
	return merged
}

func mergeChapters(existing, incoming []models.ChapterProgress, now time.Time) {
	byID := make(map[uint]int, len(existing))
	for i, ch := range existing {
		byID[ch.ChapterID] = i
	}
	for _, in := range incoming {
		i, ok := byID[in.ChapterID]
		if !ok {
			continue // not part of the seeded structure
		}
		if in.Completed && !existing[i].Completed {
			existing[i].Completed = true
			if existing[i].CompletedAt == nil {
				t := now
				existing[i].CompletedAt = &t
			}
		}
	}
}

func stampSection(s models.SectionProgress, now time.Time) models.SectionProgress {
	out := models.SectionProgress{SectionID: s.SectionID}
	out.Chapters = append([]models.ChapterProgress(nil), s.Chapters...)
	for i := range out.Chapters {
		if out.Chapters[i].Completed && out.Chapters[i].CompletedAt == nil {
			t := now
			out.Chapters[i].CompletedAt = &t
		}
	}
	return out
}

// OverallProgress recomputes completed/total across all sections, 0 when the
// course has no chapters.
func OverallProgress(sections []models.SectionProgress) float64 {
	var total, completed int
	for _, s := range sections {
		for _, ch := range s.Chapters {
			total++
			if ch.Completed {
				completed++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(completed) / float64(total)
}

// ApplyUpdate merges the delta into the stored record, recomputes the overall
// figure and stamps last access. Returns gorm.ErrRecordNotFound when the user
// has no progress record for the course.
func (s *ProgressService) ApplyUpdate(userID, courseID uint, incoming []models.SectionProgress) (*models.Progress, error) {
	p, err := s.progressRepo.GetByUserAndCourse(userID, courseID)
	if err != nil {
		return nil, err
	}
	existing, err := p.SectionList()
	if err != nil {
		return nil, err
	}
	merged := MergeSections(existing, incoming)
	if err := p.SetSectionList(merged); err != nil {
		return nil, err
	}
	p.OverallProgress = OverallProgress(merged)
	p.LastAccessedAt = time.Now()
	if err := s.progressRepo.Update(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns the stored record, touching last access.
func (s *ProgressService) Get(userID, courseID uint) (*models.Progress, error) {
	p, err := s.progressRepo.GetByUserAndCourse(userID, courseID)
	if err != nil {
		return nil, err
	}
	p.LastAccessedAt = time.Now()
	if err := s.progressRepo.Update(p); err != nil {
		return nil, err
	}
	return p, nil
}
