package worker

import (
	"fmt"
	"log"
	"time"

	"somahub/internal/domain"
	"somahub/internal/metrics"
	"somahub/internal/repository"

	"github.com/robfig/cron/v3"
)

// Sweeper fails PENDING transactions that outlived the provider SLA. The
// conditional status update means a late callback racing the sweep can never
// be overwritten: whichever side transitions first wins, the other is a no-op.
type Sweeper struct {
	txRepo *repository.TransactionRepository
	maxAge time.Duration
	cron   *cron.Cron
}

func NewSweeper(txRepo *repository.TransactionRepository, maxAge, interval time.Duration) *Sweeper {
	s := &Sweeper{
		txRepo: txRepo,
		maxAge: maxAge,
		cron:   cron.New(),
	}
	spec := fmt.Sprintf("@every %s", interval)
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		log.Printf("[SWEEP] schedule failed: %v", err)
	}
	return s
}

func (s *Sweeper) Start() { s.cron.Start() }

func (s *Sweeper) Stop() { <-s.cron.Stop().Done() }

func (s *Sweeper) sweep() {
	cutoff := time.Now().Add(-s.maxAge)
	n, err := s.txRepo.FailExpiredPending(cutoff)
	if err != nil {
		log.Printf("[SWEEP] expiry sweep failed: %v", err)
		return
	}
	if n > 0 {
		metrics.PaymentsSettledTotal.WithLabelValues(domain.TxStatusFailed).Add(float64(n))
		log.Printf("[SWEEP] expired %d pending transactions older than %s", n, s.maxAge)
	}
}
