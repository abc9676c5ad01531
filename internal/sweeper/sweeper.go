// Package sweeper runs the time-driven background jobs: the expiry sweep
// forcing offers past their deadline through the state machine, and the
// pending-proof sync reconciling the escrow ledger with the mint.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/openpleb/escrowd/internal/service"
)

// pendingBatchSize bounds one pending-proof sync pass.
const pendingBatchSize = 50

// Sweeper schedules the periodic jobs over one Offers engine.
type Sweeper struct {
	cron    *cron.Cron
	offers  *service.Offers
	logger  *zap.Logger
	timeout time.Duration
}

// New constructs a sweeper ticking every intervalS seconds.
func New(offers *service.Offers, intervalS int, logger *zap.Logger) *Sweeper {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cronLogger)))

	s := &Sweeper{
		cron:    c,
		offers:  offers,
		logger:  logger,
		timeout: 30 * time.Second,
	}

	spec := fmt.Sprintf("*/%d * * * * *", intervalS)
	if _, err := c.AddFunc(spec, s.sweepExpired); err != nil {
		logger.Error("schedule expiry sweep", zap.Error(err))
	}
	if _, err := c.AddFunc(spec, s.syncPending); err != nil {
		logger.Error("schedule pending sync", zap.Error(err))
	}
	return s
}

// Start begins ticking.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop stops scheduling and returns a context done when running jobs finish.
func (s *Sweeper) Stop() context.Context { return s.cron.Stop() }

// sweepExpired drives every deadline-elapsed offer through its forced
// transition. Offers are processed independently: one failure is logged and
// the sweep moves on. Racing user transitions lose or win at the status
// guard, never corrupt.
func (s *Sweeper) sweepExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	expired, err := s.offers.ListExpired(ctx)
	if err != nil {
		s.logger.Error("list expired offers", zap.Error(err))
		return
	}
	for i := range expired {
		offer := &expired[i]
		if err := s.offers.Expire(ctx, offer); err != nil {
			s.logger.Error("expire offer",
				zap.Int64("offerID", offer.ID),
				zap.String("status", string(offer.Status)),
				zap.Error(err))
			continue
		}
		s.logger.Info("offer expired",
			zap.Int64("offerID", offer.ID),
			zap.String("fromStatus", string(offer.Status)))
	}
}

// syncPending confirms externally spent proofs in the ledger.
func (s *Sweeper) syncPending() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.offers.SyncPendingProofs(ctx, pendingBatchSize)
	if err != nil {
		s.logger.Error("sync pending proofs", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("confirmed spent proofs", zap.Int("count", n))
	}
}
