package worker

import (
	"context"
	"fmt"
	"time"

	"hotel-booking/internal/dto/response"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const reaperRunTimeout = 2 * time.Minute

type StaleBookingExpirer interface {
	ExpireStalePending(ctx context.Context) (*response.ExpireResponse, error)
}

// Reaper periodically expires bookings whose payment never completed.
type Reaper struct {
	cron    *cron.Cron
	expirer StaleBookingExpirer
	ctx     context.Context
	log     *zap.Logger
}

// NewReaper schedules the expirer on spec, a standard cron expression or a
// descriptor such as "@every 5m". Runs never overlap.
func NewReaper(ctx context.Context, spec string, expirer StaleBookingExpirer, log *zap.Logger) (*Reaper, error) {
	r := &Reaper{
		expirer: expirer,
		ctx:     ctx,
		log:     log.With(zap.String("worker", "reaper")),
	}

	r.cron = cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))

	if _, err := r.cron.AddFunc(spec, r.RunOnce); err != nil {
		return nil, fmt.Errorf("schedule reaper %q: %w", spec, err)
	}
	return r, nil
}

func (r *Reaper) Start() {
	r.cron.Start()
	r.log.Info("Reaper scheduled", zap.Int("jobs", len(r.cron.Entries())))
}

// Stop waits for a running expiry to finish.
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
	r.log.Info("Reaper stopped")
}

func (r *Reaper) RunOnce() {
	if r.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, reaperRunTimeout)
	defer cancel()

	result, err := r.expirer.ExpireStalePending(ctx)
	if err != nil {
		r.log.Error("Expiring stale bookings failed", zap.Error(err))
		return
	}
	if result.Expired > 0 || result.Skipped > 0 {
		r.log.Info("Reaper run finished",
			zap.Int("expired", result.Expired),
			zap.Int("skipped", result.Skipped),
		)
	}
}
