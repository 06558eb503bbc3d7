package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner runs jobs on cron schedules with a seconds field.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(baseCtx context.Context, logger *zap.Logger) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registers job under a cron schedule. A run is skipped while the previous one is
// still going.
func (r *Runner) Add(name, schedule string, job func(context.Context) error) (cron.EntryID, error) {
	return r.cron.AddFunc(schedule, func() {
		r.logger.Info("scheduled job started", zap.String("job", name))
		if err := job(r.baseCtx); err != nil {
			r.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
			return
		}
		r.logger.Info("scheduled job finished", zap.String("job", name))
	})
}

func (r *Runner) Start() {
	r.logger.Info("cron started")
	r.cron.Start()
}

func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}
