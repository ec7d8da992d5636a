package session

import (
	"context"
	"sync"
	"time"

	"github.com/tech-arch1tect/walletauth/services/logging"
	"github.com/tech-arch1tect/walletauth/services/metrics"
	"go.uber.org/zap"
)

type Purger interface {
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// PurgeTarget names a store for the janitor. Packages outside session
// contribute theirs to the "purge_targets" fx group.
type PurgeTarget struct {
	Name   string
	Purger Purger
}

// Janitor periodically deletes expired records from every registered store.
type Janitor struct {
	period  time.Duration
	logger  *logging.Service
	metrics *metrics.Metrics
	targets []PurgeTarget
	now     func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewJanitor(period time.Duration, logger *logging.Service) *Janitor {
	return &Janitor{
		period: period,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (j *Janitor) SetMetrics(m *metrics.Metrics) {
	j.metrics = m
}

// Add registers a store. It must be called before Start.
func (j *Janitor) Add(name string, purger Purger) {
	j.targets = append(j.targets, PurgeTarget{Name: name, Purger: purger})
}

// RunOnce purges every target and returns the number of records removed.
func (j *Janitor) RunOnce(ctx context.Context) int64 {
	now := j.now()

	var total int64
	for _, target := range j.targets {
		purged, err := target.Purger.Purge(ctx, now)
		if err != nil {
			j.logger.Error("purge failed", zap.String("store", target.Name), zap.Error(err))
			continue
		}
		if purged > 0 {
			j.logger.Debug("purged expired records",
				zap.String("store", target.Name),
				zap.Int64("count", purged))
		}
		j.metrics.Purged(target.Name, purged)
		total += purged
	}
	return total
}

func (j *Janitor) Start() {
	j.stop = make(chan struct{})
	j.wg.Add(1)

	go func() {
		defer j.wg.Done()

		ticker := time.NewTicker(j.period)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), j.period)
				j.RunOnce(ctx)
				cancel()
			case <-j.stop:
				return
			}
		}
	}()

	j.logger.Info("session janitor started", zap.Duration("period", j.period), zap.Int("stores", len(j.targets)))
}

func (j *Janitor) Stop(ctx context.Context) error {
	if j.stop == nil {
		return nil
	}
	close(j.stop)

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
