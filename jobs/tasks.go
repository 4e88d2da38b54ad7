package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	jobmetrics "github.com/caravela-erp/caravela/internal/jobs"
	"github.com/caravela-erp/caravela/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskClosingSeed registers closing records and forecast tax indices for
	// every month that gained installments since the last run.
	TaskClosingSeed = "closing:seed"
)

// ClosingSeedPayload is empty today; the task derives its work from the
// installment table. The struct exists so the payload can grow without
// changing the task type.
type ClosingSeedPayload struct{}

// NewClosingSeedTask constructs an Asynq task.
func NewClosingSeedTask() (*asynq.Task, error) {
	data, err := json.Marshal(ClosingSeedPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskClosingSeed, data), nil
}

type monthSource interface {
	CompetenceMonths(ctx context.Context) ([]shared.YearMonth, error)
}

type rateSource interface {
	LastKnownRate(ctx context.Context) (decimal.Decimal, error)
}

type closingRegistry interface {
	EnsureMonth(ctx context.Context, ym shared.YearMonth, forecastRate decimal.Decimal) (bool, error)
}

// Seeder implements the closing:seed task. It walks the distinct competence
// months and makes sure each has an open closing record and a forecast tax
// index carrying the last known rate. Already-registered months are no-ops,
// so the task is safe to run on any cadence.
type Seeder struct {
	months  monthSource
	rates   rateSource
	closing closingRegistry
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewSeeder constructs a Seeder. Metrics may be nil.
func NewSeeder(months monthSource, rates rateSource, closing closingRegistry, metrics *jobmetrics.Metrics, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{months: months, rates: rates, closing: closing, metrics: metrics, logger: logger}
}

// Handle processes TaskClosingSeed tasks.
func (s *Seeder) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ClosingSeedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := s.metrics.Track(TaskClosingSeed)
	created, err := s.Seed(ctx)
	if err != nil {
		return tracker.End(err)
	}
	s.metrics.AddSeededMonths(created)
	s.logger.Info("closing seed finished", slog.Int("created", created))
	return tracker.End(nil)
}

// Seed performs one pass and returns how many closing records were created.
func (s *Seeder) Seed(ctx context.Context) (int, error) {
	months, err := s.months.CompetenceMonths(ctx)
	if err != nil {
		return 0, err
	}
	rate, err := s.rates.LastKnownRate(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, ym := range months {
		ok, err := s.closing.EnsureMonth(ctx, ym, rate)
		if err != nil {
			s.logger.Error("closing seed month failed",
				slog.String("year_month", string(ym)),
				slog.Any("error", err))
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}
