package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/service"
)

const registryEvictGrace = 2 * time.Minute

// sessionSweepStore is the slice of the session store the sweeper needs.
type sessionSweepStore interface {
	ListExpiredInProgress(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

// DeadlineWorker is the recovery net behind the per-session countdown
// timers. Timers fire in-process, so sessions whose timer was lost to a
// restart would stay IN_PROGRESS forever without this periodic sweep.
// It also evicts long-finished sessions from the engine registry.
type DeadlineWorker struct {
	engine   *service.SessionEngine
	store    sessionSweepStore
	interval time.Duration
	log      zerolog.Logger
}

// NewDeadlineWorker creates a new DeadlineWorker.
func NewDeadlineWorker(engine *service.SessionEngine, store sessionSweepStore, interval time.Duration, log zerolog.Logger) *DeadlineWorker {
	return &DeadlineWorker{
		engine:   engine,
		store:    store,
		interval: interval,
		log:      log.With().Str("component", "deadline_worker").Logger(),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (w *DeadlineWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("DeadlineWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// One sweep immediately so a restart settles overdue sessions
	// without waiting a full interval.
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *DeadlineWorker) sweep(ctx context.Context) {
	expired, err := w.store.ListExpiredInProgress(ctx, time.Now())
	if err != nil {
		w.log.Error().Err(err).Msg("Failed to list expired sessions")
		return
	}

	for _, id := range expired {
		if err := w.engine.TimeoutSubmit(ctx, id); err != nil {
			// Not-found means the results worker already persisted a
			// concurrent submit between our query and now.
			if errors.Is(err, service.ErrSessionNotFound) {
				continue
			}
			w.log.Error().Err(err).Str("session_id", id.String()).Msg("Recovery auto-submit failed")
		} else {
			w.log.Info().Str("session_id", id.String()).Msg("Auto-submitted expired session")
		}
	}

	if n := w.engine.EvictFinished(registryEvictGrace); n > 0 {
		w.log.Debug().Int("count", n).Msg("Evicted finished sessions from registry")
	}
}
