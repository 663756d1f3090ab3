package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/config"
)

const (
	AutosaveBatchSize    = 50
	AutosaveBatchTimeout = 2 * time.Second
	AutosavePollTimeout  = 1 * time.Second
)

// AutosaveWorker drains persist_answers_queue into session_answers.
// The Redis ledger stays the source of truth during the session; these
// rows exist so an answer survives a Redis loss and so the review side
// can read answers without touching the hot path.
type AutosaveWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "autosave_worker").Logger(),
	}
}

type answerPayload struct {
	SessionID  string          `json:"session_id"`
	QuestionID string          `json:"question_id"`
	Answer     json.RawMessage `json:"answer"`
}

// Start begins the worker loop. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AutosaveWorker started")

	buffer := make([]*answerPayload, 0, AutosaveBatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 &&
			(len(buffer) >= AutosaveBatchSize || time.Since(lastFlush) >= AutosaveBatchTimeout) {

			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return

		default:
			result, err := w.rdb.BLPop(ctx, AutosavePollTimeout, config.WorkerKey.PersistAnswersQueue).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
				time.Sleep(3 * time.Second)
				continue
			}

			if len(result) < 2 {
				continue
			}

			var payload answerPayload
			if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
				w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
				continue
			}

			buffer = append(buffer, &payload)
		}
	}
}

func (w *AutosaveWorker) flushSafe(ctx context.Context, batch []*answerPayload) {
	if len(batch) == 0 {
		return
	}
	if err := w.bulkUpsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Batch upsert failed, attempting row-by-row recovery")
		w.fallbackUpsert(ctx, batch)
	}
}

// bulkUpsert writes the batch in one round-trip. Later entries for the
// same question win, which matches queue order and thus student intent.
func (w *AutosaveWorker) bulkUpsert(ctx context.Context, batch []*answerPayload) error {
	pgxBatch := &pgx.Batch{}
	for _, p := range batch {
		pgxBatch.Queue(`
			INSERT INTO session_answers (session_id, question_id, answer, saved_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (session_id, question_id) DO UPDATE
			SET answer = EXCLUDED.answer, saved_at = EXCLUDED.saved_at
		`, p.SessionID, p.QuestionID, []byte(p.Answer))
	}
	return w.pool.SendBatch(ctx, pgxBatch).Close()
}

func (w *AutosaveWorker) fallbackUpsert(ctx context.Context, batch []*answerPayload) {
	requeueList := make([]*answerPayload, 0)

	for _, p := range batch {
		_, err := w.pool.Exec(ctx, `
			INSERT INTO session_answers (session_id, question_id, answer, saved_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (session_id, question_id) DO UPDATE
			SET answer = EXCLUDED.answer, saved_at = EXCLUDED.saved_at
		`, p.SessionID, p.QuestionID, []byte(p.Answer))
		if err != nil {
			w.log.Error().Err(err).Str("session_id", p.SessionID).Msg("Upsert failed, requeueing")
			requeueList = append(requeueList, p)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *AutosaveWorker) requeue(ctx context.Context, items []*answerPayload) {
	pipe := w.rdb.Pipeline()
	for _, p := range items {
		data, _ := json.Marshal(p)
		pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, data)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue answers. Autosave data loss occurred.")
	} else {
		w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
		time.Sleep(2 * time.Second)
	}
}

func (w *AutosaveWorker) shutdown(buffer []*answerPayload) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
