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
	"github.com/invigilo/invigilo-backend/internal/model"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// ResultWorker consumes persist_results_queue and persists the
// SUBMITTED transition for finished sessions: final score, finish time
// and the automatic verdicts computed at submit. The UPDATE is guarded
// on status so a row already moved forward is never rewritten.
type ResultWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewResultWorker creates a new ResultWorker.
func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "result_worker").Logger(),
	}
}

type resultPayload struct {
	SessionID  string          `json:"session_id"`
	ExamID     string          `json:"exam_id"`
	StudentID  int             `json:"student_id"`
	Score      int             `json:"score"`
	FinishedAt int64           `json:"finished_at"`
	Verdicts   map[string]bool `json:"verdicts"`
}

// Start begins the worker loop. Call in a goroutine.
func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	buffer := make([]*resultPayload, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 &&
			(len(buffer) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return

		default:
			result, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
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

			var payload resultPayload
			if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
				w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
				continue
			}

			buffer = append(buffer, &payload)
		}
	}
}

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*resultPayload) {
	if len(batch) == 0 {
		return
	}
	if err := w.bulkPersist(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk persist failed, attempting row-by-row recovery")
		w.fallbackPersist(ctx, batch)
		return
	}
	w.cleanupCaches(ctx, batch)
}

// bulkPersist updates every session in one UNNEST statement and writes
// the automatic verdicts in a single batch round-trip.
func (w *ResultWorker) bulkPersist(ctx context.Context, batch []*resultPayload) error {
	ids := make([]string, 0, len(batch))
	scores := make([]int, 0, len(batch))
	finishedAts := make([]time.Time, 0, len(batch))
	for _, p := range batch {
		ids = append(ids, p.SessionID)
		scores = append(scores, p.Score)
		finishedAts = append(finishedAts, time.Unix(p.FinishedAt, 0))
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE exam_sessions AS s
		SET status = 'SUBMITTED',
		    final_score = u.score,
		    finished_at = u.finished_at
		FROM UNNEST($1::uuid[], $2::int[], $3::timestamptz[]) AS u(id, score, finished_at)
		WHERE s.id = u.id AND s.status = 'IN_PROGRESS'
	`, ids, scores, finishedAts)
	if err != nil {
		return err
	}

	pgxBatch := &pgx.Batch{}
	for _, p := range batch {
		for questionID, isCorrect := range p.Verdicts {
			pgxBatch.Queue(`
				INSERT INTO session_verdicts (session_id, question_id, is_correct, source, decided_at)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (session_id, question_id, source) DO NOTHING
			`, p.SessionID, questionID, isCorrect, model.VerdictSourceAuto, time.Unix(p.FinishedAt, 0))
		}
	}
	if pgxBatch.Len() > 0 {
		if err := tx.SendBatch(ctx, pgxBatch).Close(); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (w *ResultWorker) fallbackPersist(ctx context.Context, batch []*resultPayload) {
	requeueList := make([]*resultPayload, 0)
	cleaned := make([]*resultPayload, 0, len(batch))

	for _, p := range batch {
		if err := w.bulkPersist(ctx, []*resultPayload{p}); err != nil {
			w.log.Error().Err(err).Str("session_id", p.SessionID).Msg("Persist failed, requeueing")
			requeueList = append(requeueList, p)
			continue
		}
		cleaned = append(cleaned, p)
	}

	w.cleanupCaches(ctx, cleaned)
	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

// cleanupCaches removes the Redis working keys of persisted sessions.
// The answer ledger must outlive the DB write, never the reverse, so
// this runs only after a successful persist.
func (w *ResultWorker) cleanupCaches(ctx context.Context, batch []*resultPayload) {
	if len(batch) == 0 {
		return
	}
	pipe := w.rdb.Pipeline()
	for _, p := range batch {
		pipe.Del(ctx, config.CacheKey.SessionAnswersKey(p.SessionID))
		pipe.Del(ctx, config.CacheKey.SessionStartKey(p.SessionID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Warn().Err(err).Msg("Failed to clean session cache keys")
	}
}

func (w *ResultWorker) requeue(ctx context.Context, items []*resultPayload) {
	pipe := w.rdb.Pipeline()
	for _, p := range items {
		data, _ := json.Marshal(p)
		pipe.RPush(ctx, config.WorkerKey.PersistResultsQueue, data)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue session results. Score data loss occurred.")
	} else {
		w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
		time.Sleep(2 * time.Second)
	}
}

func (w *ResultWorker) shutdown(buffer []*resultPayload) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
