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
	FlagBatchSize    = 50
	FlagBatchTimeout = 2 * time.Second
	FlagPollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// FlagWorker consumes persist_flags_queue and batch-inserts classified
// FlaggedEvents into PostgreSQL. Events are append-only audit records;
// the worker never updates or deletes.
type FlagWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewFlagWorker creates a new FlagWorker.
func NewFlagWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *FlagWorker {
	return &FlagWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "flag_worker").Logger(),
	}
}

type flagPayload struct {
	StudentID   int    `json:"student_id"`
	FlagType    string `json:"flag_type"`
	RiskLevel   string `json:"risk_level"`
	EvidenceRef string `json:"evidence_ref"`
	Timestamp   int64  `json:"timestamp"`
}

// Start begins the worker loop. Call in a goroutine.
func (w *FlagWorker) Start(ctx context.Context) {
	w.log.Info().Msg("FlagWorker started")

	buffer := make([]*flagPayload, 0, FlagBatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 &&
			(len(buffer) >= FlagBatchSize || time.Since(lastFlush) >= FlagBatchTimeout) {

			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return

		default:
			result, err := w.rdb.BLPop(ctx, FlagPollTimeout, config.WorkerKey.PersistFlagsQueue).Result()
			if err != nil {
				if err == redis.Nil {
					continue // Queue empty, loop back to check the flush timer
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

			var payload flagPayload
			if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
				// Malformed JSON cannot be retried. Log and discard.
				w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
				continue
			}

			buffer = append(buffer, &payload)
		}
	}
}

// flushSafe attempts bulk insert, then fallback insert, then requeue.
func (w *FlagWorker) flushSafe(ctx context.Context, batch []*flagPayload) {
	if len(batch) == 0 {
		return
	}
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *FlagWorker) bulkInsert(ctx context.Context, batch []*flagPayload) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, p := range batch {
		rows = append(rows, []interface{}{
			p.StudentID, p.FlagType, p.RiskLevel, p.EvidenceRef, time.Unix(p.Timestamp, 0),
		})
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"flagged_events"},
		[]string{"student_id", "flag_type", "risk_level", "evidence_ref", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *FlagWorker) fallbackInsert(ctx context.Context, batch []*flagPayload) {
	requeueList := make([]*flagPayload, 0)

	for _, p := range batch {
		_, err := w.pool.Exec(ctx,
			`INSERT INTO flagged_events (student_id, flag_type, risk_level, evidence_ref, recorded_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			p.StudentID, p.FlagType, p.RiskLevel, p.EvidenceRef, time.Unix(p.Timestamp, 0),
		)
		if err != nil {
			// Requeue everything that fails so a DB outage loses no
			// audit events.
			w.log.Error().Err(err).Int("student_id", p.StudentID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, p)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *FlagWorker) requeue(ctx context.Context, items []*flagPayload) {
	pipe := w.rdb.Pipeline()
	for _, p := range items {
		data, _ := json.Marshal(p)
		pipe.RPush(ctx, config.WorkerKey.PersistFlagsQueue, data)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue flagged events. Audit data loss occurred.")
	} else {
		w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
		// Avoid thrashing while the DB is down hard.
		time.Sleep(2 * time.Second)
	}
}

func (w *FlagWorker) shutdown(buffer []*flagPayload) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
