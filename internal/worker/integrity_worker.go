package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/examforge/exam-engine/internal/config"
	"github.com/examforge/exam-engine/internal/model"
)

const (
	IntegrityBatchSize    = 100
	IntegrityBatchTimeout = 2 * time.Second
	IntegrityPollTimeout  = 1 * time.Second
)

// IntegrityWorker drains the telemetry queue and accumulates anti-cheat
// counters on their attempts. Events are commutative: the worker folds a
// batch into per-attempt deltas and applies each delta as one atomic
// increment, guarded by status = 'ACTIVE'. Events arriving after
// finalization are dropped by that guard.
type IntegrityWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewIntegrityWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *IntegrityWorker {
	return &IntegrityWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "integrity_worker").Logger(),
	}
}

func (w *IntegrityWorker) Start(ctx context.Context) {
	w.log.Info().Msg("IntegrityWorker started")

	batch := make([]*model.IntegrityEvent, 0, IntegrityBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= IntegrityBatchSize || time.Since(lastFlush) >= IntegrityBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, IntegrityPollTimeout, config.WorkerKey.PersistIntegrityQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p model.IntegrityEvent
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Str("data", item[1]).Msg("Discarding malformed JSON")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

// counterDelta is the folded increment set for one attempt.
type counterDelta struct {
	attemptID       string
	tabSwitches     int
	focusLosses     int
	fullscreenExits int
}

// foldEvents collapses a batch of events into one delta per attempt,
// preserving first-seen attempt order.
func foldEvents(batch []*model.IntegrityEvent) []counterDelta {
	index := make(map[string]int, len(batch))
	deltas := make([]counterDelta, 0, len(batch))

	for _, e := range batch {
		i, seen := index[e.AttemptID]
		if !seen {
			i = len(deltas)
			index[e.AttemptID] = i
			deltas = append(deltas, counterDelta{attemptID: e.AttemptID})
		}

		switch e.EventType {
		case model.IntegrityEventTabSwitch:
			deltas[i].tabSwitches++
		case model.IntegrityEventFocusLoss:
			deltas[i].focusLosses++
		case model.IntegrityEventFullscreenExit:
			deltas[i].fullscreenExits++
		}
	}
	return deltas
}

func (w *IntegrityWorker) flushSafe(ctx context.Context, batch []*model.IntegrityEvent) {
	if len(batch) == 0 {
		return
	}

	deltas := foldEvents(batch)

	if err := w.bulkApply(ctx, deltas); err != nil {
		w.log.Warn().Err(err).Int("attempts", len(deltas)).Msg("bulk counter update failed, attempting row-by-row recovery")
		w.fallbackApply(ctx, deltas)
	}
}

func (w *IntegrityWorker) bulkApply(ctx context.Context, deltas []counterDelta) error {
	n := len(deltas)

	attemptIDs := make([]uuid.UUID, 0, n)
	tabs := make([]int, 0, n)
	focuses := make([]int, 0, n)
	fullscreens := make([]int, 0, n)

	for _, d := range deltas {
		aID, err := uuid.Parse(d.attemptID)
		if err != nil {
			// Trigger fallback, which drops the bad id individually.
			return err
		}
		attemptIDs = append(attemptIDs, aID)
		tabs = append(tabs, d.tabSwitches)
		focuses = append(focuses, d.focusLosses)
		fullscreens = append(fullscreens, d.fullscreenExits)
	}

	query := `
		UPDATE attempts AS a
		SET tab_switches = a.tab_switches + t.tab_switches,
		    focus_losses = a.focus_losses + t.focus_losses,
		    fullscreen_exits = a.fullscreen_exits + t.fullscreen_exits
		FROM (
			SELECT
				u.id,
				u.tab_switches,
				u.focus_losses,
				u.fullscreen_exits
			FROM UNNEST(
				$1::uuid[],
				$2::int[],
				$3::int[],
				$4::int[]
			) AS u (id, tab_switches, focus_losses, fullscreen_exits)
		) AS t
		WHERE a.id = t.id
		  AND a.status = 'ACTIVE'
	`

	_, err := w.pool.Exec(ctx, query, attemptIDs, tabs, focuses, fullscreens)
	return err
}

func (w *IntegrityWorker) fallbackApply(ctx context.Context, deltas []counterDelta) {
	requeueList := make([]counterDelta, 0)

	for _, d := range deltas {
		aID, err := uuid.Parse(d.attemptID)
		if err != nil {
			w.log.Error().Str("attempt_id", d.attemptID).Msg("Dropping integrity events with invalid UUID")
			continue
		}

		_, err = w.pool.Exec(ctx,
			`UPDATE attempts
			 SET tab_switches = tab_switches + $2,
			     focus_losses = focus_losses + $3,
			     fullscreen_exits = fullscreen_exits + $4
			 WHERE id = $1 AND status = 'ACTIVE'`,
			aID, d.tabSwitches, d.focusLosses, d.fullscreenExits,
		)
		if err != nil {
			w.log.Error().Err(err).Str("attempt_id", d.attemptID).Msg("Counter update failed, requeueing")
			requeueList = append(requeueList, d)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

// requeue re-expands failed deltas into events and pushes them back so no
// signals are lost while the database is down.
func (w *IntegrityWorker) requeue(ctx context.Context, deltas []counterDelta) {
	now := time.Now().Unix()

	pipe := w.rdb.Pipeline()
	for _, d := range deltas {
		for eventType, count := range map[model.IntegrityEventType]int{
			model.IntegrityEventTabSwitch:      d.tabSwitches,
			model.IntegrityEventFocusLoss:      d.focusLosses,
			model.IntegrityEventFullscreenExit: d.fullscreenExits,
		} {
			for i := 0; i < count; i++ {
				raw, _ := json.Marshal(model.IntegrityEvent{
					AttemptID:  d.attemptID,
					EventType:  eventType,
					OccurredAt: now,
				})
				pipe.RPush(ctx, config.WorkerKey.PersistIntegrityQueue, raw)
			}
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue integrity events. Signals lost.")
	} else {
		w.log.Info().Int("attempts", len(deltas)).Msg("Requeued integrity events back to Redis")
		// Back off while the DB is down hard.
		time.Sleep(2 * time.Second)
	}
}
