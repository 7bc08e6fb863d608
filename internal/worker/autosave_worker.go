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
	AutosaveBatchSize    = 50
	AutosaveBatchTimeout = 2 * time.Second
	AutosavePollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// AutosaveWorker drains the answers queue and persists in-progress
// selections in batches. Writes only land on attempts that are still
// ACTIVE — a finalized attempt's selections are frozen.
type AutosaveWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewAutosaveWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "autosave_worker").Logger(),
	}
}

func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AutosaveWorker started")

	batch := make([]*model.AutosavedAnswer, 0, AutosaveBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= AutosaveBatchSize || time.Since(lastFlush) >= AutosaveBatchTimeout) {

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
			item, err := w.rdb.BLPop(ctx, AutosavePollTimeout, config.WorkerKey.PersistAnswersQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p model.AutosavedAnswer
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

func (w *AutosaveWorker) flushSafe(ctx context.Context, batch []*model.AutosavedAnswer) {
	if len(batch) == 0 {
		return
	}

	// Keep only the newest write per (attempt, question) — earlier ones in
	// the same batch are already superseded.
	deduped := dedupeAnswers(batch)

	if err := w.bulkUpdate(ctx, deduped); err != nil {
		w.log.Warn().Err(err).Msg("bulk selection update failed, using fallback")

		for _, p := range deduped {
			if err := w.persistSingle(ctx, p); err != nil {
				w.log.Error().Err(err).Msg("persistSingle failed — requeueing")
				raw, _ := json.Marshal(p)
				w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, raw)
			}
		}
	}
}

// dedupeAnswers keeps the last payload per (attempt_id, question_id),
// preserving first-seen order otherwise.
func dedupeAnswers(batch []*model.AutosavedAnswer) []*model.AutosavedAnswer {
	type key struct {
		attemptID  string
		questionID int64
	}

	index := make(map[key]int, len(batch))
	out := make([]*model.AutosavedAnswer, 0, len(batch))
	for _, p := range batch {
		k := key{p.AttemptID, p.QuestionID}
		if i, seen := index[k]; seen {
			out[i] = p
			continue
		}
		index[k] = len(out)
		out = append(out, p)
	}
	return out
}

func (w *AutosaveWorker) bulkUpdate(ctx context.Context, batch []*model.AutosavedAnswer) error {
	n := len(batch)

	attemptIDs := make([]uuid.UUID, 0, n)
	questionIDs := make([]int64, 0, n)
	selections := make([]string, 0, n)
	flags := make([]*bool, 0, n)

	for _, p := range batch {
		aID, err := uuid.Parse(p.AttemptID)
		if err != nil {
			return err
		}
		attemptIDs = append(attemptIDs, aID)
		questionIDs = append(questionIDs, p.QuestionID)
		selections = append(selections, p.SelectedOption)
		flags = append(flags, p.Flagged)
	}

	query := `
		UPDATE attempt_questions AS q
		SET selected_option = t.selected_option,
		    flagged = COALESCE(t.flagged, q.flagged)
		FROM (
			SELECT
				u.attempt_id,
				u.question_id,
				u.selected_option,
				u.flagged
			FROM UNNEST(
				$1::uuid[],
				$2::bigint[],
				$3::text[],
				$4::bool[]
			) AS u (attempt_id, question_id, selected_option, flagged)
		) AS t
		WHERE q.attempt_id = t.attempt_id
		  AND q.question_id = t.question_id
		  AND EXISTS (
			SELECT 1 FROM attempts a
			WHERE a.id = q.attempt_id AND a.status = 'ACTIVE'
		  )
	`

	_, err := w.pool.Exec(ctx, query, attemptIDs, questionIDs, selections, flags)
	return err
}

func (w *AutosaveWorker) persistSingle(ctx context.Context, p *model.AutosavedAnswer) error {
	aID, err := uuid.Parse(p.AttemptID)
	if err != nil {
		w.log.Error().Str("attempt_id", p.AttemptID).Msg("Dropping autosave with invalid UUID")
		return nil
	}

	_, err = w.pool.Exec(ctx,
		`UPDATE attempt_questions AS q
		 SET selected_option = $3,
		     flagged = COALESCE($4, q.flagged)
		 WHERE q.attempt_id = $1 AND q.question_id = $2
		   AND EXISTS (
			SELECT 1 FROM attempts a
			WHERE a.id = q.attempt_id AND a.status = 'ACTIVE'
		   )`,
		aID, p.QuestionID, p.SelectedOption, p.Flagged,
	)
	return err
}
