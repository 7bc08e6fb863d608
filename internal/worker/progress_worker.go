package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/examforge/exam-engine/internal/config"
	"github.com/examforge/exam-engine/internal/model"
)

const ProgressPollTimeout = 1 * time.Second

// ProgressWorker forwards finalized attempt results to the Student Progress
// service. Delivery is best effort: one retry per payload, then the payload
// is logged and dropped. Progress must never block or fail an exam flow.
type ProgressWorker struct {
	rdb     *redis.Client
	client  *http.Client
	baseURL string
	log     zerolog.Logger
}

func NewProgressWorker(rdb *redis.Client, cfg *config.Config, log zerolog.Logger) *ProgressWorker {
	return &ProgressWorker{
		rdb:     rdb,
		client:  &http.Client{Timeout: cfg.ProgressTimeout},
		baseURL: cfg.ProgressBaseURL,
		log:     log.With().Str("component", "progress_worker").Logger(),
	}
}

func (w *ProgressWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ProgressWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. ProgressWorker stopping...")
			return

		default:
			item, err := w.rdb.BLPop(ctx, ProgressPollTimeout, config.WorkerKey.ProgressFeedQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var update model.ProgressUpdate
			if err := json.Unmarshal([]byte(item[1]), &update); err != nil {
				w.log.Error().Err(err).Str("data", item[1]).Msg("Discarding malformed JSON")
				continue
			}

			w.deliver(ctx, &update, item[1])
		}
	}
}

func (w *ProgressWorker) deliver(ctx context.Context, update *model.ProgressUpdate, raw string) {
	if w.baseURL == "" {
		w.log.Debug().Int64("student_id", update.StudentID).Msg("Progress feed disabled, dropping update")
		return
	}

	var lastErr error
	for i := 0; i < 2; i++ {
		if lastErr = w.post(ctx, raw); lastErr == nil {
			w.log.Info().
				Int64("student_id", update.StudentID).
				Int("score", update.Score).
				Msg("Progress update delivered")
			return
		}

		if ctx.Err() != nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	// Best effort. Dropping the payload is acceptable; losing exam state is not.
	w.log.Warn().
		Err(lastErr).
		Int64("student_id", update.StudentID).
		Str("payload", raw).
		Msg("Progress update delivery failed, dropping")
}

func (w *ProgressWorker) post(ctx context.Context, raw string) error {
	url := w.baseURL + "/api/v1/progress/exam"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(raw)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("progress service returned status %d", resp.StatusCode)
	}
	return nil
}
