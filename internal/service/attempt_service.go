package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/examforge/exam-engine/internal/catalog"
	"github.com/examforge/exam-engine/internal/config"
	"github.com/examforge/exam-engine/internal/model"
)

// poolFetchFactor controls how many candidate questions are requested from
// the catalog per question actually placed in the attempt. A larger pool
// gives the sampler room to vary between attempts.
const poolFetchFactor = 4

// AttemptStore persists attempt aggregates. The implementation must make
// CreateIfNoneActive atomic (one active attempt per student survives a race)
// and Finalize single-winner (the version check admits exactly one
// finalizing writer).
type AttemptStore interface {
	CreateIfNoneActive(ctx context.Context, a *model.Attempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	GetActiveByStudent(ctx context.Context, studentID int64) (*model.Attempt, error)
	Finalize(ctx context.Context, a *model.Attempt) error
	ListFinalizedByStudent(ctx context.Context, studentID int64) ([]model.Attempt, error)
}

// PoolGateway fetches candidate question pools from the Question Catalog.
type PoolGateway interface {
	FetchPool(ctx context.Context, filter catalog.PoolFilter) ([]model.CatalogQuestion, error)
}

// AttemptService orchestrates the attempt lifecycle: creation, resumption,
// submission, expiry, and the downstream progress feed.
type AttemptService struct {
	store     AttemptStore
	gateway   PoolGateway
	assembler Assembler
	projector ResultProjector
	rdb       *redis.Client
	cfg       *config.Config
	log       zerolog.Logger

	// now is swappable for tests; expiry resolution depends on it.
	now func() time.Time
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	store AttemptStore,
	gateway PoolGateway,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		store:   store,
		gateway: gateway,
		rdb:     rdb,
		cfg:     cfg,
		log:     log.With().Str("component", "attempt_service").Logger(),
		now:     time.Now,
	}
}

// StartAttempt creates a new timed attempt for the student. The exam clock
// starts immediately: endsAt is fixed to startedAt + duration and never
// moves. A catalog failure aborts the whole operation — no partial attempt
// is ever persisted.
func (s *AttemptService) StartAttempt(
	ctx context.Context,
	studentID int64,
	req model.StartAttemptRequest,
	ipAddress, userAgent string,
) (*model.StartResult, error) {
	pool, err := s.gateway.FetchPool(ctx, catalog.PoolFilter{
		CategoryID: req.CategoryID,
		LevelID:    req.LevelID,
		Limit:      req.Count * poolFetchFactor,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch pool: %w", err)
	}

	questions, err := s.assembler.Assemble(pool, req.Count)
	if err != nil {
		return nil, err
	}

	startedAt := s.now()
	attempt := &model.Attempt{
		ID:              uuid.New(),
		StudentID:       studentID,
		Status:          model.AttemptStatusActive,
		StartedAt:       startedAt,
		EndsAt:          startedAt.Add(time.Duration(req.DurationSeconds) * time.Second),
		DurationSeconds: req.DurationSeconds,
		TotalQuestions:  req.Count,
		IPAddress:       ipAddress,
		UserAgent:       userAgent,
		CategoryID:      req.CategoryID,
		LevelID:         req.LevelID,
		Questions:       questions,
	}

	if err := s.store.CreateIfNoneActive(ctx, attempt); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Int64("student_id", studentID).
		Int("questions", req.Count).
		Int("duration_seconds", req.DurationSeconds).
		Msg("Attempt started")

	return &model.StartResult{
		AttemptID:       attempt.ID,
		StartedAt:       attempt.StartedAt,
		EndsAt:          attempt.EndsAt,
		DurationSeconds: attempt.DurationSeconds,
		TotalQuestions:  attempt.TotalQuestions,
		Questions:       s.projector.QuestionViews(attempt, false),
	}, nil
}

// GetActiveAttempt returns the student's current attempt as a resumable
// view. Expiry is resolved lazily here: a passed deadline is finalized with
// whatever selections were recorded, and the returned view is then terminal.
func (s *AttemptService) GetActiveAttempt(ctx context.Context, studentID int64) (*model.AttemptView, error) {
	attempt, err := s.store.GetActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	s.overlayAutosaved(ctx, attempt)

	if ResolveExpiry(attempt, now) == model.AttemptStatusExpired {
		if err := s.finalizeExpired(ctx, attempt); err != nil {
			return nil, err
		}
	}

	return &model.AttemptView{
		AttemptID:        attempt.ID,
		Status:           attempt.Status,
		StartedAt:        attempt.StartedAt,
		EndsAt:           attempt.EndsAt,
		DurationSeconds:  attempt.DurationSeconds,
		RemainingSeconds: RemainingSeconds(attempt, now),
		TotalQuestions:   attempt.TotalQuestions,
		Questions:        s.projector.QuestionViews(attempt, true),
	}, nil
}

// SubmitAnswers finalizes the attempt with the submitted selections. A
// submission after the deadline is not rejected: it is graded from the
// recorded selections and committed as EXPIRED. Duplicate submissions lose
// the version race and observe model.ErrAttemptAlreadyFinalized.
func (s *AttemptService) SubmitAnswers(
	ctx context.Context,
	studentID int64,
	attemptID uuid.UUID,
	req model.SubmitAnswersRequest,
) (*model.SubmitResult, error) {
	attempt, err := s.store.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.StudentID != studentID {
		return nil, model.ErrAttemptNotFound
	}
	if attempt.Status.Terminal() {
		return nil, model.ErrAttemptAlreadyFinalized
	}

	statusAtSubmit := ResolveExpiry(attempt, s.now())

	s.overlayAutosaved(ctx, attempt)
	mergeSubmission(attempt, req)

	score, percentage := Grade(attempt.Questions)
	attempt.Score = &score
	attempt.Percentage = &percentage
	if statusAtSubmit == model.AttemptStatusActive {
		attempt.Status = model.AttemptStatusSubmitted
	} else {
		attempt.Status = model.AttemptStatusExpired
	}

	if err := s.store.Finalize(ctx, attempt); err != nil {
		return nil, err
	}
	s.afterFinalize(ctx, attempt)

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Int64("student_id", studentID).
		Int("score", score).
		Str("status", string(attempt.Status)).
		Msg("Attempt finalized")

	return &model.SubmitResult{
		AttemptID:      attempt.ID,
		Score:          score,
		TotalQuestions: attempt.TotalQuestions,
		Percentage:     percentage,
		Status:         attempt.Status,
	}, nil
}

// GetResultsForStudent returns summaries of the student's finalized
// attempts, newest first.
func (s *AttemptService) GetResultsForStudent(ctx context.Context, studentID int64) ([]model.ResultSummary, error) {
	attempts, err := s.store.ListFinalizedByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	summaries := make([]model.ResultSummary, 0, len(attempts))
	for i := range attempts {
		summaries = append(summaries, s.projector.Summarize(&attempts[i]))
	}
	return summaries, nil
}

// AutosaveAnswer records an in-progress selection: into the Redis answers
// hash immediately, and onto the persistence queue for the batched
// PostgreSQL writer. Only ACTIVE attempts within their deadline accept
// autosaves.
func (s *AttemptService) AutosaveAnswer(
	ctx context.Context,
	studentID int64,
	attemptID uuid.UUID,
	req model.AutosaveAnswerRequest,
) error {
	attempt, err := s.store.GetByID(ctx, attemptID)
	if err != nil {
		return err
	}
	if attempt.StudentID != studentID {
		return model.ErrAttemptNotFound
	}
	if attempt.Status.Terminal() || ResolveExpiry(attempt, s.now()) == model.AttemptStatusExpired {
		return model.ErrAttemptAlreadyFinalized
	}

	if s.rdb != nil {
		key := config.CacheKey.AttemptAnswersKey(attemptID.String())
		if err := s.rdb.HSet(ctx, key, strconv.FormatInt(req.QuestionID, 10), req.SelectedOption).Err(); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Answer hash write failed")
		}
	}

	return s.enqueue(ctx, config.WorkerKey.PersistAnswersQueue, model.AutosavedAnswer{
		AttemptID:      attemptID.String(),
		QuestionID:     req.QuestionID,
		SelectedOption: req.SelectedOption,
		Flagged:        req.Flagged,
	})
}

// RecordIntegrityEvent enqueues a client-reported anti-cheat signal. The
// counter worker applies it only while the attempt is still ACTIVE; signals
// never affect grading.
func (s *AttemptService) RecordIntegrityEvent(
	ctx context.Context,
	studentID int64,
	attemptID uuid.UUID,
	eventType model.IntegrityEventType,
) error {
	attempt, err := s.store.GetByID(ctx, attemptID)
	if err != nil {
		return err
	}
	if attempt.StudentID != studentID {
		return model.ErrAttemptNotFound
	}

	return s.enqueue(ctx, config.WorkerKey.PersistIntegrityQueue, model.IntegrityEvent{
		AttemptID:  attemptID.String(),
		EventType:  eventType,
		OccurredAt: s.now().Unix(),
	})
}

// ────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ────────────────────────────────────────────────────────────────────────────

// mergeSubmission merges the submitted answers into the aggregate by
// question id. Ids that match no question are ignored; questions without a
// submitted answer keep whatever selection was already recorded.
func mergeSubmission(a *model.Attempt, req model.SubmitAnswersRequest) {
	byID := make(map[int64]*model.AttemptQuestion, len(a.Questions))
	for i := range a.Questions {
		byID[a.Questions[i].QuestionID] = &a.Questions[i]
	}

	for _, ans := range req.Answers {
		if q, ok := byID[ans.QuestionID]; ok {
			selected := ans.SelectedOption
			q.SelectedOption = &selected
		}
	}
	for _, id := range req.FlaggedQuestionIDs {
		if q, ok := byID[id]; ok {
			q.Flagged = true
		}
	}
}

// overlayAutosaved merges the Redis answers hash over the aggregate. The
// hash is written synchronously on autosave while the PostgreSQL rows trail
// behind the batch writer, so on conflict the hash wins.
func (s *AttemptService) overlayAutosaved(ctx context.Context, a *model.Attempt) {
	if s.rdb == nil || a.Status != model.AttemptStatusActive {
		return
	}

	answers, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(a.ID.String())).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("Answer hash read failed")
		}
		return
	}
	if len(answers) == 0 {
		return
	}

	for i := range a.Questions {
		q := &a.Questions[i]
		if selected, ok := answers[strconv.FormatInt(q.QuestionID, 10)]; ok {
			value := selected
			q.SelectedOption = &value
		}
	}
}

// finalizeExpired grades and commits an attempt whose deadline has passed.
// If a concurrent writer finalized first, the committed aggregate is
// reloaded so the caller sees the winning result.
func (s *AttemptService) finalizeExpired(ctx context.Context, a *model.Attempt) error {
	score, percentage := Grade(a.Questions)
	a.Status = model.AttemptStatusExpired
	a.Score = &score
	a.Percentage = &percentage

	err := s.store.Finalize(ctx, a)
	if err == nil {
		s.afterFinalize(ctx, a)
		s.log.Info().
			Str("attempt_id", a.ID.String()).
			Int("score", score).
			Msg("Attempt expired")
		return nil
	}

	if errors.Is(err, model.ErrAttemptAlreadyFinalized) {
		committed, loadErr := s.store.GetByID(ctx, a.ID)
		if loadErr != nil {
			return loadErr
		}
		*a = *committed
		return nil
	}
	return err
}

// afterFinalize drops the autosave hash and feeds the Student Progress
// queue. Both are best effort: the score is already committed and a
// downstream fault must not undo it.
func (s *AttemptService) afterFinalize(ctx context.Context, a *model.Attempt) {
	if s.rdb == nil {
		return
	}

	if err := s.rdb.Del(ctx, config.CacheKey.AttemptAnswersKey(a.ID.String())).Err(); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("Answer hash cleanup failed")
	}

	payload := s.projector.ProgressPayload(a, s.cfg.PassPercent)
	if err := s.enqueue(ctx, config.WorkerKey.ProgressFeedQueue, payload); err != nil {
		s.log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("Progress feed enqueue failed")
	}
}

func (s *AttemptService) enqueue(ctx context.Context, queue string, payload interface{}) error {
	if s.rdb == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := s.rdb.RPush(ctx, queue, raw).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", queue, err)
	}
	return nil
}
