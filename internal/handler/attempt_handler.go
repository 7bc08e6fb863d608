package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/examforge/exam-engine/internal/middleware"
	"github.com/examforge/exam-engine/internal/model"
	"github.com/examforge/exam-engine/internal/response"
	"github.com/examforge/exam-engine/internal/service"
	"github.com/examforge/exam-engine/internal/validator"
)

// AttemptHandler handles the exam-attempt boundary: start, resume, submit,
// autosave, telemetry, and result listings.
type AttemptHandler struct {
	attemptService *service.AttemptService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService) *AttemptHandler {
	return &AttemptHandler{attemptService: attemptService}
}

// StartAttempt godoc
// POST /api/v1/attempts
// Starts a timed attempt for the authenticated student. The exam clock
// starts now; the response carries the shuffled question list with no
// correct answers.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.StartAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attemptService.StartAttempt(
		c.Request.Context(), claims.StudentID, req,
		c.ClientIP(), c.Request.UserAgent(),
	)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusCreated, result)
}

// GetActiveAttempt godoc
// GET /api/v1/attempts/active
// Returns the student's resumable attempt view, resolving expiry first.
func (h *AttemptHandler) GetActiveAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	view, err := h.attemptService.GetActiveAttempt(c.Request.Context(), claims.StudentID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// SubmitAnswers godoc
// POST /api/v1/attempts/:attempt_id/submit
// Finalizes the attempt with the submitted selections. Retries of an already
// finalized attempt observe ATTEMPT_ALREADY_FINALIZED and never regrade.
func (h *AttemptHandler) SubmitAnswers(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SubmitAnswersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attemptService.SubmitAnswers(c.Request.Context(), claims.StudentID, attemptID, req)
	if err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// AutosaveAnswer godoc
// POST /api/v1/attempts/:attempt_id/answers
// Records one in-progress selection while the attempt is ACTIVE.
func (h *AttemptHandler) AutosaveAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.AutosaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.AutosaveAnswer(c.Request.Context(), claims.StudentID, attemptID, req); err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"saved": true})
}

// RecordIntegrityEvent godoc
// POST /api/v1/attempts/:attempt_id/events
// Accepts a client anti-cheat signal (tab switch, focus loss, fullscreen
// exit). Accumulated asynchronously; never affects grading.
func (h *AttemptHandler) RecordIntegrityEvent(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.IntegrityEventRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.RecordIntegrityEvent(c.Request.Context(), claims.StudentID, attemptID, req.EventType); err != nil {
		failFromErr(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"recorded": true})
}

// GetStudentResults godoc
// GET /api/v1/students/:student_id/results
// Lists finalized attempt summaries. Students may only read their own;
// trusted service callers may read any student's.
func (h *AttemptHandler) GetStudentResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	studentID, err := strconv.ParseInt(c.Param("student_id"), 10, 64)
	if err != nil || studentID <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if claims.TokenType != service.TokenTypeService && claims.StudentID != studentID {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}

	summaries, err := h.attemptService.GetResultsForStudent(c.Request.Context(), studentID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	if summaries == nil {
		summaries = []model.ResultSummary{}
	}

	response.Success(c, http.StatusOK, gin.H{"results": summaries})
}

// failFromErr maps domain errors to their client-visible codes. Anything
// unmapped falls through to a generic internal error without leaking state.
func failFromErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
	case errors.Is(err, model.ErrAttemptAlreadyActive):
		response.Fail(c, http.StatusConflict, response.ErrAttemptAlreadyActive)
	case errors.Is(err, model.ErrAttemptAlreadyFinalized):
		response.Fail(c, http.StatusConflict, response.ErrAttemptAlreadyFinalized)
	case errors.Is(err, model.ErrInsufficientQuestions):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrInsufficientQuestions)
	case errors.Is(err, model.ErrCatalogUnavailable):
		response.Fail(c, http.StatusServiceUnavailable, response.ErrCatalogUnavailable)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
