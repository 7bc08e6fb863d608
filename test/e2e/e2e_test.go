//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"

	"github.com/examforge/exam-engine/internal/model"
	"github.com/examforge/exam-engine/internal/service"
)

const (
	defaultBaseURL = "http://localhost:8050/api/v1"
	defaultSecret  = "dev-secret"
	studentID      = int64(90001)
)

var (
	baseURL      string
	studentToken string
	serviceToken string
	attemptID    string
)

func TestMain(m *testing.M) {
	// Load .env if present (ignore error)
	_ = godotenv.Load("../../.env")

	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = defaultSecret
	}

	var err error
	if studentToken, err = issueToken(secret, studentID, service.TokenTypeStudent); err != nil {
		fmt.Printf("Token setup failed: %v\n", err)
		os.Exit(1)
	}
	if serviceToken, err = issueToken(secret, 0, service.TokenTypeService); err != nil {
		fmt.Printf("Token setup failed: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

// issueToken mimics the external identity service: same claims, same shared
// secret.
func issueToken(secret string, sid int64, tokenType service.TokenType) (string, error) {
	claims := service.Claims{
		StudentID: sid,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doRequest(t *testing.T, method, path, token string, body interface{}) (int, *envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, &env
}

func Test01_StartAttempt(t *testing.T) {
	code, env := doRequest(t, http.MethodPost, "/attempts", studentToken, map[string]interface{}{
		"count":            5,
		"duration_seconds": 600,
	})
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (error: %+v)", code, env.Error)
	}

	var result model.StartResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode start result: %v", err)
	}
	if len(result.Questions) != 5 {
		t.Fatalf("expected 5 questions, got %d", len(result.Questions))
	}
	attemptID = result.AttemptID.String()

	// Raw body must not contain any correct-answer field.
	if bytes.Contains(env.Data, []byte("correct_answer")) {
		t.Fatal("start response leaked correct answers")
	}
}

func Test02_SecondStartConflicts(t *testing.T) {
	code, env := doRequest(t, http.MethodPost, "/attempts", studentToken, map[string]interface{}{
		"count":            5,
		"duration_seconds": 600,
	})
	if code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}
	if env.Error == nil || env.Error.Code != "ATTEMPT_ALREADY_ACTIVE" {
		t.Fatalf("expected ATTEMPT_ALREADY_ACTIVE, got %+v", env.Error)
	}
}

func Test03_ResumeActiveAttempt(t *testing.T) {
	code, env := doRequest(t, http.MethodGet, "/attempts/active", studentToken, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d (error: %+v)", code, env.Error)
	}

	var view model.AttemptView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode attempt view: %v", err)
	}
	if view.AttemptID.String() != attemptID {
		t.Fatalf("resumed a different attempt: %s != %s", view.AttemptID, attemptID)
	}
	if view.RemainingSeconds <= 0 {
		t.Fatalf("expected remaining time, got %v", view.RemainingSeconds)
	}
}

func Test04_AutosaveAndIntegrityEvent(t *testing.T) {
	code, env := doRequest(t, http.MethodGet, "/attempts/active", studentToken, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var view model.AttemptView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode attempt view: %v", err)
	}

	code, _ = doRequest(t, http.MethodPost, "/attempts/"+attemptID+"/answers", studentToken, map[string]interface{}{
		"question_id":     view.Questions[0].QuestionID,
		"selected_option": view.Questions[0].Options[0],
	})
	if code != http.StatusAccepted {
		t.Fatalf("autosave: expected 202, got %d", code)
	}

	code, _ = doRequest(t, http.MethodPost, "/attempts/"+attemptID+"/events", studentToken, map[string]interface{}{
		"event_type": "TAB_SWITCH",
	})
	if code != http.StatusAccepted {
		t.Fatalf("integrity event: expected 202, got %d", code)
	}

	// Autosaved selection must survive into the next resume view.
	code, env = doRequest(t, http.MethodGet, "/attempts/active", studentToken, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode attempt view: %v", err)
	}
	if view.Questions[0].SelectedOption == nil {
		t.Fatal("autosaved selection lost on resume")
	}
}

func Test05_SubmitAttempt(t *testing.T) {
	code, env := doRequest(t, http.MethodPost, "/attempts/"+attemptID+"/submit", studentToken, map[string]interface{}{
		"answers": []map[string]interface{}{},
	})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d (error: %+v)", code, env.Error)
	}

	var result model.SubmitResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode submit result: %v", err)
	}
	if result.Status != model.AttemptStatusSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", result.Status)
	}
}

func Test06_DuplicateSubmitRejected(t *testing.T) {
	code, env := doRequest(t, http.MethodPost, "/attempts/"+attemptID+"/submit", studentToken, map[string]interface{}{
		"answers": []map[string]interface{}{},
	})
	if code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}
	if env.Error == nil || env.Error.Code != "ATTEMPT_ALREADY_FINALIZED" {
		t.Fatalf("expected ATTEMPT_ALREADY_FINALIZED, got %+v", env.Error)
	}
}

func Test07_ResultsVisibleToServiceToken(t *testing.T) {
	path := fmt.Sprintf("/students/%d/results", studentID)

	code, env := doRequest(t, http.MethodGet, path, serviceToken, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d (error: %+v)", code, env.Error)
	}

	var body struct {
		Results []model.ResultSummary `json:"results"`
	}
	if err := json.Unmarshal(env.Data, &body); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	results := body.Results
	if len(results) == 0 {
		t.Fatal("expected at least one finalized attempt in results")
	}
	if results[0].Status != model.AttemptStatusSubmitted {
		t.Fatalf("expected SUBMITTED result, got %s", results[0].Status)
	}
}

func Test08_ResultsHiddenFromOtherStudents(t *testing.T) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = defaultSecret
	}
	otherToken, err := issueToken(secret, studentID+1, service.TokenTypeStudent)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	path := fmt.Sprintf("/students/%d/results", studentID)
	code, _ := doRequest(t, http.MethodGet, path, otherToken, nil)
	if code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func Test09_UnauthenticatedRejected(t *testing.T) {
	code, _ := doRequest(t, http.MethodGet, "/attempts/active", "", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}
