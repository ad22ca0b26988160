package exam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"toeicprep/internal/auth"

	"github.com/go-chi/chi/v5"
)

type mockExamService struct {
	listTestsFn            func(ctx context.Context) ([]TestInfo, error)
	upsertTestFn           func(ctx context.Context, in UpsertTestInput) (*TestInfo, error)
	getQuestionSetFn       func(ctx context.Context, examID string, parts []int) (*Normalized, error)
	getAnswerKeySectionsFn func(ctx context.Context, examID string) ([]Section, error)
	startAttemptFn         func(ctx context.Context, examID string, userID int64, parts []int) (*Attempt, error)
	getAttemptSummaryFn    func(ctx context.Context, attemptID string) (*AttemptSummary, error)
	saveAnswerFn           func(ctx context.Context, in SaveAnswerInput) error
	submitAttemptFn        func(ctx context.Context, attemptID string) (*ResultSummary, error)
	getAttemptResultFn     func(ctx context.Context, attemptID string) (*ResultSummary, error)
	latestResultFn         func(ctx context.Context, userID int64, examID string) (*ResultSummary, error)
	getAttemptOwnerFn      func(ctx context.Context, attemptID string) (int64, error)
}

func (m *mockExamService) ListTests(ctx context.Context) ([]TestInfo, error) {
	if m.listTestsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listTestsFn(ctx)
}

func (m *mockExamService) UpsertTest(ctx context.Context, in UpsertTestInput) (*TestInfo, error) {
	if m.upsertTestFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.upsertTestFn(ctx, in)
}

func (m *mockExamService) GetQuestionSet(ctx context.Context, examID string, parts []int) (*Normalized, error) {
	if m.getQuestionSetFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getQuestionSetFn(ctx, examID, parts)
}

func (m *mockExamService) GetAnswerKeySections(ctx context.Context, examID string) ([]Section, error) {
	if m.getAnswerKeySectionsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getAnswerKeySectionsFn(ctx, examID)
}

func (m *mockExamService) StartAttempt(ctx context.Context, examID string, userID int64, parts []int) (*Attempt, error) {
	if m.startAttemptFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.startAttemptFn(ctx, examID, userID, parts)
}

func (m *mockExamService) GetAttemptSummary(ctx context.Context, attemptID string) (*AttemptSummary, error) {
	if m.getAttemptSummaryFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getAttemptSummaryFn(ctx, attemptID)
}

func (m *mockExamService) SaveAnswer(ctx context.Context, in SaveAnswerInput) error {
	if m.saveAnswerFn == nil {
		return errors.New("not implemented")
	}
	return m.saveAnswerFn(ctx, in)
}

func (m *mockExamService) SubmitAttempt(ctx context.Context, attemptID string) (*ResultSummary, error) {
	if m.submitAttemptFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.submitAttemptFn(ctx, attemptID)
}

func (m *mockExamService) GetAttemptResult(ctx context.Context, attemptID string) (*ResultSummary, error) {
	if m.getAttemptResultFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getAttemptResultFn(ctx, attemptID)
}

func (m *mockExamService) LatestResult(ctx context.Context, userID int64, examID string) (*ResultSummary, error) {
	if m.latestResultFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.latestResultFn(ctx, userID, examID)
}

func (m *mockExamService) GetAttemptOwner(ctx context.Context, attemptID string) (int64, error) {
	if m.getAttemptOwnerFn == nil {
		return 0, errors.New("not implemented")
	}
	return m.getAttemptOwnerFn(ctx, attemptID)
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

const attemptUUID = "3f8a2d44-9c1b-4f6e-8a2d-449c1b4f6e8a"

func TestGetQuestionsPartsFilterPassedThrough(t *testing.T) {
	var gotParts []int
	h := NewHandler(&mockExamService{
		getQuestionSetFn: func(ctx context.Context, examID string, parts []int) (*Normalized, error) {
			gotParts = parts
			return &Normalized{Questions: []Question{{ID: "s-1", Number: 1, Part: 3}}}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tests/etest1/questions?parts=3,5", nil)
	req = withChiParam(req, "examID", "etest1")
	w := httptest.NewRecorder()
	h.GetQuestions(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(gotParts) != 2 || gotParts[0] != 3 || gotParts[1] != 5 {
		t.Fatalf("parts filter not forwarded: %v", gotParts)
	}
}

func TestGetQuestionsBadPartsParam(t *testing.T) {
	h := NewHandler(&mockExamService{})
	for _, raw := range []string{"abc", "0", "8", "3,,5"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tests/etest1/questions?parts="+raw, nil)
		req = withChiParam(req, "examID", "etest1")
		w := httptest.NewRecorder()
		h.GetQuestions(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("parts=%q expected 400, got %d", raw, w.Code)
		}
	}
}

func TestGetQuestionsErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{ErrExamNotFound, http.StatusNotFound},
		{ErrEmptySelection, http.StatusUnprocessableEntity},
		{ErrBadShape, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := NewHandler(&mockExamService{
			getQuestionSetFn: func(ctx context.Context, examID string, parts []int) (*Normalized, error) {
				return nil, tc.err
			},
		})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/tests/etest1/questions", nil)
		req = withChiParam(req, "examID", "etest1")
		w := httptest.NewRecorder()
		h.GetQuestions(w, req)
		if w.Code != tc.code {
			t.Fatalf("err %v expected %d, got %d", tc.err, tc.code, w.Code)
		}
	}
}

func TestGetAttemptForbiddenForNonOwner(t *testing.T) {
	h := NewHandler(&mockExamService{
		getAttemptOwnerFn: func(ctx context.Context, attemptID string) (int64, error) { return 2, nil },
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attempts/"+attemptUUID, nil)
	req = withChiParam(req, "id", attemptUUID)
	req = req.WithContext(auth.WithUser(req.Context(), &auth.User{ID: 1, Role: "student"}))
	w := httptest.NewRecorder()
	h.GetAttempt(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestGetAttemptAllowedForTeacher(t *testing.T) {
	h := NewHandler(&mockExamService{
		getAttemptSummaryFn: func(ctx context.Context, attemptID string) (*AttemptSummary, error) {
			return &AttemptSummary{Attempt: Attempt{ID: attemptID, ExamID: "etest1", UserID: 2, Status: "in_progress", StartedAt: time.Now()}}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attempts/"+attemptUUID, nil)
	req = withChiParam(req, "id", attemptUUID)
	req = req.WithContext(auth.WithUser(req.Context(), &auth.User{ID: 7, Role: "teacher"}))
	w := httptest.NewRecorder()
	h.GetAttempt(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestStartAttemptRequiresExamID(t *testing.T) {
	h := NewHandler(&mockExamService{})
	body := bytes.NewBufferString(`{"parts":[1,2]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/attempts/start", body)
	req = req.WithContext(auth.WithUser(req.Context(), &auth.User{ID: 1, Role: "student"}))
	w := httptest.NewRecorder()
	h.Start(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestStartAttemptUsesSessionUserID(t *testing.T) {
	var gotUserID int64
	h := NewHandler(&mockExamService{
		startAttemptFn: func(ctx context.Context, examID string, userID int64, parts []int) (*Attempt, error) {
			gotUserID = userID
			return &Attempt{ID: attemptUUID, ExamID: examID, UserID: userID, Status: "in_progress", StartedAt: time.Now()}, nil
		},
	})

	body := bytes.NewBufferString(`{"exam_id":"etest1","parts":[3,5]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/attempts/start", body)
	req = req.WithContext(auth.WithUser(req.Context(), &auth.User{ID: 15, Role: "student"}))
	w := httptest.NewRecorder()
	h.Start(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotUserID != 15 {
		t.Fatalf("expected session user id 15, got %d", gotUserID)
	}
}

func TestSaveAnswerLockedAttempt(t *testing.T) {
	h := NewHandler(&mockExamService{
		getAttemptOwnerFn: func(ctx context.Context, attemptID string) (int64, error) { return 1, nil },
		saveAnswerFn: func(ctx context.Context, in SaveAnswerInput) error {
			return ErrAttemptNotEditable
		},
	})

	body := bytes.NewBufferString(`{"number":1,"part":1,"selected":"A"}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/attempts/"+attemptUUID+"/answers/sec1-1", body)
	req = withChiParam(req, "id", attemptUUID)
	req = withChiParam(req, "questionID", "sec1-1")
	req = req.WithContext(auth.WithUser(req.Context(), &auth.User{ID: 1, Role: "student"}))
	w := httptest.NewRecorder()
	h.SaveAnswer(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSubmitIdempotentReturnsSameSummary(t *testing.T) {
	fixed := &ResultSummary{
		ExamID:           "etest1",
		ListeningCorrect: 82,
		ReadingCorrect:   91,
		ListeningScore:   450,
		ReadingScore:     455,
		TotalScore:       905,
		SubmittedAt:      time.Now().UTC(),
	}

	submitCalls := 0
	h := NewHandler(&mockExamService{
		getAttemptOwnerFn: func(ctx context.Context, attemptID string) (int64, error) { return 2, nil },
		submitAttemptFn: func(ctx context.Context, attemptID string) (*ResultSummary, error) {
			submitCalls++
			return fixed, nil
		},
	})

	callSubmit := func() map[string]interface{} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/attempts/"+attemptUUID+"/submit", nil)
		req = withChiParam(req, "id", attemptUUID)
		req = req.WithContext(auth.WithUser(req.Context(), &auth.User{ID: 2, Role: "student"}))
		w := httptest.NewRecorder()
		h.Submit(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		return decodeBody(t, w)
	}

	first := callSubmit()
	second := callSubmit()

	if submitCalls != 2 {
		t.Fatalf("expected submit called twice, got %d", submitCalls)
	}
	firstData, _ := json.Marshal(first["data"])
	secondData, _ := json.Marshal(second["data"])
	if string(firstData) != string(secondData) {
		t.Fatalf("expected same summary on repeated submit, got different responses")
	}
}

func TestSubmitRetryableFailure(t *testing.T) {
	h := NewHandler(&mockExamService{
		getAttemptOwnerFn: func(ctx context.Context, attemptID string) (int64, error) { return 2, nil },
		submitAttemptFn: func(ctx context.Context, attemptID string) (*ResultSummary, error) {
			return nil, ErrSubmitFailed
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/attempts/"+attemptUUID+"/submit", nil)
	req = withChiParam(req, "id", attemptUUID)
	req = req.WithContext(auth.WithUser(req.Context(), &auth.User{ID: 2, Role: "student"}))
	w := httptest.NewRecorder()
	h.Submit(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for retryable submit failure, got %d", w.Code)
	}
}

func TestResultRequiresSubmittedAttempt(t *testing.T) {
	h := NewHandler(&mockExamService{
		getAttemptOwnerFn: func(ctx context.Context, attemptID string) (int64, error) { return 2, nil },
		getAttemptResultFn: func(ctx context.Context, attemptID string) (*ResultSummary, error) {
			return nil, ErrAttemptNotFinal
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/attempts/"+attemptUUID+"/result", nil)
	req = withChiParam(req, "id", attemptUUID)
	req = req.WithContext(auth.WithUser(req.Context(), &auth.User{ID: 2, Role: "student"}))
	w := httptest.NewRecorder()
	h.Result(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestLatestResultNotFound(t *testing.T) {
	h := NewHandler(&mockExamService{
		latestResultFn: func(ctx context.Context, userID int64, examID string) (*ResultSummary, error) {
			return nil, ErrAttemptNotFound
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tests/etest1/latest-result", nil)
	req = withChiParam(req, "examID", "etest1")
	req = req.WithContext(auth.WithUser(req.Context(), &auth.User{ID: 2, Role: "student"}))
	w := httptest.NewRecorder()
	h.LatestResult(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestUpsertTestRejectsBadSections(t *testing.T) {
	h := NewHandler(&mockExamService{
		upsertTestFn: func(ctx context.Context, in UpsertTestInput) (*TestInfo, error) {
			return nil, ErrBadShape
		},
	})

	body := bytes.NewBufferString(`{"title":"TOEIC Practice 1","time_limit_sec":7200,"sections":{"not":"an array"}}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/tests/etest1", body)
	req = withChiParam(req, "examID", "etest1")
	w := httptest.NewRecorder()
	h.UpsertTest(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}
