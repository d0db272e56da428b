package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"quizdesk/internal/events"
	appI18n "quizdesk/internal/i18n"
	"quizdesk/internal/model"
	"quizdesk/internal/store"
)

type testEnv struct {
	handler *Handler
	store   *store.Store
	hub     *events.Hub
	srv     *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("init i18n: %v", err)
	}
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	hub := events.NewHub()
	h := New(s, hub, model.ServerConfig{Lang: "en"})

	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	h.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testEnv{handler: h, store: s, hub: hub, srv: srv}
}

func (env *testEnv) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar}
}

// adminClient seeds an admin user on first use and returns a logged-in client.
func (env *testEnv) adminClient(t *testing.T) *http.Client {
	t.Helper()
	count, err := env.store.UserCount()
	if err != nil {
		t.Fatalf("UserCount: %v", err)
	}
	if count == 0 {
		hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("hash password: %v", err)
		}
		if _, err := env.store.CreateUser(model.User{
			Username: "admin", PasswordHash: string(hash),
			Role: model.UserRoleAdmin, Active: true,
		}); err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
	}

	c := env.client(t)
	resp := doJSON(t, c, http.MethodPost, env.srv.URL+"/api/login",
		map[string]string{"username": "admin", "password": "secret"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	return c
}

func doJSON(t *testing.T, c *http.Client, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func decodeResp(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// activeTest creates a published test with the given settings and one select
// question, returning the test and question.
func (env *testEnv) activeTest(t *testing.T) (model.Test, model.Question) {
	t.Helper()
	test, err := env.store.CreateTest("Fire safety")
	if err != nil {
		t.Fatalf("CreateTest: %v", err)
	}
	if err := env.store.SaveSettings(model.TestSettings{
		TestID: test.ID, DurationMinutes: 10, PassingScore: 1, QuestionsPerTest: 5,
	}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	q, err := env.store.SaveQuestion(test.ID, model.Question{
		Text: "Pick A", Kind: model.KindSelect,
		CorrectKeys: []string{"a"},
		Options:     []model.Option{{ID: "a", Text: "Right"}, {ID: "b", Text: "Wrong"}},
	})
	if err != nil {
		t.Fatalf("SaveQuestion: %v", err)
	}
	if err := env.store.SetTestActive(test.ID, true); err != nil {
		t.Fatalf("SetTestActive: %v", err)
	}
	return test, q
}

func (env *testEnv) startAttempt(t *testing.T, c *http.Client, testID string) {
	t.Helper()
	resp := doJSON(t, c, http.MethodPost, env.srv.URL+"/api/tests/"+testID+"/start", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
}

func TestSubmitCompletedFlow(t *testing.T) {
	env := newTestEnv(t)
	test, q := env.activeTest(t)
	c := env.client(t)

	env.startAttempt(t, c, test.ID)
	resp := doJSON(t, c, http.MethodPost, env.srv.URL+"/api/tests/"+test.ID+"/submit", map[string]any{
		"fio": "Ivanov Ivan",
		"answers": []map[string]any{
			{"questionId": q.ID, "answerIds": []string{q.ID + "-a"}},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status = %d", resp.StatusCode)
	}
	var body struct {
		Status       string                `json:"status"`
		ResultID     int64                 `json:"resultId"`
		Score        int                   `json:"score"`
		Total        int                   `json:"total"`
		Passed       bool                  `json:"passed"`
		TestName     string                `json:"testName"`
		ProtocolData []model.ProtocolEntry `json:"protocolData"`
	}
	decodeResp(t, resp, &body)

	if body.Status != "completed" || !body.Passed {
		t.Errorf("status=%q passed=%v, want completed pass", body.Status, body.Passed)
	}
	if body.Score != 1 || body.Total != 1 {
		t.Errorf("score = %d/%d, want 1/1", body.Score, body.Total)
	}
	if body.TestName != "Fire safety" {
		t.Errorf("testName = %q", body.TestName)
	}
	if len(body.ProtocolData) != 1 || body.ProtocolData[0].ChosenAnswerText != "Right" {
		t.Errorf("protocol = %+v", body.ProtocolData)
	}
}

func TestSubmitRequiresStart(t *testing.T) {
	env := newTestEnv(t)
	test, q := env.activeTest(t)
	c := env.client(t)

	resp := doJSON(t, c, http.MethodPost, env.srv.URL+"/api/tests/"+test.ID+"/submit", map[string]any{
		"fio":     "Ivanov",
		"answers": []map[string]any{{"questionId": q.ID, "answerIds": []string{q.ID + "-a"}}},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without a started attempt", resp.StatusCode)
	}
}

func TestSubmitExpiredAttempt(t *testing.T) {
	env := newTestEnv(t)
	test, q := env.activeTest(t)
	c := env.client(t)

	env.startAttempt(t, c, test.ID)

	// Backdate the attempt past the duration plus grace.
	token := attemptToken(t, c, env.srv.URL)
	env.handler.attempts.start(token, test.ID, time.Now().Add(-11*time.Minute))

	resp := doJSON(t, c, http.MethodPost, env.srv.URL+"/api/tests/"+test.ID+"/submit", map[string]any{
		"fio":     "Ivanov",
		"answers": []map[string]any{{"questionId": q.ID, "answerIds": []string{q.ID + "-a"}}},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an expired attempt", resp.StatusCode)
	}

	// The marker is gone: a retry without restarting fails as not-started too.
	if _, ok := env.handler.attempts.startTime(token, test.ID); ok {
		t.Error("expired attempt marker must be cleared")
	}
}

func attemptToken(t *testing.T, c *http.Client, base string) string {
	t.Helper()
	u, err := url.Parse(base)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	for _, cookie := range c.Jar.Cookies(u) {
		if cookie.Name == attemptCookieName {
			return cookie.Value
		}
	}
	t.Fatal("attempt cookie not set")
	return ""
}

func TestSubmitAlreadyPassed(t *testing.T) {
	env := newTestEnv(t)
	test, q := env.activeTest(t)
	c := env.client(t)

	submit := func() *http.Response {
		env.startAttempt(t, c, test.ID)
		return doJSON(t, c, http.MethodPost, env.srv.URL+"/api/tests/"+test.ID+"/submit", map[string]any{
			"fio":     "Ivanov",
			"answers": []map[string]any{{"questionId": q.ID, "answerIds": []string{q.ID + "-a"}}},
		})
	}

	first := submit()
	first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first submit status = %d", first.StatusCode)
	}

	second := submit()
	defer second.Body.Close()
	if second.StatusCode != http.StatusConflict {
		t.Errorf("second submit status = %d, want 409", second.StatusCode)
	}
}

func TestQuestionsEndpointHidesAnswers(t *testing.T) {
	env := newTestEnv(t)
	test, _ := env.activeTest(t)
	c := env.client(t)

	env.startAttempt(t, c, test.ID)
	resp := doJSON(t, c, http.MethodGet, env.srv.URL+"/api/tests/"+test.ID+"/questions", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Questions []map[string]any `json:"questions"`
		Duration  int              `json:"duration"`
		EndTime   int64            `json:"endTime"`
	}
	decodeResp(t, resp, &body)

	if len(body.Questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(body.Questions))
	}
	if _, leaked := body.Questions[0]["correct"]; leaked {
		t.Error("canonical answer keys leaked to the respondent")
	}
	if body.Duration != 600 {
		t.Errorf("duration = %d, want 600 seconds", body.Duration)
	}
	if body.EndTime <= time.Now().UnixMilli() {
		t.Errorf("endTime = %d is not in the future", body.EndTime)
	}
}

func TestInactiveTestHidden(t *testing.T) {
	env := newTestEnv(t)
	test, _ := env.activeTest(t)
	if err := env.store.SetTestActive(test.ID, false); err != nil {
		t.Fatalf("SetTestActive: %v", err)
	}
	c := env.client(t)

	resp := doJSON(t, c, http.MethodGet, env.srv.URL+"/api/tests/"+test.ID+"/questions", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("questions of an inactive test: status = %d, want 404", resp.StatusCode)
	}

	start := doJSON(t, c, http.MethodPost, env.srv.URL+"/api/tests/"+test.ID+"/start", nil)
	defer start.Body.Close()
	if start.StatusCode != http.StatusNotFound {
		t.Errorf("start on an inactive test: status = %d, want 404", start.StatusCode)
	}
}

func TestReviewFlowFinalizes(t *testing.T) {
	env := newTestEnv(t)
	test, _ := env.activeTest(t)
	textQ, err := env.store.SaveQuestion(test.ID, model.Question{Text: "Explain", Kind: model.KindText})
	if err != nil {
		t.Fatalf("SaveQuestion: %v", err)
	}

	c := env.client(t)
	env.startAttempt(t, c, test.ID)
	resp := doJSON(t, c, http.MethodPost, env.srv.URL+"/api/tests/"+test.ID+"/submit", map[string]any{
		"fio":     "Ivanov",
		"answers": []map[string]any{{"questionId": textQ.ID, "answerIds": []string{"my essay"}}},
	})
	var submitted struct {
		Status   string `json:"status"`
		ResultID int64  `json:"resultId"`
	}
	decodeResp(t, resp, &submitted)
	if submitted.Status != "pending_review" {
		t.Fatalf("status = %q, want pending_review", submitted.Status)
	}

	admin := env.adminClient(t)

	reviewURL := fmt.Sprintf("%s/api/admin/results/%d/review", env.srv.URL, submitted.ResultID)
	listResp := doJSON(t, admin, http.MethodGet, reviewURL, nil)
	var pending []model.PendingReview
	decodeResp(t, listResp, &pending)
	if len(pending) != 1 || pending[0].UserAnswer != "my essay" {
		t.Fatalf("pending = %+v", pending)
	}

	batchResp := doJSON(t, admin, http.MethodPost, env.srv.URL+"/api/admin/review/submit-batch", map[string]any{
		"verdicts": []map[string]any{{"answerId": pending[0].AnswerID, "isCorrect": true}},
	})
	var batch struct {
		Success     bool  `json:"success"`
		ResultID    int64 `json:"resultId"`
		IsFinalized bool  `json:"isFinalized"`
	}
	decodeResp(t, batchResp, &batch)
	if !batch.Success || !batch.IsFinalized {
		t.Fatalf("batch = %+v, want finalized", batch)
	}

	summary, err := env.store.GetResultSummary(submitted.ResultID)
	if err != nil {
		t.Fatalf("GetResultSummary: %v", err)
	}
	if summary.Status != model.StatusCompleted || !summary.Passed || summary.Score != 1 {
		t.Errorf("finalized summary = %+v", summary)
	}

	emptyResp := doJSON(t, admin, http.MethodGet, reviewURL, nil)
	var left []model.PendingReview
	decodeResp(t, emptyResp, &left)
	if len(left) != 0 {
		t.Errorf("review list after finalization = %+v, want empty", left)
	}
}

func TestAdminRequiresSession(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	resp := doJSON(t, c, http.MethodGet, env.srv.URL+"/api/admin/tests", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without a session", resp.StatusCode)
	}
}

func TestAdminSettingsValidation(t *testing.T) {
	env := newTestEnv(t)
	test, _ := env.activeTest(t)
	admin := env.adminClient(t)

	url := env.srv.URL + "/api/admin/tests/" + test.ID + "/settings"
	bad := []map[string]any{
		{"duration_minutes": 0, "passing_score": 1, "questions_per_test": 5},
		{"duration_minutes": 181, "passing_score": 1, "questions_per_test": 5},
		{"duration_minutes": 10, "passing_score": 0, "questions_per_test": 5},
		{"duration_minutes": 10, "passing_score": 1, "questions_per_test": 101},
		{"duration_minutes": 10, "passing_score": 6, "questions_per_test": 5},
	}
	for _, body := range bad {
		resp := doJSON(t, admin, http.MethodPost, url, body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("settings %v: status = %d, want 400", body, resp.StatusCode)
		}
	}

	resp := doJSON(t, admin, http.MethodPost, url, map[string]any{
		"duration_minutes": 15, "passing_score": 2, "questions_per_test": 4,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid settings rejected: %d", resp.StatusCode)
	}
}

func TestLastResultEndpoint(t *testing.T) {
	env := newTestEnv(t)
	test, q := env.activeTest(t)
	c := env.client(t)

	env.startAttempt(t, c, test.ID)
	resp := doJSON(t, c, http.MethodPost, env.srv.URL+"/api/tests/"+test.ID+"/submit", map[string]any{
		"fio":     "Ivanov",
		"answers": []map[string]any{{"questionId": q.ID, "answerIds": []string{q.ID + "-a"}}},
	})
	resp.Body.Close()

	lastResp := doJSON(t, c, http.MethodGet,
		env.srv.URL+"/api/results/last?testId="+test.ID+"&fio=Ivanov", nil)
	var last struct {
		Summary      model.ResultSummary   `json:"summary"`
		ProtocolData []model.ProtocolEntry `json:"protocolData"`
	}
	decodeResp(t, lastResp, &last)
	if !last.Summary.Passed || last.Summary.TestName != "Fire safety" {
		t.Errorf("summary = %+v", last.Summary)
	}
	if len(last.ProtocolData) != 1 {
		t.Errorf("protocol entries = %d, want 1", len(last.ProtocolData))
	}

	missing := doJSON(t, c, http.MethodGet,
		env.srv.URL+"/api/results/last?testId="+test.ID+"&fio=Nobody", nil)
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for a respondent without a pass", missing.StatusCode)
	}
}
