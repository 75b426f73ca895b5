package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kingrea/trivia-terminal/internal/operation"
	"github.com/kingrea/trivia-terminal/internal/session"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestServer(t *testing.T, settings Settings, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := NewServer(settings, append([]Option{WithIDs(sequentialIDs())}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestDefaultBankIsValid(t *testing.T) {
	bank := DefaultBank()
	if len(bank.Categories) < 3 {
		t.Fatalf("expected built-in categories, got %d", len(bank.Categories))
	}
	if _, ok := bank.Category("science"); !ok {
		t.Fatalf("science category missing")
	}
}

func TestParseBankValidation(t *testing.T) {
	cases := map[string]string{
		"empty":     "categories: []\n",
		"answer":    "categories:\n  - id: a\n    questions:\n      - text: q\n        options: [x, y]\n        answer: 5\n",
		"options":   "categories:\n  - id: a\n    questions:\n      - text: q\n        options: [x]\n        answer: 0\n",
		"duplicate": "categories:\n  - id: a\n    questions:\n      - {text: q, options: [x, y], answer: 0}\n  - id: A\n    questions:\n      - {text: q, options: [x, y], answer: 0}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseBank([]byte(body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadBankFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.yaml")
	body := "categories:\n  - id: Music\n    questions:\n      - {text: ' How many strings on a violin? ', options: ['3', '4'], answer: 1}\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	srv, ts := newTestServer(t, Settings{BankPath: path})
	if len(srv.store.bank.Categories) != 1 {
		t.Fatalf("bank not loaded")
	}
	var out struct {
		Categories []categoryView `json:"categories"`
	}
	if code := doJSON(t, http.MethodGet, ts.URL+"/api/categories", nil, &out); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(out.Categories) != 1 || out.Categories[0].ID != "music" || out.Categories[0].Name != "music" {
		t.Fatalf("categories = %+v", out.Categories)
	}
}

func TestSessionFlowScoresAndIssuesEligibility(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	_, ts := newTestServer(t, Settings{QuestionsPerSession: 2}, WithClock(func() time.Time { return fixed }))

	var sess session.Session
	if code := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", map[string]string{"categoryId": "science"}, &sess); code != http.StatusCreated {
		t.Fatalf("start status %d", code)
	}
	if sess.ID != "id-1" || len(sess.Questions) != 2 {
		t.Fatalf("session = %+v", sess)
	}
	for _, q := range sess.Questions {
		if q.CorrectIndex != nil {
			t.Fatalf("answer key leaked for %s", q.ID)
		}
	}
	bank := DefaultBank()
	science, _ := bank.Category("science")
	for i := range sess.Questions {
		var res session.AnswerResult
		req := session.AnswerRequest{QuestionIndex: i, OptionIndex: science.Questions[i].Answer, ElapsedMs: 1500}
		if code := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+sess.ID+"/answers", req, &res); code != http.StatusOK {
			t.Fatalf("answer %d status %d", i, code)
		}
		if !res.Correct {
			t.Fatalf("answer %d judged wrong", i)
		}
	}
	var replay session.AnswerResult
	same := session.AnswerRequest{QuestionIndex: 0, OptionIndex: science.Questions[0].Answer, ElapsedMs: 1500}
	if code := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+sess.ID+"/answers", same, &replay); code != http.StatusOK || !replay.Correct {
		t.Fatalf("resent answer: %d %+v", code, replay)
	}
	other := (science.Questions[0].Answer + 1) % len(science.Questions[0].Options)
	var dup map[string]string
	if code := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+sess.ID+"/answers", session.AnswerRequest{QuestionIndex: 0, OptionIndex: other}, &dup); code != http.StatusConflict || dup["code"] != "already_answered" {
		t.Fatalf("duplicate answer: %d %v", code, dup)
	}
	var res session.Result
	if code := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+sess.ID+"/complete", nil, &res); code != http.StatusOK {
		t.Fatalf("complete status %d", code)
	}
	if res.Score != 2 || res.Total != 2 || !res.Won || res.ElapsedMs != 3000 {
		t.Fatalf("result = %+v", res)
	}
	if res.EligibilityID == "" || res.EligibilityExpiresAt == nil || !res.EligibilityExpiresAt.Equal(fixed.Add(EligibilityTTL)) {
		t.Fatalf("eligibility = %q %v", res.EligibilityID, res.EligibilityExpiresAt)
	}
	var again session.Result
	doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+sess.ID+"/complete", nil, &again)
	if again.EligibilityID != res.EligibilityID {
		t.Fatalf("complete is not idempotent")
	}
}

func TestTimeoutAnswerIsWrong(t *testing.T) {
	_, ts := newTestServer(t, Settings{})
	var sess session.Session
	doJSON(t, http.MethodPost, ts.URL+"/api/sessions", map[string]string{"categoryId": "history"}, &sess)
	var res session.AnswerResult
	req := session.AnswerRequest{QuestionIndex: 0, OptionIndex: session.TimeoutOption, ElapsedMs: 10000}
	if code := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+sess.ID+"/answers", req, &res); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if res.Correct || res.CorrectIndex != 1 {
		t.Fatalf("timeout result = %+v", res)
	}
}

func TestMintAdvancesOneStepPerRead(t *testing.T) {
	_, ts := newTestServer(t, Settings{QuestionsPerSession: 1})
	var sess session.Session
	doJSON(t, http.MethodPost, ts.URL+"/api/sessions", map[string]string{"categoryId": "science"}, &sess)
	doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+sess.ID+"/answers", session.AnswerRequest{QuestionIndex: 0, OptionIndex: 2}, nil)
	var res session.Result
	doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+sess.ID+"/complete", nil, &res)
	if !res.Won {
		t.Fatalf("expected a win, got %+v", res)
	}

	var op operation.Operation
	if code := doJSON(t, http.MethodPost, ts.URL+"/api/mints", operation.MintRequest{EligibilityID: res.EligibilityID, WalletAddress: "0xabc"}, &op); code != http.StatusAccepted {
		t.Fatalf("mint status %d", code)
	}
	var redeemed map[string]string
	if code := doJSON(t, http.MethodPost, ts.URL+"/api/mints", operation.MintRequest{EligibilityID: res.EligibilityID, WalletAddress: "0xabc"}, &redeemed); code != http.StatusConflict {
		t.Fatalf("second mint status %d", code)
	}

	var steps []operation.Operation
	for i := 0; i < 4; i++ {
		var got operation.Operation
		doJSON(t, http.MethodGet, ts.URL+"/api/mints/"+op.ID, nil, &got)
		steps = append(steps, got)
	}
	if steps[0].TxHash != "" || steps[1].TxHash == "" || steps[1].Status != operation.StatusPending {
		t.Fatalf("unexpected early steps %+v", steps[:2])
	}
	if steps[2].Status != operation.StatusConfirmed || steps[2].TokenID != "1" || steps[2].TxHash != steps[1].TxHash {
		t.Fatalf("unexpected confirmation %+v", steps[2])
	}
	if steps[3] != steps[2] {
		t.Fatalf("terminal operation changed on read")
	}
	if code := doJSON(t, http.MethodGet, ts.URL+"/api/forges/"+op.ID, nil, nil); code != http.StatusNotFound {
		t.Fatalf("mint readable as forge: %d", code)
	}
}

func TestForgeToZeroWalletFails(t *testing.T) {
	_, ts := newTestServer(t, Settings{})
	var op operation.Operation
	req := operation.ForgeRequest{WalletAddress: ZeroWallet, TokenIDs: []string{"1", "2"}}
	if code := doJSON(t, http.MethodPost, ts.URL+"/api/forges", req, &op); code != http.StatusAccepted {
		t.Fatalf("forge status %d", code)
	}
	var got operation.Operation
	doJSON(t, http.MethodGet, ts.URL+"/api/forges/"+op.ID, nil, &got)
	doJSON(t, http.MethodGet, ts.URL+"/api/forges/"+op.ID, nil, &got)
	if got.Status != operation.StatusFailed || got.Error == "" {
		t.Fatalf("expected failure, got %+v", got)
	}
	var bad map[string]string
	if code := doJSON(t, http.MethodPost, ts.URL+"/api/forges", operation.ForgeRequest{WalletAddress: "0xabc", TokenIDs: []string{"1"}}, &bad); code != http.StatusBadRequest || bad["code"] != "not_enough_tokens" {
		t.Fatalf("single token forge: %d %v", code, bad)
	}
}

func TestTokenIsRequiredWhenConfigured(t *testing.T) {
	_, ts := newTestServer(t, Settings{Token: "s3cret"})
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/categories", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d without token", resp.StatusCode)
	}
	req.Header.Set("Authorization", "Bearer s3cret")
	req.Header.Set("X-Request-ID", "req-1")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Request-ID") != "req-1" {
		t.Fatalf("status %d request id %q", resp.StatusCode, resp.Header.Get("X-Request-ID"))
	}
	if code := doJSON(t, http.MethodGet, ts.URL+"/health", nil, nil); code != http.StatusOK {
		t.Fatalf("health should not need a token, got %d", code)
	}
}

func TestServerLifecycle(t *testing.T) {
	srv, err := NewServer(Settings{Host: "127.0.0.1", Port: 0})
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	if srv.Status() != StatusReady {
		t.Fatalf("status %s", srv.Status())
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Fatalf("expected double start error")
	}
	var health healthResponse
	if code := doJSON(t, http.MethodGet, srv.BaseURL()+"/health", nil, &health); code != http.StatusOK || health.Status != string(StatusReady) {
		t.Fatalf("health %d %+v", code, health)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if srv.Addr() != "" {
		t.Fatalf("addr still set after shutdown")
	}
}

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("TRIVIA_DEV_PORT", "9100")
	t.Setenv("TRIVIA_DEV_HOST", "0.0.0.0")
	t.Setenv("TRIVIA_DEV_QUESTIONS", "3")
	t.Setenv("TRIVIA_DEV_TOKEN", "")
	t.Setenv("TRIVIA_DEV_BANK", "")
	settings := SettingsFromEnv()
	if settings.Port != 9100 || settings.Host != "0.0.0.0" || settings.QuestionsPerSession != 3 {
		t.Fatalf("settings = %+v", settings)
	}
	if settings.URL() != "http://0.0.0.0:9100" {
		t.Fatalf("url = %s", settings.URL())
	}
}
