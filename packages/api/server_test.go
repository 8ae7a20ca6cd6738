package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"trinayana/packages/domain"
	"trinayana/packages/features"
	"trinayana/packages/service"
	"trinayana/packages/worker"
)

// ipClassifier flags URLs whose host is an IPv4 literal.
type ipClassifier struct{ err error }

func (c ipClassifier) Name() string { return "test" }

func (c ipClassifier) Predict(_ context.Context, rec features.Record) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	return rec.IpAddress, nil
}

type fakeScanner struct{ err error }

func (f fakeScanner) ScanPage(_ context.Context, pageURL string) (domain.PageScan, error) {
	if pageURL != strings.TrimSpace(pageURL) {
		return domain.PageScan{}, errors.New("untrimmed page URL")
	}
	if f.err != nil {
		return domain.PageScan{}, f.err
	}
	return domain.PageScan{
		URL:           pageURL,
		Links:         []domain.LinkVerdict{{URL: "http://10.0.0.1/", External: true, Result: domain.Phishing}},
		PhishingCount: 1,
	}, nil
}

type fakeHistory struct {
	records []domain.ScanRecord
	cleared bool
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]domain.ScanRecord, error) {
	if limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func (f *fakeHistory) Clear(context.Context) (int64, error) {
	n := int64(len(f.records))
	f.records = nil
	f.cleared = true
	return n, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: invalid JSON %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, out
}

func TestHome(t *testing.T) {
	t.Parallel()
	h := (&Server{Predictor: service.New(ipClassifier{})}).Handler()
	rec, body := do(t, h, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || body["message"] != "Phishing Detection API is Live!" {
		t.Errorf("GET / = %d %v", rec.Code, body)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestPredictURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		clf        *ipClassifier
		body       string
		wantStatus int
		wantResult string
		wantError  string
	}{
		{"phishing", &ipClassifier{}, `{"url":"http://192.168.0.1/x"}`, http.StatusOK, "Phishing", ""},
		{"legitimate", &ipClassifier{}, `{"url":"https://example.com/a/b"}`, http.StatusOK, "Legitimate", ""},
		{"missing url", &ipClassifier{}, `{}`, http.StatusBadRequest, "", "No URL provided"},
		{"blank url", &ipClassifier{}, `{"url":"   "}`, http.StatusBadRequest, "", "No URL provided"},
		{"bad json", &ipClassifier{}, `not json`, http.StatusBadRequest, "", "No URL provided"},
		{"no model", nil, `{"url":"https://example.com"}`, http.StatusInternalServerError, "", "Model not loaded"},
		{"classifier error", &ipClassifier{err: errors.New("boom")}, `{"url":"https://example.com"}`, http.StatusInternalServerError, "", "Prediction failed: classifier test: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := service.New(nil)
			if tt.clf != nil {
				svc = service.New(*tt.clf)
			}
			h := (&Server{Predictor: svc}).Handler()
			rec, body := do(t, h, http.MethodPost, "/predict/url", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %v)", rec.Code, tt.wantStatus, body)
			}
			if tt.wantResult != "" && body["result"] != tt.wantResult {
				t.Errorf("result = %v, want %s", body["result"], tt.wantResult)
			}
			if tt.wantError != "" && body["error"] != tt.wantError {
				t.Errorf("error = %v, want %s", body["error"], tt.wantError)
			}
		})
	}
}

func TestPredictURLFeaturesShape(t *testing.T) {
	t.Parallel()
	h := (&Server{Predictor: service.New(ipClassifier{})}).Handler()
	rec, body := do(t, h, http.MethodPost, "/predict/url", `{"url":"https://example.com/a/b"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	feats, ok := body["features"].(map[string]any)
	if !ok || len(feats) != features.NumFeatures {
		t.Fatalf("features = %v, want %d keys", body["features"], features.NumFeatures)
	}
	if feats["UrlLength"] != float64(23) || feats["PathLevel"] != float64(2) {
		t.Errorf("features = %v", feats)
	}
}

func TestPredictPage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		scanner    PageScanner
		body       string
		wantStatus int
	}{
		{"ok", fakeScanner{}, `{"url":"https://example.com/"}`, http.StatusOK},
		{"padded url", fakeScanner{}, `{"url":"  https://example.com/\n"}`, http.StatusOK},
		{"missing url", fakeScanner{}, `{}`, http.StatusBadRequest},
		{"not html", fakeScanner{err: worker.ErrNotHTML}, `{"url":"https://example.com/a.pdf"}`, http.StatusUnprocessableEntity},
		{"fetch failed", fakeScanner{err: errors.New("dial tcp: refused")}, `{"url":"https://example.com/"}`, http.StatusBadGateway},
		{"disabled", nil, `{"url":"https://example.com/"}`, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := (&Server{Predictor: service.New(ipClassifier{}), Scanner: tt.scanner}).Handler()
			rec, body := do(t, h, http.MethodPost, "/predict/page", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %v)", rec.Code, tt.wantStatus, body)
			}
			if tt.wantStatus == http.StatusOK && body["phishing_count"] != float64(1) {
				t.Errorf("body = %v, want phishing_count 1", body)
			}
		})
	}
}

func TestHistory(t *testing.T) {
	t.Parallel()
	hist := &fakeHistory{records: []domain.ScanRecord{
		{ID: 2, URL: "http://10.0.0.1/", Label: domain.Phishing, ScannedAt: time.Now()},
		{ID: 1, URL: "https://example.com/", Label: domain.Legitimate, ScannedAt: time.Now()},
	}}
	h := (&Server{Predictor: service.New(ipClassifier{}), History: hist}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/history?limit=1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var got []domain.ScanRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("GET /history: %v (%s)", err, rec.Body.String())
	}
	if len(got) != 1 || got[0].ID != 2 {
		t.Errorf("GET /history?limit=1 = %+v", got)
	}

	if rec, _ := do(t, h, http.MethodGet, "/history?limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("GET /history?limit=abc status = %d, want 400", rec.Code)
	}

	rec, body := do(t, h, http.MethodDelete, "/history", "")
	if rec.Code != http.StatusOK || body["deleted"] != float64(2) || !hist.cleared {
		t.Errorf("DELETE /history = %d %v", rec.Code, body)
	}
}

func TestHistoryDisabled(t *testing.T) {
	t.Parallel()
	h := (&Server{Predictor: service.New(ipClassifier{})}).Handler()
	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		if rec, _ := do(t, h, method, "/history", ""); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s /history status = %d, want 503", method, rec.Code)
		}
	}
}

func TestPreflight(t *testing.T) {
	t.Parallel()
	h := (&Server{Predictor: service.New(ipClassifier{})}).Handler()
	rec, _ := do(t, h, http.MethodOptions, "/predict/url", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("OPTIONS status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
		t.Errorf("Access-Control-Allow-Methods = %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	h := (&Server{Predictor: service.New(ipClassifier{}), Limiter: NewClientLimiter(0.001, 2)}).Handler()
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec, _ := do(t, h, http.MethodGet, "/", "")
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v, want [200 200 429]", codes)
	}
}

func TestClientLimiter(t *testing.T) {
	t.Parallel()
	disabled := NewClientLimiter(0, 1)
	for i := 0; i < 100; i++ {
		if !disabled.Allow("1.2.3.4") {
			t.Fatalf("disabled limiter rejected request %d", i)
		}
	}

	l := NewClientLimiter(0.001, 1)
	if !l.Allow("a") || l.Allow("a") {
		t.Errorf("limiter did not exhaust burst for client a")
	}
	if !l.Allow("b") {
		t.Errorf("client b was limited by client a's bucket")
	}
	if removed := l.cleanup(time.Now().Add(clientExpiration + time.Second)); removed != 2 {
		t.Errorf("cleanup() removed %d, want 2", removed)
	}
}
