package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"trinayana/packages/domain"
	"trinayana/packages/features"
)

// ipClassifier flags any URL whose host is an IPv4 literal.
type ipClassifier struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (c *ipClassifier) Name() string { return "test" }

func (c *ipClassifier) Predict(_ context.Context, rec features.Record) (int, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.err != nil {
		return 0, c.err
	}
	return rec.IpAddress, nil
}

type mapCache struct {
	mu   sync.Mutex
	m    map[string]domain.Verdict
	fail bool
}

func newMapCache() *mapCache { return &mapCache{m: map[string]domain.Verdict{}} }

func (c *mapCache) Get(_ context.Context, rawURL string) (domain.Verdict, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return domain.Verdict{}, false, errors.New("redis down")
	}
	v, ok := c.m[rawURL]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, rawURL string, v domain.Verdict) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("redis down")
	}
	c.m[rawURL] = v
	return nil
}

type sliceHistory struct {
	mu      sync.Mutex
	records []domain.ScanRecord
}

func (h *sliceHistory) Record(rec domain.ScanRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
}

func TestPredictURL(t *testing.T) {
	t.Parallel()
	svc := New(&ipClassifier{})
	ctx := context.Background()

	tests := []struct {
		url  string
		want domain.Label
	}{
		{"http://192.168.0.1/x", domain.Phishing},
		{"https://example.com/a/b", domain.Legitimate},
		{"  http://10.0.0.1/login  ", domain.Phishing},
	}
	for _, tt := range tests {
		v, err := svc.PredictURL(ctx, tt.url)
		if err != nil {
			t.Fatalf("PredictURL(%q) error = %v", tt.url, err)
		}
		if v.Result != tt.want {
			t.Errorf("PredictURL(%q).Result = %v, want %v", tt.url, v.Result, tt.want)
		}
	}
}

func TestPredictURLErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	if _, err := New(&ipClassifier{}).PredictURL(ctx, "   "); !errors.Is(err, ErrMissingURL) {
		t.Errorf("PredictURL(blank) error = %v, want ErrMissingURL", err)
	}
	if _, err := New(nil).PredictURL(ctx, "https://example.com"); !errors.Is(err, ErrClassifierUnavailable) {
		t.Errorf("PredictURL(nil classifier) error = %v, want ErrClassifierUnavailable", err)
	}
	boom := errors.New("boom")
	if _, err := New(&ipClassifier{err: boom}).PredictURL(ctx, "https://example.com"); !errors.Is(err, boom) {
		t.Errorf("PredictURL(failing classifier) error = %v, want wrapped boom", err)
	}
}

func TestPredictURLMalformedUsesZeroRecord(t *testing.T) {
	t.Parallel()
	v, err := New(&ipClassifier{}).PredictURL(context.Background(), "http://example.com/%zz")
	if err != nil {
		t.Fatalf("PredictURL() error = %v", err)
	}
	if !v.Features.IsZero() {
		t.Errorf("Features = %+v, want zero record", v.Features)
	}
	if v.Result != domain.Legitimate {
		t.Errorf("Result = %v, want Legitimate", v.Result)
	}
}

func TestPredictURLUsesCache(t *testing.T) {
	t.Parallel()
	clf := &ipClassifier{}
	cache := newMapCache()
	svc := New(clf, WithCache(cache))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.PredictURL(ctx, "http://192.168.0.1/x"); err != nil {
			t.Fatalf("PredictURL() error = %v", err)
		}
	}
	if got := clf.calls.Load(); got != 1 {
		t.Errorf("classifier calls = %d, want 1", got)
	}
	if _, ok := cache.m["http://192.168.0.1/x"]; !ok {
		t.Errorf("verdict was not cached")
	}
}

func TestPredictURLCacheFailureFallsThrough(t *testing.T) {
	t.Parallel()
	clf := &ipClassifier{}
	cache := newMapCache()
	cache.fail = true
	svc := New(clf, WithCache(cache))

	v, err := svc.PredictURL(context.Background(), "http://192.168.0.1/x")
	if err != nil {
		t.Fatalf("PredictURL() error = %v", err)
	}
	if v.Result != domain.Phishing {
		t.Errorf("Result = %v, want Phishing", v.Result)
	}
}

func TestPredictURLRecordsHistory(t *testing.T) {
	t.Parallel()
	history := &sliceHistory{}
	svc := New(&ipClassifier{}, WithHistory(history))
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	if _, err := svc.PredictURL(context.Background(), "https://login.example.co.uk/a"); err != nil {
		t.Fatalf("PredictURL() error = %v", err)
	}
	if len(history.records) != 1 {
		t.Fatalf("history has %d records, want 1", len(history.records))
	}
	rec := history.records[0]
	if rec.RegisteredDomain != "example.co.uk" || rec.Label != domain.Legitimate || !rec.ScannedAt.Equal(fixed) {
		t.Errorf("history record = %+v", rec)
	}
}

func TestPredictURLCoalescesConcurrentCalls(t *testing.T) {
	t.Parallel()
	clf := &ipClassifier{delay: 50 * time.Millisecond}
	svc := New(clf)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.PredictURL(context.Background(), "http://192.168.0.1/x"); err != nil {
				t.Errorf("PredictURL() error = %v", err)
			}
		}()
	}
	wg.Wait()
	if got := clf.calls.Load(); got >= 8 {
		t.Errorf("classifier calls = %d, want concurrent calls coalesced", got)
	}
}

// gatedClassifier blocks until release is closed or its context ends.
type gatedClassifier struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (c *gatedClassifier) Name() string { return "gated" }

func (c *gatedClassifier) Predict(ctx context.Context, rec features.Record) (int, error) {
	c.once.Do(func() { close(c.entered) })
	select {
	case <-c.release:
		return rec.IpAddress, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func TestPredictURLCancelledCallerDoesNotFailOthers(t *testing.T) {
	t.Parallel()
	clf := &gatedClassifier{entered: make(chan struct{}), release: make(chan struct{})}
	svc := New(clf)
	const u = "http://192.168.0.1/x"

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.PredictURL(firstCtx, u)
		firstErr <- err
	}()
	<-clf.entered

	type result struct {
		v   domain.Verdict
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := svc.PredictURL(context.Background(), u)
		second <- result{v, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("cancelled caller error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("cancelled caller did not return")
	}

	close(clf.release)
	select {
	case r := <-second:
		if r.err != nil {
			t.Fatalf("live caller error = %v", r.err)
		}
		if r.v.Result != domain.Phishing {
			t.Errorf("live caller Result = %v, want Phishing", r.v.Result)
		}
	case <-time.After(time.Second):
		t.Fatalf("live caller did not return")
	}
}

func TestExtract(t *testing.T) {
	t.Parallel()
	svc := New(nil)
	if got := svc.Extract("  http://192.168.0.1/x  "); got.IpAddress != 1 || got.UrlLength != 20 {
		t.Errorf("Extract(padded) = %+v, want trimmed IP record", got)
	}
	if got := svc.Extract("http://example.com/%zz"); !got.IsZero() {
		t.Errorf("Extract(malformed) = %+v, want zero record", got)
	}
}
