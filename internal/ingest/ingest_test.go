package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/sunshine-wear/internal/client"
	"github.com/kjstillabower/sunshine-wear/internal/models"
	"github.com/kjstillabower/sunshine-wear/internal/prefs"
)

type fakeClient struct {
	rows  []models.ForecastRow
	err   error
	calls atomic.Int32
	block chan struct{}
}

func (c *fakeClient) GetDailyForecast(ctx context.Context, location string) ([]models.ForecastRow, error) {
	c.calls.Add(1)
	if c.block != nil {
		<-c.block
	}
	return c.rows, c.err
}

func (c *fakeClient) ValidateAPIKey(ctx context.Context) error { return nil }

type fakeStore struct {
	mu       sync.Mutex
	rows     []models.ForecastRow
	err      error
	pruned   []string
	pruneErr error
}

func (s *fakeStore) Upsert(ctx context.Context, rows []models.ForecastRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, rows...)
	return nil
}

func (s *fakeStore) DeleteBefore(ctx context.Context, day string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruned = append(s.pruned, day)
	return 1, s.pruneErr
}

type fakePublisher struct {
	forces []bool
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, force bool) error {
	p.forces = append(p.forces, force)
	return p.err
}

var (
	user = prefs.Static{Location: "94043", Units: prefs.Metric}
	now  = func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }
	rows = []models.ForecastRow{{Location: "94043", Day: "2026-03-14", WeatherID: 800, MinTemp: 10, MaxTemp: 20}}
)

func TestSyncOnce_Success(t *testing.T) {
	c := &fakeClient{rows: rows}
	store := &fakeStore{}
	pub := &fakePublisher{}
	s := NewSyncer(c, store, pub, user, now, nil)

	if err := s.SyncOnce(context.Background()); err != nil {
		t.Fatalf("SyncOnce() error = %v", err)
	}
	if len(store.rows) != 1 {
		t.Errorf("stored rows = %d, want 1", len(store.rows))
	}
	if len(store.pruned) != 1 || store.pruned[0] != "2026-03-13" {
		t.Errorf("pruned = %v, want [2026-03-13]", store.pruned)
	}
	if len(pub.forces) != 1 || pub.forces[0] {
		t.Errorf("publishes = %v, want one unforced", pub.forces)
	}
}

func TestSyncOnce_Failures(t *testing.T) {
	storeErr := errors.New("disk full")
	pubErr := errors.New("query")
	tests := []struct {
		name        string
		client      *fakeClient
		store       *fakeStore
		pub         *fakePublisher
		wantErr     error
		wantPublish int
	}{
		{"fetch error", &fakeClient{err: client.ErrUpstreamFailure}, &fakeStore{}, &fakePublisher{}, client.ErrUpstreamFailure, 0},
		{"no rows", &fakeClient{}, &fakeStore{}, &fakePublisher{}, ErrNoRows, 0},
		{"store error", &fakeClient{rows: rows}, &fakeStore{err: storeErr}, &fakePublisher{}, storeErr, 0},
		{"publish error", &fakeClient{rows: rows}, &fakeStore{}, &fakePublisher{err: pubErr}, pubErr, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSyncer(tt.client, tt.store, tt.pub, user, now, nil)
			err := s.SyncOnce(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("SyncOnce() error = %v, want %v", err, tt.wantErr)
			}
			if len(tt.pub.forces) != tt.wantPublish {
				t.Errorf("publishes = %d, want %d", len(tt.pub.forces), tt.wantPublish)
			}
		})
	}
}

func TestSyncOnce_PruneFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := &fakeStore{pruneErr: errors.New("locked")}
	pub := &fakePublisher{}
	s := NewSyncer(&fakeClient{rows: rows}, store, pub, user, now, zap.New(core))

	if err := s.SyncOnce(context.Background()); err != nil {
		t.Fatalf("SyncOnce() error = %v", err)
	}
	if logs.FilterMessage("prune old forecast failed").Len() != 1 {
		t.Errorf("expected prune warning, got %v", logs.All())
	}
	if len(pub.forces) != 1 {
		t.Error("publish skipped after prune failure")
	}
}

func TestSyncOnce_CoalescesConcurrentRuns(t *testing.T) {
	c := &fakeClient{rows: rows, block: make(chan struct{})}
	s := NewSyncer(c, &fakeStore{}, &fakePublisher{}, user, now, nil)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.SyncOnce(context.Background())
		}(i)
	}
	// Let every caller join before the fetch returns.
	deadline := time.Now().Add(2 * time.Second)
	for c.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(c.block)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d error = %v", i, err)
		}
	}
	if n := c.calls.Load(); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
}

func TestGroup_WaiterContextCancelled(t *testing.T) {
	g := newGroup()
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = g.Do(context.Background(), "k", func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := g.Do(ctx, "k", func() error { t.Error("second run started"); return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	close(release)
}

func TestSyncPeriodic_StopsOnCancel(t *testing.T) {
	c := &fakeClient{rows: rows}
	s := NewSyncer(c, &fakeStore{}, &fakePublisher{}, user, now, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.SyncPeriodic(ctx, 10*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("SyncPeriodic() error = %v, want deadline exceeded", err)
	}
	if c.calls.Load() < 2 {
		t.Errorf("upstream calls = %d, want at least 2", c.calls.Load())
	}
}
