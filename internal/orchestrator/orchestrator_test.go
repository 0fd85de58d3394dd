package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kmercer/salewatch/internal/ingest"
	"github.com/kmercer/salewatch/internal/model"
)

type memLocks struct {
	mu   sync.Mutex
	held map[string]time.Time
}

func newMemLocks() *memLocks {
	return &memLocks{held: make(map[string]time.Time)}
}

func (m *memLocks) Acquire(_ context.Context, sourceID string, maxAge time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	since, ok := m.held[sourceID]
	if ok && time.Since(since) < maxAge {
		return false, nil
	}
	m.held[sourceID] = time.Now()
	return true, nil
}

func (m *memLocks) Release(_ context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, sourceID)
	return nil
}

func (m *memLocks) Held(_ context.Context) ([]model.Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Lock
	for id, since := range m.held {
		out = append(out, model.Lock{SourceID: id, Held: true, Since: since})
	}
	return out, nil
}

// blockingRunner stays in flight until released, so tests can observe
// contention deterministically.
type blockingRunner struct {
	id      string
	started chan struct{}
	release chan struct{}
}

func newBlockingRunner(id string) *blockingRunner {
	return &blockingRunner{
		id:      id,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (r *blockingRunner) SourceID() string { return r.id }

func (r *blockingRunner) Run(ctx context.Context, _ ingest.RunOptions) (*model.RunLog, error) {
	r.started <- struct{}{}
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &model.RunLog{SourceID: r.id, Status: model.RunSuccess}, nil
}

func TestTriggerContention(t *testing.T) {
	ctx := context.Background()
	locks := newMemLocks()
	orc := New(locks, time.Minute, "Sheriff Sale Watch")

	runner := newBlockingRunner("essex-nj")
	orc.Register(runner, "Essex County")

	result, err := orc.Trigger(ctx, "essex-nj", ingest.RunOptions{Trigger: model.TriggerWebhook})
	if err != nil {
		t.Fatalf("first Trigger: %v", err)
	}
	if result != ResultQueued {
		t.Fatalf("first trigger result = %v, want queued", result)
	}

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("crawl never started")
	}

	// A second trigger while the crawl is in flight must not queue another.
	result, err = orc.Trigger(ctx, "essex-nj", ingest.RunOptions{Trigger: model.TriggerWebhook})
	if err != nil {
		t.Fatalf("second Trigger: %v", err)
	}
	if result != ResultAlreadyRunning {
		t.Fatalf("second trigger result = %v, want already running", result)
	}

	running := orc.Running()
	if len(running) != 1 || running[0] != "essex-nj" {
		t.Errorf("Running() = %v, want [essex-nj]", running)
	}

	close(runner.release)
	orc.Wait()
	runner.release = make(chan struct{})

	// Lock released: the source is triggerable again.
	result, err = orc.Trigger(ctx, "essex-nj", ingest.RunOptions{Trigger: model.TriggerWebhook})
	if err != nil {
		t.Fatalf("third Trigger: %v", err)
	}
	if result != ResultQueued {
		t.Fatalf("third trigger result = %v, want queued after release", result)
	}
	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("second crawl never started")
	}
	close(runner.release)
	orc.Wait()
}

func TestTriggerUnknownSource(t *testing.T) {
	orc := New(newMemLocks(), time.Minute, "")
	_, err := orc.Trigger(context.Background(), "nowhere", ingest.RunOptions{})
	if !errors.Is(err, ErrUnknownSource) {
		t.Errorf("err = %v, want ErrUnknownSource", err)
	}
}

func TestResolveTitle(t *testing.T) {
	orc := New(newMemLocks(), time.Minute, "Sheriff Sale Watch")
	orc.Register(newBlockingRunner("essex-nj"), "Essex County")

	tests := []struct {
		title   string
		want    string
		wantErr error
	}{
		{"Sheriff Sale Watch | Essex County", "essex-nj", nil},
		{"Sheriff Sale Watch |   essex county  ", "essex-nj", nil},
		{"Essex County", "", ErrMalformedTitle},
		{"Wrong Prefix | Essex County", "", ErrMalformedTitle},
		{"Sheriff Sale Watch | Union County", "", ErrUnknownSource},
	}

	for _, tt := range tests {
		got, err := orc.ResolveTitle(tt.title)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ResolveTitle(%q) err = %v, want %v", tt.title, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("ResolveTitle(%q): %v", tt.title, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveTitle(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestStaleLockTakeover(t *testing.T) {
	ctx := context.Background()
	locks := newMemLocks()

	// A crashed instance left the lock held past the crawl ceiling.
	locks.held["essex-nj"] = time.Now().Add(-2 * time.Minute)

	orc := New(locks, time.Minute, "")
	runner := newBlockingRunner("essex-nj")
	orc.Register(runner, "Essex County")

	result, err := orc.Trigger(ctx, "essex-nj", ingest.RunOptions{Trigger: model.TriggerSchedule})
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if result != ResultQueued {
		t.Fatalf("result = %v, want takeover of stale lock", result)
	}
	<-runner.started
	close(runner.release)
	orc.Wait()
}
