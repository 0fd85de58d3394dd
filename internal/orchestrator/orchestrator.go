package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/kmercer/salewatch/internal/ingest"
	"github.com/kmercer/salewatch/internal/model"
)

// Result is the immediate answer to a trigger. Crawls run asynchronously;
// the caller never waits on crawl duration.
type Result int

const (
	ResultQueued Result = iota
	ResultAlreadyRunning
)

// ErrUnknownSource is returned when a trigger names no configured source.
var ErrUnknownSource = errors.New("unknown source")

// ErrMalformedTitle is returned when a webhook title does not follow the
// "Prefix | SourceName" pattern.
var ErrMalformedTitle = errors.New("malformed source title")

// LockManager is the persistent per-source mutual exclusion the
// orchestrator relies on. *store.LockStore satisfies it.
type LockManager interface {
	Acquire(ctx context.Context, sourceID string, maxAge time.Duration) (bool, error)
	Release(ctx context.Context, sourceID string) error
	Held(ctx context.Context) ([]model.Lock, error)
}

// CrawlRunner executes one source's crawl. *ingest.Runner satisfies it.
type CrawlRunner interface {
	SourceID() string
	Run(ctx context.Context, opts ingest.RunOptions) (*model.RunLog, error)
}

// Orchestrator resolves triggers to sources and dispatches lock-guarded
// crawls. The lock is released on every exit path, including panics, so a
// crashed crawl can never wedge its source.
type Orchestrator struct {
	runners     map[string]CrawlRunner
	names       map[string]string // folded source name -> id
	locks       LockManager
	maxDuration time.Duration
	titlePrefix string

	mu      sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup

	logger    *log.Logger
	errLogger *log.Logger
}

// New creates an orchestrator over the given runners.
func New(locks LockManager, maxDuration time.Duration, titlePrefix string) *Orchestrator {
	return &Orchestrator{
		runners:     make(map[string]CrawlRunner),
		names:       make(map[string]string),
		locks:       locks,
		maxDuration: maxDuration,
		titlePrefix: titlePrefix,
		running:     make(map[string]bool),
		logger:      log.New(os.Stdout, "", log.LstdFlags),
		errLogger:   log.New(os.Stderr, "ERROR: ", log.LstdFlags),
	}
}

// Register adds a runner and the source name webhook titles refer to it by.
func (o *Orchestrator) Register(runner CrawlRunner, sourceName string) {
	o.runners[runner.SourceID()] = runner
	if sourceName != "" {
		o.names[foldName(sourceName)] = runner.SourceID()
	}
}

// ResolveTitle maps a webhook title of the form "Prefix | SourceName" to a
// source id.
func (o *Orchestrator) ResolveTitle(title string) (string, error) {
	parts := strings.SplitN(title, "|", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: %q", ErrMalformedTitle, title)
	}
	if o.titlePrefix != "" && strings.TrimSpace(parts[0]) != o.titlePrefix {
		return "", fmt.Errorf("%w: unexpected prefix in %q", ErrMalformedTitle, title)
	}

	name := foldName(parts[1])
	id, ok := o.names[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSource, strings.TrimSpace(parts[1]))
	}
	return id, nil
}

// Trigger attempts to start a crawl for sourceID. The crawl is dispatched
// asynchronously; the result says only whether it was queued or a crawl is
// already in flight. No retry is queued on contention: the next recurring
// trigger re-attempts.
func (o *Orchestrator) Trigger(ctx context.Context, sourceID string, opts ingest.RunOptions) (Result, error) {
	runner, ok := o.runners[sourceID]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSource, sourceID)
	}

	acquired, err := o.locks.Acquire(ctx, sourceID, o.maxDuration)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire lock for %s: %w", sourceID, err)
	}
	if !acquired {
		return ResultAlreadyRunning, nil
	}

	o.markRunning(sourceID, true)
	o.wg.Add(1)
	go o.dispatch(runner, opts)

	return ResultQueued, nil
}

// dispatch runs one crawl with the guaranteed-release discipline: the lock
// is cleared whether the crawl succeeds, fails, times out, or panics.
func (o *Orchestrator) dispatch(runner CrawlRunner, opts ingest.RunOptions) {
	sourceID := runner.SourceID()

	defer o.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			o.errLogger.Printf("crawl for %s panicked: %v", sourceID, r)
		}
		releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.locks.Release(releaseCtx, sourceID); err != nil {
			o.errLogger.Printf("failed to release lock for %s: %v", sourceID, err)
		}
		o.markRunning(sourceID, false)
	}()

	runCtx, cancel := context.WithTimeout(context.Background(), o.maxDuration)
	defer cancel()

	if _, err := runner.Run(runCtx, opts); err != nil {
		o.errLogger.Printf("crawl for %s finished with error: %v", sourceID, err)
	}
}

// RunNow executes a crawl synchronously under the lock. Used by the CLI,
// where the caller wants the run log back.
func (o *Orchestrator) RunNow(ctx context.Context, sourceID string, opts ingest.RunOptions) (*model.RunLog, error) {
	runner, ok := o.runners[sourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, sourceID)
	}

	acquired, err := o.locks.Acquire(ctx, sourceID, o.maxDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock for %s: %w", sourceID, err)
	}
	if !acquired {
		return nil, fmt.Errorf("source %s is already being crawled", sourceID)
	}

	o.markRunning(sourceID, true)
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.locks.Release(releaseCtx, sourceID); err != nil {
			o.errLogger.Printf("failed to release lock for %s: %v", sourceID, err)
		}
		o.markRunning(sourceID, false)
	}()

	runCtx, cancel := context.WithTimeout(ctx, o.maxDuration)
	defer cancel()
	return runner.Run(runCtx, opts)
}

// Running lists the sources this instance is actively crawling.
func (o *Orchestrator) Running() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.running))
	for id, active := range o.running {
		if active {
			out = append(out, id)
		}
	}
	return out
}

// Locked lists every held lock across all orchestrator instances.
func (o *Orchestrator) Locked(ctx context.Context) ([]model.Lock, error) {
	return o.locks.Held(ctx)
}

// Wait blocks until all dispatched crawls have finished. Used on shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) markRunning(sourceID string, v bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if v {
		o.running[sourceID] = true
	} else {
		delete(o.running, sourceID)
	}
}

func foldName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
