package handlers

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kmercer/salewatch/internal/model"
)

var errLogger = log.New(os.Stderr, "ERROR: ", log.LstdFlags)

// LastRunSource provides the most recent run per source for the status page.
// *store.RunStore satisfies it.
type LastRunSource interface {
	LastBySource(ctx context.Context) (map[string]model.RunLog, error)
}

type lockStatus struct {
	SourceID string    `json:"source_id"`
	Since    time.Time `json:"since"`
}

type lastRunStatus struct {
	RunID      string     `json:"run_id"`
	Trigger    string     `json:"trigger"`
	Status     string     `json:"status"`
	Found      int        `json:"found"`
	Added      int        `json:"added"`
	Updated    int        `json:"updated"`
	Removed    int        `json:"removed"`
	Errored    int        `json:"errored"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// StatusHandler reports what this instance is crawling, which locks are
// held anywhere, and each source's most recent run.
func StatusHandler(orc Triggerer, runs LastRunSource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		running := orc.Running()
		if running == nil {
			running = []string{}
		}

		locked := []lockStatus{}
		held, err := orc.Locked(c.Context())
		if err != nil {
			errLogger.Printf("failed to list held locks: %v", err)
		} else {
			for _, l := range held {
				locked = append(locked, lockStatus{SourceID: l.SourceID, Since: l.Since})
			}
		}

		lastRuns := map[string]lastRunStatus{}
		bySource, err := runs.LastBySource(c.Context())
		if err != nil {
			errLogger.Printf("failed to load last runs: %v", err)
		} else {
			for sourceID, r := range bySource {
				lastRuns[sourceID] = toLastRun(r)
			}
		}

		return c.JSON(fiber.Map{
			"running":   running,
			"locked":    locked,
			"last_runs": lastRuns,
		})
	}
}

func toLastRun(r model.RunLog) lastRunStatus {
	out := lastRunStatus{
		RunID:     r.RunID,
		Trigger:   string(r.Trigger),
		Status:    string(r.Status),
		Found:     r.Found,
		Added:     r.Added,
		Updated:   r.Updated,
		Removed:   r.Removed,
		Errored:   r.Errored,
		StartedAt: r.StartedAt,
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time
		out.FinishedAt = &t
	}
	return out
}
