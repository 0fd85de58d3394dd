package model

import (
	"database/sql"
	"time"
)

// RunStatus is the terminal state of one crawl execution.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success" // no fatal errors
	RunPartial RunStatus = "partial" // some per-listing failures, run completed
	RunFailed  RunStatus = "failed"  // aborted before full index coverage
)

// TriggerKind records what started a run.
type TriggerKind string

const (
	TriggerWebhook  TriggerKind = "webhook"
	TriggerManual   TriggerKind = "manual"
	TriggerSchedule TriggerKind = "schedule"
	TriggerCLI      TriggerKind = "cli"
)

// RunLog is one record per crawl execution.
type RunLog struct {
	ID         int64
	RunID      string // uuid correlation id, also prefixes crawl log lines
	SourceID   string
	Trigger    TriggerKind
	Note       sql.NullString // webhook diff summary / trigger text, unparsed
	Found      int
	Added      int
	Updated    int
	Unchanged  int
	Removed    int
	Errored    int
	Conflicts  int
	Status     RunStatus
	StartedAt  time.Time
	FinishedAt sql.NullTime
}
