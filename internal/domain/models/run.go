package models

import "time"

// Channel identifies which pipe a chunk came from.
type Channel string

const (
	Stdout Channel = "stdout"
	Stderr Channel = "stderr"
)

// OutputChunk is one read from a process pipe, forwarded as-is.
type OutputChunk struct {
	Channel Channel
	Data    []byte
}

// Trigger identifies what started a run.
type Trigger string

const (
	TriggerHTTP  Trigger = "http"
	TriggerWS    Trigger = "ws"
	TriggerKafka Trigger = "kafka"
)

// RunState mirrors the dashboard button: IDLE -> ANALYZING -> COMPLETE -> IDLE.
type RunState string

const (
	StateIdle      RunState = "IDLE"
	StateAnalyzing RunState = "ANALYZING"
	StateComplete  RunState = "COMPLETE"
)

// Run results, used as metric labels and in run history.
const (
	ResultOK          = "ok"
	ResultNonzeroExit = "nonzero_exit"
	ResultSpawnFailed = "spawn_failed"
	ResultCanceled    = "canceled"
)

// Run is one invocation of the analysis command.
type Run struct {
	ID          string     `json:"id"`
	Trigger     Trigger    `json:"trigger"`
	Command     string     `json:"command"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	ExitCode    *int       `json:"exit_code"`
	FatalError  string     `json:"fatal_error,omitempty"`
	Canceled    bool       `json:"canceled,omitempty"`
	StdoutBytes int64      `json:"stdout_bytes"`
	StderrBytes int64      `json:"stderr_bytes"`
	Chunks      int        `json:"chunks"`
}

// Finished reports whether the run has reached a terminal state.
func (r *Run) Finished() bool {
	return r.FinishedAt != nil
}

// Result classifies a finished run.
func (r *Run) Result() string {
	switch {
	case r.FatalError != "":
		return ResultSpawnFailed
	case r.Canceled:
		return ResultCanceled
	case r.ExitCode != nil && *r.ExitCode == 0:
		return ResultOK
	default:
		return ResultNonzeroExit
	}
}

// Duration is the wall time of a finished run, or the time so far.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// RunEventType is the lifecycle point a RunEvent reports.
type RunEventType string

const (
	RunStarted   RunEventType = "started"
	RunCompleted RunEventType = "completed"
	RunFailed    RunEventType = "failed"
)

// RunEvent is published on every run transition.
type RunEvent struct {
	Type RunEventType `json:"type"`
	Run  Run          `json:"run"`
	At   time.Time    `json:"at"`
}

// RunStatus is the server-side view of the trigger button.
type RunStatus struct {
	State   RunState `json:"state"`
	Current *Run     `json:"current"`
	Last    *Run     `json:"last"`
}

// ScanRequest asks for a headless run over Kafka.
type ScanRequest struct {
	RequestedBy string `json:"requested_by" validate:"required"`
	Reason      string `json:"reason"`
}
