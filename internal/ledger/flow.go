package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// FlowOptions change how a flow is started.
type FlowOptions struct {
	TrackProgress bool `json:"trackProgress" gateway:"optional"`
}

// FlowInstruction asks the node to start a flow. Arguments is typed by the
// key's first type argument.
type FlowInstruction struct {
	FlowClass string       `json:"-"`
	Arguments any          `json:"arguments" gateway:"param=0,required"`
	Options   *FlowOptions `json:"options"`
}

// FlowResult holds either the value a flow returned or the error it failed
// with, never both.
type FlowResult struct {
	Timestamp time.Time `json:"timestamp"`
	Value     any       `json:"value" gateway:"param=0"`
	Error     error     `json:"error"`
}

var errResultShape = errors.New("flow result must carry exactly one of value or error")

// NewFlowValue returns a successful result captured now.
func NewFlowValue(value any) (*FlowResult, error) {
	return newFlowResult(time.Now().UTC(), value, nil)
}

// NewFlowError returns a failed result captured now.
func NewFlowError(err error) (*FlowResult, error) {
	return newFlowResult(time.Now().UTC(), nil, err)
}

func newFlowResult(ts time.Time, value any, err error) (*FlowResult, error) {
	if (value == nil) == (err == nil) {
		return nil, errResultShape
	}
	return &FlowResult{Timestamp: ts, Value: value, Error: err}, nil
}

// Validate enforces the value-xor-error shape on decoded results.
func (r *FlowResult) Validate() error {
	if (r.Value == nil) == (r.Error == nil) {
		return errResultShape
	}
	return nil
}

func (r *FlowResult) IsError() bool { return r.Error != nil }

// FlowProgress is the current step of a flow's progress tracker.
type FlowProgress struct {
	CurrentStepName string    `json:"currentStepName"`
	Timestamp       time.Time `json:"timestamp"`
}

// FlowHandle identifies a flow the node has accepted.
type FlowHandle struct {
	FlowClass string    `json:"flowClass"`
	RunID     uuid.UUID `json:"flowRunId"`
	StartedAt time.Time `json:"startedAt"`
}

// InitialSnapshot returns a snapshot with neither progress nor result.
func (h FlowHandle) InitialSnapshot() FlowSnapshot {
	return FlowSnapshot{FlowClass: h.FlowClass, RunID: h.RunID, StartedAt: h.StartedAt}
}

// FlowSnapshot describes the current state of one flow run. Result is
// typed by the key's first type argument.
type FlowSnapshot struct {
	FlowClass       string        `json:"flowClass"`
	RunID           uuid.UUID     `json:"flowRunId"`
	CurrentProgress *FlowProgress `json:"currentProgress"`
	StartedAt       time.Time     `json:"startedAt"`
	Result          *FlowResult   `json:"result" gateway:"args=0"`
}

func (s FlowSnapshot) WithResult(r *FlowResult) FlowSnapshot {
	s.Result = r
	return s
}

func (s FlowSnapshot) WithProgress(p FlowProgress) FlowSnapshot {
	s.CurrentProgress = &p
	return s
}

// Completed reports whether the flow has a result.
func (s FlowSnapshot) Completed() bool { return s.Result != nil }

// FlowError is the decoded form of an error reported by a flow.
type FlowError struct {
	Type    string `json:"errorType,omitempty"`
	Message string `json:"message"`
}

func (e *FlowError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return e.Type + ": " + e.Message
}

// FlowStatus is what the node reports about a flow run.
type FlowStatus struct {
	Snapshot FlowSnapshot
	// Running is false once the node no longer tracks the run.
	Running bool
}
