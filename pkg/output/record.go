// Package output provides JSONL output for resolutions and state changes.
//
// Output is structured as typed record envelopes. Each line is a
// self-contained JSON object that can be parsed independently.
package output

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/3leaps/streamctl/pkg/enums"
	"github.com/3leaps/streamctl/pkg/hotparams"
	"github.com/3leaps/streamctl/pkg/jobregistry"
	"github.com/3leaps/streamctl/pkg/provider"
	"github.com/3leaps/streamctl/pkg/workspace"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: streamctl.<type>.v<version>
const (
	// TypeResolution identifies deployment target resolution records.
	TypeResolution = "streamctl.resolution.v1"

	// TypeState identifies lifecycle state change records.
	TypeState = "streamctl.state.v1"

	// TypeError identifies error records.
	TypeError = "streamctl.error.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "streamctl.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field.
type Record struct {
	// Type identifies the record type (e.g., "streamctl.state.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID correlates all records of one command or poll run.
	RunID string `json:"run_id"`

	// Source names the producer, e.g. "resolve" or "tracking".
	Source string `json:"source"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// ResolutionRecord is where an application's artifacts live.
type ResolutionRecord struct {
	AppID   string `json:"app_id"`
	JobName string `json:"job_name,omitempty"`
	Mode    string `json:"mode"`

	// Storage is REMOTE_FS or LOCAL_FS. Empty when the mode has none.
	Storage string `json:"storage,omitempty"`

	Home string `json:"home,omitempty"`
	Lib  string `json:"lib,omitempty"`

	// Dist is empty when the application has no project/module grouping.
	Dist string `json:"dist,omitempty"`

	// YarnQueue is the routing token, for YARN modes that carry one.
	YarnQueue string `json:"yarn_queue,omitempty"`
}

// StateRecord is a lifecycle state change observed for one application.
type StateRecord struct {
	AppID    string `json:"app_id"`
	JobName  string `json:"job_name,omitempty"`
	From     string `json:"from"`
	To       string `json:"to"`
	Tracking bool   `json:"tracking"`

	// Action is the failure decision (RESTART or ALERT) when To is a
	// failure state.
	Action string `json:"action,omitempty"`

	// RestartCount is the attempt counter after the decision.
	RestartCount *int `json:"restart_count,omitempty"`
}

// ErrorRecord is the data payload for errors.
//
// Errors are emitted as records rather than failing the whole run,
// allowing partial results when single applications fail.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// AppID is the application related to this error, if applicable.
	AppID string `json:"app_id,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeAccessDenied    = "ACCESS_DENIED"
	ErrCodeUnsupportedMode = "UNSUPPORTED_MODE"
	ErrCodeIncomplete      = "INCOMPLETE_GROUPING"
	ErrCodeMalformedParams = "MALFORMED_PARAMS"
	ErrCodeUnknownEnum     = "UNKNOWN_ENUM"
	ErrCodeThrottled       = "THROTTLED"
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeInternal        = "INTERNAL"
)

// ErrorCode maps an error to the most specific ErrorRecord code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, jobregistry.ErrNotFound), provider.IsNotFound(err):
		return ErrCodeNotFound
	case provider.IsAccessDenied(err):
		return ErrCodeAccessDenied
	case errors.Is(err, workspace.ErrUnsupportedExecutionMode):
		return ErrCodeUnsupportedMode
	case errors.Is(err, workspace.ErrIncompleteGrouping):
		return ErrCodeIncomplete
	case errors.Is(err, hotparams.ErrMalformedBlob), errors.Is(err, hotparams.ErrInvalidQueueLabel):
		return ErrCodeMalformedParams
	case errors.Is(err, enums.ErrUnknownEnumValue):
		return ErrCodeUnknownEnum
	case errors.Is(err, provider.ErrThrottled):
		return ErrCodeThrottled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	default:
		return ErrCodeInternal
	}
}

// SummaryRecord is emitted at the end of a run with aggregate counts.
type SummaryRecord struct {
	// Apps is the number of applications considered.
	Apps int64 `json:"apps"`

	// Polled is the number of applications whose state was fetched.
	Polled int64 `json:"polled"`

	// Changed is the number of state changes written.
	Changed int64 `json:"changed"`

	// Errors is the count of errors encountered.
	Errors int64 `json:"errors"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
