package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Execution status values reported by the DSS backend. The set is open:
// any other value is passed through and treated as non-terminal.
const (
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusNotFound  = "NOT_FOUND"
)

// resultLinkPrefix is the relative path under which the backend serves the
// best run archive of a completed execution.
const resultLinkPrefix = "best_run/"

// Reserved JSON keys handled explicitly by ExecutionStatus.
const (
	keyID     = "id"
	keyStatus = "status"
	keyLink   = "link"
)

// IsTerminal reports whether polling should stop after observing status.
func IsTerminal(status string) bool {
	return status == StatusCompleted
}

// ResultLink returns the client-side link to the best run of an execution.
func ResultLink(executionID string) string {
	return resultLinkPrefix + executionID
}

// ExecutionStatus is a single status observation for an execution. Fields
// other than id, status and link are kept verbatim in Extra so that they can
// be rendered without the client knowing their shape.
type ExecutionStatus struct {
	ID     string
	Status string
	Link   string
	Extra  map[string]json.RawMessage
}

// Running reports whether the execution is still in progress.
func (s ExecutionStatus) Running() bool {
	return s.Status == StatusRunning
}

// Terminal reports whether s ends a poll session.
func (s ExecutionStatus) Terminal() bool {
	return IsTerminal(s.Status)
}

// WithLink returns a copy of s carrying the result link for its execution.
func (s ExecutionStatus) WithLink() ExecutionStatus {
	s.Link = ResultLink(s.ID)
	return s
}

// UnmarshalJSON decodes a status object, keeping unknown fields verbatim.
func (s *ExecutionStatus) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("execution status: expected JSON object")
	}

	var out ExecutionStatus
	for key, dst := range map[string]*string{keyID: &out.ID, keyStatus: &out.Status, keyLink: &out.Link} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		delete(fields, key)
		if bytes.Equal(raw, []byte("null")) {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("execution status field %q: %w", key, err)
		}
	}
	if len(fields) > 0 {
		out.Extra = fields
	}

	*s = out
	return nil
}

// MarshalJSON encodes the status as a flat object with keys in sorted order.
func (s ExecutionStatus) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(s.Extra)+3)
	for k, v := range s.Extra {
		fields[k] = v
	}

	put := func(key, value string) error {
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		fields[key] = raw
		return nil
	}
	if err := put(keyID, s.ID); err != nil {
		return nil, err
	}
	if err := put(keyStatus, s.Status); err != nil {
		return nil, err
	}
	if s.Link != "" {
		if err := put(keyLink, s.Link); err != nil {
			return nil, err
		}
	}

	return json.Marshal(fields)
}
