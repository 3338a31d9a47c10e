package monitor

import (
	"encoding/json"
	"fmt"

	contracts "renderbridge/internal/contracts/renderserver"
	"renderbridge/internal/pkg/errors"
)

// inspectFrame classifies one stream frame for jobID. done is true for a
// terminal frame; execErr is set when that terminal frame reports failure.
// Malformed frames and frames for other jobs are not terminal.
func inspectFrame(raw []byte, jobID string) (done bool, execErr error) {
	var f contracts.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return false, nil
	}

	switch f.Type {
	case contracts.FrameExecuting:
		var d contracts.ExecutingData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return false, nil
		}
		return d.Node == nil && d.PromptID == jobID, nil

	case contracts.FrameExecutionError:
		var d contracts.ExecutionErrorData
		if err := json.Unmarshal(f.Data, &d); err != nil || d.PromptID != jobID {
			return false, nil
		}
		return true, executionError(d)
	}
	return false, nil
}

func executionError(d contracts.ExecutionErrorData) error {
	return errors.Execution(fmt.Sprintf(
		"workflow execution error: node_type=%s, node_id=%s, message=%s",
		d.NodeType, d.NodeID, d.ExceptionMessage,
	)).WithFields(map[string]any{
		"node_type": d.NodeType,
		"node_id":   string(d.NodeID),
	})
}

// historyOutcome reports whether h holds jobID's record. The render server
// writes it only once the job has finished, so its presence is terminal.
func historyOutcome(h contracts.History, jobID string) (Outcome, bool) {
	raw, ok := h[jobID]
	if !ok {
		return Outcome{}, false
	}
	var entry contracts.HistoryEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Outcome{}, false
	}
	if st := entry.ExecutionStatus(); st.Failed() {
		return Outcome{JobID: jobID, State: StateFailed, Errors: []error{historyFailure(jobID, st)}}, true
	}
	return Outcome{JobID: jobID, State: StateSucceeded}, true
}

// historyFailure extracts the execution error from a failed history entry's
// status messages. Messages are [type, data] pairs.
func historyFailure(jobID string, st *contracts.HistoryStatus) error {
	for _, raw := range st.Messages {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil || len(pair) != 2 {
			continue
		}
		var kind string
		if err := json.Unmarshal(pair[0], &kind); err != nil || kind != contracts.FrameExecutionError {
			continue
		}
		var d contracts.ExecutionErrorData
		if err := json.Unmarshal(pair[1], &d); err != nil {
			continue
		}
		if d.PromptID == "" {
			d.PromptID = jobID
		}
		return executionError(d)
	}
	return errors.Execution("workflow execution error: render server recorded status error")
}
