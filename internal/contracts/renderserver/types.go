package renderserver

import (
	"bytes"
	"encoding/json"
	"errors"
)

// APIKeyExtraField is the extra_data key the render server reads the
// partner-node credential from.
const APIKeyExtraField = "api_key_comfy_org"

// Artifact kinds reported in history records.
const (
	KindOutput = "output"
	KindInput  = "input"
	KindTemp   = "temp"
)

// Stream frame types the bridge reacts to.
const (
	FrameExecuting      = "executing"
	FrameExecutionError = "execution_error"
)

// PromptRequest is the POST /prompt body.
type PromptRequest struct {
	Prompt    Graph          `json:"prompt"`
	ClientID  string         `json:"client_id,omitempty"`
	ExtraData map[string]any `json:"extra_data,omitempty"`
}

// NewPromptRequest builds a submission for graph, correlated to sessionID.
// An empty apiKey leaves extra_data out.
func NewPromptRequest(graph Graph, sessionID, apiKey string) PromptRequest {
	req := PromptRequest{Prompt: graph, ClientID: sessionID}
	if apiKey != "" {
		req.ExtraData = map[string]any{APIKeyExtraField: apiKey}
	}
	return req
}

// PromptResponse is the POST /prompt reply. Servers differ on the id key.
type PromptResponse struct {
	PromptID string `json:"prompt_id"`
	ID       string `json:"id"`
}

// JobID returns the server-assigned id, or "" when none was returned.
func (r PromptResponse) JobID() string {
	if r.PromptID != "" {
		return r.PromptID
	}
	return r.ID
}

// UploadResponse is the POST /upload/image reply.
type UploadResponse struct {
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// StoredName returns the name the server stored the upload under, falling
// back to fallback when the reply carries none.
func (r UploadResponse) StoredName(fallback string) string {
	switch {
	case r.Name != "":
		return r.Name
	case r.Filename != "":
		return r.Filename
	default:
		return fallback
	}
}

// History is the GET /history/{id} document. Entries stay raw so one
// malformed job record cannot spoil the whole decode.
type History map[string]json.RawMessage

// HistoryEntry is one job's execution record. Both blocks stay raw: a
// malformed status must not hide outputs, and outputs keep their node order.
type HistoryEntry struct {
	Outputs json.RawMessage `json:"outputs"`
	Status  json.RawMessage `json:"status"`
}

// ExecutionStatus decodes the status block field by field. A missing or
// non-object block yields nil.
func (e HistoryEntry) ExecutionStatus() *HistoryStatus {
	fields, ok := objectFields(e.Status)
	if !ok {
		return nil
	}
	var st HistoryStatus
	decodeField(fields, "status_str", &st.StatusStr)
	decodeField(fields, "completed", &st.Completed)
	decodeField(fields, "messages", &st.Messages)
	return &st
}

// NodeOutputEntry is one node's raw outputs, keyed by node id.
type NodeOutputEntry struct {
	NodeID string
	Raw    json.RawMessage
}

// NodeOutputs lists the per-node outputs in document order. A missing or
// non-object outputs block yields nil; a truncated one yields what was read.
func (e HistoryEntry) NodeOutputs() []NodeOutputEntry {
	dec := json.NewDecoder(bytes.NewReader(e.Outputs))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}

	var out []NodeOutputEntry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return out
		}
		out = append(out, NodeOutputEntry{NodeID: key, Raw: raw})
	}
	return out
}

// HistoryStatus is the execution status block of a history entry.
type HistoryStatus struct {
	StatusStr string            `json:"status_str"`
	Completed bool              `json:"completed"`
	Messages  []json.RawMessage `json:"messages"`
}

// Failed reports whether the render server recorded the job as errored.
func (s *HistoryStatus) Failed() bool {
	return s != nil && s.StatusStr == "error"
}

// NodeOutput is one node's recorded outputs.
type NodeOutput struct {
	Images []json.RawMessage
	Videos []json.RawMessage
}

// DecodeNodeOutput reads one node's outputs. images and videos are decoded
// independently; a list of the wrong shape is left empty. ok is false when
// raw is not an object.
func DecodeNodeOutput(raw json.RawMessage) (out NodeOutput, ok bool) {
	fields, ok := objectFields(raw)
	if !ok {
		return NodeOutput{}, false
	}
	decodeField(fields, "images", &out.Images)
	decodeField(fields, "videos", &out.Videos)
	return out, true
}

// ArtifactReference identifies a produced file before URL resolution.
type ArtifactReference struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// UnmarshalJSON accepts any object. Non-string values keep their JSON text,
// so a record with an oddly typed field still resolves.
func (a *ArtifactReference) UnmarshalJSON(data []byte) error {
	fields, ok := objectFields(data)
	if !ok {
		return errors.New("artifact reference must be an object")
	}
	*a = ArtifactReference{
		Filename:  looseString(fields["filename"]),
		Subfolder: looseString(fields["subfolder"]),
		Type:      looseString(fields["type"]),
	}
	return nil
}

// Kind returns the artifact kind, defaulting to output.
func (a ArtifactReference) Kind() string {
	if a.Type == "" {
		return KindOutput
	}
	return a.Type
}

// IsTemp reports whether a is a temporary, non user-facing artifact.
func (a ArtifactReference) IsTemp() bool {
	return a.Kind() == KindTemp
}

// Frame is one stream message.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ExecutingData is the payload of an executing frame. A nil Node means the
// job has finished.
type ExecutingData struct {
	Node     *string `json:"node"`
	PromptID string  `json:"prompt_id"`
}

// ExecutionErrorData is the payload of an execution_error frame.
type ExecutionErrorData struct {
	PromptID         string `json:"prompt_id"`
	NodeID           NodeID `json:"node_id"`
	NodeType         string `json:"node_type"`
	ExceptionType    string `json:"exception_type"`
	ExceptionMessage string `json:"exception_message"`
}

func objectFields(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

// decodeField sets *dst only when fields[key] decodes cleanly.
func decodeField[T any](fields map[string]json.RawMessage, key string, dst *T) {
	raw, ok := fields[key]
	if !ok {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err == nil {
		*dst = v
	}
}

func looseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
