package renderserver

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPromptRequest(t *testing.T) {
	g := Graph{"1": map[string]any{"inputs": map[string]any{}}}

	raw, err := json.Marshal(NewPromptRequest(g, "sess-1", "key-123"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"prompt":{"1":{"inputs":{}}},"client_id":"sess-1","extra_data":{"api_key_comfy_org":"key-123"}}`, string(raw))

	raw, err = json.Marshal(NewPromptRequest(g, "sess-1", ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"prompt":{"1":{"inputs":{}}},"client_id":"sess-1"}`, string(raw))
}

func TestPromptResponseJobID(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"prompt_id":"abc","number":3}`, "abc"},
		{`{"id":"xyz"}`, "xyz"},
		{`{"prompt_id":"abc","id":"xyz"}`, "abc"},
		{`{"node_errors":{}}`, ""},
	}

	for _, tt := range tests {
		var r PromptResponse
		require.NoError(t, json.Unmarshal([]byte(tt.raw), &r))
		assert.Equal(t, tt.want, r.JobID(), tt.raw)
	}
}

func TestUploadResponseStoredName(t *testing.T) {
	assert.Equal(t, "a.png", UploadResponse{Name: "a.png", Filename: "b.png"}.StoredName("c.png"))
	assert.Equal(t, "b.png", UploadResponse{Filename: "b.png"}.StoredName("c.png"))
	assert.Equal(t, "c.png", UploadResponse{}.StoredName("c.png"))
}

func TestArtifactReferenceKind(t *testing.T) {
	assert.Equal(t, KindOutput, ArtifactReference{Filename: "a.png"}.Kind())
	assert.Equal(t, KindInput, ArtifactReference{Filename: "a.png", Type: "input"}.Kind())
	assert.True(t, ArtifactReference{Filename: "a.png", Type: "temp"}.IsTemp())
	assert.False(t, ArtifactReference{Filename: "a.png"}.IsTemp())
}

func TestHistoryStatusFailed(t *testing.T) {
	var nilStatus *HistoryStatus
	assert.False(t, nilStatus.Failed())
	assert.False(t, (&HistoryStatus{StatusStr: "success", Completed: true}).Failed())
	assert.True(t, (&HistoryStatus{StatusStr: "error"}).Failed())
}

func TestFrameDecoding(t *testing.T) {
	var f Frame
	require.NoError(t, json.Unmarshal([]byte(`{"type":"executing","data":{"node":null,"prompt_id":"J1"}}`), &f))
	assert.Equal(t, FrameExecuting, f.Type)

	var d ExecutingData
	require.NoError(t, json.Unmarshal(f.Data, &d))
	assert.Nil(t, d.Node)
	assert.Equal(t, "J1", d.PromptID)

	var e ExecutionErrorData
	require.NoError(t, json.Unmarshal([]byte(`{"prompt_id":"J1","node_id":"3","node_type":"KSampler","exception_message":"OOM"}`), &e))
	assert.Equal(t, NodeID("3"), e.NodeID)
	assert.Equal(t, "OOM", e.ExceptionMessage)
}

func TestHistoryEntryNodeOutputsKeepsOrder(t *testing.T) {
	var e HistoryEntry
	require.NoError(t, json.Unmarshal([]byte(`{"outputs":{"9":{"images":[]},"10":{"videos":[]},"2":"odd"}}`), &e))

	nodes := e.NodeOutputs()
	require.Len(t, nodes, 3)
	assert.Equal(t, "9", nodes[0].NodeID)
	assert.Equal(t, "10", nodes[1].NodeID)
	assert.Equal(t, "2", nodes[2].NodeID)
	assert.JSONEq(t, `"odd"`, string(nodes[2].Raw))

	assert.Nil(t, HistoryEntry{}.NodeOutputs())
	assert.Nil(t, HistoryEntry{Outputs: json.RawMessage(`[1]`)}.NodeOutputs())
}

func TestHistoryEntryExecutionStatus(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantNil    bool
		wantFailed bool
	}{
		{"missing", `{"outputs":{}}`, true, false},
		{"not an object", `{"status":"weird"}`, true, false},
		{"success", `{"status":{"status_str":"success","completed":true}}`, false, false},
		{"error", `{"status":{"status_str":"error","messages":[]}}`, false, true},
		{"error with odd messages", `{"status":{"status_str":"error","messages":"x"}}`, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e HistoryEntry
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &e))
			st := e.ExecutionStatus()
			assert.Equal(t, tt.wantNil, st == nil)
			assert.Equal(t, tt.wantFailed, st.Failed())
		})
	}
}

func TestDecodeNodeOutput(t *testing.T) {
	out, ok := DecodeNodeOutput(json.RawMessage(`{"images":"x","videos":[{"filename":"v.mp4"},3]}`))
	require.True(t, ok)
	assert.Empty(t, out.Images)
	assert.Len(t, out.Videos, 2)

	_, ok = DecodeNodeOutput(json.RawMessage(`"odd"`))
	assert.False(t, ok)
	_, ok = DecodeNodeOutput(json.RawMessage(`null`))
	assert.False(t, ok)
}

func TestArtifactReferenceUnmarshal(t *testing.T) {
	var ref ArtifactReference
	require.NoError(t, json.Unmarshal([]byte(`{"filename":"a.png","subfolder":{"x": 1},"type":"temp","extra":true}`), &ref))
	assert.Equal(t, ArtifactReference{Filename: "a.png", Subfolder: `{"x":1}`, Type: "temp"}, ref)

	assert.Error(t, json.Unmarshal([]byte(`42`), &ref))
	assert.Error(t, json.Unmarshal([]byte(`null`), &ref))
}
