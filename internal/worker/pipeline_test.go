package worker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renderbridge/internal/config"
	"renderbridge/internal/pkg/logger"
)

// fakeRenderServer answers the endpoints the poll-mode pipeline touches and
// records the last submitted prompt.
type fakeRenderServer struct {
	mu     sync.Mutex
	prompt map[string]any
}

func (f *fakeRenderServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /upload/image", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"name": "staged.png", "subfolder": "", "type": "input"}`)
	})
	mux.HandleFunc("POST /prompt", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.prompt = body
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"prompt_id": "p-42", "number": 1}`)
	})
	mux.HandleFunc("GET /history/p-42", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"p-42": {
			"status": {"status_str": "success", "completed": true},
			"outputs": {"9": {"images": [{"filename": "out.png", "subfolder": "", "type": "output"}]}}
		}}`)
	})
	return mux
}

func TestNewProcessorPollMode(t *testing.T) {
	fake := &fakeRenderServer{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	cfg := &config.Config{
		RenderServer: config.RenderServer{
			BaseURL:              srv.URL,
			ReachabilityAttempts: 1,
			ReconnectAttempts:    1,
			AwaitMode:            config.AwaitModePoll,
			PollInterval:         10 * time.Millisecond,
			DefaultTimeout:       5 * time.Second,
			RequestTimeout:       5 * time.Second,
			ImageFetchTimeout:    time.Second,
		},
	}
	p := NewProcessor(cfg, nil, nil, logger.New(logger.Config{Level: "error", Output: io.Discard}))

	resp, err := p.RunRaw(context.Background(), []byte(`{
		"graph": {"10": {"class_type": "LoadImage", "inputs": {"image": ""}}},
		"image_base64": "aGVsbG8=",
		"image_node_id": 10,
		"image_field": "image"
	}`))
	require.NoError(t, err)
	assert.Equal(t, "p-42", resp.JobID)
	assert.Equal(t, []string{srv.URL + "/view?filename=out.png&subfolder=&type=output"}, resp.ImageURLs)
	assert.Empty(t, resp.Errors)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	node := fake.prompt["prompt"].(map[string]any)["10"].(map[string]any)
	assert.Equal(t, "staged.png", node["inputs"].(map[string]any)["image"])
}
