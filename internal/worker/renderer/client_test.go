package renderer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contracts "renderbridge/internal/contracts/renderserver"
	"renderbridge/internal/pkg/errors"
)

func TestUploadImage(t *testing.T) {
	var gotName string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/upload/image", r.URL.Path)
		f, hdr, err := r.FormFile("image")
		require.NoError(t, err)
		gotName = hdr.Filename
		gotBody, _ = io.ReadAll(f)
		_, _ = w.Write([]byte(`{"name":"input (1).png","subfolder":"","type":"input"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", time.Second)
	name, err := c.UploadImage(context.Background(), []byte("png-bytes"), "input.png")

	require.NoError(t, err)
	assert.Equal(t, "input (1).png", name)
	assert.Equal(t, "input.png", gotName)
	assert.Equal(t, []byte("png-bytes"), gotBody)
}

func TestUploadImageFallsBackToGivenName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	name, err := NewHTTPClient(srv.URL, time.Second).UploadImage(context.Background(), []byte("x"), "face.jpg")
	require.NoError(t, err)
	assert.Equal(t, "face.jpg", name)
}

func TestUploadImageRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "disk full", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, time.Second).UploadImage(context.Background(), []byte("x"), "face.jpg")
	require.Error(t, err)
	assert.Equal(t, errors.CodeUpload, errors.GetCode(err))
	assert.Contains(t, err.Error(), "disk full")
}

func TestQueuePrompt(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		reply    string
		wantID   string
		wantCode errors.Code
	}{
		{name: "prompt_id", status: 200, reply: `{"prompt_id":"J1","number":0}`, wantID: "J1"},
		{name: "id", status: 200, reply: `{"id":"J2"}`, wantID: "J2"},
		{name: "missing id", status: 200, reply: `{"node_errors":{}}`, wantCode: errors.CodeSubmission},
		{name: "not json", status: 200, reply: `<html>`, wantCode: errors.CodeSubmission},
		{name: "rejected", status: 400, reply: `{"error":"invalid prompt"}`, wantCode: errors.CodeSubmission},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/prompt", r.URL.Path)
				require.Equal(t, "application/json", r.Header.Get("Content-Type"))
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.reply))
			}))
			defer srv.Close()

			req := contracts.NewPromptRequest(contracts.Graph{"1": map[string]any{}}, "sess-1", "key")
			id, err := NewHTTPClient(srv.URL, time.Second).QueuePrompt(context.Background(), req)

			assert.Equal(t, "sess-1", got["client_id"])
			assert.Equal(t, map[string]any{"api_key_comfy_org": "key"}, got["extra_data"])
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, errors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/history/J1":
			_, _ = w.Write([]byte(`{"J1":{"outputs":{}}}`))
		case "/history/empty":
			_, _ = w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)

	h, err := c.History(context.Background(), "J1")
	require.NoError(t, err)
	assert.Contains(t, h, "J1")

	h, err = c.History(context.Background(), "empty")
	require.NoError(t, err)
	assert.Empty(t, h)

	_, err = c.History(context.Background(), "missing")
	assert.Error(t, err)
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://127.0.0.1:8188", "ws://127.0.0.1:8188/ws?clientId=abc"},
		{"http://127.0.0.1:8188/", "ws://127.0.0.1:8188/ws?clientId=abc"},
		{"https://render.example.com/comfy", "wss://render.example.com/comfy/ws?clientId=abc"},
	}

	for _, tt := range tests {
		got, err := StreamURL(tt.base, "abc")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestHost(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8188", Host("http://127.0.0.1:8188"))
	assert.Equal(t, "render:8188", Host("render:8188"))
	assert.Equal(t, "127.0.0.1:8188", NewHTTPClient("http://127.0.0.1:8188/", 0).Host())
}
