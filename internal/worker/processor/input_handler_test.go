package processor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renderbridge/internal/pkg/errors"
)

func TestUploadSingleFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			_, _ = w.Write(pngBytes)
		case "/big.png":
			_, _ = w.Write(make([]byte, 64))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r := &fakeRenderer{}
	ih := NewInputHandler(r, srv.Client(), nil, 32, time.Second, testLogger())

	t.Run("downloads and uploads", func(t *testing.T) {
		name, err := ih.UploadSingle(context.Background(), ImageSource{Kind: SourceURL, Value: srv.URL + "/ok.png", Filename: "ok.png"})
		require.NoError(t, err)
		assert.Equal(t, "ok.png", name)
	})

	t.Run("non 2xx", func(t *testing.T) {
		_, err := ih.UploadSingle(context.Background(), ImageSource{Kind: SourceURL, Value: srv.URL + "/missing.png", Filename: "m.png"})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeAcquisition))
		assert.Contains(t, err.Error(), "http 404")
	})

	t.Run("too large", func(t *testing.T) {
		_, err := ih.UploadSingle(context.Background(), ImageSource{Kind: SourceURL, Value: srv.URL + "/big.png", Filename: "b.png"})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeAcquisition))
		assert.Contains(t, err.Error(), "exceeds 32 bytes")
	})
}

func TestUploadSingleFromObjectKey(t *testing.T) {
	sp := &fakeStorage{objects: map[string][]byte{"k/face.png": pngBytes}}
	ih := NewInputHandler(&fakeRenderer{}, nil, sp, 0, 0, nil)

	name, err := ih.UploadSingle(context.Background(), ImageSource{Kind: SourceObjectKey, Value: "k/face.png", Filename: "face.png"})
	require.NoError(t, err)
	assert.Equal(t, "face.png", name)

	_, err = ih.UploadSingle(context.Background(), ImageSource{Kind: SourceObjectKey, Value: "k/none.png", Filename: "none.png"})
	assert.True(t, errors.IsCode(err, errors.CodeAcquisition))

	noStorage := NewInputHandler(&fakeRenderer{}, nil, nil, 0, 0, nil)
	_, err = noStorage.UploadSingle(context.Background(), ImageSource{Kind: SourceObjectKey, Value: "k/face.png"})
	assert.True(t, errors.IsCode(err, errors.CodeAcquisition))
}

func TestUploadList(t *testing.T) {
	r := &fakeRenderer{failNames: map[string]bool{"bad-upload.png": true}}
	ih := NewInputHandler(r, nil, nil, 0, 0, testLogger())

	items := []json.RawMessage{
		json.RawMessage(`{"name": "one.png", "image": "` + b64(pngBytes) + `"}`),
		json.RawMessage(`"not an object"`),
		json.RawMessage(`{"name": "", "image": "aGk="}`),
		json.RawMessage(`{"name": "garbled.png", "image": "@@@"}`),
		json.RawMessage(`{"name": "bad-upload.png", "image": "aGk="}`),
		json.RawMessage(`{"name": "../two.png", "image": "aGk="}`),
	}

	names, errs := ih.UploadList(context.Background(), items)
	assert.Equal(t, []string{"one.png", "_two.png"}, names)
	require.Len(t, errs, 4)
	assert.True(t, errors.IsValidation(errs[0]))
	assert.True(t, errors.IsValidation(errs[1]))
	assert.True(t, errors.IsCode(errs[2], errors.CodeAcquisition))
	assert.True(t, errors.IsCode(errs[3], errors.CodeUpload))
}
