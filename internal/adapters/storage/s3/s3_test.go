package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renderbridge/internal/pkg/errors"
	"renderbridge/internal/ports"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		b.objects[key] = data
		b.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := b.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", b.types[key])
		_, _ = w.Write(data)
	case http.MethodDelete:
		delete(b.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestProvider(t *testing.T) (*Provider, *fakeBucket) {
	t.Helper()
	bucket := &fakeBucket{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)

	client := awss3.New(awss3.Options{
		Region:           "us-east-1",
		BaseEndpoint:     aws.String(srv.URL),
		UsePathStyle:     true,
		RetryMaxAttempts: 1,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "AKIDTEST", SecretAccessKey: "secret"}, nil
		}),
	})
	return NewWithClient(client, "assets", "/renderbridge/"), bucket
}

func TestPutGetDelete(t *testing.T) {
	p, bucket := newTestProvider(t)
	ctx := context.Background()

	out, err := p.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   "inputs/face.png",
		ContentType: "image/png",
		Reader:      strings.NewReader("png-bytes"),
		Size:        9,
	})
	require.NoError(t, err)
	assert.Equal(t, "inputs/face.png", out.ObjectKey)
	assert.Equal(t, []byte("png-bytes"), bucket.objects["assets/renderbridge/inputs/face.png"])

	rc, ct, _, err := p.GetObject(ctx, "inputs/face.png")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "image/png", ct)

	require.NoError(t, p.DeleteObject(ctx, "inputs/face.png"))
	_, _, _, err = p.GetObject(ctx, "inputs/face.png")
	assert.True(t, errors.IsNotFound(err))
}

func TestGetSignedURL(t *testing.T) {
	p, _ := newTestProvider(t)

	out, err := p.GetSignedURL(context.Background(), "inputs/face.png", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, out.URL, "/assets/renderbridge/inputs/face.png")
	assert.Contains(t, out.URL, "X-Amz-Expires=900")
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), out.ExpiresAt, time.Minute)
}

func TestRejectsEscapingKeys(t *testing.T) {
	p, _ := newTestProvider(t)

	_, _, _, err := p.GetObject(context.Background(), "../../etc/passwd")
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, "s3", p.Provider())
}
