package renderer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProbe(t *testing.T) {
	t.Run("first attempt succeeds", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
		}))
		defer srv.Close()

		assert.True(t, Probe(context.Background(), srv.Client(), srv.URL+"/", 5, time.Millisecond))
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("succeeds after failures", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		}))
		defer srv.Close()

		assert.True(t, Probe(context.Background(), srv.Client(), srv.URL+"/", 5, time.Millisecond))
		assert.Equal(t, int32(3), hits.Load())
	})

	t.Run("exhausts attempts on non-200", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		assert.False(t, Probe(context.Background(), srv.Client(), srv.URL+"/", 3, time.Millisecond))
		assert.Equal(t, int32(3), hits.Load())
	})

	t.Run("connection refused counts as failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := srv.URL + "/"
		srv.Close()

		assert.False(t, Probe(context.Background(), nil, url, 3, time.Millisecond))
	})

	t.Run("zero attempts still tries once", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
		}))
		defer srv.Close()

		assert.True(t, Probe(context.Background(), srv.Client(), srv.URL+"/", 0, 0))
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("canceled context stops waiting", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		assert.False(t, Probe(ctx, srv.Client(), srv.URL+"/", 100, time.Second))
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestHTTPClientProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
	}))
	defer srv.Close()

	assert.True(t, NewHTTPClient(srv.URL, time.Second).Probe(context.Background(), 1, 0))
}
