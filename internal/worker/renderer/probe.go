package renderer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/eapache/go-resiliency/retrier"
)

// ProbeTimeout bounds a single liveness request.
const ProbeTimeout = 5 * time.Second

// Probe polls url until it answers 200 or attempts are used up, waiting delay
// between failures. It never returns an error: transport failures and
// non-200 answers both count as a failed attempt.
func Probe(ctx context.Context, client *http.Client, url string, attempts int, delay time.Duration) bool {
	if attempts < 1 {
		attempts = 1
	}
	if client == nil {
		client = http.DefaultClient
	}

	r := retrier.New(retrier.ConstantBackoff(attempts-1, delay), nil)
	err := r.RunCtx(ctx, func(ctx context.Context) error {
		return checkLive(ctx, client, url)
	})
	return err == nil
}

func checkLive(ctx context.Context, client *http.Client, url string) error {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("liveness check returned %d", res.StatusCode)
	}
	return nil
}

// Probe checks the server root.
func (c *HTTPClient) Probe(ctx context.Context, attempts int, delay time.Duration) bool {
	return Probe(ctx, c.client, c.baseURL+"/", attempts, delay)
}
