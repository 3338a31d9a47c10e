// Package renderer talks to the render server over HTTP.
package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	contracts "renderbridge/internal/contracts/renderserver"
	"renderbridge/internal/pkg/errors"
)

// Client is the render-server surface the pipeline depends on.
type Client interface {
	BaseURL() string
	UploadImage(ctx context.Context, data []byte, name string) (string, error)
	QueuePrompt(ctx context.Context, req contracts.PromptRequest) (string, error)
	History(ctx context.Context, jobID string) (contracts.History, error)
}

// HTTPClient is the default Client.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient returns a client for the server at baseURL. timeout bounds
// each request; zero means 60s.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the server root without a trailing slash.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Host returns host[:port] of the server, for messages.
func (c *HTTPClient) Host() string {
	return Host(c.baseURL)
}

// UploadImage stores data on the server under name and returns the name the
// server assigned.
func (c *HTTPClient) UploadImage(ctx context.Context, data []byte, name string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", name)
	if err != nil {
		return "", errors.Upload(name, err)
	}
	if _, err := part.Write(data); err != nil {
		return "", errors.Upload(name, err)
	}
	if err := mw.Close(); err != nil {
		return "", errors.Upload(name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/image", &body)
	if err != nil {
		return "", errors.Upload(name, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	res, err := c.client.Do(req)
	if err != nil {
		return "", errors.Upload(name, err)
	}
	defer res.Body.Close()

	if err := checkStatus(res); err != nil {
		return "", errors.Upload(name, err)
	}

	// Some server builds answer with an empty or non-JSON body.
	var out contracts.UploadResponse
	_ = json.NewDecoder(res.Body).Decode(&out)
	return out.StoredName(name), nil
}

// QueuePrompt submits a job and returns its server-assigned id.
func (c *HTTPClient) QueuePrompt(ctx context.Context, pr contracts.PromptRequest) (string, error) {
	body, err := json.Marshal(pr)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeSubmission, "renderer.prompt", "failed to encode prompt")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeSubmission, "renderer.prompt", "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeSubmission, "renderer.prompt", "failed to queue prompt")
	}
	defer res.Body.Close()

	if err := checkStatus(res); err != nil {
		return "", errors.WrapWithCode(err, errors.CodeSubmission, "renderer.prompt", "render server rejected prompt")
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.CodeSubmission, "renderer.prompt", "failed to read prompt response")
	}
	var out contracts.PromptResponse
	if err := json.Unmarshal(raw, &out); err != nil || out.JobID() == "" {
		return "", errors.Submission(fmt.Sprintf("missing prompt_id in response: %s", truncate(raw, 512)))
	}
	return out.JobID(), nil
}

// History fetches the execution record for jobID.
func (c *HTTPClient) History(ctx context.Context, jobID string) (contracts.History, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, errors.Wrap(err, "renderer.history", "failed to build request")
	}

	res, err := c.client.Do(req)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "renderer.history", "failed to fetch history")
	}
	defer res.Body.Close()

	if err := checkStatus(res); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "renderer.history", "failed to fetch history")
	}

	var h contracts.History
	if err := json.NewDecoder(res.Body).Decode(&h); err != nil {
		return nil, errors.Wrap(err, "renderer.history", "history must be an object")
	}
	if h == nil {
		h = contracts.History{}
	}
	return h, nil
}

func checkStatus(res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
	if len(bytes.TrimSpace(snippet)) == 0 {
		return fmt.Errorf("render server http %d", res.StatusCode)
	}
	return fmt.Errorf("render server http %d: %s", res.StatusCode, bytes.TrimSpace(snippet))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Host returns host[:port] of rawURL, or rawURL itself when it has no scheme.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.TrimPrefix(strings.TrimPrefix(rawURL, "http://"), "https://")
	}
	return u.Host
}

// StreamURL derives the notification stream address for sessionID from the
// server's base URL. https servers get wss.
func StreamURL(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"clientId": {sessionID}}.Encode()
	return u.String(), nil
}
