// Package client talks to a running Dormindo daemon over HTTP and SSE.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fentz26/dormindo/internal/broadcast"
	"github.com/fentz26/dormindo/internal/models"
	"github.com/r3labs/sse/v2"
	"github.com/rs/zerolog/log"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// HealthResponse matches the server's health response structure.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

// Client wraps HTTP calls to the Dormindo API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client with timeout.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

// BaseURL returns the daemon address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		msg := string(bytes.TrimSpace(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *Client) timer(ctx context.Context, action string, in interface{}) (models.TimerStatus, error) {
	var st models.TimerStatus
	err := c.do(ctx, http.MethodPost, "/timer/"+action, in, &st)
	return st, err
}

// StartTimer starts a timer; zero seconds uses the daemon's default duration.
func (c *Client) StartTimer(ctx context.Context, seconds int64) (models.TimerStatus, error) {
	return c.timer(ctx, "start", map[string]int64{"seconds": seconds})
}

// Pause pauses the active timer.
func (c *Client) Pause(ctx context.Context) (models.TimerStatus, error) {
	return c.timer(ctx, "pause", nil)
}

// Resume resumes a paused timer.
func (c *Client) Resume(ctx context.Context) (models.TimerStatus, error) {
	return c.timer(ctx, "resume", nil)
}

// AddMinutes extends the active timer.
func (c *Client) AddMinutes(ctx context.Context, minutes int) (models.TimerStatus, error) {
	return c.timer(ctx, "add", map[string]int{"minutes": minutes})
}

// Cancel ends the timer, optionally stopping media.
func (c *Client) Cancel(ctx context.Context, stopMedia bool) (models.TimerStatus, error) {
	return c.timer(ctx, "cancel", map[string]bool{"stop_media": stopMedia})
}

// Refresh asks the daemon to re-broadcast and returns the current status.
func (c *Client) Refresh(ctx context.Context) (models.TimerStatus, error) {
	return c.timer(ctx, "refresh", nil)
}

// Status returns the current timer status.
func (c *Client) Status(ctx context.Context) (models.TimerStatus, error) {
	var st models.TimerStatus
	err := c.do(ctx, http.MethodGet, "/timer", nil, &st)
	return st, err
}

// CurrentMedia returns the active media session.
func (c *Client) CurrentMedia(ctx context.Context) (*models.MediaInfo, error) {
	var info models.MediaInfo
	if err := c.do(ctx, http.MethodGet, "/media", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// IsMediaPlaying reports whether the daemon sees a playing session.
func (c *Client) IsMediaPlaying(ctx context.Context) (bool, error) {
	info, err := c.CurrentMedia(ctx)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsPlaying, nil
}

// GetSettings returns the stored settings.
func (c *Client) GetSettings(ctx context.Context) (models.Settings, error) {
	var s models.Settings
	err := c.do(ctx, http.MethodGet, "/settings", nil, &s)
	return s, err
}

// UpdateSettings replaces the stored settings.
func (c *Client) UpdateSettings(ctx context.Context, s models.Settings) (models.Settings, error) {
	var out models.Settings
	err := c.do(ctx, http.MethodPut, "/settings", s, &out)
	return out, err
}

// History returns recent runs, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]models.TimerRun, error) {
	path := "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	runs := []models.TimerRun{}
	err := c.do(ctx, http.MethodGet, path, nil, &runs)
	return runs, err
}

// CheckHealth returns the parsed health payload even on a non-200
// response, alongside the error.
func (c *Client) CheckHealth(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &health, fmt.Errorf("health check failed (status %d): %s", resp.StatusCode, string(body))
	}
	return &health, nil
}

// Watch calls handler for every snapshot on the daemon's event stream until
// ctx is done. Dropped connections are retried with backoff.
func (c *Client) Watch(ctx context.Context, handler func(models.Snapshot)) error {
	sub := sse.NewClient(c.baseURL + "/events")
	err := sub.SubscribeWithContext(ctx, broadcast.Stream, func(ev *sse.Event) {
		if len(ev.Data) == 0 {
			return
		}
		var snap models.Snapshot
		if err := json.Unmarshal(ev.Data, &snap); err != nil {
			log.Debug().Err(err).Msg("client: bad snapshot event")
			return
		}
		handler(snap)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Snapshots runs Watch in the background. The channel closes when the
// stream ends.
func (c *Client) Snapshots(ctx context.Context, buffer int) <-chan models.Snapshot {
	ch := make(chan models.Snapshot, buffer)
	go func() {
		defer close(ch)
		err := c.Watch(ctx, func(s models.Snapshot) {
			select {
			case ch <- s:
			case <-ctx.Done():
			}
		})
		if err != nil {
			log.Debug().Err(err).Msg("client: event stream ended")
		}
	}()
	return ch
}
