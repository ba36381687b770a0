package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gameserverkit/warden/internal/events"
	"github.com/gameserverkit/warden/internal/instances"
	"github.com/gameserverkit/warden/internal/logger"
	"github.com/gameserverkit/warden/internal/update"
)

// Client talks to a running warden daemon.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client against baseURL, e.g. http://127.0.0.1:5580.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// StatusResponse is the daemon's aggregated status report.
type StatusResponse struct {
	Instances        []InstanceState `json:"instances"`
	UpdateInProgress bool            `json:"update_in_progress"`
	UpdateJob        string          `json:"update_job"`
}

// InstanceState mirrors one instance row from /api/status.
type InstanceState struct {
	Name          string  `json:"name"`
	Installed     bool    `json:"installed"`
	Version       string  `json:"version"`
	Patchline     string  `json:"patchline"`
	Running       bool    `json:"running"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Port          int     `json:"port"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryRSS     uint64  `json:"memory_rss_bytes"`
	LastExitCode  *int    `json:"last_exit_code"`
}

// Status fetches the aggregated daemon status.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var out StatusResponse
	err := c.get(ctx, "/api/status", &out)
	return out, err
}

// Instances lists the registered instances.
func (c *Client) Instances(ctx context.Context) ([]instances.Info, error) {
	var out struct {
		Instances []instances.Info `json:"instances"`
	}
	if err := c.get(ctx, "/api/instances", &out); err != nil {
		return nil, err
	}
	return out.Instances, nil
}

// Start asks the daemon to start an instance.
func (c *Client) Start(ctx context.Context, instance string) error {
	return c.post(ctx, "/api/server/start", map[string]any{"instance": instance}, nil)
}

// Stop asks the daemon to stop an instance.
func (c *Client) Stop(ctx context.Context, instance string) error {
	return c.post(ctx, "/api/server/stop", map[string]any{"instance": instance}, nil)
}

// GracefulStop stops an instance after the countdown broadcast. The
// call blocks for the length of the countdown, so it bypasses the
// default request timeout; cancel ctx to give up early.
func (c *Client) GracefulStop(ctx context.Context, instance string, warnMinutes int) error {
	payload, err := json.Marshal(map[string]any{
		"instance":     instance,
		"graceful":     true,
		"warn_minutes": warnMinutes,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/server/stop", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	long := &http.Client{Transport: c.client.Transport}
	resp, err := long.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to API: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Command sends a console command to a running instance.
func (c *Client) Command(ctx context.Context, instance, command string) error {
	return c.post(ctx, "/api/server/command", map[string]any{
		"instance": instance,
		"command":  command,
	}, nil)
}

// UpdateOptions control an update request.
type UpdateOptions struct {
	Patchline   string
	Graceful    bool
	WarnMinutes int
	Stage       bool
}

// Update kicks off an update of one instance. The call returns as soon
// as the daemon accepts the job; progress arrives on the update stream.
func (c *Client) Update(ctx context.Context, instance string, opts UpdateOptions) error {
	return c.post(ctx, "/api/update", map[string]any{
		"instance":     instance,
		"patchline":    opts.Patchline,
		"graceful":     opts.Graceful,
		"warn_minutes": opts.WarnMinutes,
		"stage":        opts.Stage,
	}, nil)
}

// UpdateAll kicks off a fleet update, optionally limited to filter.
func (c *Client) UpdateAll(ctx context.Context, filter []string, opts UpdateOptions) error {
	return c.post(ctx, "/api/update/all", map[string]any{
		"filter":       filter,
		"graceful":     opts.Graceful,
		"warn_minutes": opts.WarnMinutes,
	}, nil)
}

// UpdateStatus fetches per-instance version and availability info.
func (c *Client) UpdateStatus(ctx context.Context) ([]update.InstanceStatus, error) {
	var out struct {
		Instances []update.InstanceStatus `json:"instances"`
	}
	if err := c.get(ctx, "/api/update/status", &out); err != nil {
		return nil, err
	}
	return out.Instances, nil
}

// Logs fetches the daemon's recent log lines.
func (c *Client) Logs(ctx context.Context) ([]logger.LogEntry, error) {
	var out struct {
		Logs []logger.LogEntry `json:"logs"`
	}
	if err := c.get(ctx, "/api/logs", &out); err != nil {
		return nil, err
	}
	return out.Logs, nil
}

// FollowConsole streams an instance's console events to fn until the
// stream ends or ctx is cancelled.
func (c *Client) FollowConsole(ctx context.Context, instance string, fn func(events.Event)) error {
	return c.follow(ctx, "/api/events/console/"+url.PathEscape(instance), fn)
}

// FollowUpdate streams the current update operation's events to fn.
func (c *Client) FollowUpdate(ctx context.Context, fn func(events.Event)) error {
	return c.follow(ctx, "/api/events/update", fn)
}

// follow consumes an SSE endpoint, decoding each data line into an
// event. Heartbeat comment lines are skipped.
func (c *Client) follow(ctx context.Context, path string, fn func(events.Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// Event streams outlive the default request timeout.
	streaming := &http.Client{Transport: c.client.Transport}
	resp, err := streaming.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var e events.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e); err != nil {
			return fmt.Errorf("malformed event: %w", err)
		}
		fn(e)
		if e.Kind == events.KindTerminal {
			return nil
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("event stream interrupted: %w", err)
	}
	return nil
}

// Health checks whether the daemon is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/health", nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	var msg struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &msg) == nil && msg.Error != "" {
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, msg.Error)
	}
	return fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
