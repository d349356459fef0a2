package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tunesmith/internal/config"
)

const userAgent = "tunesmith/0.1"

// Summary is the outcome of one pass over a collection.
type Summary struct {
	Collection string
	Fetched    int
	Created    int
	Moved      int
	Retagged   int
	Failed     int
	Duration   time.Duration
}

// Changed reports whether the pass touched the library or hit failures.
func (s Summary) Changed() bool {
	return s.Fetched+s.Created+s.Moved+s.Retagged+s.Failed > 0
}

// Service is the notification surface used by the workflow.
type Service interface {
	NotifySyncCompleted(ctx context.Context, summary Summary) error
	NotifySyncFailed(ctx context.Context, collection string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a no-op one when no topic is
// configured.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		onlyChanges: cfg.Notifications.OnlyChanges,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	onlyChanges bool
}

func (n *ntfyService) NotifySyncCompleted(ctx context.Context, s Summary) error {
	if n.onlyChanges && !s.Changed() {
		return nil
	}
	duration := s.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}

	parts := make([]string, 0, 4)
	if s.Created > 0 {
		parts = append(parts, fmt.Sprintf("%d added", s.Created))
	}
	if s.Moved > 0 {
		parts = append(parts, fmt.Sprintf("%d moved", s.Moved))
	}
	if s.Retagged > 0 {
		parts = append(parts, fmt.Sprintf("%d retagged", s.Retagged))
	}
	if s.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", s.Failed))
	}
	body := "no changes"
	if len(parts) > 0 {
		body = strings.Join(parts, ", ")
	}

	data := payload{
		title:   fmt.Sprintf("tunesmith - %s synced", s.Collection),
		message: fmt.Sprintf("%s in %s", body, duration),
		tags:    []string{"tunesmith", "sync", "completed"},
	}
	if s.Failed > 0 {
		data.title = fmt.Sprintf("tunesmith - %s synced (with errors)", s.Collection)
		data.tags = []string{"tunesmith", "sync", "warning"}
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySyncFailed(ctx context.Context, collection string, err error) error {
	message := "unknown error"
	if err != nil {
		message = strings.TrimSpace(err.Error())
	}
	data := payload{
		title:    fmt.Sprintf("tunesmith - %s failed", strings.TrimSpace(collection)),
		message:  message,
		tags:     []string{"tunesmith", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "tunesmith - Test",
		message:  "Notification system test",
		tags:     []string{"tunesmith", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifySyncCompleted(context.Context, Summary) error    { return nil }
func (noopService) NotifySyncFailed(context.Context, string, error) error { return nil }
func (noopService) TestNotification(context.Context) error                { return nil }
