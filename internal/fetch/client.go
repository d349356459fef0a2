package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"tunesmith/internal/catalog"
	"tunesmith/internal/config"
	"tunesmith/internal/services"
)

// ProgressFunc receives download progress for one item.
type ProgressFunc func(itemID string, percent float64, rate string)

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithGate makes every remote call wait on gate.
func WithGate(gate *Gate) Option {
	return func(c *Client) {
		c.gate = gate
	}
}

// Client wraps yt-dlp invocations.
type Client struct {
	cfg  config.Fetch
	exec Executor
	gate *Gate
}

// New constructs a client from the fetch configuration.
func New(cfg config.Fetch, opts ...Option) (*Client, error) {
	cfg.Binary = strings.TrimSpace(cfg.Binary)
	if cfg.Binary == "" {
		return nil, errors.New("fetch binary required")
	}
	client := &Client{cfg: cfg, exec: commandExecutor{}}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Request describes one download.
type Request struct {
	ItemID string
	OutDir string
	// Progress is called for each progress line. Optional.
	Progress ProgressFunc
	// OnStart is called once the gate is acquired, just before the process
	// starts. Optional.
	OnStart func()
}

// Result is a completed download.
type Result struct {
	ItemID   string
	Path     string
	Metadata *catalog.Metadata
	Output   string
}

// Download fetches one item into req.OutDir as <id>.<audio format> and loads
// the info file the downloader writes next to it.
func (c *Client) Download(ctx context.Context, req Request) (Result, error) {
	id := strings.TrimSpace(req.ItemID)
	if id == "" || strings.Contains(id, "/") {
		return Result{}, services.Wrap(services.ErrValidation, "fetch", "download", fmt.Sprintf("invalid item id %q", req.ItemID), nil)
	}
	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create cache directory: %w", err)
	}
	if err := c.wait(ctx); err != nil {
		return Result{}, err
	}
	if req.OnStart != nil {
		req.OnStart()
	}

	args := []string{"-x", "--newline",
		"--audio-format", c.cfg.AudioFormat,
		"--audio-quality", c.cfg.AudioQuality,
		"--write-info-json",
	}
	if ff := strings.TrimSpace(c.cfg.FFmpegBinary); ff != "" && ff != "ffmpeg" {
		args = append(args, "--ffmpeg-location", ff)
	}
	args = append(args, c.cfg.ExtraArgs...)
	args = append(args, "-o", filepath.Join(req.OutDir, "%(id)s.%(ext)s"), "--", c.itemURL(id))

	out := &outputBuffer{}
	onLine := func(line string) {
		out.add(line)
		if req.Progress == nil {
			return
		}
		if percent, rate, ok := parseProgress(line); ok {
			req.Progress(id, percent, rate)
		}
	}
	// In-flight downloads are never cancelled.
	runCtx := context.WithoutCancel(ctx)
	if err := c.exec.Run(runCtx, c.cfg.Binary, args, onLine, out.add); err != nil {
		return Result{ItemID: id, Output: out.String()}, c.classify("download", id, err, out.String())
	}

	result := Result{
		ItemID: id,
		Path:   catalog.CachePath(req.OutDir, id, "."+c.cfg.AudioFormat),
		Output: out.String(),
	}
	infoPath := filepath.Join(req.OutDir, id+".info.json")
	if data, err := os.ReadFile(infoPath); err == nil {
		var meta catalog.Metadata
		if err := json.Unmarshal(data, &meta); err == nil {
			if meta.ID == "" {
				meta.ID = id
			}
			result.Metadata = &meta
		}
		_ = os.Remove(infoPath)
	}
	if _, err := os.Stat(result.Path); err != nil {
		return result, services.Wrap(services.ErrFetchFailed, "fetch", "download", "downloader produced no media file", err)
	}
	return result, nil
}

// Kind distinguishes a listing response from a single item.
type Kind string

const (
	KindListing Kind = "listing"
	KindSingle  Kind = "single"
)

// Info is a metadata query response.
type Info struct {
	Kind    Kind
	ID      string
	Title   string
	Entries []catalog.Metadata
	Item    *catalog.Metadata
}

type rawInfo struct {
	catalog.Metadata
	Entries []catalog.Metadata `json:"entries"`
}

// Info queries metadata for url without downloading media.
func (c *Client) Info(ctx context.Context, url string) (*Info, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	args := []string{"-J", "--flat-playlist"}
	args = append(args, c.cfg.ExtraArgs...)
	args = append(args, "--", url)

	var stdout strings.Builder
	stderr := &outputBuffer{}
	err := c.exec.Run(ctx, c.cfg.Binary, args, func(line string) {
		stdout.WriteString(line)
		stdout.WriteByte('\n')
	}, stderr.add)
	if err != nil {
		return nil, c.classify("info", url, err, stdout.String()+stderr.String())
	}

	var raw rawInfo
	if err := json.Unmarshal([]byte(stdout.String()), &raw); err != nil {
		return nil, services.Wrap(services.ErrExternalService, "fetch", "parse info", url, err)
	}
	info := &Info{ID: raw.ID, Title: raw.Title}
	if raw.Type == "playlist" || raw.Entries != nil {
		info.Kind = KindListing
		for _, entry := range raw.Entries {
			if strings.TrimSpace(entry.ID) == "" {
				continue
			}
			info.Entries = append(info.Entries, entry)
		}
		return info, nil
	}
	info.Kind = KindSingle
	meta := raw.Metadata
	info.Item = &meta
	return info, nil
}

// ListSource returns the current members of a remote source.
func (c *Client) ListSource(ctx context.Context, sourceID string) ([]catalog.Metadata, error) {
	info, err := c.Info(ctx, fmt.Sprintf(c.cfg.SourceURLTemplate, sourceID))
	if err != nil {
		return nil, err
	}
	if info.Kind != KindListing {
		return nil, services.Wrap(services.ErrValidation, "fetch", "list source", fmt.Sprintf("%s is a single item, not a listing", sourceID), nil)
	}
	return info.Entries, nil
}

func (c *Client) itemURL(id string) string {
	if c.cfg.ItemURLTemplate == "" {
		return id
	}
	return fmt.Sprintf(c.cfg.ItemURLTemplate, id)
}

func (c *Client) wait(ctx context.Context) error {
	if c.gate == nil {
		return nil
	}
	return c.gate.Acquire(ctx)
}

var networkMarkers = []string{
	"unable to download webpage",
	"urlopen error",
	"temporary failure in name resolution",
	"name or service not known",
	"connection reset",
	"connection refused",
	"timed out",
	"http error 429",
	"http error 5",
}

// classify maps an executor failure onto the error taxonomy: transport
// problems are external service errors, any other non-zero exit is a fetch
// failure carrying the process output.
func (c *Client) classify(op, target string, err error, output string) error {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		return services.Wrap(services.ErrExternalService, "fetch", op, fmt.Sprintf("could not run %s", c.cfg.Binary), err)
	}
	exitErr.Output = output
	lower := strings.ToLower(output)
	for _, marker := range networkMarkers {
		if strings.Contains(lower, marker) {
			return services.Wrap(services.ErrExternalService, "fetch", op, fmt.Sprintf("remote service unreachable for %s", target), exitErr)
		}
	}
	return services.Wrap(services.ErrFetchFailed, "fetch", op, target, exitErr)
}

var progressPattern = regexp.MustCompile(`\[download\]\s+([\d.]+)% of\s+~?\s*\S+ at\s+([\d.]+\S+)`)

func parseProgress(line string) (float64, string, bool) {
	match := progressPattern.FindStringSubmatch(line)
	if match == nil {
		return 0, "", false
	}
	percent, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, "", false
	}
	return percent, match[2], true
}

const maxOutput = 64 * 1024

// outputBuffer keeps the tail of combined process output.
type outputBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *outputBuffer) add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, line...)
	b.buf = append(b.buf, '\n')
	if len(b.buf) > maxOutput {
		b.buf = b.buf[len(b.buf)-maxOutput:]
	}
}

func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
