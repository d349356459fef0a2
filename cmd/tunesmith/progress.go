package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"tunesmith/internal/fetch"
)

// progressDisplay shows a spinner with the item currently downloading and a
// count of finished downloads.
type progressDisplay struct {
	mu       sync.Mutex
	bar      *progressbar.ProgressBar
	finished map[string]bool
}

// newProgressDisplay returns nil when progress output is disabled or out is
// not a terminal.
func newProgressDisplay(out io.Writer, enabled bool) *progressDisplay {
	if !enabled || !shouldColorize(out) {
		return nil
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("fetching"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	return &progressDisplay{bar: bar, finished: make(map[string]bool)}
}

// Func adapts the display to the fetch pipeline. A nil display yields nil.
func (p *progressDisplay) Func() fetch.ProgressFunc {
	if p == nil {
		return nil
	}
	return p.update
}

func (p *progressDisplay) update(itemID string, percent float64, rate string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished[itemID] {
		return
	}
	p.bar.Describe(fmt.Sprintf("%s %5.1f%% %s", itemID, percent, rate))
	if percent >= 100 {
		p.finished[itemID] = true
		_ = p.bar.Add(1)
	}
}

func (p *progressDisplay) finish() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.bar.Finish()
}
