package logs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"
)

const (
	runTimestamp = "20060102T150405"
	runExt       = ".log"
	runIDLength  = 8
)

// Run is one run log file.
type Run struct {
	Path       string
	Started    time.Time
	Collection string
	RunID      string
}

// RunFileName is the file name for a pass over collection started at started.
func RunFileName(started time.Time, collection, runID string) string {
	slug := Slug(collection)
	if slug == "" {
		slug = "collection"
	}
	short := Slug(runID)
	if len(short) > runIDLength {
		short = short[:runIDLength]
	}
	if short == "" {
		short = "run"
	}
	return fmt.Sprintf("%s-%s-%s%s", started.UTC().Format(runTimestamp), slug, short, runExt)
}

// Slug lowercases value and collapses every run of other characters into a
// single dash.
func Slug(value string) string {
	var builder strings.Builder
	builder.Grow(len(value))
	lastDash := false
	for _, r := range strings.TrimSpace(value) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			builder.WriteRune(unicode.ToLower(r))
			lastDash = false
		case !lastDash:
			builder.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(builder.String(), "-")
}

func parseRunName(name string) (Run, bool) {
	if !strings.HasSuffix(name, runExt) || len(name) <= len(runTimestamp)+1 {
		return Run{}, false
	}
	started, err := time.Parse(runTimestamp, name[:len(runTimestamp)])
	if err != nil || name[len(runTimestamp)] != '-' {
		return Run{}, false
	}
	rest := strings.TrimSuffix(name[len(runTimestamp)+1:], runExt)
	idx := strings.LastIndexByte(rest, '-')
	if idx <= 0 || idx == len(rest)-1 {
		return Run{}, false
	}
	return Run{Started: started, Collection: rest[:idx], RunID: rest[idx+1:]}, true
}

// ListRuns returns the run logs in dir, newest first. Files that do not
// follow the run log naming are ignored. A missing dir yields no runs.
func ListRuns(dir string) ([]Run, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read run log directory: %w", err)
	}
	runs := make([]Run, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		run, ok := parseRunName(entry.Name())
		if !ok {
			continue
		}
		run.Path = filepath.Join(dir, entry.Name())
		runs = append(runs, run)
	}
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].Started.Equal(runs[j].Started) {
			return runs[i].Started.After(runs[j].Started)
		}
		return runs[i].Path > runs[j].Path
	})
	return runs, nil
}

// FindRun returns the newest run whose id starts with query or whose
// collection slug equals the slug of query. An empty query selects the
// newest run.
func FindRun(runs []Run, query string) (Run, bool) {
	query = strings.TrimSpace(query)
	if query == "" {
		if len(runs) == 0 {
			return Run{}, false
		}
		return runs[0], true
	}
	prefix := strings.ToLower(query)
	if len(prefix) > runIDLength {
		prefix = prefix[:runIDLength]
	}
	slug := Slug(query)
	for _, run := range runs {
		if strings.HasPrefix(run.RunID, prefix) || run.Collection == slug {
			return run, true
		}
	}
	return Run{}, false
}
