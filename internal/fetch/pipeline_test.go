package fetch_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tunesmith/internal/catalog"
	"tunesmith/internal/fetch"
	"tunesmith/internal/services"
)

type stubDownloader struct {
	mu      sync.Mutex
	fail    map[string]error
	active  atomic.Int32
	maxSeen atomic.Int32
	hold    time.Duration
}

func (s *stubDownloader) Download(ctx context.Context, req fetch.Request) (fetch.Result, error) {
	if req.OnStart != nil {
		req.OnStart()
	}
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(s.hold)
	s.mu.Lock()
	err := s.fail[req.ItemID]
	s.mu.Unlock()
	if err != nil {
		return fetch.Result{ItemID: req.ItemID, Output: "boom"}, err
	}
	return fetch.Result{
		ItemID:   req.ItemID,
		Path:     req.OutDir + "/" + req.ItemID + ".mp3",
		Metadata: &catalog.Metadata{ID: req.ItemID, Title: "Band - " + req.ItemID},
	}, nil
}

type memoryLedger struct {
	mu          sync.Mutex
	created     []string
	transitions map[string][]fetch.Status
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{transitions: make(map[string][]fetch.Status)}
}

func (l *memoryLedger) Create(_ context.Context, job fetch.Job) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.created = append(l.created, job.ItemID)
	l.transitions[job.ID] = []fetch.Status{job.Status}
	return nil
}

func (l *memoryLedger) Transition(_ context.Context, id string, status fetch.Status, _, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transitions[id] = append(l.transitions[id], status)
	return nil
}

func TestPipelineUpdatesCatalogAndCallsBack(t *testing.T) {
	cat := catalog.New("", nil)
	dl := &stubDownloader{fail: map[string]error{
		"bad": services.Wrap(services.ErrFetchFailed, "fetch", "download", "bad", errors.New("exit status 1")),
	}}
	ledger := newMemoryLedger()
	p := fetch.NewPipeline(dl, cat, fetch.PipelineOptions{Workers: 2, CacheDir: "/cache", Ledger: ledger})

	var mu sync.Mutex
	outcomes := make(map[string]bool)
	done := func(id string, ok bool) {
		mu.Lock()
		defer mu.Unlock()
		if _, dup := outcomes[id]; dup {
			t.Errorf("callback for %s invoked twice", id)
		}
		outcomes[id] = ok
	}
	for _, id := range []string{"v1", "bad", "v2"} {
		p.Submit(context.Background(), id, "abc", done)
	}
	jobs := p.Wait()

	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	if !outcomes["v1"] || !outcomes["v2"] || outcomes["bad"] {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}
	if !cat.IsDownloaded("v1") || cat.IsDownloaded("bad") {
		t.Fatal("catalog download state not written")
	}
	if entry, _ := cat.Lookup("v2"); entry.Title != "Band - v2" {
		t.Fatalf("metadata not merged: %+v", entry)
	}
	for _, job := range jobs {
		want := []fetch.Status{fetch.StatusQueued, fetch.StatusThrottled, fetch.StatusRunning, fetch.StatusSucceeded}
		if job.ItemID == "bad" {
			want[3] = fetch.StatusFailed
			if !errors.Is(job.Err, services.ErrFetchFailed) {
				t.Fatalf("job error = %v", job.Err)
			}
		}
		got := ledger.transitions[job.ID]
		if len(got) != len(want) {
			t.Fatalf("job %s transitions %v, want %v", job.ItemID, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("job %s transitions %v, want %v", job.ItemID, got, want)
			}
		}
	}
}

func TestPipelineRespectsWorkerLimit(t *testing.T) {
	dl := &stubDownloader{hold: 20 * time.Millisecond}
	p := fetch.NewPipeline(dl, catalog.New("", nil), fetch.PipelineOptions{Workers: 2})
	for i := range 6 {
		p.Submit(context.Background(), string(rune('a'+i)), "", nil)
	}
	p.Wait()
	if got := dl.maxSeen.Load(); got > 2 {
		t.Fatalf("saw %d concurrent downloads with 2 workers", got)
	}
}

func TestPipelineCancelledContextFailsQueuedJobs(t *testing.T) {
	dl := &stubDownloader{}
	p := fetch.NewPipeline(dl, catalog.New("", nil), fetch.PipelineOptions{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ok atomic.Bool
	ok.Store(true)
	p.Submit(ctx, "v1", "", func(_ string, success bool) { ok.Store(success) })
	jobs := p.Wait()
	if ok.Load() || jobs[0].Status != fetch.StatusFailed {
		t.Fatalf("expected job failed before start, got %+v", jobs[0])
	}
	if dl.maxSeen.Load() != 0 {
		t.Fatal("download should not have run")
	}
}
