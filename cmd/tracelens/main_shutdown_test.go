package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ongoingai/tracelens/internal/spanstore"
)

// recordingSpanWriter wraps the real writer and records lifecycle calls.
type recordingSpanWriter struct {
	asyncSpanWriter

	mu             sync.Mutex
	shutdownCalled bool
	enqueueCalls   int
}

func (w *recordingSpanWriter) Enqueue(span *spanstore.Span) bool {
	w.mu.Lock()
	w.enqueueCalls++
	w.mu.Unlock()
	return w.asyncSpanWriter.Enqueue(span)
}

func (w *recordingSpanWriter) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	w.shutdownCalled = true
	w.mu.Unlock()
	return w.asyncSpanWriter.Shutdown(ctx)
}

func (w *recordingSpanWriter) snapshot() (bool, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.shutdownCalled, w.enqueueCalls
}

func TestRunServeFlushesQueuedSpansOnShutdown(t *testing.T) {
	port := freeTCPPort(t)
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "spans.db")
	configPath := filepath.Join(tmpDir, "tracelens.yaml")
	configBody := fmt.Sprintf(`server:
  host: 127.0.0.1
  port: %d
storage:
  driver: sqlite
  path: %q
auth:
  enabled: false
`, port, dbPath)
	if err := os.WriteFile(configPath, []byte(configBody), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	originalSignalNotifyContext := signalNotifyContext
	originalNewSpanWriter := newSpanWriter
	t.Cleanup(func() {
		signalNotifyContext = originalSignalNotifyContext
		newSpanWriter = originalNewSpanWriter
	})

	shutdownCtx, shutdown := context.WithCancel(context.Background())
	t.Cleanup(shutdown)
	signalNotifyContext = func(_ context.Context, _ ...os.Signal) (context.Context, context.CancelFunc) {
		return shutdownCtx, func() {}
	}

	var (
		writerMu sync.Mutex
		writer   *recordingSpanWriter
	)
	newSpanWriter = func(store spanstore.Store, options spanstore.WriterOptions) asyncSpanWriter {
		w := &recordingSpanWriter{asyncSpanWriter: spanstore.NewWriter(store, options)}
		writerMu.Lock()
		writer = w
		writerMu.Unlock()
		return w
	}

	exitCodeCh := make(chan int, 1)
	go func() {
		exitCodeCh <- runServe([]string{"--config", configPath})
	}()

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitForHTTPReady(t, baseURL+"/api/health")

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/spans", strings.NewReader(completionSpans))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("ingest request failed: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("ingest status=%d, want %d", resp.StatusCode, http.StatusAccepted)
	}
	if resp.Header.Get("X-Tracelens-Request-ID") == "" {
		t.Fatal("expected request id header on ingest response")
	}

	shutdown()

	select {
	case code := <-exitCodeCh:
		if code != 0 {
			t.Fatalf("runServe exit code=%d, want 0", code)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for runServe shutdown")
	}

	writerMu.Lock()
	capturedWriter := writer
	writerMu.Unlock()
	if capturedWriter == nil {
		t.Fatal("span writer was not constructed")
	}
	shutdownCalled, enqueueCalls := capturedWriter.snapshot()
	if !shutdownCalled {
		t.Fatal("expected span writer Shutdown() to be called")
	}
	if enqueueCalls != 1 {
		t.Fatalf("enqueue calls=%d, want 1", enqueueCalls)
	}

	store, err := spanstore.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	defer store.Close()

	result, err := store.QuerySpans(context.Background(), spanstore.SpanFilter{Limit: 10})
	if err != nil {
		t.Fatalf("QuerySpans() error: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].SpanID != "span-1" {
		t.Fatalf("persisted spans=%+v, want span-1", result.Items)
	}
}

func freeTCPPort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen for free port: %v", err)
	}
	defer listener.Close()

	addr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("unexpected listener addr type %T", listener.Addr())
	}
	return addr.Port
}

func waitForHTTPReady(t *testing.T, url string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for HTTP server at %s", url)
}
