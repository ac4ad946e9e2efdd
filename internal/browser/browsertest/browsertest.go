// Package browsertest provides headless Chrome contexts for tests that need a
// real browser. Tests are skipped when no Chrome binary is installed.
package browsertest

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"
)

const (
	maxConcurrency         = 2
	defaultTestTimeout     = 90 * time.Second
	semaphoreAcquireTimeout = 30 * time.Second
	shutdownTimeout        = 10 * time.Second
)

var (
	processSemaphore     *semaphore.Weighted
	processSemaphoreOnce sync.Once
)

var chromeCandidates = []string{
	"headless-shell",
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"chrome",
}

func processLimit() *semaphore.Weighted {
	processSemaphoreOnce.Do(func() {
		n := int64(runtime.GOMAXPROCS(0))
		if n > maxConcurrency {
			n = maxConcurrency
		}
		processSemaphore = semaphore.NewWeighted(max(n, 1))
	})
	return processSemaphore
}

// ChromePath returns the Chrome binary tests should launch, honoring ROLECHECK_CHROME.
func ChromePath() (string, bool) {
	if p := os.Getenv("ROLECHECK_CHROME"); p != "" {
		return p, true
	}
	for _, name := range chromeCandidates {
		if p, err := exec.LookPath(name); err == nil {
			return p, true
		}
	}
	return "", false
}

// RequireChrome skips the test unless a Chrome binary is available and returns its path.
func RequireChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	chromePath, ok := ChromePath()
	if !ok {
		t.Skip("skipping browser test: no Chrome binary found")
	}
	return chromePath
}

// NewContext launches an isolated headless Chrome and returns a tab context that is
// torn down when the test ends. The test is skipped when Chrome is unavailable or
// when running with -short.
func NewContext(t *testing.T) context.Context {
	t.Helper()
	chromePath := RequireChrome(t)

	deadline, ok := t.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultTestTimeout)
	}
	rootCtx, rootCancel := context.WithDeadline(context.Background(), deadline.Add(-time.Second))
	t.Cleanup(rootCancel)

	sem := processLimit()
	acquireCtx, acquireCancel := context.WithTimeout(rootCtx, semaphoreAcquireTimeout)
	err := sem.Acquire(acquireCtx, 1)
	acquireCancel()
	if err != nil {
		t.Fatalf("failed to acquire browser slot: %v", err)
	}
	t.Cleanup(func() { sem.Release(1) })

	opts := []chromedp.ExecAllocatorOption{
		chromedp.ExecPath(chromePath),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Headless,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserDataDir(t.TempDir()),
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(rootCtx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	t.Cleanup(func() {
		done := make(chan struct{})
		go func() {
			tabCancel()
			allocCancel()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			t.Logf("browser shutdown exceeded %v", shutdownTimeout)
		}
	})

	if err := chromedp.Run(tabCtx); err != nil {
		t.Fatalf("failed to start headless Chrome: %v", err)
	}
	return tabCtx
}
