/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package reconcile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/fulmenhq/reconform/internal/assets"
	"github.com/fulmenhq/reconform/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// maxDownloadSize caps remote asset size; configs and logos are small.
const maxDownloadSize = 32 << 20

// Acquirer fetches remote source inputs (logos, Firebase configs) that feed
// reconcilers. Retries are bounded with a doubling delay and apply at the
// acquisition step only; the reconcile-validate loop stays single-retry.
type Acquirer struct {
	client    *http.Client
	retries   int
	baseDelay time.Duration
}

func newAcquirer(cfg RunConfig) *Acquirer {
	retries := cfg.DownloadRetries
	if retries <= 0 {
		retries = 3
	}
	delay := cfg.RetryBaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Acquirer{
		client:    &http.Client{Timeout: timeout},
		retries:   retries,
		baseDelay: delay,
	}
}

// Fetch downloads a single URL with bounded exponential backoff.
func (a *Acquirer) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	delay := a.baseDelay
	for attempt := 1; attempt <= a.retries; attempt++ {
		data, err := a.fetchOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err
		logger.Warn(fmt.Sprintf("download attempt %d/%d failed for %s", attempt, a.retries, url),
			logger.Err(err))
		if attempt == a.retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, &Failure{Kind: FailureAcquisition, Reason: ctx.Err().Error()}
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, &Failure{
		Kind:   FailureAcquisition,
		Reason: fmt.Sprintf("download failed after %d attempts: %v", a.retries, lastErr),
	}
}

func (a *Acquirer) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
	if err != nil {
		return nil, err
	}
	return data, nil
}

// acquisition is the outcome of prefetching one artifact's source input.
type acquisition struct {
	data     []byte
	fallback bool
	err      error
}

// prefetch downloads the source inputs for the given artifact -> URL jobs in
// parallel. Only the acquisition step parallelizes: each result lands in
// memory keyed by artifact and reconciliation consumes them sequentially.
// Failures fall back to the artifact's declared embedded asset when one
// exists; otherwise the failure is recorded for the runner to surface.
func (a *Acquirer) prefetch(ctx context.Context, jobs map[string]string, specs map[string]ArtifactSpec, parallel int) map[string]acquisition {
	out := make(map[string]acquisition, len(jobs))
	if len(jobs) == 0 {
		return out
	}
	if parallel <= 0 {
		parallel = 1
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for id, url := range jobs {
		id, url := id, url
		g.Go(func() error {
			data, err := a.Fetch(gctx, url)
			acq := acquisition{data: data, err: err}
			if err != nil {
				if name := specs[id].FallbackAsset; name != "" {
					if fb, ok := assets.GetTemplate(name); ok {
						acq = acquisition{data: fb, fallback: true, err: err}
						logger.Warn(fmt.Sprintf("using embedded fallback %s for %s", name, id),
							logger.Err(err))
					}
				}
			}
			mu.Lock()
			out[id] = acq
			mu.Unlock()
			// Acquisition failures are per-artifact outcomes, never a
			// reason to cancel sibling downloads.
			return nil
		})
	}
	_ = g.Wait()
	return out
}
