// Package service holds background maintenance that runs independently of
// request handling: target health polling and best-effort view counting.
package service

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/khamel/linkgate/internal/kv"
)

// DefaultPollInterval is how often route targets are probed.
const DefaultPollInterval = 5 * time.Minute

// DefaultProbeTimeout bounds a single probe; after it the probe is abandoned
// and the target recorded as down.
const DefaultProbeTimeout = 8 * time.Second

// StatusPoller probes every stored route target on a fixed interval and
// records "up"/"down" under "status:" keys. Failures are recorded as state,
// never propagated; request handling is never blocked.
type StatusPoller struct {
	store    kv.Store
	client   *http.Client
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	probes   *prometheus.CounterVec // optional
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// StatusConfig holds poller settings.
type StatusConfig struct {
	// Interval between sweeps. Default: 5 minutes.
	Interval time.Duration
	// ProbeTimeout per target. Default: 8 seconds.
	ProbeTimeout time.Duration
	// Probes counts probe results by "result" label. Optional.
	Probes *prometheus.CounterVec
}

// NewStatusPoller creates a StatusPoller over the shared store.
func NewStatusPoller(store kv.Store, logger *slog.Logger, cfg StatusConfig) *StatusPoller {
	interval := cfg.Interval
	if interval == 0 {
		interval = DefaultPollInterval
	}
	timeout := cfg.ProbeTimeout
	if timeout == 0 {
		timeout = DefaultProbeTimeout
	}
	return &StatusPoller{
		store:    store,
		client:   &http.Client{Timeout: timeout},
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		probes:   cfg.Probes,
		stopChan: make(chan struct{}),
	}
}

// Start launches the polling goroutine. Call Stop to shut it down.
func (p *StatusPoller) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopChan:
				return
			case <-ticker.C:
				p.Sweep(ctx)
			}
		}
	}()
}

// Stop stops the polling goroutine and waits for it to exit.
// Safe to call multiple times.
func (p *StatusPoller) Stop() {
	p.once.Do(func() {
		close(p.stopChan)
	})
	p.wg.Wait()
}

// Sweep probes every route target once and records the results.
// Exported so a sweep can be triggered outside the ticker (tests, CLI).
func (p *StatusPoller) Sweep(ctx context.Context) {
	entries, err := p.store.ListPrefix(ctx, "")
	if err != nil {
		p.logger.Warn("status sweep: failed to list routes", "error", err)
		return
	}

	for key, target := range entries {
		if kv.IsReservedKey(key) || !strings.Contains(key, ":") {
			continue
		}
		result := "down"
		if p.probe(ctx, target) {
			result = "up"
		}
		if p.probes != nil {
			p.probes.WithLabelValues(result).Inc()
		}
		if err := p.store.Put(ctx, kv.StatusPrefix+key, result); err != nil {
			// Log-and-drop: a failed status write never propagates.
			p.logger.Warn("status sweep: failed to record status", "key", key, "error", err)
		}
	}
}

// probe reports whether the target answered at all within the timeout.
// Any HTTP response counts as up; errors and timeouts count as down.
func (p *StatusPoller) probe(ctx context.Context, target string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, target, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
