package healthcheck

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/angeloszaimis/localweb/internal/metrics"
)

// Prober checks the destination on a fixed interval. A probe succeeds when
// the destination answers with any status below 500.
type Prober struct {
	target    *url.URL
	interval  time.Duration
	client    *http.Client
	logger    *slog.Logger
	collector *metrics.Collector

	mutex     sync.RWMutex
	healthy   bool
	known     bool
	lastProbe time.Time
	lastError string
}

type Status struct {
	Target    string    `json:"target"`
	Healthy   bool      `json:"healthy"`
	Probed    bool      `json:"probed"`
	LastProbe time.Time `json:"last_probe,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// DefaultInterval replaces a non-positive probe interval.
const DefaultInterval = 10 * time.Second

// New returns a prober for target. The collector may be nil.
func New(target *url.URL, interval time.Duration, logger *slog.Logger, collector *metrics.Collector) *Prober {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Prober{
		target:   target,
		interval: interval,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger:    logger,
		collector: collector,
	}
}

// Run probes once immediately and then on every tick until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Health check stopped",
				slog.String("target", p.target.String()))
			return

		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// Check performs a single probe and records the result.
func (p *Prober) Check(ctx context.Context) bool {
	healthy, probeErr := p.probe(ctx)
	if ctx.Err() != nil {
		return p.Healthy()
	}

	p.mutex.Lock()
	changed := !p.known || p.healthy != healthy
	p.healthy = healthy
	p.known = true
	p.lastProbe = time.Now()
	p.lastError = ""
	if probeErr != nil {
		p.lastError = probeErr.Error()
	}
	p.mutex.Unlock()

	if changed {
		if healthy {
			p.logger.Info("Destination is up",
				slog.String("target", p.target.String()))
		} else {
			p.logger.Warn("Destination is down",
				slog.String("target", p.target.String()),
				slog.Any("err", probeErr))
		}

		p.collector.Emit(metrics.MetricEvent{
			Type:      metrics.EventHealthChanged,
			Timestamp: time.Now(),
			Healthy:   healthy,
		})
	}

	return healthy
}

func (p *Prober) probe(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.target.String(), nil)
	if err != nil {
		return false, err
	}

	res, err := p.client.Do(req)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	return res.StatusCode < http.StatusInternalServerError, nil
}

// Healthy reports the last probe result. Before the first probe it is false.
func (p *Prober) Healthy() bool {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.healthy
}

func (p *Prober) Status() Status {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return Status{
		Target:    p.target.String(),
		Healthy:   p.healthy,
		Probed:    p.known,
		LastProbe: p.lastProbe,
		LastError: p.lastError,
	}
}

// Handler serves the prober status as JSON, with 503 while unhealthy.
// A nil prober means probing is disabled and always reports healthy.
func (p *Prober) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := Status{Healthy: true}
		if p != nil {
			status = p.Status()
		}

		w.Header().Set("Content-Type", "application/json")
		if !status.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	}
}
