package handler

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/angeloszaimis/localweb/internal/channel"
	"github.com/angeloszaimis/localweb/internal/metrics"
	"github.com/angeloszaimis/localweb/internal/rewriter"
)

// Opener opens a forwarding channel. *channel.Forwarder satisfies it.
type Opener interface {
	Open(ctx context.Context, req rewriter.Request, in *http.Request) (*channel.Channel, error)
}

type ForwardHandler struct {
	logger           *slog.Logger
	rewriter         *rewriter.Rewriter
	opener           Opener
	metricsCollector *metrics.Collector
}

func NewForwardHandler(logger *slog.Logger, rw *rewriter.Rewriter, opener Opener, collector *metrics.Collector) *ForwardHandler {
	return &ForwardHandler{
		logger:           logger,
		rewriter:         rw,
		opener:           opener,
		metricsCollector: collector,
	}
}

func (h *ForwardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	clientIP := extractClientIP(r)

	h.metricsCollector.Emit(metrics.MetricEvent{
		Type:      metrics.EventRequestReceived,
		Timestamp: start,
	})

	target, err := h.Target(r)
	if err != nil {
		h.fail(w, r, clientIP, err)
		return
	}

	req := h.rewriter.Rewrite(target)

	ch, err := h.opener.Open(r.Context(), req, r)
	if err != nil {
		h.fail(w, r, clientIP, err)
		return
	}

	h.logger.Info("Forwarding request",
		slog.String("channel", ch.ID.String()),
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("original", req.Original),
		slog.String("destination", req.Destination),
		slog.Int("status", ch.Response.StatusCode))

	written, err := ch.Relay(w)
	if err != nil {
		// Headers are already out; the caller sees a truncated body.
		h.logger.Warn("Relay interrupted",
			slog.String("channel", ch.ID.String()),
			slog.Int64("bytes", written),
			slog.Any("err", err))
	}

	h.metricsCollector.Emit(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Timestamp:  time.Now(),
		Duration:   time.Since(start),
		StatusCode: ch.Response.StatusCode,
		Bytes:      written,
	})
}

// Target returns the request target as it was addressed under the custom
// scheme. Absolute-form targets are returned verbatim, scheme included.
// Origin-form targets lose their leading slash and are resolved against a
// Referer that uses the custom scheme; "/" yields the empty target.
func (h *ForwardHandler) Target(r *http.Request) (string, error) {
	cfg := h.rewriter.Config()
	raw := r.RequestURI

	if raw == "" {
		return "", &channel.MalformedRequestError{Reason: "request target is absent"}
	}

	if r.Method == http.MethodConnect {
		return "", &channel.MalformedRequestError{Target: raw, Reason: "CONNECT is not supported"}
	}

	if r.URL != nil && r.URL.IsAbs() {
		if !cfg.Matches(r.URL) {
			return "", &channel.MalformedRequestError{
				Target: raw,
				Reason: "scheme " + r.URL.Scheme + " is not handled",
			}
		}
		return raw, nil
	}

	target := strings.TrimPrefix(raw, "/")

	if referer := r.Header.Get("Referer"); referer != "" && target != "" {
		if base, err := url.Parse(referer); err == nil && cfg.Matches(base) {
			resolved, err := rewriter.Resolve(raw, referer)
			if err != nil {
				return "", &channel.MalformedRequestError{Target: raw, Reason: err.Error()}
			}
			target = resolved
		}
	}

	return target, nil
}

func (h *ForwardHandler) fail(w http.ResponseWriter, r *http.Request, clientIP string, err error) {
	kind, status := classify(err)

	h.metricsCollector.Emit(metrics.MetricEvent{
		Type:      metrics.EventRequestFailed,
		Timestamp: time.Now(),
		Failure:   kind,
	})

	attrs := []any{
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("target", r.RequestURI),
		slog.String("failure", string(kind)),
		slog.Any("err", err),
	}

	if kind == metrics.FailureCanceled {
		h.logger.Debug("Request canceled by caller", attrs...)
		return
	}

	h.logger.Warn("Request failed", attrs...)
	http.Error(w, err.Error(), status)
}

func classify(err error) (metrics.FailureKind, int) {
	switch {
	case channel.IsMalformedRequest(err):
		return metrics.FailureMalformed, http.StatusBadRequest
	case channel.IsConnectionError(err):
		return metrics.FailureConnection, http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return metrics.FailureCanceled, 0
	default:
		return metrics.FailureUpstream, http.StatusBadGateway
	}
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}
