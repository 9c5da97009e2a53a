package channel

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/angeloszaimis/localweb/internal/rewriter"
)

const ewmaAlpha = 0.2

// OriginalURIHeader carries the pre-rewrite target back to the caller.
const OriginalURIHeader = "X-Original-URI"

var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Forwarder opens channels against the destination through a single transport.
type Forwarder struct {
	transport http.RoundTripper
	logger    *slog.Logger

	mutex          sync.Mutex
	activeChannels int
	ewmaHeaderTime time.Duration
	hasEWMA        bool
}

// Stats is a point-in-time view of the forwarder's accounting.
type Stats struct {
	ActiveChannels int           `json:"active_channels"`
	EWMAHeaderTime time.Duration `json:"ewma_header_time"`
}

// NewTransport returns a transport with the given dial and header timeouts.
// Zero values disable the respective timeout.
func NewTransport(dialTimeout, responseHeaderTimeout time.Duration) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: 30 * time.Second,
	}

	return &http.Transport{
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: responseHeaderTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ForceAttemptHTTP2:     true,
		DisableCompression:    true,
	}
}

func New(transport http.RoundTripper, logger *slog.Logger) *Forwarder {
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Forwarder{
		transport: transport,
		logger:    logger,
	}
}

// Open performs exactly one round trip to req.Destination on behalf of in.
// The outbound request is bound to ctx, so cancelling ctx closes the
// upstream connection. On success the caller owns the returned Channel and
// must Relay or Close it.
func (f *Forwarder) Open(ctx context.Context, req rewriter.Request, in *http.Request) (*Channel, error) {
	out, err := http.NewRequestWithContext(ctx, in.Method, req.Destination, in.Body)
	if err != nil {
		return nil, &MalformedRequestError{
			Target: req.Original,
			Reason: errors.Wrap(err, "build outbound request").Error(),
		}
	}

	if in.Body == nil || in.Body == http.NoBody {
		out.Body = nil
	}
	out.ContentLength = in.ContentLength
	out.Header = in.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	removeHopHeaders(out.Header)

	ch := &Channel{
		ID:          uuid.New(),
		OriginalURI: req.Original,
		URI:         out.URL,
		Opened:      time.Now(),
		forwarder:   f,
	}

	f.incrementActive()

	f.logger.Debug("Opening channel",
		slog.String("channel", ch.ID.String()),
		slog.String("method", out.Method),
		slog.String("original", ch.OriginalURI),
		slog.String("destination", ch.URI.String()))

	resp, err := f.transport.RoundTrip(out)
	if err != nil {
		f.decrementActive()
		return nil, classify(ctx, req.Destination, err)
	}

	f.recordHeaderTime(time.Since(ch.Opened))
	ch.Response = resp

	return ch, nil
}

// Stats returns the current channel accounting.
func (f *Forwarder) Stats() Stats {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return Stats{
		ActiveChannels: f.activeChannels,
		EWMAHeaderTime: f.ewmaHeaderTime,
	}
}

func (f *Forwarder) incrementActive() {
	f.mutex.Lock()
	f.activeChannels++
	f.mutex.Unlock()
}

func (f *Forwarder) decrementActive() {
	f.mutex.Lock()
	if f.activeChannels > 0 {
		f.activeChannels--
	}
	f.mutex.Unlock()
}

func (f *Forwarder) recordHeaderTime(duration time.Duration) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if !f.hasEWMA {
		f.ewmaHeaderTime = duration
		f.hasEWMA = true
		return
	}
	//ewma = (1 - α) * ewma + α * latest
	f.ewmaHeaderTime = time.Duration((1-ewmaAlpha)*float64(f.ewmaHeaderTime) + ewmaAlpha*float64(duration))
}

func removeHopHeaders(h http.Header) {
	for _, field := range h.Values("Connection") {
		for _, name := range strings.Split(field, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}

	for _, name := range hopHeaders {
		h.Del(name)
	}
}
