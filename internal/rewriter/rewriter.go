package rewriter

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

type Mode string

const (
	ModeLiteral    Mode = "literal"
	ModeNormalized Mode = "normalized"
)

// SchemeConfig is fixed at startup and shared read-only by every request.
type SchemeConfig struct {
	Scheme            string
	DestinationHost   string
	DestinationScheme string
}

// Request pairs what was asked for with what will be fetched.
type Request struct {
	Original    string
	Destination string
}

type Rewriter struct {
	config SchemeConfig
	mode   Mode
}

// Rewrite appends target to the destination base without normalization,
// decoding or validation. An empty target yields the base with a trailing slash.
func (c SchemeConfig) Rewrite(target string) string {
	return c.base() + target
}

// Matches reports whether an absolute-form target uses the custom scheme.
func (c SchemeConfig) Matches(u *url.URL) bool {
	return u != nil && strings.EqualFold(u.Scheme, c.Scheme)
}

func (c SchemeConfig) base() string {
	return c.DestinationScheme + "://" + c.DestinationHost + "/"
}

func New(config SchemeConfig, mode Mode) *Rewriter {
	if mode == "" {
		mode = ModeLiteral
	}

	return &Rewriter{
		config: config,
		mode:   mode,
	}
}

func (r *Rewriter) Config() SchemeConfig {
	return r.config
}

func (r *Rewriter) Mode() Mode {
	return r.mode
}

func (r *Rewriter) Rewrite(target string) Request {
	destination := target
	if r.mode == ModeNormalized {
		destination = r.normalize(target)
	}

	return Request{
		Original:    target,
		Destination: r.config.Rewrite(destination),
	}
}

func (r *Rewriter) normalize(target string) string {
	prefix := r.config.Scheme + "://"
	if len(target) >= len(prefix) && strings.EqualFold(target[:len(prefix)], prefix) {
		target = target[len(prefix):]
	}

	return strings.TrimLeft(target, "/")
}

// Resolve resolves reference against base. An empty base returns the
// reference unchanged.
func Resolve(reference, base string) (string, error) {
	if base == "" {
		return reference, nil
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrapf(err, "parse base %q", base)
	}

	ref, err := url.Parse(reference)
	if err != nil {
		return "", errors.Wrapf(err, "parse reference %q", reference)
	}

	return baseURL.ResolveReference(ref).String(), nil
}
