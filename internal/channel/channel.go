package channel

import (
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Channel is one in-flight exchange with the destination.
type Channel struct {
	ID          uuid.UUID
	OriginalURI string
	URI         *url.URL
	Response    *http.Response
	Opened      time.Time

	forwarder *Forwarder
	closeOnce sync.Once
}

// Relay writes the upstream status, headers, body and trailers to w in the
// order they were received, flushing after every chunk. The channel is closed
// on return. The returned count is the number of body bytes written.
func (c *Channel) Relay(w http.ResponseWriter) (int64, error) {
	defer c.Close()

	header := w.Header()
	for key, values := range c.Response.Header {
		for _, value := range values {
			header.Add(key, value)
		}
	}
	removeHopHeaders(header)
	header.Set(OriginalURIHeader, c.OriginalURI)

	// Trailer keys must be announced before the status line.
	for key := range c.Response.Trailer {
		header.Add("Trailer", key)
	}

	w.WriteHeader(c.Response.StatusCode)

	written, err := copyFlushing(w, c.Response.Body)
	if err != nil {
		return written, err
	}

	// Response.Trailer is only populated once the body hit EOF.
	for key, values := range c.Response.Trailer {
		for _, value := range values {
			header.Add(http.TrailerPrefix+key, value)
		}
	}

	return written, nil
}

// Close releases the upstream connection. It is safe to call more than once.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.Response != nil && c.Response.Body != nil {
			err = c.Response.Body.Close()
		}
		if c.forwarder != nil {
			c.forwarder.decrementActive()
		}
	})

	return err
}

func copyFlushing(w http.ResponseWriter, body io.Reader) (int64, error) {
	controller := http.NewResponseController(w)
	buf := make([]byte, 32*1024)

	var written int64
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			m, writeErr := w.Write(buf[:n])
			written += int64(m)
			if writeErr != nil {
				return written, errors.Wrap(writeErr, "write to caller")
			}
			if m != n {
				return written, io.ErrShortWrite
			}
			_ = controller.Flush()
		}

		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, errors.Wrap(readErr, "read from upstream")
		}
	}
}
