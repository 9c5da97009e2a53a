// Upstream is a small destination server for trying the proxy by hand.
// Every request is answered with a JSON echo of what arrived, so the
// rewritten path and query can be inspected.
//
// Usage:
//
//	go run ./scripts/upstream -port 8081
//	printf 'GET lw://docs/page?x=1 HTTP/1.1\r\nHost: docs\r\n\r\n' | nc localhost 8080
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"
)

type echo struct {
	ID     string      `json:"id"`
	Method string      `json:"method"`
	Path   string      `json:"path"`
	Query  string      `json:"query"`
	Header http.Header `json:"header"`
}

func main() {
	port := flag.Int("port", 8081, "port to listen on")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// No ServeMux: it would clean "/lw://..." paths into redirects.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := echo{
			ID:     uuid.NewString(),
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header,
		}

		log.Info("request",
			slog.String("id", resp.ID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("from", r.RemoteAddr))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Info("starting upstream", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Error("server failed", slog.Any("err", err))
		os.Exit(1)
	}
}
