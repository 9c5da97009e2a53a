package metrics_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/localweb/internal/metrics"
)

var _ = Describe("Collector", func() {
	var (
		collector *metrics.Collector
		log       *slog.Logger
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelError, // Suppress logs in tests
		}))
		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(100, log)
	})

	AfterEach(func() {
		cancel()
	})

	Describe("Run and event processing", func() {
		It("should process EventRequestReceived", func() {
			go collector.Run(ctx)

			collector.Emit(metrics.MetricEvent{
				Type:      metrics.EventRequestReceived,
				Timestamp: time.Now(),
			})

			Eventually(func() int64 {
				return collector.Snapshot("").TotalRequests
			}).Should(Equal(int64(1)))
		})

		It("should process EventResponseCompleted", func() {
			go collector.Run(ctx)

			collector.Emit(metrics.MetricEvent{
				Type:       metrics.EventResponseCompleted,
				Timestamp:  time.Now(),
				Duration:   100 * time.Millisecond,
				StatusCode: 200,
				Bytes:      42,
			})

			Eventually(func() int64 {
				return collector.Snapshot("").Responses
			}).Should(Equal(int64(1)))

			snap := collector.Snapshot("")
			Expect(snap.AvgResponse).To(Equal(100 * time.Millisecond))
			Expect(snap.StatusCodes[200]).To(Equal(int64(1)))
			Expect(snap.BytesRelayed).To(Equal(int64(42)))
		})

		It("should process EventRequestFailed", func() {
			go collector.Run(ctx)

			collector.Emit(metrics.MetricEvent{
				Type:    metrics.EventRequestFailed,
				Failure: metrics.FailureUpstream,
			})

			Eventually(func() int64 {
				return collector.Snapshot("").Failures[metrics.FailureUpstream]
			}).Should(Equal(int64(1)))
		})

		It("should process EventHealthChanged", func() {
			go collector.Run(ctx)

			collector.Emit(metrics.MetricEvent{
				Type:    metrics.EventHealthChanged,
				Healthy: true,
			})

			Eventually(func() *bool {
				return collector.Snapshot("").Healthy
			}).ShouldNot(BeNil())
			Expect(*collector.Snapshot("").Healthy).To(BeTrue())
		})

		It("should drain events on context cancellation", func() {
			for i := 0; i < 5; i++ {
				collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})
			}

			cancel()
			done := make(chan struct{})
			go func() {
				collector.Run(ctx)
				close(done)
			}()

			Eventually(done).Should(BeClosed())
			Expect(collector.Snapshot("").TotalRequests).To(Equal(int64(5)))
		})
	})

	Describe("Emit", func() {
		It("should drop events instead of blocking when the buffer is full", func() {
			small := metrics.NewCollector(1, log)
			small.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})
			small.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})
		})

		It("should be a no-op on a nil collector", func() {
			var nilCollector *metrics.Collector
			Expect(func() {
				nilCollector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})
			}).NotTo(Panic())
		})
	})

	Describe("Handler", func() {
		It("should serve the snapshot as JSON", func() {
			go collector.Run(ctx)
			collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})
			Eventually(func() int64 {
				return collector.Snapshot("").TotalRequests
			}).Should(Equal(int64(1)))

			w := httptest.NewRecorder()
			collector.Handler("http://localhost:8081")(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("application/json"))

			var snap metrics.Snapshot
			Expect(json.Unmarshal(w.Body.Bytes(), &snap)).To(Succeed())
			Expect(snap.Destination).To(Equal("http://localhost:8081"))
			Expect(snap.TotalRequests).To(Equal(int64(1)))
		})
	})
})
