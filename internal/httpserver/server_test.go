package httpserver_test

import (
	"context"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/localweb/internal/httpserver"
)

var _ = Describe("HTTP Server", func() {
	noop := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	Context("server creation", func() {
		DescribeTable("accepts valid addresses",
			func(addr string) {
				srv, err := httpserver.New(addr, noop, httpserver.DefaultTimeouts)
				Expect(err).NotTo(HaveOccurred())
				Expect(srv).NotTo(BeNil())
				Expect(srv.Addr()).To(Equal(addr))
			},
			Entry("hostname", "localhost:9999"),
			Entry("IP address", "127.0.0.1:9999"),
			Entry("port only", ":9999"),
		)

		DescribeTable("rejects invalid addresses",
			func(addr string) {
				srv, err := httpserver.New(addr, noop, httpserver.DefaultTimeouts)
				Expect(err).To(HaveOccurred())
				Expect(srv).To(BeNil())
			},
			Entry("too many colons", "invalid:host:port"),
			Entry("missing port", "localhost"),
			Entry("empty port", "localhost:"),
		)
	})

	Context("server lifecycle", func() {
		var testServer *httpserver.Server

		AfterEach(func() {
			if testServer != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
				defer cancel()
				_ = testServer.Shutdown(ctx)
				testServer = nil
			}
		})

		It("starts and handles requests", func() {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("test"))
			})
			var err error
			testServer, err = httpserver.New("127.0.0.1:19999", handler, httpserver.DefaultTimeouts)
			Expect(err).NotTo(HaveOccurred())

			go func() {
				testServer.Start()
			}()

			var resp *http.Response
			Eventually(func() error {
				resp, err = http.Get("http://127.0.0.1:19999")
				return err
			}, 2*time.Second, 20*time.Millisecond).Should(Succeed())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(Equal("test"))
		})

		It("shuts down gracefully and Start returns nil", func() {
			var err error
			testServer, err = httpserver.New("127.0.0.1:19998", noop, httpserver.Timeouts{})
			Expect(err).NotTo(HaveOccurred())

			startErr := make(chan error, 1)
			go func() {
				startErr <- testServer.Start()
			}()
			time.Sleep(100 * time.Millisecond)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			Expect(testServer.Shutdown(ctx)).To(Succeed())
			Eventually(startErr).Should(Receive(BeNil()))
		})

		It("reports a listen failure", func() {
			first, err := httpserver.New("127.0.0.1:19997", noop, httpserver.DefaultTimeouts)
			Expect(err).NotTo(HaveOccurred())
			go first.Start()
			defer first.Shutdown(context.Background())
			time.Sleep(100 * time.Millisecond)

			second, err := httpserver.New("127.0.0.1:19997", noop, httpserver.DefaultTimeouts)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Start()).To(HaveOccurred())
		})
	})
})
