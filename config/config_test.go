package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/localweb/config"
	"github.com/angeloszaimis/localweb/internal/rewriter"
)

var _ = Describe("Config", func() {
	var (
		tempDir    string
		previousWD string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())

		previousWD, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.Chdir(previousWD)).To(Succeed())
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("with valid config file", func() {
			BeforeEach(func() {
				configContent := `
server:
  address: ":8080"
  environment: "prod"

admin:
  address: "127.0.0.1:9191"

scheme:
  name: "localweb"

destination:
  host: "intranet.example.com:8443"
  scheme: "https"

rewrite:
  mode: "normalized"

upstream:
  dial_timeout: "2s"
  response_header_timeout: "20s"

health_check:
  enabled: false
  interval: "10s"

logging:
  level: "debug"
`
				configPath := filepath.Join(tempDir, "config.yaml")
				err := os.WriteFile(configPath, []byte(configContent), 0644)
				Expect(err).NotTo(HaveOccurred())

				err = os.Chdir(tempDir)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load configuration successfully", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg).NotTo(BeNil())
			})

			It("should build the scheme triple", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.SchemeTriple()).To(Equal(rewriter.SchemeConfig{
					Scheme:            "localweb",
					DestinationHost:   "intranet.example.com:8443",
					DestinationScheme: "https",
				}))
			})

			It("should parse rewrite mode and durations", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Rewrite.Mode).To(Equal("normalized"))

				d, err := cfg.Durations()
				Expect(err).NotTo(HaveOccurred())
				Expect(d.DialTimeout).To(Equal(2 * time.Second))
				Expect(d.ResponseHeaderTimeout).To(Equal(20 * time.Second))
				Expect(d.HealthCheckInterval).To(Equal(10 * time.Second))
			})

			It("should keep defaults for omitted keys", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Metrics.BufferSize).To(Equal(1000))
				Expect(cfg.Server.ReadTimeout).To(Equal("15s"))
			})
		})

		Context("with an explicit file", func() {
			It("should read the given path", func() {
				configPath := filepath.Join(tempDir, "proxy.yaml")
				Expect(os.WriteFile(configPath, []byte("scheme:\n  name: \"ipfs\"\n"), 0644)).To(Succeed())

				cfg, err := config.LoadFile(configPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Scheme.Name).To(Equal("ipfs"))
			})

			It("should fail when the file does not exist", func() {
				_, err := config.LoadFile(filepath.Join(tempDir, "missing.yaml"))
				Expect(err).To(HaveOccurred())
			})

			It("should reject non-positive intervals and negative timeouts", func() {
				path := filepath.Join(tempDir, "timeouts.yaml")
				content := `
upstream:
  dial_timeout: "-1s"

health_check:
  interval: "0s"
`
				Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())

				_, err := config.LoadFile(path)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("Interval"))
				Expect(err.Error()).To(ContainSubstring("DialTimeout"))
			})
		})

		Context("with environment variables", func() {
			BeforeEach(func() {
				Expect(os.Chdir(tempDir)).To(Succeed())
			})

			AfterEach(func() {
				os.Unsetenv("DESTINATION_HOST")
				os.Unsetenv("DESTINATION_SCHEME")
			})

			It("should use defaults when config file missing", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Scheme.Name).To(Equal("lw"))
				Expect(cfg.Destination.Host).To(Equal("localhost:8081"))
				Expect(cfg.Rewrite.Mode).To(Equal(string(rewriter.ModeLiteral)))
			})

			It("should override values from the environment", func() {
				os.Setenv("DESTINATION_HOST", "10.0.0.5:80")
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Destination.Host).To(Equal("10.0.0.5:80"))
			})

			It("should reject an unsupported destination scheme", func() {
				os.Setenv("DESTINATION_SCHEME", "ftp")
				_, err := config.Load()
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Validate", func() {
		var cfg *config.Config

		BeforeEach(func() {
			Expect(os.Chdir(tempDir)).To(Succeed())
			var err error
			cfg, err = config.Load()
			Expect(err).NotTo(HaveOccurred())
		})

		It("should accept the defaults", func() {
			Expect(cfg.Validate()).To(Succeed())
		})

		DescribeTable("rejects invalid settings",
			func(mutate func(*config.Config)) {
				mutate(cfg)
				Expect(cfg.Validate()).NotTo(Succeed())
			},
			Entry("scheme with a colon", func(c *config.Config) { c.Scheme.Name = "lw:" }),
			Entry("scheme starting with a digit", func(c *config.Config) { c.Scheme.Name = "9lw" }),
			Entry("empty scheme", func(c *config.Config) { c.Scheme.Name = "" }),
			Entry("destination with a path", func(c *config.Config) { c.Destination.Host = "example.com/base" }),
			Entry("destination with a scheme", func(c *config.Config) { c.Destination.Host = "http://example.com" }),
			Entry("destination without host", func(c *config.Config) { c.Destination.Host = ":8080" }),
			Entry("destination with a bad port", func(c *config.Config) { c.Destination.Host = "example.com:99999" }),
			Entry("unknown rewrite mode", func(c *config.Config) { c.Rewrite.Mode = "smart" }),
			Entry("bad dial timeout", func(c *config.Config) { c.Upstream.DialTimeout = "soon" }),
			Entry("bad server address", func(c *config.Config) { c.Server.Address = "invalid:host:port" }),
			Entry("unknown environment", func(c *config.Config) { c.Server.Environment = "qa" }),
			Entry("unknown log level", func(c *config.Config) { c.Logging.Level = "trace" }),
			Entry("zero metrics buffer", func(c *config.Config) { c.Metrics.BufferSize = 0 }),
			Entry("relative health path", func(c *config.Config) { c.HealthCheck.Path = "health" }),
			Entry("zero health check interval", func(c *config.Config) { c.HealthCheck.Interval = "0s" }),
			Entry("negative health check interval", func(c *config.Config) { c.HealthCheck.Interval = "-1s" }),
			Entry("negative dial timeout", func(c *config.Config) { c.Upstream.DialTimeout = "-1s" }),
			Entry("negative response header timeout", func(c *config.Config) { c.Upstream.ResponseHeaderTimeout = "-5s" }),
			Entry("negative read timeout", func(c *config.Config) { c.Server.ReadTimeout = "-1s" }),
		)

		It("should allow zero upstream timeouts", func() {
			cfg.Upstream.DialTimeout = "0s"
			cfg.Upstream.ResponseHeaderTimeout = "0s"
			Expect(cfg.Validate()).To(Succeed())
		})

		It("should allow disabling the admin listener", func() {
			cfg.Admin.Address = ""
			Expect(cfg.Validate()).To(Succeed())
		})
	})
})
