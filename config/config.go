package config

import (
	"log/slog"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/localweb/internal/rewriter"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// RFC 3986 scheme syntax.
var schemePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*$`)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
	ReadTimeout string `mapstructure:"read_timeout"`
	IdleTimeout string `mapstructure:"idle_timeout"`
}

type AdminConfig struct {
	Address string `mapstructure:"address"`
}

type SchemeConfig struct {
	Name string `mapstructure:"name"`
}

type DestinationConfig struct {
	Host   string `mapstructure:"host"`
	Scheme string `mapstructure:"scheme"`
}

type RewriteConfig struct {
	Mode string `mapstructure:"mode"`
}

type UpstreamConfig struct {
	DialTimeout           string `mapstructure:"dial_timeout"`
	ResponseHeaderTimeout string `mapstructure:"response_header_timeout"`
}

type HealthCheckConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval"`
	Path     string `mapstructure:"path"`
}

type MetricsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Admin       AdminConfig       `mapstructure:"admin"`
	Scheme      SchemeConfig      `mapstructure:"scheme"`
	Destination DestinationConfig `mapstructure:"destination"`
	Rewrite     RewriteConfig     `mapstructure:"rewrite"`
	Upstream    UpstreamConfig    `mapstructure:"upstream"`
	HealthCheck HealthCheckConfig `mapstructure:"health_check"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// Load reads config.yaml from ./config or the working directory. Missing
// files fall back to defaults and environment variables.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads the given YAML file, or searches the default locations when
// path is empty.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			slog.Error("config file not readable", slog.String("file", path), slog.String("error", err.Error()))
			return nil, err
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("admin.address", ":9090")
	v.SetDefault("scheme.name", "lw")
	v.SetDefault("destination.host", "localhost:8081")
	v.SetDefault("destination.scheme", "http")
	v.SetDefault("rewrite.mode", string(rewriter.ModeLiteral))
	v.SetDefault("upstream.dial_timeout", "5s")
	v.SetDefault("upstream.response_header_timeout", "30s")
	v.SetDefault("health_check.enabled", true)
	v.SetDefault("health_check.interval", "10s")
	v.SetDefault("health_check.path", "/")
	v.SetDefault("metrics.buffer_size", 1000)
	v.SetDefault("logging.level", LogLevelInfo)
}

// SchemeTriple returns the immutable scheme configuration shared by all requests.
func (c *Config) SchemeTriple() rewriter.SchemeConfig {
	return rewriter.SchemeConfig{
		Scheme:            c.Scheme.Name,
		DestinationHost:   c.Destination.Host,
		DestinationScheme: c.Destination.Scheme,
	}
}

// Durations parses the duration strings; Validate has already checked them.
func (c *Config) Durations() (Durations, error) {
	var d Durations
	var err error

	fields := []struct {
		value string
		dst   *time.Duration
	}{
		{c.Server.ReadTimeout, &d.ReadTimeout},
		{c.Server.IdleTimeout, &d.IdleTimeout},
		{c.Upstream.DialTimeout, &d.DialTimeout},
		{c.Upstream.ResponseHeaderTimeout, &d.ResponseHeaderTimeout},
		{c.HealthCheck.Interval, &d.HealthCheckInterval},
	}

	for _, f := range fields {
		if *f.dst, err = time.ParseDuration(f.value); err != nil {
			return Durations{}, err
		}
	}

	return d, nil
}

type Durations struct {
	ReadTimeout           time.Duration
	IdleTimeout           time.Duration
	DialTimeout           time.Duration
	ResponseHeaderTimeout time.Duration
	HealthCheckInterval   time.Duration
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
					validation.Field(&sc.ReadTimeout, validation.Required, validation.By(validateNonNegativeDuration)),
					validation.Field(&sc.IdleTimeout, validation.Required, validation.By(validateNonNegativeDuration)),
				)
			}),
		),
		validation.Field(&c.Admin,
			validation.By(func(value interface{}) error {
				ac, ok := value.(AdminConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be an AdminConfig")
				}
				return validation.ValidateStruct(&ac,
					validation.Field(&ac.Address, validation.By(validateHostPort)),
				)
			}),
		),
		validation.Field(&c.Scheme,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(SchemeConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a SchemeConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Name,
						validation.Required,
						validation.Match(schemePattern).Error("must be a valid URI scheme name"),
					),
				)
			}),
		),
		validation.Field(&c.Destination,
			validation.Required,
			validation.By(func(value interface{}) error {
				dc, ok := value.(DestinationConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a DestinationConfig")
				}
				return validation.ValidateStruct(&dc,
					validation.Field(&dc.Host,
						validation.Required,
						validation.By(validateDestinationHost),
					),
					validation.Field(&dc.Scheme,
						validation.Required,
						validation.In("http", "https"),
					),
				)
			}),
		),
		validation.Field(&c.Rewrite,
			validation.By(func(value interface{}) error {
				rc, ok := value.(RewriteConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a RewriteConfig")
				}
				return validation.ValidateStruct(&rc,
					validation.Field(&rc.Mode,
						validation.Required,
						validation.In(string(rewriter.ModeLiteral), string(rewriter.ModeNormalized)),
					),
				)
			}),
		),
		validation.Field(&c.Upstream,
			validation.By(func(value interface{}) error {
				uc, ok := value.(UpstreamConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be an UpstreamConfig")
				}
				return validation.ValidateStruct(&uc,
					validation.Field(&uc.DialTimeout, validation.Required, validation.By(validateNonNegativeDuration)),
					validation.Field(&uc.ResponseHeaderTimeout, validation.Required, validation.By(validateNonNegativeDuration)),
				)
			}),
		),
		validation.Field(&c.HealthCheck,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval,
						validation.Required,
						validation.By(validatePositiveDuration),
					),
					validation.Field(&hc.Path,
						validation.When(hc.Enabled, validation.Required),
						validation.Match(regexp.MustCompile(`^/`)).Error("must start with /"),
					),
				)
			}),
		),
		validation.Field(&c.Metrics,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MetricsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MetricsConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.BufferSize, validation.Required, validation.Min(1)),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if addr == "" {
		return nil
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

// validateDestinationHost accepts host or host:port, without scheme or path.
func validateDestinationHost(value interface{}) error {
	hostport, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if strings.ContainsAny(hostport, "/?#@") {
		return validation.NewError("validation_invalid_destination", "must be a bare host or host:port")
	}

	host := hostport
	if h, port, err := net.SplitHostPort(hostport); err == nil {
		if err := is.Port.Validate(port); err != nil {
			return validation.NewError("validation_invalid_port", "invalid port")
		}
		host = h
	}

	if host == "" {
		return validation.NewError("validation_missing_host", "host cannot be empty")
	}

	if err := is.Host.Validate(host); err != nil {
		return validation.NewError("validation_invalid_host", "invalid host")
	}

	return nil
}

func parseDuration(value interface{}) (time.Duration, error) {
	durationStr, ok := value.(string)
	if !ok {
		return 0, validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return 0, validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	return d, nil
}

// Zero disables the timeout.
func validateNonNegativeDuration(value interface{}) error {
	d, err := parseDuration(value)
	if err != nil {
		return err
	}

	if d < 0 {
		return validation.NewError("validation_negative_duration", "must not be negative")
	}

	return nil
}

func validatePositiveDuration(value interface{}) error {
	d, err := parseDuration(value)
	if err != nil {
		return err
	}

	if d <= 0 {
		return validation.NewError("validation_non_positive_duration", "must be greater than zero")
	}

	return nil
}
