package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/prebid/prebid-server-admaru/errortypes"
	"github.com/spf13/viper"
)

// Configuration specifies the static application config.
type Configuration struct {
	ExternalURL string `mapstructure:"external_url"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	AdminPort   int    `mapstructure:"admin_port"`
	// StatusResponse is the body returned by /status. An empty value answers 204.
	StatusResponse string     `mapstructure:"status_response"`
	Client         HTTPClient `mapstructure:"http_client"`
	// PemCertsFile adds extra root certificates for calls to bidders.
	PemCertsFile string `mapstructure:"certificates_file"`
	// DefaultTimeout is used when the incoming request carries no tmax.
	DefaultTimeout uint64 `mapstructure:"default_timeout_ms"`
	// MaxTimeout caps the tmax of incoming requests. Zero means no cap.
	MaxTimeout uint64 `mapstructure:"max_timeout_ms"`
	// MaxRequestSize limits the size of incoming request bodies in bytes. Zero means no limit.
	MaxRequestSize int64              `mapstructure:"max_request_size"`
	Metrics        Metrics            `mapstructure:"metrics"`
	Debug          Debug              `mapstructure:"debug"`
	BidderInfoPath string             `mapstructure:"bidder_info_path"`
	Adapters       map[string]Adapter `mapstructure:"adapters"`
}

// Server holds the host-level values every bidder builder receives.
type Server struct {
	ExternalUrl string
	GvlID       int
	DataCenter  string
}

type HTTPClient struct {
	MaxConnsPerHost     int `mapstructure:"max_connections_per_host"`
	MaxIdleConns        int `mapstructure:"max_idle_connections"`
	MaxIdleConnsPerHost int `mapstructure:"max_idle_connections_per_host"`
	IdleConnTimeout     int `mapstructure:"idle_connection_timeout_seconds"`
}

type Metrics struct {
	Influxdb   InfluxMetrics     `mapstructure:"influxdb"`
	Prometheus PrometheusMetrics `mapstructure:"prometheus"`
}

type InfluxMetrics struct {
	Host     string `mapstructure:"host"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// MetricSendInterval is the number of seconds between pushes to InfluxDB.
	MetricSendInterval int `mapstructure:"metric_send_interval"`
}

type PrometheusMetrics struct {
	Port      int    `mapstructure:"port"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
	// TimeoutMillisRaw bounds the time spent gathering metrics for one scrape.
	TimeoutMillisRaw int `mapstructure:"timeout_ms"`
}

// LimitTimeout returns the timeout for a request which asked for the given tmax: the
// default when none was requested, capped by the configured maximum.
func (cfg *Configuration) LimitTimeout(requested time.Duration) time.Duration {
	if requested == 0 && cfg.DefaultTimeout != 0 {
		return time.Duration(cfg.DefaultTimeout) * time.Millisecond
	}
	if cfg.MaxTimeout > 0 {
		maxTimeout := time.Duration(cfg.MaxTimeout) * time.Millisecond
		if requested > maxTimeout {
			return maxTimeout
		}
	}
	return requested
}

func (cfg *PrometheusMetrics) Timeout() time.Duration {
	return time.Duration(cfg.TimeoutMillisRaw) * time.Millisecond
}

type Debug struct {
	TimeoutNotification TimeoutNotification `mapstructure:"timeout_notification"`
}

type TimeoutNotification struct {
	// Log timeout notifications in the application log
	Log bool `mapstructure:"log"`
	// Fraction of notifications to log
	SamplingRate float32 `mapstructure:"sampling_rate"`
	// Only log failures
	FailOnly bool `mapstructure:"fail_only"`
}

func (cfg *Configuration) validate() []error {
	var errs []error
	errs = validatePort(cfg.Port, "port", errs)
	errs = validatePort(cfg.AdminPort, "admin_port", errs)
	if cfg.Metrics.Prometheus.Port != 0 {
		errs = validatePort(cfg.Metrics.Prometheus.Port, "metrics.prometheus.port", errs)
		if cfg.Metrics.Prometheus.TimeoutMillisRaw <= 0 {
			errs = append(errs, fmt.Errorf("metrics.prometheus.timeout_ms must be positive. Got: %d", cfg.Metrics.Prometheus.TimeoutMillisRaw))
		}
	}
	if cfg.Metrics.Influxdb.Host != "" && cfg.Metrics.Influxdb.MetricSendInterval <= 0 {
		errs = append(errs, fmt.Errorf("metrics.influxdb.metric_send_interval must be positive. Got: %d", cfg.Metrics.Influxdb.MetricSendInterval))
	}
	if cfg.MaxTimeout != 0 && cfg.DefaultTimeout > cfg.MaxTimeout {
		errs = append(errs, fmt.Errorf("default_timeout_ms (%d) must not exceed max_timeout_ms (%d)", cfg.DefaultTimeout, cfg.MaxTimeout))
	}
	if cfg.MaxRequestSize < 0 {
		errs = append(errs, fmt.Errorf("max_request_size must not be negative. Got: %d", cfg.MaxRequestSize))
	}
	if cfg.Debug.TimeoutNotification.SamplingRate < 0.0 || cfg.Debug.TimeoutNotification.SamplingRate > 1.0 {
		errs = append(errs, fmt.Errorf("debug.timeout_notification.sampling_rate must be in the range [0, 1]. Got: %f", cfg.Debug.TimeoutNotification.SamplingRate))
	}
	return validateAdapters(cfg.Adapters, errs)
}

func validatePort(port int, key string, errs []error) []error {
	if port <= 0 || port > 65535 {
		return append(errs, fmt.Errorf("%s must be in the range [1, 65535]. Got: %d", key, port))
	}
	return errs
}

// New uses viper to get our server configurations.
func New(v *viper.Viper) (*Configuration, error) {
	var c Configuration
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("viper failed to unmarshal app config: %v", err)
	}

	// viper lower-cases keys, but be explicit since adapter names are matched against bidder names
	adapters := make(map[string]Adapter, len(c.Adapters))
	for name, adapter := range c.Adapters {
		adapters[strings.ToLower(name)] = adapter
	}
	c.Adapters = adapters

	glog.Info("Logging the resolved configuration:")
	logGeneral(v, "  \t")

	if errs := c.validate(); len(errs) > 0 {
		return &c, errortypes.NewAggregateErrors("validation errors", errs)
	}
	return &c, nil
}

func logGeneral(v *viper.Viper, prefix string) {
	for _, key := range []string{"host", "port", "admin_port", "default_timeout_ms", "max_timeout_ms", "bidder_info_path"} {
		glog.Infof("%s%s: %v", prefix, key, v.Get(key))
	}
}

// SetupViper sets the defaults and the config sources (file and PBS_ environment variables)
// the application reads its configuration from.
func SetupViper(v *viper.Viper, filename string) {
	if filename != "" {
		v.SetConfigName(filename)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/config")
	}

	v.SetDefault("external_url", "http://localhost:8000")
	v.SetDefault("host", "")
	v.SetDefault("port", 8000)
	v.SetDefault("admin_port", 6060)
	v.SetDefault("status_response", "")
	v.SetDefault("certificates_file", "")
	v.SetDefault("default_timeout_ms", 500)
	v.SetDefault("max_timeout_ms", 2000)
	v.SetDefault("max_request_size", 1024*256)
	v.SetDefault("bidder_info_path", "./static/bidder-info")
	v.SetDefault("http_client.max_connections_per_host", 0) // unlimited
	v.SetDefault("http_client.max_idle_connections", 400)
	v.SetDefault("http_client.max_idle_connections_per_host", 10)
	v.SetDefault("http_client.idle_connection_timeout_seconds", 60)
	v.SetDefault("metrics.influxdb.host", "")
	v.SetDefault("metrics.influxdb.database", "")
	v.SetDefault("metrics.influxdb.username", "")
	v.SetDefault("metrics.influxdb.password", "")
	v.SetDefault("metrics.influxdb.metric_send_interval", 20)
	v.SetDefault("metrics.prometheus.port", 0)
	v.SetDefault("metrics.prometheus.namespace", "")
	v.SetDefault("metrics.prometheus.subsystem", "")
	v.SetDefault("metrics.prometheus.timeout_ms", 10000)
	v.SetDefault("debug.timeout_notification.log", false)
	v.SetDefault("debug.timeout_notification.sampling_rate", 0.0)
	v.SetDefault("debug.timeout_notification.fail_only", false)

	v.SetDefault("adapters.admaru.endpoint", "https://p1.admaru.net/bid")
	v.SetDefault("adapters.admaru.disabled", false)
	v.SetDefault("adapters.admaru.endpointcompression", "")

	v.SetEnvPrefix("PBS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filename != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				glog.Warningf("Failed to read config file %s: %v", filename, err)
			}
		}
	}
}
