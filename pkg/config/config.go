// Package config loads pumpdemo settings from a yaml file and PUMPDEMO_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edgeflare/pumpdemo/pkg/api"
	"github.com/edgeflare/pumpdemo/pkg/journal"
	"github.com/edgeflare/pumpdemo/pkg/pump"
	"github.com/edgeflare/pumpdemo/pkg/semp"
	"github.com/edgeflare/pumpdemo/pkg/topic"
	"github.com/edgeflare/pumpdemo/pkg/transport/mqtt"
	"github.com/edgeflare/pumpdemo/pkg/transport/nats"
	"github.com/spf13/viper"
)

const EnvPrefix = "PUMPDEMO"

const (
	TransportMQTT   = "mqtt"
	TransportNATS   = "nats"
	TransportMemory = "memory"
)

var ErrUnknownTransport = errors.New("unknown broker transport")

// Config holds application-wide configuration
type Config struct {
	Broker    BrokerConfig    `mapstructure:"broker"`
	Topics    topic.Namespace `mapstructure:"topics"`
	Session   SessionConfig   `mapstructure:"session"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Station   pump.Config     `mapstructure:"station"`
	SEMP      SEMPConfig      `mapstructure:"semp"`
	Journal   journal.Config  `mapstructure:"journal"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type BrokerConfig struct {
	// Transport is one of mqtt, nats or memory.
	Transport string             `mapstructure:"transport"`
	MQTT      mqtt.ClientOptions `mapstructure:"mqtt"`
	NATS      nats.Config        `mapstructure:"nats"`
}

type SessionConfig struct {
	// MobileBaseURL is where the station page is served; the join QR code points there.
	MobileBaseURL string `mapstructure:"mobileBaseURL"`
}

type DashboardConfig struct {
	ListenAddr string     `mapstructure:"listenAddr"`
	TLS        TLSConfig  `mapstructure:"tls"`
	API        api.Config `mapstructure:"api"`
}

type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
}

type SEMPConfig struct {
	ListenAddr  string                 `mapstructure:"listenAddr"`
	Proxy       semp.ProxyConfig       `mapstructure:"proxy"`
	Provision   bool                   `mapstructure:"provision"`
	Provisioner semp.ProvisionerConfig `mapstructure:"provisioner"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Broker.Transport {
	case TransportMQTT, TransportNATS, TransportMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransport, c.Broker.Transport)
	}
	if c.Station.FlowRate <= 0 {
		return fmt.Errorf("station.flowRate must be positive, got %g", c.Station.FlowRate)
	}
	if c.Station.TickInterval <= 0 {
		return fmt.Errorf("station.tickInterval must be positive, got %s", c.Station.TickInterval)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("broker.transport", TransportMQTT)
	v.SetDefault("broker.mqtt.servers", []string{})
	v.SetDefault("broker.mqtt.username", "")
	v.SetDefault("broker.mqtt.password", "")
	v.SetDefault("broker.mqtt.keepAlive", 30*time.Second)
	v.SetDefault("broker.mqtt.connectTimeout", 10*time.Second)
	v.SetDefault("broker.mqtt.autoReconnect", true)
	v.SetDefault("broker.mqtt.cleanSession", true)
	v.SetDefault("broker.nats.servers", []string{})

	v.SetDefault("topics.login", topic.DefaultLoginChannel)
	v.SetDefault("topics.start", topic.DefaultStartChannel)

	v.SetDefault("session.mobileBaseURL", "http://localhost:8080")

	v.SetDefault("dashboard.listenAddr", ":8080")
	v.SetDefault("dashboard.tls.enabled", false)
	v.SetDefault("dashboard.api.ui", true)

	v.SetDefault("station.tickInterval", pump.DefaultTickInterval)
	v.SetDefault("station.flowRate", pump.DefaultFlowRate)

	v.SetDefault("semp.listenAddr", ":8090")
	v.SetDefault("semp.proxy.scheme", "https")
	v.SetDefault("semp.proxy.timeout", 10*time.Second)
	v.SetDefault("semp.provision", false)
	v.SetDefault("semp.provisioner.baseURL", "")
	v.SetDefault("semp.provisioner.username", "")
	v.SetDefault("semp.provisioner.password", "")
	v.SetDefault("semp.provisioner.vpn", "")

	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.sinks", []string{journal.SinkLog})
	v.SetDefault("journal.buffer", 256)
	v.SetDefault("journal.nats.servers", []string{})
	v.SetDefault("journal.postgres.connString", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9100")
}

// Load reads config from file or environment. Without cfgFile it looks for
// pumpdemo.yaml in $HOME/.config and the working directory; a missing file is not
// an error. Environment variables override file values, e.g.
// PUMPDEMO_BROKER_TRANSPORT=nats or PUMPDEMO_SESSION_MOBILEBASEURL.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("pumpdemo")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration Load yields with no file and no environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}
