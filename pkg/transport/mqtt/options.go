package mqtt

import (
	"cmp"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/edgeflare/pumpdemo/pkg/util/rand"
)

// TLSOptions holds TLS configuration that can be loaded from config files
type TLSOptions struct {
	InsecureSkipVerify bool   `mapstructure:"insecureSkipVerify" json:"insecureSkipVerify"`
	ServerName         string `mapstructure:"serverName" json:"serverName,omitempty"`
	CAFile             string `mapstructure:"caFile" json:"caFile,omitempty"`
	CertFile           string `mapstructure:"certFile" json:"certFile,omitempty"`
	KeyFile            string `mapstructure:"keyFile" json:"keyFile,omitempty"`
	CACert             string `mapstructure:"caCert" json:"caCert,omitempty"`
	ClientCert         string `mapstructure:"clientCert" json:"clientCert,omitempty"`
	ClientKey          string `mapstructure:"clientKey" json:"clientKey,omitempty"`
}

// ClientOptions configures the broker connection. Servers accept tcp://, ssl://, ws:// and wss://
// URLs; Solace Cloud exposes MQTT over secured websockets as wss://host:port.
type ClientOptions struct {
	TLS                  *TLSOptions   `mapstructure:"tls" json:"tls,omitempty"`
	ClientID             string        `mapstructure:"clientID" json:"clientID"`
	Username             string        `mapstructure:"username" json:"username"`
	Password             string        `mapstructure:"password" json:"password"`
	Servers              []string      `mapstructure:"servers" json:"servers"`
	KeepAlive            time.Duration `mapstructure:"keepAlive" json:"keepAlive"`
	ConnectTimeout       time.Duration `mapstructure:"connectTimeout" json:"connectTimeout"`
	PingTimeout          time.Duration `mapstructure:"pingTimeout" json:"pingTimeout"`
	WriteTimeout         time.Duration `mapstructure:"writeTimeout" json:"writeTimeout"`
	MaxReconnectInterval time.Duration `mapstructure:"maxReconnectInterval" json:"maxReconnectInterval"`
	QoS                  byte          `mapstructure:"qos" json:"qos"`
	AutoReconnect        bool          `mapstructure:"autoReconnect" json:"autoReconnect"`
	CleanSession         bool          `mapstructure:"cleanSession" json:"cleanSession"`
	Order                bool          `mapstructure:"order" json:"order"`
}

// DefaultClientOptions returns options suitable for the demo: at-most-once delivery,
// automatic reconnect, clean sessions.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		KeepAlive:      30 * time.Second,
		ConnectTimeout: 10 * time.Second,
		QoS:            0,
		AutoReconnect:  true,
		CleanSession:   true,
	}
}

func createTLSConfig(tlsOpts *TLSOptions) (*tls.Config, error) {
	if tlsOpts == nil {
		return nil, nil
	}

	config := &tls.Config{
		InsecureSkipVerify: tlsOpts.InsecureSkipVerify,
		ServerName:         tlsOpts.ServerName,
	}

	if tlsOpts.CAFile != "" || tlsOpts.CACert != "" {
		caCertPool := x509.NewCertPool()

		caCert := []byte(tlsOpts.CACert)
		if tlsOpts.CAFile != "" {
			var err error
			if caCert, err = os.ReadFile(tlsOpts.CAFile); err != nil {
				return nil, fmt.Errorf("failed to read CA file: %w", err)
			}
		}

		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		config.RootCAs = caCertPool
	}

	var cert tls.Certificate
	var err error
	switch {
	case tlsOpts.CertFile != "" && tlsOpts.KeyFile != "":
		cert, err = tls.LoadX509KeyPair(tlsOpts.CertFile, tlsOpts.KeyFile)
	case tlsOpts.ClientCert != "" && tlsOpts.ClientKey != "":
		cert, err = tls.X509KeyPair([]byte(tlsOpts.ClientCert), []byte(tlsOpts.ClientKey))
	default:
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}
	config.Certificates = []tls.Certificate{cert}

	return config, nil
}

func convertToPahoOptions(opts *ClientOptions) (*mqtt.ClientOptions, error) {
	pahoOpts := mqtt.NewClientOptions()

	for _, server := range opts.Servers {
		u, err := url.Parse(server)
		if err != nil {
			return nil, fmt.Errorf("failed to parse server URL %s: %w", server, err)
		}
		pahoOpts.AddBroker(u.String())
	}

	if opts.ClientID != "" {
		pahoOpts.SetClientID(opts.ClientID)
	}
	if opts.Username != "" {
		pahoOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		pahoOpts.SetPassword(opts.Password)
	}
	if opts.TLS != nil {
		tlsConfig, err := createTLSConfig(opts.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		pahoOpts.SetTLSConfig(tlsConfig)
	}
	if opts.KeepAlive > 0 {
		pahoOpts.SetKeepAlive(opts.KeepAlive)
	}
	if opts.PingTimeout > 0 {
		pahoOpts.SetPingTimeout(opts.PingTimeout)
	}
	if opts.ConnectTimeout > 0 {
		pahoOpts.SetConnectTimeout(opts.ConnectTimeout)
	}
	if opts.MaxReconnectInterval > 0 {
		pahoOpts.SetMaxReconnectInterval(opts.MaxReconnectInterval)
	}
	if opts.WriteTimeout > 0 {
		pahoOpts.SetWriteTimeout(opts.WriteTimeout)
	}

	pahoOpts.SetCleanSession(opts.CleanSession)
	pahoOpts.SetOrderMatters(opts.Order)
	pahoOpts.SetAutoReconnect(opts.AutoReconnect)

	setDefaultOptions(pahoOpts)
	return pahoOpts, nil
}

// setDefaultOptions fills broker and credentials from the environment when unset.
func setDefaultOptions(opts *mqtt.ClientOptions) {
	if len(opts.Servers) == 0 {
		opts.AddBroker(cmp.Or(os.Getenv("PUMPDEMO_MQTT_BROKER"), "tcp://127.0.0.1:1883"))
	}
	if opts.Username == "" {
		opts.SetUsername(os.Getenv("PUMPDEMO_MQTT_USERNAME"))
	}
	if opts.Password == "" {
		opts.SetPassword(os.Getenv("PUMPDEMO_MQTT_PASSWORD"))
	}
	if opts.ClientID == "" {
		opts.SetClientID(fmt.Sprintf("pumpdemo-%s", rand.NewName()))
	}
}

func getBrokerStrings(opts *mqtt.ClientOptions) []string {
	brokers := make([]string, len(opts.Servers))
	for i, server := range opts.Servers {
		brokers[i] = server.String()
	}
	return brokers
}
