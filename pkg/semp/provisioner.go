package semp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/edgeflare/pumpdemo/pkg/httputil"
	"github.com/edgeflare/pumpdemo/pkg/metrics"
	"github.com/edgeflare/pumpdemo/pkg/util"
	"go.uber.org/zap"
)

var ErrNotConfigured = errors.New("semp provisioner not configured")

// ProvisionerConfig addresses a SEMP v2 config endpoint, e.g. https://broker:943.
type ProvisionerConfig struct {
	BaseURL    string        `mapstructure:"baseURL"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	VPN        string        `mapstructure:"vpn"`
	MaxRetries int           `mapstructure:"maxRetries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Provisioner creates one exclusive queue per station, subscribed to the station's
// channels, so its messages are spooled while the dashboard is away.
type Provisioner struct {
	cfg    ProvisionerConfig
	client *http.Client
	logger *zap.Logger
}

func NewProvisioner(cfg ProvisionerConfig, client *http.Client, logger *zap.Logger) (*Provisioner, error) {
	if cfg.BaseURL == "" || cfg.VPN == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("semp base url: %w", err)
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &Provisioner{cfg: cfg, client: client, logger: logger}, nil
}

func QueueName(sessionID, stationID string) string {
	return "pumpdemo-" + sessionID + "-" + stationID
}

// Subscription is the SEMP topic subscription covering every channel of a station.
// SEMP uses the SMF wildcard ">" where MQTT uses "#".
func Subscription(sessionID, stationID string) string {
	return sessionID + "/" + stationID + "/>"
}

type queue struct {
	QueueName      string `json:"queueName"`
	AccessType     string `json:"accessType"`
	IngressEnabled bool   `json:"ingressEnabled"`
	EgressEnabled  bool   `json:"egressEnabled"`
	Permission     string `json:"permission"`
}

type queueSubscription struct {
	SubscriptionTopic string `json:"subscriptionTopic"`
}

// Provision creates the station queue and its subscription. Existing objects count
// as success, so calling it again for the same station is harmless.
func (p *Provisioner) Provision(ctx context.Context, sessionID, stationID string) error {
	name := QueueName(sessionID, stationID)
	queues := p.cfg.BaseURL + "/SEMP/v2/config/msgVpns/" + url.PathEscape(p.cfg.VPN) + "/queues"

	err := p.post(ctx, queues, queue{
		QueueName:      name,
		AccessType:     "exclusive",
		IngressEnabled: true,
		EgressEnabled:  true,
		Permission:     "consume",
	})
	if err != nil {
		metrics.SEMPRequests.WithLabelValues("provisioner", "error").Inc()
		return fmt.Errorf("create queue %s: %w", name, err)
	}

	err = p.post(ctx, queues+"/"+url.PathEscape(name)+"/subscriptions", queueSubscription{
		SubscriptionTopic: Subscription(sessionID, stationID),
	})
	if err != nil {
		metrics.SEMPRequests.WithLabelValues("provisioner", "error").Inc()
		return fmt.Errorf("subscribe queue %s: %w", name, err)
	}

	metrics.SEMPRequests.WithLabelValues("provisioner", "ok").Inc()
	p.logger.Info("queue provisioned", zap.String("queue", name))
	return nil
}

func (p *Provisioner) post(ctx context.Context, target string, body any) error {
	cfg := httputil.DefaultRequestConfig(http.MethodPost, target)
	cfg.Client = p.client
	cfg.Timeout = p.cfg.Timeout
	cfg.MaxRetries = max(p.cfg.MaxRetries, 0)
	cfg.Logger = p.logger
	cfg.Headers = map[string][]string{"Accept": {"application/json"}}
	if p.cfg.Username != "" {
		cfg.Headers["Authorization"] = []string{basicAuth(p.cfg.Username, p.cfg.Password)}
	}

	resp, err := httputil.Request(ctx, cfg, body)
	if err != nil && resp != nil && alreadyExists(resp.Body) {
		p.logger.Debug("semp object exists", zap.String("target", target))
		return nil
	}
	return err
}

// alreadyExists recognises SEMP's ALREADY_EXISTS error status.
func alreadyExists(body []byte) bool {
	var reply map[string]any
	if err := json.Unmarshal(body, &reply); err != nil {
		return false
	}
	status, err := util.Jq(reply, "meta.error.status")
	return err == nil && status == "ALREADY_EXISTS"
}

func basicAuth(user, pass string) string {
	r := &http.Request{Header: http.Header{}}
	r.SetBasicAuth(user, pass)
	return r.Header.Get("Authorization")
}
