package journal

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

var errNATSNotConnected = errors.New("NATS journal not connected")

// NATSConfig configures the NATS sink. When Stream is set, entries are published
// through JetStream into that stream.
type NATSConfig struct {
	Servers       []string `mapstructure:"servers"`
	SubjectPrefix string   `mapstructure:"subjectPrefix"`
	Stream        string   `mapstructure:"stream"`
	Username      string   `mapstructure:"username"`
	Password      string   `mapstructure:"password"`
}

// NATSSink publishes entries on "{prefix}.{sessionId}.{kind}".
type NATSSink struct {
	cfg    NATSConfig
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *zap.Logger
}

func (s *NATSSink) Open(_ context.Context, cfg Config, logger *zap.Logger) error {
	s.cfg = cfg.NATS
	s.logger = logger
	if len(s.cfg.Servers) == 0 {
		s.cfg.Servers = []string{nats.DefaultURL}
	}
	s.cfg.SubjectPrefix = cmp.Or(s.cfg.SubjectPrefix, "pumpdemo.journal")

	opts := []nats.Option{
		nats.Name("pumpdemo-journal"),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(-1),
	}
	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts, nats.UserInfo(s.cfg.Username, s.cfg.Password))
	}

	var err error
	if s.nc, err = nats.Connect(strings.Join(s.cfg.Servers, ","), opts...); err != nil {
		return fmt.Errorf("connect to NATS server: %w", err)
	}

	if s.cfg.Stream == "" {
		return nil
	}
	if s.js, err = s.nc.JetStream(); err != nil {
		s.nc.Close()
		return fmt.Errorf("create JetStream context: %w", err)
	}
	if err := s.ensureStream(); err != nil {
		s.nc.Close()
		return fmt.Errorf("ensure stream: %w", err)
	}
	return nil
}

func (s *NATSSink) Write(ctx context.Context, e Entry) error {
	if s.nc == nil {
		return errNATSNotConnected
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	subject := s.subject(e)
	if s.js != nil {
		if _, err := s.js.Publish(subject, data, nats.Context(ctx)); err != nil {
			return fmt.Errorf("publish to stream: %w", err)
		}
		return nil
	}
	if err := s.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

func (s *NATSSink) Close() error {
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			s.nc.Close()
			return err
		}
	}
	return nil
}

func (s *NATSSink) subject(e Entry) string {
	return fmt.Sprintf("%s.%s.%s", s.cfg.SubjectPrefix, cmp.Or(e.SessionID, "none"), cmp.Or(e.Kind, "unknown"))
}

// ensureStream creates the stream, or widens its subjects when it already exists.
func (s *NATSSink) ensureStream() error {
	want := &nats.StreamConfig{
		Name:     s.cfg.Stream,
		Subjects: []string{s.cfg.SubjectPrefix + ".>"},
		Storage:  nats.FileStorage,
		Replicas: 1,
	}

	info, err := s.js.StreamInfo(s.cfg.Stream)
	if err == nil {
		for _, subj := range info.Config.Subjects {
			if subj == want.Subjects[0] {
				return nil
			}
		}
		cfg := info.Config
		cfg.Subjects = append(cfg.Subjects, want.Subjects[0])
		if _, err := s.js.UpdateStream(&cfg); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		s.logger.Info("updated stream", zap.String("stream", s.cfg.Stream))
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("get stream info: %w", err)
	}

	if _, err := s.js.AddStream(want); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	s.logger.Info("created stream", zap.String("stream", s.cfg.Stream))
	return nil
}

func init() {
	RegisterSink(SinkNATS, func() Sink { return &NATSSink{} })
}
