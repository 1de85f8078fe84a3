package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/buzzer/go/internal/buzzer/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Mirror receives a copy of every event delivered to all connections
type Mirror interface {
	Publish(eventType events.Type, eventData []byte)
}

type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	MaxAge        time.Duration // How long to keep messages
	Replicas      int
	BufferSize    int
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:           nats.DefaultURL,
		StreamName:    "BUZZER_EVENTS",
		SubjectPrefix: "buzzer.events",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		MaxAge:        24 * time.Hour,
		Replicas:      1,
		BufferSize:    256,
	}
}

// mirrorMessage is the envelope published for each mirrored event
type mirrorMessage struct {
	Subject string
	Data    []byte
}

// JetStreamMirror publishes broadcast events to a JetStream stream.
// Publishing happens off the delivery path; a full buffer drops events.
type JetStreamMirror struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
	queue  chan mirrorMessage
}

func NewJetStreamMirror(ctx context.Context, cfg JetStreamConfig) (*JetStreamMirror, error) {
	opts := []nats.Option{
		nats.Name("buzzer-gateway"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Buzzer broadcast events",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    cfg.Replicas,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	log.Info().
		Str("stream", cfg.StreamName).
		Str("subjects", cfg.SubjectPrefix+".>").
		Msg("JetStream mirror ready")

	return newJetStreamMirror(nc, js, cfg), nil
}

func newJetStreamMirror(nc *nats.Conn, js jetstream.JetStream, cfg JetStreamConfig) *JetStreamMirror {
	size := cfg.BufferSize
	if size <= 0 {
		size = 256
	}
	return &JetStreamMirror{
		nc:     nc,
		js:     js,
		config: cfg,
		queue:  make(chan mirrorMessage, size),
	}
}

// Publish queues an already encoded event. It never blocks.
func (m *JetStreamMirror) Publish(eventType events.Type, eventData []byte) {
	msg := mirrorMessage{Subject: m.subject(eventType), Data: eventData}
	select {
	case m.queue <- msg:
	default:
		log.Warn().Str("subject", msg.Subject).Msg("mirror buffer full, dropping event")
	}
}

// Run drains the queue until ctx is cancelled
func (m *JetStreamMirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.queue:
			m.publish(ctx, msg)
		}
	}
}

func (m *JetStreamMirror) publish(ctx context.Context, msg mirrorMessage) {
	natsMsg := &nats.Msg{
		Subject: msg.Subject,
		Data:    msg.Data,
		Header:  nats.Header{},
	}

	var meta struct {
		ID   string      `json:"id"`
		Type events.Type `json:"type"`
	}
	if err := json.Unmarshal(msg.Data, &meta); err == nil {
		natsMsg.Header.Set("Event-Type", string(meta.Type))
		natsMsg.Header.Set("Event-ID", meta.ID)
	}

	opts := []jetstream.PublishOpt{jetstream.WithExpectStream(m.config.StreamName)}
	if meta.ID != "" {
		opts = append(opts, jetstream.WithMsgID(meta.ID))
	}

	ack, err := m.js.PublishMsg(ctx, natsMsg, opts...)
	if err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("failed to mirror event")
		return
	}

	log.Debug().
		Str("subject", msg.Subject).
		Uint64("sequence", ack.Sequence).
		Str("stream", ack.Stream).
		Msg("event mirrored to JetStream")
}

func (m *JetStreamMirror) subject(eventType events.Type) string {
	return fmt.Sprintf("%s.%s", m.config.SubjectPrefix, eventType)
}

func (m *JetStreamMirror) Close() error {
	if m.nc != nil {
		if err := m.nc.Drain(); err != nil {
			m.nc.Close()
			return fmt.Errorf("drain NATS connection: %w", err)
		}
	}
	return nil
}
