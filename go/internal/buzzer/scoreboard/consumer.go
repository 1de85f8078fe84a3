package scoreboard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mcdev12/buzzer/go/internal/buzzer/events"
	"github.com/mcdev12/buzzer/go/internal/buzzer/ranking"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// ConsumerConfig holds configuration for the scoreboard consumer
type ConsumerConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConsumerConfig returns default scoreboard consumer configuration
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		URL:           nats.DefaultURL,
		StreamName:    "BUZZER_EVENTS",
		SubjectPrefix: "buzzer.events",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Board receives each ranking as it is published
type Board interface {
	Show(standings Standings)
}

// Standings is one published ranking
type Standings struct {
	EventID string
	At      time.Time
	Entries []ranking.Entry
}

// Consumer follows the mirrored event stream.
// Ordered consumers are ephemeral and need no acks.
type Consumer struct {
	nc       *nats.Conn
	consumer jetstream.Consumer
	config   ConsumerConfig
	board    Board
}

// NewConsumer creates a consumer that starts at the latest ranking
func NewConsumer(ctx context.Context, config ConsumerConfig, board Board) (*Consumer, error) {
	opts := []nats.Option{
		nats.Name("buzzer-scoreboard"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	stream, err := js.Stream(ctx, config.StreamName)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("get stream: %w", err)
	}

	consumer, err := stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{
			fmt.Sprintf("%s.%s", config.SubjectPrefix, events.TypeBuzzList),
		},
		DeliverPolicy: jetstream.DeliverLastPerSubjectPolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	return &Consumer{nc: nc, consumer: consumer, config: config, board: board}, nil
}

// Start shows every ranking until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	log.Info().
		Str("stream", c.config.StreamName).
		Msg("starting scoreboard consumer")

	consumeCtx, err := c.consumer.Consume(func(msg jetstream.Msg) {
		standings, err := Decode(msg.Data())
		if err != nil {
			log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to decode ranking")
			return
		}
		c.board.Show(standings)
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	<-ctx.Done()
	log.Info().Msg("scoreboard consumer shutting down")
	return nil
}

func (c *Consumer) Close() error {
	if c.nc != nil {
		c.nc.Close()
	}
	return nil
}

// Decode parses a mirrored buzz_list frame
func Decode(data []byte) (Standings, error) {
	var frame struct {
		ID        string          `json:"id"`
		Type      events.Type     `json:"type"`
		Timestamp time.Time       `json:"timestamp"`
		Data      []ranking.Entry `json:"data"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return Standings{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if frame.Type != events.TypeBuzzList {
		return Standings{}, fmt.Errorf("unexpected event type %q", frame.Type)
	}

	return Standings{
		EventID: frame.ID,
		At:      frame.Timestamp,
		Entries: frame.Data,
	}, nil
}

// Render formats standings as numbered lines
func Render(s Standings) string {
	if len(s.Entries) == 0 {
		return "no presses"
	}

	var b strings.Builder
	for i, e := range s.Entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s (%s)", i+1, e.Name, e.Color)
	}
	return b.String()
}
