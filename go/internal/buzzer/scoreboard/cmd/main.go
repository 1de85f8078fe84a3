package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mcdev12/buzzer/go/internal/buzzer/config"
	"github.com/mcdev12/buzzer/go/internal/buzzer/scoreboard"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type logBoard struct{}

func (logBoard) Show(s scoreboard.Standings) {
	log.Info().
		Str("event_id", s.EventID).
		Time("at", s.At).
		Int("entries", len(s.Entries)).
		Msg("ranking\n" + scoreboard.Render(s))
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	path := os.Getenv("BUZZER_CONFIG")
	if path == "" {
		path = "buzzer.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.NATS.URL == "" {
		log.Fatal().Msg("NATS_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumerConfig := scoreboard.DefaultConsumerConfig()
	consumerConfig.URL = cfg.NATS.URL
	consumerConfig.StreamName = cfg.NATS.StreamName

	consumer, err := scoreboard.NewConsumer(ctx, consumerConfig, logBoard{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scoreboard consumer")
	}
	defer consumer.Close()

	if err := consumer.Start(ctx); err != nil {
		log.Error().Err(err).Msg("scoreboard consumer failed")
	}
}
