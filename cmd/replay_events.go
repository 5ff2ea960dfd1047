package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/psds-microservice/agri-support-service/internal/application"
	"github.com/psds-microservice/agri-support-service/internal/kafka"
	"github.com/psds-microservice/agri-support-service/internal/service"
	"github.com/spf13/cobra"
)

var replayEventsCmd = &cobra.Command{
	Use:   "replay-events",
	Short: "Publish a request.snapshot event for every request to KAFKA_TOPIC_REQUESTS",
	RunE:  runReplayEvents,
}

func runReplayEvents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	producer := kafka.NewProducer(kafka.ParseBrokers(cfg.Kafka.Brokers), cfg.Kafka.TopicRequests)
	if !producer.Enabled() {
		return errors.New("replay-events: KAFKA_BROKERS and KAFKA_TOPIC_REQUESTS are required")
	}
	defer producer.Close()

	st, err := application.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()
	requests := service.NewRequestService(st, nil, nil)
	sent, err := requests.Replay(ctx, producer, func(sent int, total int64) {
		log.Printf("replay-events: sent %d/%d", sent, total)
	})
	if err != nil {
		return fmt.Errorf("replay-events: %w", err)
	}
	log.Printf("replay-events: done, sent %d events", sent)
	return nil
}
