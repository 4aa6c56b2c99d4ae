// Worker runs the session reaper and, when Kafka and Loki are configured,
// drains auth events from Kafka into Loki.
// Set DATABASE_URL for the reaper; KAFKA_BROKERS, TELEMETRY_KAFKA_TOPIC,
// KAFKA_GROUP_ID, and LOKI_URL enable the telemetry drain.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"storyhub/backend/internal/config"
	"storyhub/backend/internal/db"
	sessionrepo "storyhub/backend/internal/session/repository"
	sessionsvc "storyhub/backend/internal/session/service"
	"storyhub/backend/internal/telemetry/loki"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("worker: shutting down...")
		cancel()
	}()

	var wg sync.WaitGroup

	if cfg.DatabaseURL != "" {
		sqlDB, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("database")
		}
		defer sqlDB.Close()
		sessions := sessionsvc.NewService(sessionrepo.NewPostgresRepository(sqlDB), sessionsvc.Config{})

		wg.Add(1)
		go func() {
			defer wg.Done()
			reapLoop(ctx, sessions, cfg.ReapInterval(), log)
		}()
	} else {
		log.Warn("worker: DATABASE_URL not set, session reaper disabled")
	}

	brokers := cfg.TelemetryKafkaBrokersList()
	if len(brokers) > 0 && cfg.LokiURL != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			drainLoop(ctx, brokers, cfg, log)
		}()
	} else {
		log.Info("worker: kafka or loki not configured, telemetry drain disabled")
	}

	wg.Wait()
	log.Info("worker: stopped")
}

// reapLoop deletes expired session rows on a fixed interval.
func reapLoop(ctx context.Context, sessions *sessionsvc.Service, interval time.Duration, log *logrus.Logger) {
	log.WithField("interval", interval.String()).Info("worker: session reaper started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reapCtx, cancel := context.WithTimeout(ctx, time.Minute)
			n, err := sessions.ReapExpired(reapCtx, time.Now().UTC())
			cancel()
			if err != nil {
				log.WithError(err).Error("worker: session reap failed")
				continue
			}
			if n > 0 {
				log.WithField("reaped", n).Info("worker: expired sessions removed")
			}
		}
	}
}

// drainLoop consumes auth events from Kafka and pushes them to Loki.
func drainLoop(ctx context.Context, brokers []string, cfg *config.Config, log *logrus.Logger) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.TelemetryKafkaTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	log.WithFields(logrus.Fields{
		"topic": cfg.TelemetryKafkaTopic,
		"group": cfg.KafkaGroupID,
		"loki":  cfg.LokiURL,
	}).Info("worker: telemetry drain started")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Error("worker: kafka read error")
			continue
		}

		pushCtx, pushCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := loki.PushEventJSON(pushCtx, cfg.LokiURL, msg.Value); err != nil {
			log.WithError(err).Error("worker: loki push failed")
		}
		pushCancel()
	}
}
