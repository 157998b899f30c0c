package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/qw-energy/victron-poller/internal/catalog"
	"github.com/qw-energy/victron-poller/internal/config"
	"github.com/qw-energy/victron-poller/internal/logging"
	"github.com/qw-energy/victron-poller/internal/messaging"
	"github.com/qw-energy/victron-poller/internal/modbus"
	"github.com/qw-energy/victron-poller/internal/poller"
)

const startupRetryDelay = 30 * time.Second

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	path := getenv("CONFIG_PATH", "/etc/victron-poller/config.json")

	cfg, err := config.Load(path)
	if err != nil {
		logging.Fatal("config error", "error", err)
	}
	logging.Info("loaded config",
		"device", cfg.Device.Addr(),
		"pvUnit", cfg.Device.PVUnitID,
		"pollMs", cfg.PollIntervalMs,
	)

	cat, err := catalog.Build(uint8(cfg.Device.PVUnitID))
	if err != nil {
		logging.Fatal("catalog error", "error", err)
	}

	// Graceful shutdown context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := messaging.NewBroker(messaging.BrokerConfig{
		BrokerURL:      cfg.MQTT.BrokerURL,
		ClientName:     cfg.MQTT.ClientName,
		TopicPrefix:    cfg.MQTT.TopicPrefix,
		ConnectTimeout: 10 * time.Second,
		PublishTimeout: 5 * time.Second,
	})
	if err := broker.Connect(ctx); err != nil {
		logging.Fatal("mqtt connect", "error", err)
	}
	defer broker.Close(context.Background())

	var transport poller.Transport
	if strings.EqualFold(cfg.Device.Type, "rtu") {
		transport = modbus.NewRTUClient(&cfg.Device)
	} else {
		transport = modbus.NewTCPClient(&cfg.Device)
	}

	publisher := messaging.NewSnapshotPublisher(broker, cat, cfg.Heartbeat())
	runner := poller.NewRunner(poller.New(cat, transport), publisher, cfg.PollInterval())

	// First refresh before the loop: an unreachable device at startup is
	// retryable, not fatal.
	for {
		err := runner.RunOnce(ctx)
		if err == nil {
			break
		}
		if errors.Is(err, poller.ErrAllReadsFailed) {
			logging.Warn("device unreachable at startup, retrying", "in", startupRetryDelay.String())
		} else {
			logging.Warn("startup cycle failed, retrying", "error", err, "in", startupRetryDelay.String())
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(startupRetryDelay):
		}
	}

	go runner.Run(ctx)

	// Wait for SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	logging.Info("shutting down", "signal", s.String())

	cancel()
	time.Sleep(200 * time.Millisecond)
	logging.Info("bye")
}
