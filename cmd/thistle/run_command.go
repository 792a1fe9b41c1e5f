package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/thistle/pkg/kafka"
	"github.com/Ramsey-B/thistle/pkg/processor"
	"github.com/Ramsey-B/thistle/pkg/tracing"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resolve ingest records from Kafka and scan cohorts for duplicates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, ctx, once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Process a single batch and print its stats")
	return cmd
}

func runBatch(cmd *cobra.Command, ctx *commandContext, once bool) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if !cfg.KafkaEnabled {
		return errors.New("run reads ingest records from Kafka; set KAFKA_ENABLED=true")
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	defer ctx.syncLogger()

	shutdownTracing, err := tracing.Setup(signalCtx, cfg.AppName, version, cfg.OTLPEndpoint, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		_ = shutdownTracing(stopCtx)
	}()

	a, err := newApp(cfg, logger, appOptions{publish: true})
	if err != nil {
		return err
	}
	if err := a.start(signalCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		a.stop(stopCtx)
	}()

	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:       cfg.KafkaBrokers,
		Topic:         cfg.KafkaInputTopic,
		ConsumerGroup: cfg.KafkaConsumerGroup,
	}, logger)
	defer consumer.Close()

	ingest := processor.NewProcessor(logger, consumer, a.resolver, a.teams, a.aliases, a.canon, a.emitter, a.clock, a.ingestOptions())
	runner := processor.NewRunner(logger, ingest, a.merges, a.runLocker(), a.clock, processor.RunnerConfig{
		ScanInterval: cfg.ScanInterval,
		LockTTL:      cfg.RunLockTTL,
		IdleWait:     5 * time.Second,
	})

	if once {
		stats, err := runner.RunOnce(signalCtx)
		if err != nil {
			return err
		}
		return writeJSON(cmd, stats)
	}
	return runner.Run(signalCtx)
}
