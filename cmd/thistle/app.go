package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jonboulle/clockwork"

	"github.com/Ramsey-B/thistle/config"
	"github.com/Ramsey-B/thistle/internal/repositories/externalid"
	"github.com/Ramsey-B/thistle/internal/repositories/game"
	"github.com/Ramsey-B/thistle/internal/repositories/mergeedge"
	"github.com/Ramsey-B/thistle/internal/repositories/reviewqueue"
	"github.com/Ramsey-B/thistle/internal/repositories/team"
	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/events"
	"github.com/Ramsey-B/thistle/pkg/graph"
	"github.com/Ramsey-B/thistle/pkg/kafka"
	"github.com/Ramsey-B/thistle/pkg/mergeresolver"
	"github.com/Ramsey-B/thistle/pkg/mergesignal"
	"github.com/Ramsey-B/thistle/pkg/nameparser"
	"github.com/Ramsey-B/thistle/pkg/processor"
	"github.com/Ramsey-B/thistle/pkg/redis"
	"github.com/Ramsey-B/thistle/pkg/resolver"
	"github.com/Ramsey-B/thistle/pkg/startup"
	"github.com/Ramsey-B/thistle/pkg/vocab"
)

// app holds every connection and service a command may need. Connections are
// opened by start and closed by stop in reverse order.
type app struct {
	cfg    *config.Config
	logger ectologger.Logger
	clock  clockwork.Clock
	deps   *startup.Startup

	db       database.DB
	redis    *redis.Client
	graph    *graph.Client
	producer *kafka.Producer

	teams   *team.Repository
	aliases *externalid.Repository
	games   *game.Repository
	edges   *mergeedge.Repository
	reviews *reviewqueue.Repository

	canon    *mergeresolver.Resolver
	parser   *nameparser.Parser
	resolver *resolver.Resolver
	engine   *mergesignal.Engine
	emitter  *events.Emitter
	lineage  *graph.LineageService
	executor *processor.MergeExecutor
	merges   *processor.MergeProcessor
}

type appOptions struct {
	// publish enables the Kafka producer when KAFKA_ENABLED is also set.
	publish bool
}

func newApp(cfg *config.Config, logger ectologger.Logger, opts appOptions) (*app, error) {
	clock := clockwork.NewRealClock()

	v := vocab.Default()
	if cfg.VocabularyPath != "" {
		loaded, err := vocab.Load(cfg.VocabularyPath)
		if err != nil {
			return nil, fmt.Errorf("load vocabulary %s: %w", cfg.VocabularyPath, err)
		}
		v = loaded
	}

	parserOpts := nameparser.DefaultOptions(clock.Now())
	if cfg.SeasonYear != 0 {
		parserOpts.SeasonYear = cfg.SeasonYear
	}
	parserOpts.MinBirthYear = cfg.MinBirthYear
	parserOpts.MaxBirthYear = cfg.MaxBirthYear

	a := &app{
		cfg:    cfg,
		logger: logger,
		clock:  clock,
		deps:   startup.NewStartup(logger, clock, cfg.StartupMaxAttempts),
		parser: nameparser.New(v, parserOpts),
	}
	a.registerDependencies(opts)
	return a, nil
}

func (a *app) registerDependencies(opts appOptions) {
	cfg := a.cfg

	a.deps.AddDependency(startup.Func{
		Name: "postgres",
		StartFn: func(ctx context.Context) error {
			db, err := database.Open(ctx, cfg.Database(), a.logger)
			if err != nil {
				return err
			}
			a.db = db
			return nil
		},
		StopFn: func(ctx context.Context) error {
			if a.db == nil {
				return nil
			}
			return a.db.Close()
		},
	})

	if cfg.RedisEnabled {
		a.deps.AddDependency(startup.Func{
			Name: "redis",
			StartFn: func(ctx context.Context) error {
				client, err := redis.NewClient(ctx, cfg.RedisURL, a.logger)
				if err != nil {
					return err
				}
				a.redis = client
				return nil
			},
			StopFn: func(ctx context.Context) error {
				if a.redis == nil {
					return nil
				}
				return a.redis.Close()
			},
		})
	}

	if cfg.GraphEnabled {
		a.deps.AddDependency(startup.Func{
			Name: "neo4j",
			StartFn: func(ctx context.Context) error {
				client, err := graph.NewClient(cfg.Graph(), a.logger)
				if err != nil {
					return err
				}
				if err := client.VerifyConnectivity(ctx); err != nil {
					_ = client.Close(ctx)
					return fmt.Errorf("neo4j at %s: %w", cfg.Graph().URI(), err)
				}
				a.graph = client
				return nil
			},
			StopFn: func(ctx context.Context) error {
				if a.graph == nil {
					return nil
				}
				return a.graph.Close(ctx)
			},
		})
	}

	if cfg.KafkaEnabled && opts.publish {
		a.deps.AddDependency(startup.Func{
			Name: "kafka-producer",
			StartFn: func(ctx context.Context) error {
				a.producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaOutputTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, a.logger)
				return nil
			},
			StopFn: func(ctx context.Context) error {
				if a.producer == nil {
					return nil
				}
				return a.producer.Close()
			},
		})
	}

	// Services are wired once every connection is up; the merge map is the
	// first thing they read.
	needs := []string{"postgres"}
	if cfg.RedisEnabled {
		needs = append(needs, "redis")
	}
	if cfg.GraphEnabled {
		needs = append(needs, "neo4j")
	}
	if cfg.KafkaEnabled && opts.publish {
		needs = append(needs, "kafka-producer")
	}
	a.deps.AddDependency(startup.Func{
		Name:  "merge-map",
		Needs: needs,
		StartFn: func(ctx context.Context) error {
			a.wire()
			return a.canon.Refresh(ctx)
		},
	})
}

// wire builds the repositories and services over the open connections.
func (a *app) wire() {
	cfg := a.cfg

	a.teams = team.NewRepository(a.db, a.logger)
	a.aliases = externalid.NewRepository(a.db, a.logger)
	a.games = game.NewRepository(a.db, a.logger)
	a.edges = mergeedge.NewRepository(a.db, a.logger)
	a.reviews = reviewqueue.NewRepository(a.db, a.logger)

	a.canon = mergeresolver.New(a.logger, a.edges, a.clock)

	var publisher events.Publisher
	if a.producer != nil {
		publisher = a.producer
	}
	a.emitter = events.NewEmitter(publisher, a.logger, a.clock)

	a.resolver = resolver.NewResolver(a.logger, a.aliases, a.teams, a.reviews, a.canon, a.parser, a.clock, cfg.Resolver())
	a.engine = mergesignal.NewEngine(a.logger, a.teams, a.games, a.canon, a.parser, cfg.MergeSignal())

	var lineage processor.LineageRecorder
	if a.graph != nil {
		a.lineage = graph.NewLineageService(a.graph, a.logger)
		lineage = a.lineage
	}
	guard := processor.NewVetoGuard(a.teams, a.canon, a.parser)
	a.executor = processor.NewMergeExecutor(a.logger, a.edges, guard, lineage, a.canon, a.emitter, a.clock)
	a.merges = processor.NewMergeProcessor(a.logger, a.engine, a.executor, a.emitter, a.clock, cfg.AutoMergeEnabled)
}

func (a *app) start(ctx context.Context) error {
	if err := a.deps.Start(ctx); err != nil {
		// Release whatever did come up.
		_ = a.deps.Stop(context.WithoutCancel(ctx))
		return fmt.Errorf("start dependencies: %w", err)
	}
	return nil
}

func (a *app) stop(ctx context.Context) {
	if err := a.deps.Stop(ctx); err != nil {
		a.logger.WithContext(ctx).WithError(err).Warn("Failed to stop dependencies cleanly")
	}
}

// runLocker returns the Redis run lock, or nil when Redis is disabled.
func (a *app) runLocker() processor.RunLocker {
	if a.redis == nil {
		return nil
	}
	return redis.NewLocker(a.redis)
}

// ingestOptions attaches the Redis-backed cache, dedupe and dead letters when
// Redis is enabled.
func (a *app) ingestOptions() processor.Options {
	opts := processor.Options{BatchSize: a.cfg.BatchSize}
	if a.redis == nil {
		return opts
	}
	opts.Cache = redis.NewResolutionCache(a.redis, a.cfg.CacheTTL)
	if a.cfg.DedupeEnabled {
		opts.Deduper = redis.NewDeduper(a.redis, a.cfg.CacheTTL)
	}
	opts.DeadLetters = redis.NewDeadLetterQueue(a.redis, "", a.logger)
	return opts
}
