package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/processor"
)

type scanOptions struct {
	birthYear int
	gender    string
	region    string
	apply     bool
}

type scanOutput struct {
	Suggestions []models.MergeSuggestion `json:"suggestions"`
	Stats       processor.ScanStats      `json:"stats"`
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var opts scanOptions

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan cohorts for duplicate teams and print merge suggestions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, ctx, opts)
		},
	}
	cmd.Flags().IntVar(&opts.birthYear, "birth-year", 0, "Only scan teams with this birth year")
	cmd.Flags().StringVar(&opts.gender, "gender", "", "Only scan teams of this gender (boys, girls)")
	cmd.Flags().StringVar(&opts.region, "region", "", "Only scan teams in this region")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Apply auto_merge suggestions regardless of AUTO_MERGE_ENABLED")
	return cmd
}

func (o scanOptions) filter() (models.TeamFilter, error) {
	filter := models.TeamFilter{BirthYear: o.birthYear, Region: strings.ToLower(strings.TrimSpace(o.region))}
	switch g := models.Gender(strings.ToLower(strings.TrimSpace(o.gender))); g {
	case models.GenderUnknown, models.GenderBoys, models.GenderGirls:
		filter.Gender = g
	default:
		return filter, fmt.Errorf("invalid gender %q: want boys or girls", o.gender)
	}
	if filter.BirthYear < 0 {
		return filter, errors.New("birth-year must be positive")
	}
	return filter, nil
}

func runScan(cmd *cobra.Command, ctx *commandContext, opts scanOptions) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	filter, err := opts.filter()
	if err != nil {
		return err
	}

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	defer ctx.syncLogger()

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

	merges := a.merges
	if opts.apply && !cfg.AutoMergeEnabled {
		merges = processor.NewMergeProcessor(logger, a.engine, a.executor, a.emitter, a.clock, true)
	}

	// No ingest source: the scan only needs the processor's resolver refresh.
	ingest := processor.NewProcessor(logger, nil, a.resolver, a.teams, a.aliases, a.canon, a.emitter, a.clock, processor.Options{})
	runner := processor.NewRunner(logger, ingest, merges, a.runLocker(), a.clock, processor.RunnerConfig{LockTTL: cfg.RunLockTTL})

	suggestions, stats, err := runner.Scan(signalCtx, filter)
	if err != nil {
		return err
	}
	if suggestions == nil {
		suggestions = []models.MergeSuggestion{}
	}
	return writeJSON(cmd, scanOutput{Suggestions: suggestions, Stats: stats})
}
