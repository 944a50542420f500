package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spcwatch/spcwatch/internal/baseline"
	"github.com/spcwatch/spcwatch/internal/classify"
	"github.com/spcwatch/spcwatch/internal/config"
	"github.com/spcwatch/spcwatch/internal/ingest"
	"github.com/spcwatch/spcwatch/internal/limits"
	"github.com/spcwatch/spcwatch/pkg/types"
)

// scopeReport is the per-scope section of the JSON report.
type scopeReport struct {
	Scope    string                  `json:"scope"`
	Baseline types.Baseline          `json:"baseline"`
	Limits   types.ControlLimits     `json:"limits"`
	Summary  classify.Summary        `json:"summary"`
	Points   []types.ClassifiedPoint `json:"points"`
}

// report is the full JSON document written to stdout.
type report struct {
	GeneratedAt string        `json:"generated_at"`
	Scopes      []scopeReport `json:"scopes"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	inputPath := flag.String("input", "-", "exposition-format readings file, or - for stdin")
	watch := flag.Bool("watch", false, "keep running and re-evaluate when the config file changes")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("spcwatch starting", "config", *configPath, "input", *inputPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"sigma_multiplier", cfg.Engine.SigmaMultiplier,
		"warning_multiplier", cfg.Engine.EffectiveWarningMultiplier(),
		"metric", cfg.Ingest.Metric,
	)

	groups, err := readGroups(cfg, *inputPath)
	if err != nil {
		slog.Error("failed to read measurements", "err", err)
		os.Exit(1)
	}
	if len(groups) == 0 {
		slog.Warn("no measurements found for configured metric", "metric", cfg.Ingest.Metric)
	}

	if err := evaluate(cfg, groups, os.Stdout); err != nil {
		slog.Error("evaluation failed", "err", err)
		os.Exit(1)
	}

	if !*watch {
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err = config.Watch(ctx, *configPath, func(next *config.Config) {
		// Re-read the input too: the file may have grown between reloads.
		groups, err := readGroups(next, *inputPath)
		if err != nil {
			slog.Error("failed to re-read measurements", "err", err)
			return
		}
		if err := evaluate(next, groups, os.Stdout); err != nil {
			slog.Error("re-evaluation failed", "err", err)
		}
	})
	if err != nil {
		slog.Error("config watcher stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("spcwatch shutting down")
}

// readGroups parses the input file into per-scope measurement series.
func readGroups(cfg *config.Config, path string) (map[string][]types.Measurement, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	rd := &ingest.Reader{
		Metric:      cfg.Ingest.Metric,
		ScopeLabels: cfg.Ingest.ScopeLabels,
	}
	return rd.Grouped(r)
}

// evaluate seeds a baseline per scope from its series, derives limits,
// classifies the series against them and writes the JSON report to w.
func evaluate(cfg *config.Config, groups map[string][]types.Measurement, w io.Writer) error {
	mgr := baseline.NewManager(baseline.NewMemStore(), baseline.SliceSource(groups))

	scopes := make([]string, 0, len(groups))
	for scope := range groups {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)

	out := report{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Scopes:      make([]scopeReport, 0, len(scopes)),
	}

	for _, scope := range scopes {
		cand, err := mgr.RequestRecalculation(context.Background(), scope, types.Window{})
		if err != nil {
			slog.Warn("skipping scope", "scope", scope, "err", err)
			continue
		}
		b, err := mgr.Commit(scope, cand)
		if err != nil {
			return err
		}

		lim, err := limits.Derive(b, cfg.Engine.SigmaMultiplier, cfg.Engine.EffectiveWarningMultiplier())
		if err != nil {
			return err
		}

		points := classify.Classify(groups[scope], lim)
		sum := classify.Summarize(points)

		slog.Info("scope evaluated",
			"scope", scope,
			"mean", b.Mean,
			"sigma", b.Sigma,
			"sample_count", b.SampleCount,
			"out_of_control", sum.OutHigh+sum.OutLow,
			"warnings", sum.WarningHigh+sum.WarningLow,
		)

		out.Scopes = append(out.Scopes, scopeReport{
			Scope:    scope,
			Baseline: b,
			Limits:   lim,
			Summary:  sum,
			Points:   points,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
