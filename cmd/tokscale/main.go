// Package main implements the tokscale CLI, which resolves per-token USD
// pricing for AI model identifiers and prices token usage against it.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/joho/godotenv"

	"github.com/tokscale/tokscale/internal/config"
	"github.com/tokscale/tokscale/internal/logger"
	"github.com/tokscale/tokscale/internal/paths"
	"github.com/tokscale/tokscale/internal/pricing"
)

// version is set at build time via ldflags (-X main.version=...).
var version = "dev"

// resolveVersion returns the build version string. If [version] was set
// via ldflags it is returned as-is; otherwise the VCS revision embedded
// by the Go toolchain is used to construct a "dev+<hash>" tag.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

const usageText = `tokscale resolves per-token USD pricing for AI model identifiers.

Usage:
  tokscale resolve [-source litellm|openrouter] <model-id>
  tokscale cost -model <model-id> [-input N] [-output N] [-reasoning N]
                [-cache-read N] [-cache-write N]
  tokscale version

Environment:
  TOKSCALE_CACHE_DIR   override the pricing cache directory
  TOKSCALE_RETRIES     fetch retry count (0 disables retrying)
  TOKSCALE_DEBUG       enable debug logging
  OPENROUTER_API_KEY   optional OpenRouter bearer token
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// Best-effort: a missing .env is the common case.
	_ = godotenv.Load()

	if len(args) == 0 {
		fmt.Fprint(stderr, usageText)
		return 2
	}

	switch args[0] {
	case "version", "-version", "--version":
		fmt.Fprintln(stdout, resolveVersion())
		return 0
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usageText)
		return 0
	}

	cfg, log, closer, err := setup()
	if err != nil {
		fmt.Fprintln(stderr, "tokscale:", err)
		return 1
	}
	if closer != nil {
		defer closer.Close()
	}

	svc := pricing.NewService(pricing.Options{
		CacheDir:          cfg.Cache.Dir,
		LiteLLMURL:        cfg.Pricing.LiteLLMURL,
		OpenRouterBaseURL: cfg.Pricing.OpenRouterBaseURL,
		APIKey:            cfg.Pricing.APIKey,
		FetchTimeout:      time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
		Retries:           cfg.FetchRetries(),
		Logger:            log,
	})

	ctx := context.Background()
	switch args[0] {
	case "resolve":
		err = runResolve(ctx, svc, args[1:], stdout)
	case "cost":
		err = runCost(ctx, svc, args[1:], stdout)
	default:
		fmt.Fprintf(stderr, "tokscale: unknown command %q\n\n", args[0])
		fmt.Fprint(stderr, usageText)
		return 2
	}
	if err != nil {
		fmt.Fprintln(stderr, "tokscale:", err)
		return 1
	}
	return 0
}

// setup loads the config and builds the logger (stderr by default, a
// rotating file when configured).
func setup() (*config.Config, *slog.Logger, io.Closer, error) {
	var cfg *config.Config
	var err error
	if configDir, dirErr := paths.ConfigDir(); dirErr == nil {
		cfg, err = config.Load(configDir)
	} else {
		// No config root can be resolved; a config.toml in the working
		// directory must not become the config by accident.
		cfg, err = config.LoadDefaults()
	}
	if err != nil {
		return nil, nil, nil, err
	}

	level := logger.ParseLevel(cfg.Log.Level)
	if cfg.Log.File != "" {
		log, closer := logger.NewFile(cfg.Log.File, level, cfg.Log.MaxSizeMB)
		return cfg, log, closer, nil
	}
	return cfg, logger.New(level), nil, nil
}

// ///////////////////////////////////////////////
// Commands
// ///////////////////////////////////////////////

// runResolve prints the pricing cascade result for one model identifier.
func runResolve(ctx context.Context, svc *pricing.Service, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	source := fs.String("source", "", "restrict the lookup to one source (litellm or openrouter)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("resolve: expected exactly one model identifier")
	}
	modelID := fs.Arg(0)

	var result *pricing.LookupResult
	var err error
	if *source != "" {
		result, err = svc.ResolveIn(ctx, pricing.Source(*source), modelID)
	} else {
		result, err = svc.Resolve(ctx, modelID)
	}
	if err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("no pricing found for %q", modelID)
	}

	fmt.Fprintf(out, "model:       %s\n", modelID)
	fmt.Fprintf(out, "matched:     %s (%s)\n", result.MatchedKey, result.Source)
	fmt.Fprintf(out, "input:       $%s/token\n", formatRate(result.Pricing.InputCostPerToken))
	fmt.Fprintf(out, "output:      $%s/token\n", formatRate(result.Pricing.OutputCostPerToken))
	if result.Pricing.CacheReadCostPerToken > 0 {
		fmt.Fprintf(out, "cache read:  $%s/token\n", formatRate(result.Pricing.CacheReadCostPerToken))
	}
	if result.Pricing.CacheCreationCostPerToken > 0 {
		fmt.Fprintf(out, "cache write: $%s/token\n", formatRate(result.Pricing.CacheCreationCostPerToken))
	}
	return nil
}

// runCost prices a token usage breakdown and prints the dollar total.
func runCost(ctx context.Context, svc *pricing.Service, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("cost", flag.ContinueOnError)
	model := fs.String("model", "", "model identifier to price against")
	input := fs.Int64("input", 0, "input token count")
	output := fs.Int64("output", 0, "output token count")
	reasoning := fs.Int64("reasoning", 0, "reasoning token count (billed at the output rate)")
	cacheRead := fs.Int64("cache-read", 0, "cache read token count")
	cacheWrite := fs.Int64("cache-write", 0, "cache write token count")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *model == "" {
		return fmt.Errorf("cost: -model is required")
	}

	usage := pricing.TokenUsage{
		Input:      *input,
		Output:     *output,
		Reasoning:  *reasoning,
		CacheRead:  *cacheRead,
		CacheWrite: *cacheWrite,
	}
	cost, found, err := svc.CostFor(ctx, *model, usage)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no pricing found for %q", *model)
	}
	fmt.Fprintf(out, "$%.6f\n", cost)
	return nil
}

// formatRate renders a per-token rate with its natural precision.
func formatRate(v float64) string {
	return fmt.Sprintf("%.10g", v)
}
