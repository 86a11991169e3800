// ABOUTME: CLI entrypoint for the longform pipeline with run and serve modes.
// ABOUTME: Wires together config, the OpenAI generator, SQLite store, renderer, and signal handling.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/2389-research/longform/config"
	"github.com/2389-research/longform/llm"
	"github.com/2389-research/longform/pipeline"
	"github.com/2389-research/longform/render"
	"github.com/2389-research/longform/store"
	"github.com/2389-research/longform/web"
)

var version = "dev"

type cliConfig struct {
	configPath    string
	auto          bool
	maxIterations int
	outputDir     string
	dbPath        string
	addr          string
	model         string
	baseURL       string
	verbose       bool
	showVersion   bool

	mode  string // "run" or "serve"
	topic string
}

func main() {
	loadDotEnv(".env")

	cli, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if cli.showVersion {
		fmt.Printf("longform %s\n", version)
		os.Exit(0)
	}

	os.Exit(run(cli))
}

func parseFlags(args []string) (cliConfig, error) {
	var cli cliConfig

	fs := flag.NewFlagSet("longform", flag.ContinueOnError)
	fs.StringVar(&cli.configPath, "config", "", "Path to YAML config file")
	fs.BoolVar(&cli.auto, "auto", false, "Approve all checkpoints automatically (no prompts)")
	fs.IntVar(&cli.maxIterations, "max-iterations", 0, "Review/revise iterations before escalating (default from config)")
	fs.StringVar(&cli.outputDir, "output", "", "Directory for finished report documents")
	fs.StringVar(&cli.dbPath, "db", "", "Path to the run database")
	fs.StringVar(&cli.addr, "addr", "", "Listen address for serve mode")
	fs.StringVar(&cli.model, "model", "", "Model name")
	fs.StringVar(&cli.baseURL, "base-url", "", "Custom API base URL for the LLM provider")
	fs.BoolVar(&cli.verbose, "verbose", false, "Log every pipeline event")
	fs.BoolVar(&cli.showVersion, "version", false, "Print version and exit")
	fs.Usage = func() { printHelp(os.Stderr) }

	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	switch fs.NArg() {
	case 0:
		printHelp(os.Stderr)
		return cliConfig{}, errors.New("a command is required: run or serve")
	default:
		cli.mode = fs.Arg(0)
	}

	switch cli.mode {
	case "run":
		if fs.NArg() < 2 {
			return cliConfig{}, errors.New(`usage: longform run "topic"`)
		}
		cli.topic = fs.Arg(1)
	case "serve":
	default:
		return cliConfig{}, fmt.Errorf("unknown command %q (expected run or serve)", cli.mode)
	}
	return cli, nil
}

func printHelp(w *os.File) {
	fmt.Fprintf(w, `longform — research report pipeline

Usage:
  longform run "topic" [flags]   Generate a report for a topic
  longform serve [flags]         Start the HTTP API server

Flags:
  -config path        YAML config file
  -auto               approve all checkpoints without prompting
  -max-iterations n   review/revise iterations before escalating
  -output dir         directory for finished report documents
  -db path            run database path
  -addr host:port     listen address for serve mode
  -model name         model name
  -base-url url       custom API base URL
  -verbose            log every pipeline event
  -version            print version and exit
`)
}

// effectiveConfig merges file/env config with CLI flag overrides.
func effectiveConfig(cli cliConfig) (config.Config, error) {
	cfg, err := config.Load(cli.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if cli.maxIterations > 0 {
		cfg.MaxIterations = cli.maxIterations
	}
	if cli.outputDir != "" {
		cfg.OutputDir = cli.outputDir
	}
	if cli.dbPath != "" {
		cfg.DatabasePath = cli.dbPath
	}
	if cli.addr != "" {
		cfg.Addr = cli.addr
	}
	if cli.model != "" {
		cfg.Model = cli.model
	}
	if cli.baseURL != "" {
		cfg.BaseURL = cli.baseURL
	}
	if cli.auto {
		cfg.AutoApprove = true
	}
	return cfg, nil
}

func run(cli cliConfig) int {
	cfg, err := effectiveConfig(cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if err := cfg.RequireAPIKey(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open run database: %v\n", err)
		return 1
	}
	defer func() { _ = st.Close() }()

	switch cli.mode {
	case "serve":
		return runServer(ctx, cfg, st, cli.verbose)
	default:
		return runPipeline(ctx, cfg, st, cli)
	}
}

func runPipeline(ctx context.Context, cfg config.Config, st *store.RunStore, cli cliConfig) int {
	policy, err := cfg.RetryPolicy()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	var approver pipeline.Approver
	if cfg.AutoApprove {
		approver = pipeline.NewAutoApprover(true)
	} else {
		approver = pipeline.NewConsoleApprover()
	}

	eng, err := pipeline.New(pipeline.Config{
		Generator:     llm.NewOpenAIGenerator(cfg.APIKey, cfg.Model, cfg.BaseURL),
		Approver:      approver,
		Store:         st,
		Documents:     render.NewDocumentRenderer(cfg.OutputDir),
		MaxIterations: cfg.MaxIterations,
		Retry:         policy,
		EventHandler:  eventLogger(cli.verbose),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	result, err := eng.Execute(ctx, cli.topic)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if result != nil {
			fmt.Fprintf(os.Stderr, "run %s finished with status %s\n", result.RunID, result.Status)
		}
		return 1
	}

	switch result.Status {
	case pipeline.StatusCancelled:
		fmt.Printf("run %s cancelled: %s\n", result.RunID, result.Reason)
		return 0
	default:
		fmt.Printf("run %s completed\nreport: %s\n\n%s\n", result.RunID, result.FinalPath, result.Summary)
		return 0
	}
}

func runServer(ctx context.Context, cfg config.Config, st *store.RunStore, verbose bool) int {
	policy, err := cfg.RetryPolicy()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	docs := render.NewDocumentRenderer(cfg.OutputDir)
	logEvents := eventLogger(verbose)

	factory := func(onEvent func(pipeline.Event)) (*pipeline.Engine, error) {
		return pipeline.New(pipeline.Config{
			Generator:     llm.NewOpenAIGenerator(cfg.APIKey, cfg.Model, cfg.BaseURL),
			Approver:      pipeline.NewAutoApprover(true),
			Store:         st,
			Documents:     docs,
			MaxIterations: cfg.MaxIterations,
			Retry:         policy,
			EventHandler: func(evt pipeline.Event) {
				onEvent(evt)
				if logEvents != nil {
					logEvents(evt)
				}
			},
		})
	}

	srv, err := web.NewServer(web.ServerConfig{
		Addr:    cfg.Addr,
		Store:   st,
		Factory: factory,
		BaseCtx: ctx,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	log.Printf("longform serving on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// eventLogger returns an event handler logging pipeline progress.
// Non-verbose mode logs stage completions and warnings only.
func eventLogger(verbose bool) func(pipeline.Event) {
	return func(evt pipeline.Event) {
		switch evt.Type {
		case pipeline.EventStageCompleted:
			log.Printf("[%s] stage %s done", evt.RunID, evt.Stage)
		case pipeline.EventStageRetrying:
			log.Printf("[%s] stage %s retrying (attempt %v, %v)", evt.RunID, evt.Stage,
				evt.Data["attempt"], evt.Data["category"])
		case pipeline.EventPersistWarning:
			log.Printf("[%s] warning: persistence failed: %v", evt.RunID, evt.Data["error"])
		case pipeline.EventRunFailed:
			log.Printf("[%s] run failed at stage %s: %v", evt.RunID, evt.Stage, evt.Data["error"])
		default:
			if verbose {
				log.Printf("[%s] %s %s %v", evt.RunID, evt.Type, evt.Stage, evt.Data)
			}
		}
	}
}
