package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	cli "github.com/urfave/cli/v3"

	"github.com/weaveflow/weft/pkg/cmd"
	"github.com/weaveflow/weft/pkg/engine"
	"github.com/weaveflow/weft/pkg/eventbus"
	"github.com/weaveflow/weft/pkg/log"
	"github.com/weaveflow/weft/pkg/otelhelper"
	"github.com/weaveflow/weft/pkg/persistence"
	"github.com/weaveflow/weft/pkg/persistence/file"
	"github.com/weaveflow/weft/pkg/project"
)

func main() {
	command := &cli.Command{
		Name:                  "weft-runner",
		EnableShellCompletion: true,
		Usage:                 "Execute a workflow project",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "project-dir",
				Aliases:  []string{"p"},
				Usage:    "Path to the project directory",
				Required: true,
				Sources:  cli.EnvVars("PROJECT_DIR"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, memory, none)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing item plugins",
				Value:   "",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.StringSliceFlag{
				Name:  "skip",
				Usage: "Nodes to skip; their resources are still collected and propagated",
			},
			&cli.StringSliceFlag{
				Name:  "setting",
				Usage: "key=value setting passed to every node's readiness check",
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Maximum number of nodes executing concurrently (0 = number of CPUs)",
				Value:   0,
				Sources: cli.EnvVars("WEFT_WORKERS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "data-path",
				Usage:   "Directory for run history; leave empty to keep no history",
				Value:   "",
				Sources: cli.EnvVars("DATA_PATH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("weft-runner")

	p, err := project.Load(command.String("project-dir"))
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}

	logger = logger.With("project", p.Name())
	logger.InfoContext(ctx, "Project loaded", "nodes", len(p.Nodes()))

	reg := cmd.NewRegistry(logger, command.String("plugins-path"))

	var publisher eventbus.EventPublisher

	if provider := command.String("event-bus"); provider != "none" {
		bus := cmd.NewEventBus(provider, logger)
		defer func() {
			if err := bus.Close(); err != nil {
				logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
			}
		}()

		publisher = bus
	}

	var tracer trace.Tracer

	if command.Bool("tracing") {
		tracer, err = otelhelper.NewTracer(ctx, "weft-runner")
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}
	}

	permits := make(map[string]bool)
	for _, name := range command.StringSlice("skip") {
		permits[name] = false
	}

	settings := make(map[string]string)
	for _, pair := range command.StringSlice("setting") {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return fmt.Errorf("malformed setting %q, expected key=value", pair)
		}

		settings[key] = value
	}

	e, err := cmd.BuildEngine(p, reg, engine.Config{
		ExecutionPermits: permits,
		Settings:         settings,
		Workers:          int(command.Int("workers")),
		Debug:            command.String("log-level") == "debug",
		Publisher:        publisher,
		Tracer:           tracer,
		Logger:           log.WithModule("engine"),
	})
	if err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	go func() {
		<-signals
		logger.InfoContext(ctx, "Interrupt received, stopping execution")
		e.Stop()
	}()

	startedAt := time.Now().UTC()

	state, err := e.Run(ctx)
	if err != nil {
		return err
	}

	if dataPath := command.String("data-path"); dataPath != "" {
		if err := saveRunRecord(ctx, dataPath, p.Name(), e, startedAt); err != nil {
			logger.ErrorContext(ctx, "Failed to save run record", "error", err)
		}
	}

	if state != engine.StateCompleted {
		return fmt.Errorf("execution finished with state %s", state)
	}

	return nil
}

func saveRunRecord(ctx context.Context, dataPath, projectName string, e *engine.Engine, startedAt time.Time) error {
	store, err := file.NewPersistence(dataPath)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	nodeStates := make(map[string]string)
	for name, state := range e.ItemStates() {
		nodeStates[name] = string(state)
	}

	return store.RunRepository().Save(ctx, &persistence.RunRecord{
		ID:         uuid.New().String(),
		Project:    projectName,
		State:      string(e.State()),
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
		NodeStates: nodeStates,
	})
}
