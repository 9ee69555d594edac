package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Jawbreaker1/evochain/internal/config"
	"github.com/Jawbreaker1/evochain/internal/exec"
	"github.com/Jawbreaker1/evochain/internal/logging"
	"github.com/Jawbreaker1/evochain/internal/orchestrator"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run reads config.csv from the working directory and drives the chain
// until every generation is archived.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintln(stderr, "usage: evochain")
		fmt.Fprintf(stderr, "reads %s from the working directory; takes no arguments\n", config.DefaultPath())
		return 2
	}

	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		fmt.Fprintf(stderr, "evochain: %v\n", err)
		return 1
	}
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "evochain: %v\n", err)
		return 1
	}
	logger := logging.New(stdout, level)

	names, err := orchestrator.LoadAnatomyNames(cfg.ConfigRoot)
	if err != nil {
		logger.Error("load anatomies", "error", err)
		return 1
	}
	conditions, err := orchestrator.BuildConditions(cfg.AnatomyIndices, names, cfg.Targets, cfg.TargetsPerCondition)
	if err != nil {
		logger.Error("build conditions", "error", err)
		return 1
	}
	launcher, err := exec.Resolve(cfg.JavaPath, cfg.AgentJar)
	if err != nil {
		logger.Error("resolve simulation", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	loop := orchestrator.NewLoop(cfg, conditions, launcher)
	if err := loop.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("interrupted; running simulations were left alone")
			return 1
		}
		logger.Error("run failed", "error", err)
		return 1
	}
	return 0
}
