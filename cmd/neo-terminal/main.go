package main

import (
	"context"
	"fmt"
	"os"

	"neo-terminal/internal/cli"
	"neo-terminal/internal/config"
	"neo-terminal/internal/logging"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Console = cfg.Log.Console
	if cfg.Log.File != "" {
		logCfg.FilePath = cfg.Log.File
	}
	logger := logging.NewLoggerWithConfig(logCfg)

	ctx := context.Background()
	if err := cli.NewRootCmd(ctx, cfg, logger).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
