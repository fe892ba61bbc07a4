// Command caskctl is an interactive shell over a caskdb engine. It
// initializes a structured logger, opens (or creates) the log file at
// the given path, and starts the command loop.
package main

import (
	"log"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/rendlabs/caskdb/internal/cli"
	"github.com/rendlabs/caskdb/internal/engine"
)

func main() {
	path := pflag.StringP("path", "p", "caskdb.log", "path to the log file")
	compactRatio := pflag.Float64P("compact-ratio", "r", 1.1, "garbage ratio at/above which to compact on open (>1 disables)")
	verbose := pflag.BoolP("verbose", "v", false, "enable debug logging")
	syncOnClose := pflag.Bool("sync-on-close", true, "flush the log to stable storage before closing")
	pflag.Parse()

	zapCfg := zap.NewProductionConfig()
	if *verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	zapLogger, err := zapCfg.Build()
	if err != nil {
		log.Fatalf("caskctl: failed to build logger: %v", err)
	}
	defer zapLogger.Sync()
	logger := zapLogger.Sugar()

	logger.Infow("caskctl: opening engine", "path", *path, "compact_ratio", *compactRatio)
	e, err := engine.OpenCompact(*path, *compactRatio,
		engine.WithLogger(logger),
		engine.WithSyncOnClose(*syncOnClose),
	)
	if err != nil {
		logger.Fatalw("caskctl: failed to open engine", "path", *path, "error", err)
	}
	defer func() {
		if err := e.Close(); err != nil {
			logger.Errorw("caskctl: error closing engine", "error", err)
		}
	}()

	logger.Infow("caskctl: ready")

	handler := cli.NewHandler(e, logger, os.Stdin, os.Stdout)
	if err := handler.Run(); err != nil {
		logger.Fatalw("caskctl: cli error", "error", err)
	}
}
