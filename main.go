package main

import (
	"context"
	"fmt"
	"os"

	"github.com/skinscan/skinscan/cmd"
	"github.com/skinscan/skinscan/internal/buildinfo"
	"github.com/skinscan/skinscan/internal/conf"
	"github.com/skinscan/skinscan/internal/logger"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   = ""
	buildDate = ""
)

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return 1
	}

	centralLogger, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		return 1
	}
	logger.SetGlobal(centralLogger)
	defer func() { _ = centralLogger.Close() }()

	build := buildinfo.New(version, buildDate)
	rootCmd := cmd.RootCommand(settings, build)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logger.Global().Module("main").Error("Command failed", logger.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
