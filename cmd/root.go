// Package cmd assembles the skinscan command tree.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skinscan/skinscan/cmd/classify"
	"github.com/skinscan/skinscan/cmd/config"
	"github.com/skinscan/skinscan/cmd/labels"
	"github.com/skinscan/skinscan/cmd/serve"
	"github.com/skinscan/skinscan/internal/buildinfo"
	"github.com/skinscan/skinscan/internal/conf"
	"github.com/skinscan/skinscan/internal/logger"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "skinscan",
		Short:         "SkinScan skin lesion classifier",
		Version:       build.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		// Flag binding only fails on programmer error.
		panic(err)
	}

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if settings.Debug {
			return enableDebugLogging(settings)
		}
		return nil
	}

	rootCmd.AddCommand(
		serve.Command(settings, build),
		classify.Command(settings),
		labels.Command(),
		config.Command(settings),
	)

	return rootCmd
}

// enableDebugLogging rebuilds the global logger at debug level so --debug
// takes effect for the command about to run.
func enableDebugLogging(settings *conf.Settings) error {
	settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
	if settings.Logging.Console != nil {
		settings.Logging.Console.Level = string(logger.LogLevelDebug)
	}
	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("error initializing debug logger: %w", err)
	}
	logger.SetGlobal(cl)
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Model.Path, "model", viper.GetString("model.path"), "Path to the model file")
	rootCmd.PersistentFlags().StringVar(&settings.Model.Runtime, "runtime", viper.GetString("model.runtime"), "Model runtime: tflite or onnx")
	rootCmd.PersistentFlags().IntVar(&settings.Model.Threads, "threads", viper.GetInt("model.threads"), "Interpreter threads, 0 for automatic")

	bindings := map[string]string{
		"debug":         "debug",
		"model.path":    "model",
		"model.runtime": "runtime",
		"model.threads": "threads",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}
