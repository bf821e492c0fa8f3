package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/haivivi/retrieva/go/pkg/cli"
)

var (
	// Global flags
	cfgFile      string
	verbose      bool
	formatOutput string

	// Global configuration (loaded at init time)
	globalConfig *cli.Config
)

var rootCmd = &cobra.Command{
	Use:   "retrieva",
	Short: "Question answering over uploaded documents",
	Long: `retrieva - index documents into sessions and ask questions about them.

Each session holds the chunks of one document. Questions are answered from
the chunks nearest to the question, using Gemini or OpenAI when an API key
is available.

Configuration is read from ~/.retrieva/config.yaml and overridden by the
environment (a .env file in the working directory is loaded first):
  RETRIEVA_DATA_DIR, GEMINI_API_KEY, OPENAI_API_KEY, DASHSCOPE_API_KEY,
  AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, AWS_REGION

Examples:
  retrieva upload manual.pdf
  retrieva query "How long is the warranty?" --session <id>
  retrieva sessions list -o table
  retrieva serve --addr :8000`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.retrieva/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&formatOutput, "format", "o", "yaml", "output format: yaml, json, table")
}

// configLoadErr stores the error from config loading for deferred reporting.
var configLoadErr error

func initConfig() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	// A missing .env is normal.
	_ = godotenv.Load()

	cfg, err := cli.LoadConfigWithPath(cfgFile)
	if err != nil {
		configLoadErr = err
		globalConfig = nil
		return
	}
	cfg.ApplyEnv(os.Getenv)
	configLoadErr = nil
	globalConfig = cfg
}

// GetConfig returns the global configuration.
func GetConfig() (*cli.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		return nil, fmt.Errorf("configuration not initialized")
	}
	return globalConfig, nil
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

// output prints a command result in the --format selected.
func output(result any) error {
	format, err := cli.ParseOutputFormat(formatOutput)
	if err != nil {
		return err
	}
	return cli.Output(result, cli.OutputOptions{Format: format})
}
