package commands

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"svgass/config"
	"svgass/logging"
	"svgass/optimizer"
	"svgass/pipeline"
	"svgass/services"
)

var (
	envFile   string
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "svgass",
	Short: "Convert SVG documents into ASS subtitle fragments",
	Long: `svgass optimizes vector documents and converts them into ASS drawing
lines, either for a single document pulled from the authoring host, over
HTTP, or as a queue worker.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnvFile(envFile); err != nil {
			return err
		}
		cfg = config.Load()
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if logFormat != "" {
			cfg.LogFormat = logFormat
		}
		logger = logging.New(logging.Config{
			Level:       cfg.LogLevel,
			Format:      cfg.LogFormat,
			Output:      os.Stderr,
			ServiceName: "svgass",
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "json or console (overrides LOG_FORMAT)")

	rootCmd.AddCommand(convertCmd, serveCmd, workerCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newPipeline() *pipeline.Pipeline {
	var engine optimizer.Engine
	if cfg.OptimizerURL != "" {
		engine = services.NewOptimizerService(cfg.OptimizerURL)
	} else {
		logger.Info().Msg("OPTIMIZER_URL not set, documents are converted unoptimized")
	}
	dispatcher := services.NewConverterService(cfg.ConverterCommand, cfg.ConverterArgs, logger)
	return pipeline.New(engine, dispatcher, logger)
}
