package cmd

import (
	"fmt"
	"os"
	"strings"

	"billevents/internal/application/common/logging"
	"billevents/internal/application/common/slogger"
	"billevents/internal/config"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "billevents",
	Short: "A legislative bill event extraction pipeline",
	Long: `BillEvents is a production-grade system for extracting structured policy
events from legislative bill text using asynchronous LLM inference batches.

The system supports:
- Batch submission of bill text to the Anthropic Message Batches API
- Tier-based model selection driven by bill body length
- Recurring poll triggers over NATS JetStream until a batch ends
- Result demultiplexing into per-bill policy events
- Embedding enrichment with Google Gemini and storage in PostgreSQL
- Retry coordination with a bounded ceiling and a dead letter stream`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, text)")

	// Bind flags to viper
	if err := viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-level flag: %v\n", err)
	}
	if err := viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-format flag: %v\n", err)
	}
}

func initConfig() {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Set config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Environment variables
	v.SetEnvPrefix("BILLEVENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read configuration
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
		// Config file not found; use defaults and environment
	} else {
		// Watch for on-disk edits; a restart is required to apply them.
		v.OnConfigChange(func(e fsnotify.Event) {
			slogger.InfoNoCtx("Config file changed, restart the service to apply it", slogger.Fields{
				"file": e.Name,
			})
		})
		v.WatchConfig()
	}

	// Load configuration
	cfg = config.New(v)

	configureLogging(cfg)
}

// configureLogging replaces the default global logger with one built from the
// loaded configuration so the log-level and log-format flags take effect.
func configureLogging(cfg *config.Config) {
	logger, err := logging.NewApplicationLogger(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		return
	}
	slogger.SetGlobalLogger(logger)
}

func setDefaults(v *viper.Viper) {
	// Worker defaults
	v.SetDefault("worker.concurrency", 5)
	v.SetDefault("worker.queue_group", "bill-workers")
	v.SetDefault("worker.job_timeout", "10m")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "billevents")
	v.SetDefault("database.schema", "billevents")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 25)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", 5)
	v.SetDefault("nats.reconnect_wait", "2s")

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// GetConfig returns the loaded configuration
func GetConfig() *config.Config {
	return cfg
}
