package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	agentURL   string
	redisURL   string
	dbPath     string
	agentToken string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "intake-console",
	Short: "Terminal-first live case-intake dashboard",
	Long: `Intake-Console is a terminal-first case-intake dashboard that imports
cases in bulk from bound spreadsheets, promotes queued cases onto the board
through a timed live feed, and keeps a deduplicated notification tray.

Features:
- Bulk case import through the agent backend
- Timed live-feed promotion of queued cases
- Deduplicated, acknowledgment-sticky notifications
- Declarative case filtering
- Redis Streams event publishing and a SQLite audit journal
- Drop-folder ingestion of local case batches`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.intake-console.yaml)")
	rootCmd.PersistentFlags().StringVar(&agentURL, "agent", "http://localhost:8000", "Agent backend base URL")
	rootCmd.PersistentFlags().StringVar(&agentToken, "agent-token", "", "Bearer token for the agent backend (optional)")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis", "redis://localhost:6379", "Redis connection URL")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "./data/intake-console.db", "SQLite audit journal path")

	// Bind flags to viper
	viper.BindPFlag("agent.url", rootCmd.PersistentFlags().Lookup("agent"))
	viper.BindPFlag("agent.token", rootCmd.PersistentFlags().Lookup("agent-token"))
	viper.BindPFlag("redis.url", rootCmd.PersistentFlags().Lookup("redis"))
	viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".intake-console" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".intake-console")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// Set defaults
	viper.SetDefault("agent.url", "http://localhost:8000")
	viper.SetDefault("agent.token", "")
	viper.SetDefault("redis.url", "redis://localhost:6379")
	viper.SetDefault("database.path", "./data/intake-console.db")
	viper.SetDefault("feed.interval_ms", 0)
	viper.SetDefault("http.bind", "127.0.0.1:8090")
	viper.SetDefault("http.token", "")
	viper.SetDefault("http.rps", 10)
	viper.SetDefault("http.burst", 20)
	viper.SetDefault("ingest.dir", "data/incoming")
}

// GetConfig returns the current configuration values
func GetConfig() Config {
	return Config{
		Agent: AgentConfig{
			URL:   viper.GetString("agent.url"),
			Token: viper.GetString("agent.token"),
		},
		Redis: RedisConfig{
			URL: viper.GetString("redis.url"),
		},
		Database: DatabaseConfig{
			Path: viper.GetString("database.path"),
		},
		Feed: FeedConfig{
			IntervalMs: viper.GetInt("feed.interval_ms"),
		},
		HTTP: HTTPConfig{
			Bind:  viper.GetString("http.bind"),
			Token: viper.GetString("http.token"),
			RPS:   viper.GetInt("http.rps"),
			Burst: viper.GetInt("http.burst"),
		},
		Ingest: IngestConfig{
			Dir: viper.GetString("ingest.dir"),
		},
	}
}

// Config represents the application configuration
type Config struct {
	Agent    AgentConfig    `mapstructure:"agent"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Feed     FeedConfig     `mapstructure:"feed"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
}

type AgentConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type FeedConfig struct {
	IntervalMs int `mapstructure:"interval_ms"`
}

type HTTPConfig struct {
	Bind  string `mapstructure:"bind"`
	Token string `mapstructure:"token"`
	RPS   int    `mapstructure:"rps"`
	Burst int    `mapstructure:"burst"`
}

type IngestConfig struct {
	Dir string `mapstructure:"dir"`
}
