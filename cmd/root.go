package cmd

import (
	"errors"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/socius/internal/delivery/google"
	"github.com/spigell/socius/internal/matching"
)

const (
	app = "socius"
)

type Config struct {
	UserID              string  `mapstructure:"user-id"`
	HighMatchThreshold  float64 `mapstructure:"high-match-threshold"`
	AutoScheduleEnabled bool    `mapstructure:"auto-schedule-enabled"`
	HistoryLimit        int     `mapstructure:"history-limit"`

	Store     *StoreConfig     `mapstructure:"store"`
	IMessage  *IMessageConfig  `mapstructure:"imessage"`
	Google    *google.Config   `mapstructure:"google"`
	AI        *AIConfig        `mapstructure:"ai"`
	Server    *ServerConfig    `mapstructure:"server"`
	Sessions  *SessionsConfig  `mapstructure:"sessions"`
	Datastore *DatastoreConfig `mapstructure:"datastore"`
	Scan      *ScanConfig      `mapstructure:"scan"`
}

type StoreConfig struct {
	URL       string        `mapstructure:"url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	TokenFile string        `mapstructure:"token-file"`
}

type IMessageConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type ServerConfig struct {
	Listen    string `mapstructure:"listen"`
	TokenFile string `mapstructure:"token-file"`
}

type SessionsConfig struct {
	Size int           `mapstructure:"size"`
	TTL  time.Duration `mapstructure:"ttl"`
}

type DatastoreConfig struct {
	Listen     string `mapstructure:"listen"`
	DataDir    string `mapstructure:"data-dir"`
	RedisURL   string `mapstructure:"redis-url"`
	HistoryMax int    `mapstructure:"history-max"`
}

type ScanConfig struct {
	ExcludeFile string `mapstructure:"exclude-file"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "socius is a personal networking assistant that meets people on your behalf",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	envs := map[string]string{
		"ai.gemini.api-key-file": "GEMINI_API_KEY_FILE",
		"store.token-file":       "SOCIUS_STORE_TOKEN_FILE",
		"server.token-file":      "SOCIUS_API_TOKEN_FILE",
		"store.url":              "SOCIUS_STORE_URL",
		"user-id":                "SOCIUS_USER_ID",
	}
	for key, env := range envs {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	viper.SetDefault("high-match-threshold", matching.DefaultHighMatchThreshold)
	viper.SetDefault("auto-schedule-enabled", true)
	viper.SetDefault("history-limit", 50)
	viper.SetDefault("store.url", "http://localhost:8001")
	viper.SetDefault("store.timeout", 10*time.Second)
	viper.SetDefault("imessage.timeout", 10*time.Second)
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("server.listen", "127.0.0.1:8000")
	viper.SetDefault("datastore.listen", "127.0.0.1:8001")
	viper.SetDefault("datastore.data-dir", ".")
	viper.SetDefault("datastore.history-max", 500)

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is socius.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// version needs no config.
	if versionCmd.CalledAs() != "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
	}

	// Defaults and env are enough when no config file exists, but an explicit
	// or broken one must load.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config == nil {
		config = &Config{}
	}
	if config.Store == nil {
		config.Store = &StoreConfig{}
	}
	if config.IMessage == nil {
		config.IMessage = &IMessageConfig{}
	}
	if config.Google == nil {
		config.Google = &google.Config{}
	}
	if config.AI == nil {
		config.AI = &AIConfig{}
	}
	if config.AI.Gemini == nil {
		config.AI.Gemini = &GeminiConfig{}
	}
	if config.Server == nil {
		config.Server = &ServerConfig{}
	}
	if config.Sessions == nil {
		config.Sessions = &SessionsConfig{}
	}
	if config.Datastore == nil {
		config.Datastore = &DatastoreConfig{}
	}
	if config.Scan == nil {
		config.Scan = &ScanConfig{}
	}

	return config, nil
}
