// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the lecture-engine CLI.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pdiddy/lecture-engine/internal/agent"
	"github.com/pdiddy/lecture-engine/internal/cost"
	"github.com/pdiddy/lecture-engine/internal/history"
	"github.com/pdiddy/lecture-engine/internal/llm"
	"github.com/pdiddy/lecture-engine/internal/pipeline"
	"github.com/pdiddy/lecture-engine/internal/secrets"
	"github.com/pdiddy/lecture-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// loadedSecrets holds API keys loaded from .secrets/ at startup.
	loadedSecrets secrets.Store

	logger   = zap.NewNop()
	logLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
)

// rootCmd is the base command for the lecture-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "lecture-engine",
	Short: "Generate lecture notes, pre-reads and assignments with LLM agents",
	Long: `lecture-engine turns a topic, a list of subtopics and an optional class
transcript into educational content. A pipeline of agents detects the course
domain, checks transcript coverage, drafts, fact-checks, reviews, polishes
and, for assignments, formats structured questions.

Runs are stored in a local history database. The serve command exposes the
same pipeline over HTTP with Server-Sent Events.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			logLevel.SetLevel(zap.DebugLevel)
		}
		l, err := newLogger()
		if err != nil {
			return err
		}
		logger = l

		s, err := secrets.Load(secrets.DefaultDir, logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug("loaded secrets", zap.Strings("keys", keys))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./lecture-engine.yaml or ~/.config/lecture-engine/lecture-engine.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().String("provider", "", "LLM provider: anthropic, openai, or mock (overrides config)")
	rootCmd.PersistentFlags().String("history-dir", "", "directory holding the run history database (overrides config)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("lecture-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "lecture-engine"))
		}
	}

	viper.SetEnvPrefix("LECTURE_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range []string{"llm.provider", "llm.api_key", "llm.base_url", "llm.timeout", "server.addr", "history.dir"} {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = logLevel
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// loadConfig layers the config file and environment over DefaultConfig,
// then applies the persistent flag overrides of cmd.
func loadConfig(cmd *cobra.Command) (types.Config, error) {
	cfg := types.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	if p, _ := cmd.Flags().GetString("provider"); p != "" {
		cfg.LLM.Provider = types.Provider(p)
	}
	if d, _ := cmd.Flags().GetString("history-dir"); d != "" {
		cfg.History.Dir = d
	}
	return cfg, nil
}

// newClient builds the transport for cfg.LLM.Provider. An API key in the
// config wins over one from .secrets/.
func newClient(cfg types.LLMConfig, keys secrets.Store, log *zap.Logger) (llm.Client, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = keys.KeyFor(cfg.Provider)
	}
	switch cfg.Provider {
	case types.ProviderAnthropic, "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("no Anthropic API key: put it in %s/%s or set LECTURE_ENGINE_LLM_API_KEY",
				secrets.DefaultDir, secrets.AnthropicKey)
		}
		return llm.NewAnthropicClient(cfg, log), nil
	case types.ProviderOpenAI:
		return llm.NewOpenAIClient(cfg, log)
	case types.ProviderMock:
		return agent.NewDemoClient(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q: want anthropic, openai, or mock", cfg.Provider)
	}
}

// newOrchestrator wires the pipeline. store and metrics may be nil.
func newOrchestrator(cfg types.Config, client llm.Client, store *history.Store, metrics pipeline.MetricsSink) (*pipeline.Orchestrator, error) {
	deps := pipeline.Deps{
		Logger:  logger,
		Pricing: cost.FromConfig(cfg.Pricing),
	}
	if store != nil {
		deps.Cache = store
	}
	if metrics != nil {
		deps.Metrics = metrics
	}
	return pipeline.New(
		pipeline.NewAgents(client, cfg.Agents),
		deps,
		pipeline.WithMaxPolishRounds(cfg.Pipeline.MaxPolishRounds),
	)
}

func openHistory(cfg types.Config) (*history.Store, error) {
	if cfg.History.Dir == "" {
		return nil, errors.New("history directory is not configured")
	}
	return history.NewStore(cfg.History, logger)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
