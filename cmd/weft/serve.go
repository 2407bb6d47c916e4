package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/weft"
	httpadapter "github.com/aretw0/weft/internal/adapters/http"
	redisadapter "github.com/aretw0/weft/pkg/adapters/redis"
	"github.com/aretw0/weft/internal/logging"
)

// serveConfig is the YAML configuration for server mode.
type serveConfig struct {
	Addr     string `mapstructure:"addr"`
	FlowsDir string `mapstructure:"flows_dir"`
	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`

	Redis struct {
		Addr     string        `mapstructure:"addr"`
		Password string        `mapstructure:"password"`
		DB       int           `mapstructure:"db"`
		TTL      time.Duration `mapstructure:"ttl"`
		Lock     bool          `mapstructure:"lock"`
	} `mapstructure:"redis"`
}

var serveCmd = &cobra.Command{
	Use:   "serve [dir]",
	Short: "Start the HTTP server",
	Long:  `Starts the weft engine in server mode, exposing sessions over a JSON API. With a Redis backend configured, sessions are durable and replicas coordinate through distributed locks.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadServeConfig(cmd, args)
		if err != nil {
			fmt.Printf("Config error: %v\n", err)
			os.Exit(1)
		}
		if err := runServe(cfg); err != nil {
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
	serveCmd.Flags().StringP("config", "c", "", "YAML config file")
}

// loadServeConfig merges the config file with command line flags; flags
// win where both are set.
func loadServeConfig(cmd *cobra.Command, args []string) (*serveConfig, error) {
	cfg := &serveConfig{
		Addr:     ":8080",
		FlowsDir: ".",
		LogLevel: "info",
	}

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           cfg,
			ErrorUnused:      true,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(raw); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}

	if cmd.Flags().Changed("addr") {
		cfg.Addr, _ = cmd.Flags().GetString("addr")
	}
	if level, _ := cmd.Flags().GetString("log-level"); cmd.Flags().Changed("log-level") {
		cfg.LogLevel = level
	}
	if len(args) > 0 {
		cfg.FlowsDir = args[0]
	}
	return cfg, nil
}

func runServe(cfg *serveConfig) error {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.New(level)

	opts := []weft.Option{
		weft.WithLogger(logger),
		weft.WithDebug(cfg.Debug),
		weft.WithMetrics(nil), // default Prometheus registry, served at /metrics
	}
	if cfg.Redis.Addr != "" {
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := redisadapter.NewFromClient(client, redisadapter.WithTTL(cfg.Redis.TTL))
		opts = append(opts, weft.WithStore(store))
		if cfg.Redis.Lock {
			opts = append(opts, weft.WithLocker(redisadapter.NewLocker(client, "weft:")))
		}
	}

	engine, err := weft.New(cfg.FlowsDir, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpadapter.NewServer(engine, httpadapter.WithLogger(logger)).Handler(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting weft server", "addr", cfg.Addr, "flows", cfg.FlowsDir)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return err
	case sig := <-shutdown:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("graceful shutdown did not complete", "err", err)
			return srv.Close()
		}
	}
	return nil
}
