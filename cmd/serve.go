package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"clawcredit-gateway/internal/capture"
	"clawcredit-gateway/internal/config"
	"clawcredit-gateway/internal/forwarder"
	paymentfactory "clawcredit-gateway/internal/payment/factory"
	"clawcredit-gateway/internal/server"
)

const defaultEnvFile = ".env"

const serveUsage = `Usage:
  clawcredit-gateway serve [--config <path>] [--env-file <path>] [--host <host>] [--port <port>]

Flags:
  --config   string   Path to YAML configuration file (optional; environment overrides it)
  --env-file string   Dotenv file loaded before configuration (default ".env", skipped when absent)
  --host     string   Override listen host
  --port     int      Override listen port

Environment:
  CLAWCREDIT_API_TOKEN (required), CLAWCREDIT_API_BASE, CLAWCREDIT_CHAIN, CLAWCREDIT_ASSET,
  CLAWCREDIT_AGENT, CLAWCREDIT_AGENT_ID, CLAWCREDIT_DEFAULT_AMOUNT_USD, CLAWCREDIT_TIMEOUT,
  BLOCKRUN_API_BASE, HOST, PORT, GATEWAY_PORT, GATEWAY_METRICS_ADDR, GATEWAY_DEBUG,
  GATEWAY_CAPTURE, GATEWAY_CAPTURE_FILE, GATEWAY_CAPTURE_REDIS_ADDR, GATEWAY_CAPTURE_REDIS_KEY`

type serveOptions struct {
	configPath   string
	envFile      string
	envFileSet   bool
	host         string
	overridePort int
}

func parseServeFlags(args []string) (serveOptions, error) {
	flags := flag.NewFlagSet("serve", flag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	opts := serveOptions{envFile: defaultEnvFile}
	flags.StringVar(&opts.configPath, "config", "", "path to configuration file")
	flags.StringVar(&opts.envFile, "env-file", defaultEnvFile, "path to dotenv file")
	flags.StringVar(&opts.host, "host", "", "override listen host")
	flags.IntVar(&opts.overridePort, "port", 0, "override server port")

	if err := flags.Parse(args); err != nil {
		return serveOptions{}, err
	}
	flags.Visit(func(f *flag.Flag) {
		if f.Name == "env-file" {
			opts.envFileSet = true
		}
	})

	if opts.overridePort < 0 || opts.overridePort > 65535 {
		return serveOptions{}, fmt.Errorf("port override %d must be a valid TCP port", opts.overridePort)
	}
	return opts, nil
}

// loadEnvFile populates the environment from a dotenv file without
// overriding variables that are already set. A missing default file is fine.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

func loadConfig(opts serveOptions) (config.Config, error) {
	if err := loadEnvFile(opts.envFile, opts.envFileSet); err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}

	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.overridePort != 0 {
		cfg.Server.Port = opts.overridePort
	}
	return cfg, nil
}

func newLogger(debug bool) (*zap.SugaredLogger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger.Sugar(), nil
}

func serve(ctx context.Context, args []string) error {
	opts, err := parseServeFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse serve flags: %w", err)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.Log.Debug)
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	authority, err := paymentfactory.New(cfg, log)
	if err != nil {
		return err
	}

	fw, err := forwarder.New(authority, cfg, log.Named("forwarder"))
	if err != nil {
		return err
	}

	sink, err := capture.New(cfg.Capture, log.Named("capture"))
	if err != nil {
		return err
	}
	defer func() {
		_ = sink.Close()
	}()
	if cfg.Capture.Enabled() {
		log.Infow("debug capture enabled", "mode", cfg.Capture.Mode, "file", cfg.Capture.File, "redis_key", cfg.Capture.RedisKey)
	}

	srv, err := server.New(cfg, fw, sink, log)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
