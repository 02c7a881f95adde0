// Package interview parses interview command configuration and composes the
// service entrypoint.
package interview

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/mockinterview/internal/platform/cmd"
	server "github.com/louisbranch/mockinterview/internal/services/interview/app"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/difficulty"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/integrity"
	"github.com/louisbranch/mockinterview/internal/services/interview/engine"
)

// EnvPrefix scopes every interview environment variable.
const EnvPrefix = "MOCKINTERVIEW_"

// Config holds interview command configuration.
type Config struct {
	HTTPAddr         string `env:"HTTP_ADDR"          envDefault:":8090"`
	GRPCAddr         string `env:"GRPC_ADDR"          envDefault:":8091"`
	DBPath           string `env:"DB_PATH"            envDefault:"data/interview.db"`
	JWTSecret        string `env:"JWT_SECRET"`
	JWTIssuer        string `env:"JWT_ISSUER"         envDefault:"mockinterview"`
	QuestionBankPath string `env:"QUESTION_BANK_PATH"`

	EvaluatorURL      string        `env:"EVALUATOR_URL"`
	EvaluatorAPIKey   string        `env:"EVALUATOR_API_KEY"`
	EvaluatorModel    string        `env:"EVALUATOR_MODEL"`
	EvaluationTimeout time.Duration `env:"EVALUATION_TIMEOUT"   envDefault:"60s"`
	IdleTimeout       time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"10m"`
	FrameInterval     time.Duration `env:"FRAME_INTERVAL"       envDefault:"1s"`

	StaleAfter   time.Duration `env:"STALE_SESSION_TTL"   envDefault:"24h"`
	ReapInterval time.Duration `env:"STALE_REAP_INTERVAL" envDefault:"5m"`

	TelemetryLogSuppress []string      `env:"TELEMETRY_LOG_SUPPRESS" envSeparator:","`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT"       envDefault:"5s"`

	Difficulty difficulty.Policy
	Integrity  integrity.Policy
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfigWithPrefix(&cfg, EnvPrefix); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "interview HTTP listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC health listen address (empty disables)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "session SQLite database path")
	fs.StringVar(&cfg.QuestionBankPath, "question-bank", cfg.QuestionBankPath, "question bank YAML file (default: built-in bank)")
	fs.DurationVar(&cfg.StaleAfter, "stale-after", cfg.StaleAfter, "abandon sessions idle for longer than this (0 disables)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if err := cfg.Difficulty.Validate(); err != nil {
		return Config{}, fmt.Errorf("difficulty policy: %w", err)
	}
	return cfg, nil
}

// Run builds the interview app and serves until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	options := entrypoint.RunOptions{ShutdownTimeout: cfg.ShutdownTimeout}
	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceInterview, options, func(ctx context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:         cfg.HTTPAddr,
			GRPCAddr:         cfg.GRPCAddr,
			DBPath:           cfg.DBPath,
			JWTSecret:        cfg.JWTSecret,
			JWTIssuer:        cfg.JWTIssuer,
			QuestionBankPath: cfg.QuestionBankPath,
			Evaluator:        server.EvaluatorConfig{
				URL:    cfg.EvaluatorURL,
				APIKey: cfg.EvaluatorAPIKey,
				Model:  cfg.EvaluatorModel,
			},
			Engine: engine.Config{
				Difficulty:        cfg.Difficulty,
				Integrity:         cfg.Integrity,
				EvaluationTimeout: cfg.EvaluationTimeout,
				IdleTimeout:       cfg.IdleTimeout,
				FrameInterval:     cfg.FrameInterval,
			},
			StaleAfter:           cfg.StaleAfter,
			ReapInterval:         cfg.ReapInterval,
			TelemetryLogSuppress: cfg.TelemetryLogSuppress,
			ShutdownTimeout:      cfg.ShutdownTimeout,
		}); err != nil {
			return fmt.Errorf("serve interview: %w", err)
		}
		return nil
	})
}
