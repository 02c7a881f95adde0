// Package server wires the interview engine to its HTTP, websocket and gRPC
// health surfaces.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/mockinterview/internal/platform/timeouts"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/telemetry"
	"github.com/louisbranch/mockinterview/internal/services/interview/engine"
	"github.com/louisbranch/mockinterview/internal/services/interview/evaluation"
	"github.com/louisbranch/mockinterview/internal/services/interview/identity"
	"github.com/louisbranch/mockinterview/internal/services/interview/questions"
	"github.com/louisbranch/mockinterview/internal/services/interview/storage/sqlite"
	"github.com/louisbranch/mockinterview/internal/services/interview/transport/httpapi"
	"github.com/louisbranch/mockinterview/internal/services/interview/transport/ws"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const healthServiceName = "mockinterview.v1.InterviewService"

// EvaluatorConfig selects the answer evaluator. Without an API key answers
// are scored by the local heuristic.
type EvaluatorConfig struct {
	URL    string
	APIKey string
	Model  string
}

// Config defines the inputs for the interview process.
type Config struct {
	HTTPAddr string
	// GRPCAddr serves the gRPC health service. Empty disables it.
	GRPCAddr         string
	DBPath           string
	JWTSecret        string
	JWTIssuer        string
	QuestionBankPath string
	Evaluator        EvaluatorConfig
	Engine           engine.Config
	// StaleAfter is how long a session may sit idle before the reaper
	// abandons it. Zero disables the reaper.
	StaleAfter           time.Duration
	ReapInterval         time.Duration
	TelemetryLogSuppress []string
	ReadHeaderTimeout    time.Duration
	ShutdownTimeout      time.Duration
}

// Server hosts the interview process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	grpcListener    net.Listener
	grpcServer      *grpc.Server
	health          *health.Server
	engine          *engine.Engine
	store           *sqlite.Store
	staleAfter      time.Duration
	reapInterval    time.Duration
	telemetryLog    *telemetry.LogFilter

	closeOnce sync.Once
}

// NewServer builds a configured interview server.
func NewServer(config Config) (*Server, error) {
	return NewServerWithContext(context.Background(), config)
}

// NewServerWithContext builds a configured interview server with an explicit
// context for storage setup.
func NewServerWithContext(ctx context.Context, config Config) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}
	if config.ReapInterval <= 0 {
		config.ReapInterval = time.Minute
	}

	verifier, err := identity.NewVerifier(identity.Config{
		Secret: []byte(config.JWTSecret),
		Issuer: config.JWTIssuer,
	})
	if err != nil {
		return nil, fmt.Errorf("init identity verifier: %w", err)
	}
	bank, err := loadQuestionBank(config.QuestionBankPath)
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, config.DBPath)
	if err != nil {
		return nil, err
	}

	telemetryLog := telemetry.NewLogFilter(log.Default(), config.TelemetryLogSuppress...)
	engineConfig := config.Engine
	engineConfig.TelemetryLog = telemetryLog
	eng, err := engine.New(store, newEvaluator(config.Evaluator), bank, engineConfig)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init engine: %w", err)
	}

	s := &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		engine:          eng,
		store:           store,
		staleAfter:      config.StaleAfter,
		reapInterval:    config.ReapInterval,
		telemetryLog:    telemetryLog,
	}
	s.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           newHandler(eng, verifier),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	if addr := strings.TrimSpace(config.GRPCAddr); addr != "" {
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("listen on %s: %w", addr, err)
		}
		s.grpcListener = listener
		s.grpcServer = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
		s.health = health.NewServer()
		grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
		s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		s.health.SetServingStatus(healthServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	}
	return s, nil
}

func newHandler(eng *engine.Engine, verifier *identity.Verifier) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /up", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("/ws", ws.NewHandler(eng, verifier))
	httpapi.NewServer(eng, verifier).RegisterRoutes(mux)
	return mux
}

func newEvaluator(cfg EvaluatorConfig) engine.Evaluator {
	if strings.TrimSpace(cfg.APIKey) == "" {
		log.Printf("interview: no evaluator API key, scoring answers with the local heuristic")
		return evaluation.Heuristic{}
	}
	return evaluation.NewChatEvaluator(evaluation.ChatConfig{
		URL:    cfg.URL,
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
	})
}

func loadQuestionBank(path string) (*questions.Bank, error) {
	var (
		bank *questions.Bank
		err  error
	)
	if strings.TrimSpace(path) == "" {
		path = "embedded"
		bank, err = questions.LoadEmbedded()
	} else {
		bank, err = questions.LoadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load question bank %s: %w", path, err)
	}
	log.Printf("interview: loaded %d questions from %s bank", bank.Len(), path)
	return bank, nil
}

func openStore(ctx context.Context, path string) (*sqlite.Store, error) {
	if strings.TrimSpace(path) == "" {
		path = filepath.Join("data", "interview.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open interview sqlite store: %w", err)
	}
	return store, nil
}

// GRPCAddr returns the health listener address, or "" when disabled.
func (s *Server) GRPCAddr() string {
	if s == nil || s.grpcListener == nil {
		return ""
	}
	return s.grpcListener.Addr().String()
}

// Run creates and serves an interview server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServerWithContext(ctx, config)
	if err != nil {
		return fmt.Errorf("init interview server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve interview: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server, the gRPC health server and the stale
// session reaper until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("interview server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	reapCtx, stopReaper := context.WithCancel(ctx)
	reaperDone := make(chan struct{})
	go func() {
		defer close(reaperDone)
		runReaper(reapCtx, s.engine, s.reapInterval, s.staleAfter)
	}()
	defer func() {
		stopReaper()
		<-reaperDone
	}()

	serveErr := make(chan error, 2)
	if s.grpcServer != nil {
		log.Printf("interview health server listening at %v", s.grpcListener.Addr())
		go func() {
			if err := s.grpcServer.Serve(s.grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				serveErr <- fmt.Errorf("serve gRPC: %w", err)
			}
		}()
	}
	log.Printf("interview server listening on %s", s.httpAddr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("serve http: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-serveErr:
		_ = s.shutdown()
		return err
	}
}

func (s *Server) shutdown() error {
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// Close releases server resources. Live sessions are stopped before the
// store closes.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		if s.health != nil {
			s.health.Shutdown()
		}
		if s.grpcServer != nil {
			s.grpcServer.Stop()
		}
		if s.grpcListener != nil {
			_ = s.grpcListener.Close()
		}
		if s.engine != nil {
			if live := s.engine.Live(); live > 0 {
				log.Printf("interview: stopping %d live sessions", live)
			}
			s.engine.Close()
		}
		if s.store != nil {
			if err := s.store.Close(); err != nil {
				log.Printf("close interview store: %v", err)
			}
		}
		if dropped := s.telemetryLog.Dropped(); dropped > 0 {
			log.Printf("interview: suppressed %d telemetry diagnostics", dropped)
		}
	})
}
