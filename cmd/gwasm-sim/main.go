package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gwasm-client/cmd"
	"gwasm-client/internal/simulator"
	"gwasm-client/pkg/api"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
)

type Config struct {
	Port            int           `env:"GWASM_SIM_PORT" envDefault:"61000"`
	Network         string        `env:"GWASM_SIM_NETWORK" envDefault:"testnet"`
	DataDir         string        `env:"GWASM_SIM_DATA_DIR" envDefault:"./gwasm-sim"`
	ComputeDuration time.Duration `env:"GWASM_SIM_COMPUTE_DURATION" envDefault:"10s"`
}

// ensureSecret returns the daemon's rpc secret, generating and persisting a
// fresh one on first start so that clients can pick it up from the data dir.
func ensureSecret(dataDir string) string {
	path := filepath.Join(dataDir, api.SecretFileName)

	data, err := os.ReadFile(path)
	if err == nil {
		if secret := strings.TrimSpace(string(data)); secret != "" {
			return secret
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("error reading rpc secret: %v", err)
	}

	secret := uuid.New().String()
	if err := os.WriteFile(path, []byte(secret+"\n"), 0600); err != nil {
		log.Fatalf("error writing rpc secret: %v", err)
	}

	slog.Info("rpc secret generated", "path", path)
	return secret
}

func createServer(sim *simulator.Server, port int) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	sim.AddRoutes(r)

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
}

func main() {
	cmd.LoadEnvFile()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := os.MkdirAll(cfg.DataDir, os.ModePerm); err != nil {
		log.Fatalf("error creating data dir: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(cfg.DataDir, "sim.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	log.SetOutput(io.MultiWriter(f, os.Stderr))

	slog.Info("starting simulator", "data_dir", cfg.DataDir, "network", cfg.Network, "port", cfg.Port, "compute_duration", cfg.ComputeDuration)

	secret := ensureSecret(cfg.DataDir)
	market := simulator.NewMarket(cfg.Network, cfg.ComputeDuration)
	server := createServer(simulator.NewServer(market, secret), cfg.Port)

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	slog.Info("server stopped")
}
