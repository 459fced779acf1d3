package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetops/fleet-tasks/internal/api"
	"github.com/fleetops/fleet-tasks/internal/config"
	"github.com/fleetops/fleet-tasks/internal/db"
	"github.com/fleetops/fleet-tasks/internal/engine"
	"github.com/fleetops/fleet-tasks/internal/metrics"
	"github.com/fleetops/fleet-tasks/internal/scheduler"
	"github.com/fleetops/fleet-tasks/internal/trigger"
	"github.com/fleetops/fleet-tasks/internal/version"
	"github.com/fleetops/fleet-tasks/internal/webhook"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			fmt.Println(version.Info())
			return
		case "help", "--help", "-h":
			printHelp()
			return
		case "daemon":
			if err := runDaemon(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "serve":
			if err := runServer(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
			printHelp()
			os.Exit(1)
		}
	}
	printHelp()
}

// runServer starts the scheduler loop and the HTTP API in one process.
func runServer(args []string) error {
	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := serveCmd.String("config", "", "Path to config file")
	port := serveCmd.Int("port", 0, "HTTP server port (overrides config)")
	_ = serveCmd.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	log, err := newLogger(cfg.Log.Level)
	if err != nil {
		return err
	}

	store, err := db.New(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer store.Close()

	provider := metrics.HostProvider{}
	dispatcher := webhook.NewDispatcher(store, log, cfg.Webhook.Timeout.Std(), cfg.Webhook.RatePerSec)
	registry := engine.DefaultRegistry(store, provider)
	eng := engine.New(store, registry, dispatcher, log, cfg.Engine.ExecutionTimeout.Std())
	evaluator := trigger.Evaluator{ThresholdCooldown: cfg.Scheduler.ThresholdCooldown.Std()}
	sched := scheduler.New(store, eng, evaluator, provider, cfg.Scheduler.PollInterval.Std(), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	server := api.NewServer(store, eng, sched, dispatcher, log)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: server.Router(),
	}

	log.Info().
		Str("version", version.Version).
		Str("addr", srv.Addr).
		Str("db", cfg.DB.Path).
		Msg("fleet-tasks server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Let in-flight executions finalize so they aren't swept as stale on the
	// next start.
	eng.Wait()
	return nil
}

// runDaemon runs the scheduler loop without the HTTP API, for service
// deployments where another instance serves the REST surface.
func runDaemon(args []string) error {
	daemonCmd := flag.NewFlagSet("daemon", flag.ExitOnError)
	configPath := daemonCmd.String("config", "", "Path to config file")
	_ = daemonCmd.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.Log.Level)
	if err != nil {
		return err
	}

	pidPath := filepath.Join(filepath.Dir(cfg.DB.Path), "daemon.pid")
	if pid, running := isDaemonRunning(pidPath); running {
		return fmt.Errorf("daemon already running (PID %d)", pid)
	}
	if err := os.WriteFile(pidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := db.New(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer store.Close()

	provider := metrics.HostProvider{}
	dispatcher := webhook.NewDispatcher(store, log, cfg.Webhook.Timeout.Std(), cfg.Webhook.RatePerSec)
	registry := engine.DefaultRegistry(store, provider)
	eng := engine.New(store, registry, dispatcher, log, cfg.Engine.ExecutionTimeout.Std())
	evaluator := trigger.Evaluator{ThresholdCooldown: cfg.Scheduler.ThresholdCooldown.Std()}
	sched := scheduler.New(store, eng, evaluator, provider, cfg.Scheduler.PollInterval.Std(), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	log.Info().
		Str("version", version.Version).
		Int("pid", os.Getpid()).
		Str("db", cfg.DB.Path).
		Msg("fleet-tasks daemon started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	cancel()
	eng.Wait()
	return nil
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

// isDaemonRunning checks the PID file and probes the recorded process.
func isDaemonRunning(pidPath string) (int, bool) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, false
	}

	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}

	// On Unix, FindProcess always succeeds, so send signal 0 to check if alive.
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return 0, false
	}

	return pid, true
}

func printHelp() {
	fmt.Println(`fleet-tasks - Schedule and run fleet maintenance tasks

Usage:
  fleet-tasks serve         Run the scheduler and HTTP API server
  fleet-tasks daemon        Run the scheduler loop only (for services)
  fleet-tasks version       Show version information
  fleet-tasks help          Show this help message

Serve Options:
  --config                  Path to YAML config file
  --port                    HTTP server port (overrides config)

Daemon Options:
  --config                  Path to YAML config file

Environment Variables:
  FLEET_TASKS_DATA          Override data directory (default: ~/.fleet-tasks)`)
}
