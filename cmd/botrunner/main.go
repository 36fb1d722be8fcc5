package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/seantiz/botrunner/internal/api"
	"github.com/seantiz/botrunner/internal/config"
	"github.com/seantiz/botrunner/internal/engine"
	"github.com/seantiz/botrunner/internal/store"
	"github.com/seantiz/botrunner/internal/workflow"
)

func main() {
	flags := pflag.NewFlagSet("botrunner", pflag.ExitOnError)
	configPath := flags.String("config", "", "path to a YAML config file (default $BOTRUNNER_CONFIG)")
	listen := flags.String("listen", "", "HTTP listen address")
	dbPath := flags.String("db", "", "SQLite database path")
	logLevel := flags.String("log-level", "", "log level: debug, info, warn or error")
	transport := flags.String("transport", "", "default executor transport: local, nats or redis")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if flags.Changed("listen") {
		cfg.ListenAddr = *listen
	}
	if flags.Changed("db") {
		cfg.DBPath = *dbPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = config.ParseLogLevel(*logLevel)
	}
	if flags.Changed("transport") {
		cfg.Executor.Transport = *transport
		if err := cfg.Validate(); err != nil {
			log.Fatalf("config: %v", err)
		}
	}

	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("botrunner: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"transport", cfg.Executor.Transport,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	reg, closeExecutors, err := buildExecutors(cfg.Executor, logger)
	if err != nil {
		log.Fatalf("failed to set up executors: %v", err)
	}
	defer closeExecutors()

	eng := engine.NewEngine(db, reg, logger)
	if err := eng.Register(workflow.BotRunner()); err != nil {
		log.Fatalf("register blueprint: %v", err)
	}

	srv := api.NewServer(cfg.ListenAddr, db, reg, eng, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		eng.Wait()
		os.Exit(1)
	}

	logger.Info("waiting for in-flight jobs")
	eng.Wait()
}
