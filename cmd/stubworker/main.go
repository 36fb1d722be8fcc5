// stubworker answers bot runner tasks over NATS or Redis with an in-memory
// bot table, for local development and end-to-end checks.
// Usage: go run ./cmd/stubworker --transport nats
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/seantiz/botrunner/internal/config"
	"github.com/seantiz/botrunner/internal/executor/memworker"
	"github.com/seantiz/botrunner/internal/executor/natsexec"
	"github.com/seantiz/botrunner/internal/executor/redisexec"
)

func main() {
	flags := pflag.NewFlagSet("stubworker", pflag.ExitOnError)
	configPath := flags.String("config", "", "path to a YAML config file (default $BOTRUNNER_CONFIG)")
	transport := flags.String("transport", "", "transport to serve: nats or redis")
	queue := flags.String("queue", "botrunner-workers", "NATS queue group")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if flags.Changed("transport") {
		cfg.Executor.Transport = *transport
	}

	logger := config.NewLogger(os.Stdout, cfg.LogLevel)
	worker := memworker.New(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cfg.Executor.Transport {
	case config.TransportNATS:
		nc, err := natsexec.Connect(natsexec.Config{URL: cfg.Executor.NATSURL, Name: "botrunner-stubworker"})
		if err != nil {
			log.Fatalf("connect: %v", err)
		}
		defer nc.Close()
		if _, err := natsexec.Serve(ctx, nc, cfg.Executor.Prefix, *queue, worker.Handle, logger); err != nil {
			log.Fatalf("serve: %v", err)
		}
		logger.Info("stubworker serving", "transport", "nats", "url", cfg.Executor.NATSURL, "queue", *queue)
		<-ctx.Done()

	case config.TransportRedis:
		rdb, err := redisexec.NewClient(cfg.Executor.RedisURL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		logger.Info("stubworker serving", "transport", "redis", "url", cfg.Executor.RedisURL)
		if err := redisexec.Serve(ctx, rdb, cfg.Executor.Prefix, memworker.TaskTypes, worker.Handle, logger); err != nil {
			log.Fatalf("serve: %v", err)
		}

	default:
		log.Fatalf("stubworker serves nats or redis, not %q", cfg.Executor.Transport)
	}

	logger.Info("stubworker stopped")
}
