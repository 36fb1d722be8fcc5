package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seantiz/botrunner/internal/config"
	"github.com/seantiz/botrunner/internal/executor"
	"github.com/seantiz/botrunner/internal/executor/memworker"
	"github.com/seantiz/botrunner/internal/executor/natsexec"
	"github.com/seantiz/botrunner/internal/executor/redisexec"
)

const redisPingTimeout = 5 * time.Second

// buildExecutors registers one executor per transport the configuration
// uses, sets the default, and applies per-task routes. The returned func
// releases broker connections.
func buildExecutors(cfg config.ExecutorConfig, logger *slog.Logger) (*executor.Registry, func(), error) {
	reg := executor.NewRegistry()
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	for _, transport := range cfg.Uses() {
		switch transport {
		case config.TransportLocal:
			w := memworker.New(logger.With("component", "memworker"))
			reg.Register(transport, executor.NewLocal(transport, w.Handle))

		case config.TransportNATS:
			nc, err := natsexec.Connect(natsexec.Config{URL: cfg.NATSURL, Name: "botrunner"})
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			closers = append(closers, func() { _ = nc.Drain() })
			reg.Register(transport, natsexec.New(nc, cfg.Prefix))

		case config.TransportRedis:
			rdb, err := redisexec.NewClient(cfg.RedisURL)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
			err = rdb.Ping(ctx).Err()
			cancel()
			if err != nil {
				_ = rdb.Close()
				closeAll()
				return nil, nil, fmt.Errorf("ping redis: %w", err)
			}
			closers = append(closers, func() { _ = rdb.Close() })
			reg.Register(transport, redisexec.New(rdb, cfg.Prefix))

		default:
			closeAll()
			return nil, nil, fmt.Errorf("unknown transport %q", transport)
		}
		logger.Info("executor registered", "transport", transport)
	}

	if err := reg.SetDefault(cfg.Transport); err != nil {
		closeAll()
		return nil, nil, err
	}
	for taskType, transport := range cfg.Routes {
		if err := reg.Route(taskType, transport); err != nil {
			closeAll()
			return nil, nil, err
		}
	}
	return reg, closeAll, nil
}
