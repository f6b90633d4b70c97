//go:build linux

// Command sserelay relays values pushed onto a redis list to Server-Sent
// Events clients.
//
// Test with:
//
//	sserelay --port 1234 --queue pysse
//	curl -N http://127.0.0.1:1234/
//	redis-cli LPUSH pysse "$(printf 'data: hello\n\n')"
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/advbet/sserelay"
)

func main() {
	cfg, err := newFlags(os.Args[0]).resolve(os.Args[1:])
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	level, _ := logrus.ParseLevel(cfg.LogLevel)
	logrus.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logrus.StandardLogger()); err != nil {
		logrus.WithError(err).Fatal("relay failed")
	}
}

func run(ctx context.Context, cfg config, log logrus.FieldLogger) error {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	queue := sserelay.NewRedisQueue(client, cfg.Redis.Queue, cfg.Redis.Timeout)
	relay, err := sserelay.New(cfg.Config, queue, sserelay.WithLogger(log))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return relay.Run(ctx)
	})
	if cfg.Admin != "" {
		srv := &http.Server{
			Addr:              cfg.Admin,
			Handler:           relay.AdminHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.WithField("addr", cfg.Admin).Info("admin listening")
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}
