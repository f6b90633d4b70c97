//go:build linux

package sserelay_test

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/advbet/sserelay"
)

func Example_relay() {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	defer client.Close()

	queue := sserelay.NewRedisQueue(client, sserelay.DefaultQueueName, time.Second)

	cfg := sserelay.DefaultConfig
	cfg.Reconnect = 3 * time.Second

	relay, err := sserelay.New(cfg, queue)
	if err != nil {
		logrus.WithError(err).Fatal("can not create relay")
	}

	// Status and metrics are served on a separate port
	go http.ListenAndServe("127.0.0.1:8081", relay.AdminHandler())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := relay.Run(ctx); err != nil {
		logrus.WithError(err).Error("relay stopped")
	}
}

func ExampleRedisQueue_Push() {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	defer client.Close()

	queue := sserelay.NewRedisQueue(client, sserelay.DefaultQueueName, time.Second)

	// Payloads must already be complete event-stream chunks
	err := queue.Push(context.Background(), []byte("event: tick\ndata: 1\n\n"))
	if err != nil {
		logrus.WithError(err).Error("push failed")
	}
}
