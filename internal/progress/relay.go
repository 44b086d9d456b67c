// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/tubemux/internal/log"
	"github.com/ManuGH/tubemux/internal/metrics"
)

// DefaultRelayChannel is the pub/sub channel shared by all instances.
const DefaultRelayChannel = "tubemux:progress"

const (
	relayQueue          = 256
	relayPublishTimeout = 2 * time.Second
)

type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// RedisRelay mirrors hub broadcasts across instances through a Redis
// channel. Events published by this instance are not re-delivered to it.
type RedisRelay struct {
	client   *redis.Client
	channel  string
	hub      *Hub
	instance string
	outbound chan Event
	ready    chan struct{}
	logger   zerolog.Logger
}

// RedisRelayConfig holds the relay connection settings.
type RedisRelayConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// NewRedisClient dials addr and verifies the connection.
func NewRedisClient(ctx context.Context, cfg RedisRelayConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// NewRedisRelay attaches a relay to hub. Call Run to start relaying.
func NewRedisRelay(client *redis.Client, channel string, hub *Hub) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	r := &RedisRelay{
		client:   client,
		channel:  channel,
		hub:      hub,
		instance: uuid.NewString(),
		outbound: make(chan Event, relayQueue),
		ready:    make(chan struct{}),
		logger:   log.WithComponent("progress_relay"),
	}
	hub.addForwarder(r.enqueue)
	return r
}

// Instance identifies this process on the channel.
func (r *RedisRelay) Instance() string { return r.instance }

// Ready is closed once the subscription is confirmed.
func (r *RedisRelay) Ready() <-chan struct{} { return r.ready }

func (r *RedisRelay) enqueue(ev Event) {
	select {
	case r.outbound <- ev:
	default:
		metrics.IncProgressDrop("relay_full")
	}
}

// Run subscribes and relays until ctx ends.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	close(r.ready)
	r.logger.Info().Str("channel", r.channel).Str("instance", r.instance).Msg("progress relay subscribed")

	inbound := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-r.outbound:
			r.publish(ctx, ev)
		case msg, ok := <-inbound:
			if !ok {
				return errors.New("relay subscription closed")
			}
			r.receive(msg.Payload)
		}
	}
}

func (r *RedisRelay) publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(envelope{Origin: r.instance, Event: ev})
	if err != nil {
		metrics.IncProgressRelay("out", "encode_error")
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, relayPublishTimeout)
	defer cancel()
	if err := r.client.Publish(pubCtx, r.channel, payload).Err(); err != nil {
		metrics.IncProgressRelay("out", "error")
		r.logger.Warn().Err(err).Msg("progress relay publish failed")
		return
	}
	metrics.IncProgressRelay("out", "ok")
}

func (r *RedisRelay) receive(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		metrics.IncProgressRelay("in", "decode_error")
		return
	}
	if env.Origin == r.instance {
		return
	}
	metrics.IncProgressRelay("in", "ok")
	r.hub.deliver(env.Event)
}
