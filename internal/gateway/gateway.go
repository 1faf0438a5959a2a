package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"recast/internal/config"
	"recast/internal/events"
	"recast/internal/logging"
)

// Gateway subscribes to the Redis status channels and serves the websocket
// endpoint clients connect to.
type Gateway struct {
	cfg      *config.Config
	hub      *Hub
	client   *redis.Client
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// New connects to Redis and prepares the gateway. The Redis address is
// mandatory here: a gateway without a subscription has nothing to serve.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if cfg.Redis.Addr == "" {
		return nil, errors.New("gateway requires a redis address")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
	}

	return &Gateway{
		cfg:    cfg,
		hub:    NewHub(logger),
		client: client,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The gateway binds to loopback by default; origin policy
			// belongs to the fronting proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logging.NewComponentLogger(logger, "gateway"),
	}, nil
}

// Hub exposes the room registry, mainly for tests and stats.
func (g *Gateway) Hub() *Hub {
	return g.hub
}

// Handler returns the HTTP handler serving the websocket endpoint.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := g.client.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (g *Gateway) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	c := newClient(g.hub, conn, g.logger)
	go c.writePump()
	go c.readPump()
}

// Subscribe consumes both status channels until the context is cancelled.
func (g *Gateway) Subscribe(ctx context.Context) error {
	pubsub := g.client.Subscribe(ctx, events.UpdateChannel, events.ErrorChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe status channels: %w", err)
	}
	g.logger.Info("subscribed to status channels",
		logging.String("update_channel", events.UpdateChannel),
		logging.String("error_channel", events.ErrorChannel),
	)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("subscription channel closed")
			}
			g.dispatch(ctx, msg)
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, msg *redis.Message) {
	var event events.StatusEvent
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		g.logger.Warn("dropping malformed status event", logging.Error(err))
		return
	}

	envelopeType := envelopeUpdate
	if msg.Channel == events.ErrorChannel {
		envelopeType = envelopeError
	}
	g.hub.Deliver(ctx, envelopeType, event)
}

// Close releases the Redis connection.
func (g *Gateway) Close() error {
	return g.client.Close()
}
