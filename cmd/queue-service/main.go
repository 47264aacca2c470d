package main

import (
	"context"
	"encoding/json"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hqms/queue-service/internal/config"
	"hqms/queue-service/internal/events"
	"hqms/queue-service/internal/httpapi"
	"hqms/queue-service/internal/hub"
	"hqms/queue-service/internal/models"
	"hqms/queue-service/internal/queue"
	"hqms/queue-service/internal/store"
	"hqms/queue-service/internal/store/memory"
	pgstore "hqms/queue-service/internal/store/postgres"
	redisstore "hqms/queue-service/internal/store/redis"
	"hqms/queue-service/internal/telemetry"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()

	shutdownTelemetry := telemetry.Setup("queue-service")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	tokenStore, closeStore := openStore(cfg)
	defer closeStore()

	fanout := &fanoutPublisher{}
	svc := queue.NewService(tokenStore, queue.Options{
		AvgConsultationMinutes: cfg.AvgConsultMinutes,
		StoreTimeout:           cfg.StoreTimeout,
		Publisher:              fanout,
	})

	if cfg.NATSURL != "" {
		publisher, err := events.Connect(cfg.NATSURL)
		if err != nil {
			log.Fatalf("nats connect: %v", err)
		}
		defer publisher.Close()
		fanout.sinks = append(fanout.sinks, publisher)
	}

	h := hub.New()
	fanout.sinks = append(fanout.sinks, &queueBroadcaster{hub: h, svc: svc, timeout: cfg.StoreTimeout})

	handler := httpapi.NewHandler(svc)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:     cfg.RateLimitPerMinute,
		IPBurst:         cfg.RateLimitBurst,
		DoctorPerMinute: cfg.DoctorRateLimitPerMinute,
		DoctorBurst:     cfg.DoctorRateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/", handler.Routes())
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/realtime/", sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.UpdateSubscription(client, hub.Subscription{})
				continue
			}
			h.UpdateSubscription(client, hub.Subscription{
				DoctorID: parsed.DoctorID,
				Date:     parsed.Date,
			})
		}
	}))

	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "queue-service")
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("queue-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func openStore(cfg config.Config) (store.TokenStore, func()) {
	switch {
	case cfg.DatabaseURL != "":
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		log.Printf("using postgres token store")
		return pgstore.NewStore(pool), pool.Close
	case cfg.RedisAddr != "":
		client := redisstore.NewClient(cfg.RedisAddr, cfg.RedisPassword)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis connect: %v", err)
		}
		log.Printf("using redis token store")
		return redisstore.NewStore(client), func() { _ = client.Close() }
	default:
		log.Printf("using in-memory token store")
		return memory.NewStore(), func() {}
	}
}

type fanoutPublisher struct {
	sinks []queue.Publisher
}

func (f *fanoutPublisher) Publish(event string, token models.QueueToken) {
	for _, sink := range f.sinks {
		sink.Publish(event, token)
	}
}

// queueBroadcaster pushes the fresh queue snapshot to realtime subscribers
// whenever a token on that doctor-day changes.
type queueBroadcaster struct {
	hub     *hub.Hub
	svc     *queue.Service
	timeout time.Duration
}

type statusUpdate struct {
	Type     string               `json:"type"`
	Snapshot queue.StatusSnapshot `json:"snapshot"`
}

func (b *queueBroadcaster) Publish(event string, token models.QueueToken) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	snapshot, err := b.svc.Status(ctx, token.DoctorID, token.Date)
	if err != nil {
		log.Printf("broadcast snapshot doctor=%s date=%s: %v", token.DoctorID, token.Date, err)
		return
	}
	payload, err := json.Marshal(statusUpdate{Type: "queue.status", Snapshot: snapshot})
	if err != nil {
		log.Printf("marshal snapshot: %v", err)
		return
	}
	b.hub.Broadcast(payload, hub.Subscription{DoctorID: token.DoctorID, Date: token.Date})
}
