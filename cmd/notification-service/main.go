package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/skinversity/storefront-go/internal/notify"
	"github.com/skinversity/storefront-go/pkg/kafka"
	"github.com/skinversity/storefront-go/pkg/metrics"
)

const service = "notification-service"

type cfg struct {
	Port         string
	DatabaseURL  string
	KafkaBrokers string
	Topic        string
	GroupID      string
}

func readCfg() (cfg, error) {
	return cfg{
		Port:         getenv("PORT", "8082"),
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		KafkaBrokers: getenv("KAFKA_BROKERS", ""),
		Topic:        getenv("KAFKA_TOPIC", "storefront.notifications"),
		GroupID:      getenv("KAFKA_GROUP_ID", service),
	}, nil
}

func main() {
	cfg, err := readCfg()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		inbox notify.Inbox = notify.NewMemoryInbox()
		pool  *pgxpool.Pool
	)
	if cfg.DatabaseURL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pool, err = pgxpool.New(connectCtx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect error: %v", err)
		}
		if err := notify.EnsureSchema(connectCtx, pool); err != nil {
			log.Fatalf("db migrate error: %v", err)
		}
		defer pool.Close()
		inbox = &notify.PostgresInbox{Pool: pool}
	}

	receiver := &notify.Receiver{Service: service, Inbox: inbox}

	kafkaClient := kafka.NewClient(cfg.KafkaBrokers)
	if kafkaClient.Enabled() {
		reader := kafkaClient.NewReader(cfg.Topic, cfg.GroupID)
		defer reader.Close()
		go func() {
			if err := receiver.Consume(ctx, reader, readBackOff()); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("kafka consumer stopped: %v", err)
			}
		}()
	}

	reg := prometheus.NewRegistry()
	srvMetrics := metrics.NewServerMetrics(reg, "notification")

	mux := http.NewServeMux()
	mux.Handle("GET /health", srvMetrics.Instrument("health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if pool != nil {
			if err := pool.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"db_error"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})))
	mux.Handle("GET /metrics", metrics.Handler(reg))
	mux.Handle("POST /functions/{name}", srvMetrics.Instrument("functions", http.HandlerFunc(receiver.ServeFunction)))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("%s listening on :%s (kafka=%v)", service, cfg.Port, kafkaClient.Enabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http server error: %v", err)
	}
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func readBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	return b
}
