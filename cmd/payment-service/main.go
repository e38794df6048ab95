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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/skinversity/storefront-go/internal/payment/sandbox"
	"github.com/skinversity/storefront-go/pkg/metrics"
	"github.com/skinversity/storefront-go/pkg/tracing"
)

const service = "payment-service"

type cfg struct {
	Port          string
	Store         string // postgres | memory
	DatabaseURL   string
	SecretKey     string
	WebhookURL    string
	WebhookSecret string
	PublicURL     string
	OTLPEndpoint  string
}

func readCfg() (cfg, error) {
	store := strings.ToLower(getenv("STORE", "postgres"))
	db := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if store == "postgres" && db == "" {
		return cfg{}, errors.New("DATABASE_URL is required (or STORE=memory)")
	}
	port := getenv("PORT", "8081")
	secret := getenv("PAYMENT_SECRET_KEY", "sk_test_sandbox")
	return cfg{
		Port:          port,
		Store:         store,
		DatabaseURL:   db,
		SecretKey:     secret,
		WebhookURL:    getenv("WEBHOOK_URL", "http://localhost:8080/payments/webhook"),
		WebhookSecret: getenv("PAYMENT_WEBHOOK_SECRET", secret),
		PublicURL:     strings.TrimRight(getenv("PUBLIC_URL", "http://localhost:"+port), "/"),
		OTLPEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}, nil
}

func main() {
	cfg, err := readCfg()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{Service: service, OTLPEndpoint: cfg.OTLPEndpoint})
	if err != nil {
		log.Fatalf("tracing setup error: %v", err)
	}

	var store sandbox.Store = sandbox.NewMemoryStore()
	var pool *pgxpool.Pool
	if cfg.Store == "postgres" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pool, err = pgxpool.New(connectCtx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect error: %v", err)
		}
		if err := sandbox.EnsureSchema(connectCtx, pool); err != nil {
			log.Fatalf("db migrate error: %v", err)
		}
		defer pool.Close()
		store = &sandbox.PostgresStore{Pool: pool}
	}

	reg := prometheus.NewRegistry()
	gw := &sandbox.Server{
		Store:         store,
		SecretKey:     cfg.SecretKey,
		WebhookURL:    cfg.WebhookURL,
		WebhookSecret: cfg.WebhookSecret,
		PublicURL:     cfg.PublicURL,
		Client:        &http.Client{Timeout: 5 * time.Second},
		Metrics:       metrics.NewServerMetrics(reg, "payment"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			if err := pool.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, `{"status":"db_error"}`)
				return
			}
		}
		writeJSON(w, http.StatusOK, `{"status":"ok"}`)
	})
	mux.Handle("GET /metrics", metrics.Handler(reg))
	mux.Handle("/", tracing.Handler(gw.Handler(), service))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = shutdownTracing(shutdownCtx)
	}()

	log.Printf("%s (sandbox gateway) listening on :%s (STORE=%s)", service, cfg.Port, cfg.Store)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http server error: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
