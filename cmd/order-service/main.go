package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/skinversity/storefront-go/internal/auth"
	"github.com/skinversity/storefront-go/internal/cart"
	"github.com/skinversity/storefront-go/internal/catalog"
	"github.com/skinversity/storefront-go/internal/httpapi"
	"github.com/skinversity/storefront-go/internal/notify"
	"github.com/skinversity/storefront-go/internal/order/admin"
	"github.com/skinversity/storefront-go/internal/order/checkout"
	"github.com/skinversity/storefront-go/internal/order/repository"
	"github.com/skinversity/storefront-go/internal/payment"
	"github.com/skinversity/storefront-go/pkg/idempotency"
	"github.com/skinversity/storefront-go/pkg/kafka"
	"github.com/skinversity/storefront-go/pkg/metrics"
	"github.com/skinversity/storefront-go/pkg/tracing"
)

const service = "order-service"

type cfg struct {
	Port           string
	Store          string // postgres | memory
	DatabaseURL    string
	Migrate        bool
	RedisURL       string
	CartTTL        time.Duration
	CatalogFile    string
	JWTSecret      string
	RequestTimeout time.Duration
	StepTimeout    time.Duration

	PaymentBaseURL     string
	PaymentSecretKey   string
	WebhookSecret      string
	PaymentCallbackURL string
	Currency           string
	VerifyPayments     bool

	NotifyMode       string // kafka | http | none
	KafkaBrokers     string
	KafkaTopic       string
	FunctionsBaseURL string
	FunctionsAPIKey  string

	OTLPEndpoint string
	TraceStdout  bool
}

func readCfg() (cfg, error) {
	store := strings.ToLower(getenv("STORE", "postgres"))
	db := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if store == "postgres" && db == "" {
		return cfg{}, errors.New("DATABASE_URL is required (or STORE=memory)")
	}
	if store != "postgres" && store != "memory" {
		return cfg{}, errors.New("STORE must be postgres or memory")
	}
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return cfg{}, errors.New("JWT_SECRET is required")
	}
	ttlHours, _ := strconv.Atoi(getenv("CART_TTL_HOURS", "720"))
	reqMS, _ := strconv.Atoi(getenv("REQUEST_TIMEOUT_MS", "15000"))
	stepMS, _ := strconv.Atoi(getenv("STEP_TIMEOUT_MS", "10000"))

	return cfg{
		Port:           getenv("PORT", "8080"),
		Store:          store,
		DatabaseURL:    db,
		Migrate:        truthy(getenv("MIGRATE", "true")),
		RedisURL:       getenv("REDIS_URL", "redis://localhost:6379/0"),
		CartTTL:        time.Duration(ttlHours) * time.Hour,
		CatalogFile:    getenv("CATALOG_FILE", ""),
		JWTSecret:      secret,
		RequestTimeout: time.Duration(reqMS) * time.Millisecond,
		StepTimeout:    time.Duration(stepMS) * time.Millisecond,

		PaymentBaseURL:     strings.TrimRight(getenv("PAYMENT_BASE_URL", "http://localhost:8081"), "/"),
		PaymentSecretKey:   getenv("PAYMENT_SECRET_KEY", "sk_test_sandbox"),
		WebhookSecret:      getenv("PAYMENT_WEBHOOK_SECRET", getenv("PAYMENT_SECRET_KEY", "sk_test_sandbox")),
		PaymentCallbackURL: getenv("PAYMENT_CALLBACK_URL", ""),
		Currency:           getenv("CURRENCY", "NGN"),
		VerifyPayments:     truthy(getenv("VERIFY_PAYMENTS", "true")),

		NotifyMode:       strings.ToLower(getenv("NOTIFY_MODE", "none")),
		KafkaBrokers:     getenv("KAFKA_BROKERS", ""),
		KafkaTopic:       getenv("KAFKA_TOPIC", "storefront.notifications"),
		FunctionsBaseURL: getenv("FUNCTIONS_BASE_URL", "http://localhost:8082"),
		FunctionsAPIKey:  getenv("FUNCTIONS_API_KEY", ""),

		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TraceStdout:  truthy(getenv("TRACE_STDOUT", "false")),
	}, nil
}

func main() {
	cfg, err := readCfg()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{Service: service, OTLPEndpoint: cfg.OTLPEndpoint, Stdout: cfg.TraceStdout})
	if err != nil {
		log.Fatalf("tracing setup error: %v", err)
	}

	products, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		log.Fatalf("catalog error: %v", err)
	}

	rdb, err := cart.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connect error: %v", err)
	}
	defer rdb.Close()

	var (
		table repository.Table
		idem  idempotency.Store
	)
	switch cfg.Store {
	case "postgres":
		pool := connectDB(ctx, cfg)
		defer pool.Close()
		table = repository.NewPostgresTable(pool)
		idem = &idempotency.PostgresStore{Pool: pool}
	default:
		table = repository.NewMemoryTable()
		idem = idempotency.NewMemoryStore()
	}
	repo := repository.New(table)
	carts := cart.NewStore(rdb, cfg.CartTTL)

	sender, closeSender := buildSender(cfg)
	defer closeSender()
	dispatcher := notify.NewDispatcher(sender, notify.Options{Service: service, Timeout: 5 * time.Second})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	workflow := checkout.New(checkout.Deps{
		Orders:   repo,
		Carts:    carts,
		Catalog:  products,
		Gateway:  &payment.HTTPGateway{BaseURL: cfg.PaymentBaseURL, SecretKey: cfg.PaymentSecretKey, Client: &http.Client{Timeout: 10 * time.Second}},
		Notifier: dispatcher,
		Metrics:  metrics.NewCheckoutMetrics(reg),
	}, checkout.Config{
		Service:        service,
		Currency:       cfg.Currency,
		CallbackURL:    cfg.PaymentCallbackURL,
		VerifyPayments: cfg.VerifyPayments,
		StepTimeout:    cfg.StepTimeout,
	})

	api := &httpapi.Server{
		Service:        service,
		Catalog:        products,
		Carts:          carts,
		Orders:         repo,
		Checkout:       workflow,
		AdminOrders:    &admin.Orders{Store: repo},
		Dashboard:      &admin.Dashboard{Catalog: products, Orders: repo},
		Idempotency:    idem,
		Auth:           auth.NewVerifier(cfg.JWTSecret),
		WebhookSecret:  cfg.WebhookSecret,
		Metrics:        metrics.NewServerMetrics(reg, "order"),
		Gatherer:       reg,
		RequestTimeout: cfg.RequestTimeout,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if err := dispatcher.Close(shutdownCtx); err != nil {
			log.Printf("notification drain: %v", err)
		}
		_ = shutdownTracing(shutdownCtx)
	}()

	log.Printf("%s listening on :%s (STORE=%s, NOTIFY_MODE=%s)", service, cfg.Port, cfg.Store, cfg.NotifyMode)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http server error: %v", err)
	}
}

func connectDB(ctx context.Context, cfg cfg) *pgxpool.Pool {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		log.Fatalf("db ping error: %v", err)
	}
	if cfg.Migrate {
		if err := repository.EnsureSchema(connectCtx, pool); err != nil {
			log.Fatalf("db migrate error: %v", err)
		}
	}
	return pool
}

type nopSender struct{}

func (nopSender) Send(context.Context, string, notify.Notification) error { return nil }

func buildSender(cfg cfg) (notify.Sender, func()) {
	switch cfg.NotifyMode {
	case "kafka":
		client := kafka.NewClient(cfg.KafkaBrokers)
		if !client.Enabled() {
			log.Fatalf("config error: NOTIFY_MODE=kafka needs KAFKA_BROKERS")
		}
		w := client.NewWriter(cfg.KafkaTopic)
		return &notify.KafkaSender{Writer: w}, func() { _ = w.Close() }
	case "http":
		return &notify.HTTPSender{
			BaseURL: cfg.FunctionsBaseURL,
			APIKey:  cfg.FunctionsAPIKey,
			Client:  &http.Client{Timeout: 5 * time.Second},
		}, func() {}
	default:
		return nopSender{}, func() {}
	}
}

func truthy(v string) bool {
	v = strings.ToLower(v)
	return v == "1" || v == "true" || v == "yes"
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
