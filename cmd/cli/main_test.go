package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skinversity/storefront-go/internal/auth"
	"github.com/skinversity/storefront-go/internal/cart"
	"github.com/skinversity/storefront-go/internal/catalog"
	"github.com/skinversity/storefront-go/internal/httpapi"
	"github.com/skinversity/storefront-go/internal/notify"
	"github.com/skinversity/storefront-go/internal/order/admin"
	"github.com/skinversity/storefront-go/internal/order/checkout"
	"github.com/skinversity/storefront-go/internal/order/repository"
	"github.com/skinversity/storefront-go/internal/payment"
	"github.com/skinversity/storefront-go/internal/payment/sandbox"
	"github.com/skinversity/storefront-go/pkg/idempotency"
	"github.com/skinversity/storefront-go/pkg/metrics"
)

// newStack runs order-service and the sandbox gateway in-process and returns a
// client for one shopper.
func newStack(t *testing.T) (*client, *notify.MemoryInbox) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	gw := &sandbox.Server{Store: sandbox.NewMemoryStore(), SecretKey: "sk", WebhookSecret: "whsec"}
	gwSrv := httptest.NewServer(gw.Handler())
	t.Cleanup(gwSrv.Close)
	gw.PublicURL = gwSrv.URL

	inbox := notify.NewMemoryInbox()
	rc := &notify.Receiver{Service: "notification-test", Inbox: inbox}
	fnMux := http.NewServeMux()
	fnMux.HandleFunc("POST /functions/{name}", rc.ServeFunction)
	fnSrv := httptest.NewServer(fnMux)
	t.Cleanup(fnSrv.Close)
	dispatcher := notify.NewDispatcher(&notify.HTTPSender{BaseURL: fnSrv.URL}, notify.Options{Service: "order-test"})
	t.Cleanup(func() { _ = dispatcher.Close(context.Background()) })

	products, err := catalog.Load("")
	require.NoError(t, err)
	repo := repository.New(repository.NewMemoryTable())
	carts := cart.NewStore(rdb, time.Hour)
	reg := prometheus.NewRegistry()
	verifier := auth.NewVerifier("jwt-secret")

	wf := checkout.New(checkout.Deps{
		Orders:   repo,
		Carts:    carts,
		Catalog:  products,
		Gateway:  &payment.HTTPGateway{BaseURL: gwSrv.URL, SecretKey: "sk"},
		Notifier: dispatcher,
		Metrics:  metrics.NewCheckoutMetrics(reg),
	}, checkout.Config{Service: "order-test", VerifyPayments: true})
	api := &httpapi.Server{
		Service:       "order-test",
		Catalog:       products,
		Carts:         carts,
		Orders:        repo,
		Checkout:      wf,
		AdminOrders:   &admin.Orders{Store: repo},
		Dashboard:     &admin.Dashboard{Catalog: products, Orders: repo},
		Idempotency:   idempotency.NewMemoryStore(),
		Auth:          verifier,
		WebhookSecret: "whsec",
	}
	orderSrv := httptest.NewServer(api.Handler())
	t.Cleanup(orderSrv.Close)
	gw.WebhookURL = orderSrv.URL + "/payments/webhook"

	token, err := verifier.Issue(auth.Session{UserID: "cli-shopper", Email: "shopper@example.com"}, time.Hour)
	require.NoError(t, err)
	return &client{baseURL: orderSrv.URL, paymentURL: gwSrv.URL, token: token, http: orderSrv.Client()}, inbox
}

func TestRunScenarioSuccess(t *testing.T) {
	c, inbox := newStack(t)

	out, err := runScenario(c, "success")
	require.NoError(t, err)
	assert.Contains(t, out, "total=50.00")
	assert.Contains(t, out, "status=paid")
	assert.Contains(t, out, "cart_items=0")

	orders, err := c.orders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Len(t, orders[0].Items, 2)

	assert.Eventually(t, func() bool { return inbox.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestRunScenarioCancel(t *testing.T) {
	c, inbox := newStack(t)

	out, err := runScenario(c, "cancel")
	require.NoError(t, err)
	assert.Contains(t, out, "status=pending")
	assert.Contains(t, out, "notice=payment_cancelled")
	assert.Contains(t, out, "cart_items=3")
	assert.Equal(t, 0, inbox.Len())

	_, err = runScenario(c, "nonsense")
	assert.Error(t, err)
}

func TestModelFlow(t *testing.T) {
	c, _ := newStack(t)
	var m tea.Model = initialModel(c)

	run := func(cmd tea.Cmd) {
		t.Helper()
		require.NotNil(t, cmd)
		m, _ = m.Update(cmd())
	}
	key := func(s string) tea.Cmd {
		var cmd tea.Cmd
		m, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
		return cmd
	}

	run(m.Init())
	require.Len(t, m.(model).products, 12)
	assert.Contains(t, m.View(), "Gentle Foam Cleanser")

	run(key("a"))
	assert.Equal(t, 1, m.(model).cart.TotalItems)

	run(key("c"))
	require.NotNil(t, m.(model).pending)
	assert.Contains(t, m.View(), "Awaiting payment")

	run(key("s"))
	assert.Nil(t, m.(model).pending)
	assert.Equal(t, 0, m.(model).cart.TotalItems)
	assert.True(t, strings.HasSuffix(m.(model).status, "is paid"), m.(model).status)

	run(key("o"))
	assert.Contains(t, m.View(), "paid")

	assert.Nil(t, key("x"), "no pending payment to close")
}
