package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/skinversity/storefront-go/internal/auth"
	"github.com/skinversity/storefront-go/internal/catalog"
	"github.com/skinversity/storefront-go/internal/order/checkout"
)

type model struct {
	client   *client
	products []catalog.Product
	selected int
	cart     cartView
	pending  *checkout.Placement
	status   string
	orders   string
	busy     bool
}

func initialModel(c *client) model {
	return model{client: c, status: "Loading catalog..."}
}

type productsMsg struct {
	products []catalog.Product
	err      error
}

type resultMsg struct {
	status  string
	cart    *cartView
	pending *checkout.Placement
	clear   bool
	orders  string
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg {
		ps, err := m.client.products(context.Background())
		return productsMsg{products: ps, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up":
			if m.selected > 0 {
				m.selected--
			}
		case "down":
			if m.selected < len(m.products)-1 {
				m.selected++
			}
		case "a", "c", "s", "x", "o":
			if m.busy {
				return m, nil
			}
			cmd := m.action(msg.String())
			if cmd == nil {
				return m, nil
			}
			m.busy = true
			m.status = "Working..."
			return m, cmd
		}
	case productsMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Catalog unavailable: %v", msg.err)
			return m, nil
		}
		m.products = msg.products
		m.status = "Ready"
	case resultMsg:
		m.busy = false
		m.status = msg.status
		if msg.cart != nil {
			m.cart = *msg.cart
		}
		if msg.pending != nil {
			m.pending = msg.pending
		}
		if msg.clear {
			m.pending = nil
		}
		if msg.orders != "" {
			m.orders = msg.orders
		}
	}
	return m, nil
}

func (m model) action(key string) tea.Cmd {
	ctx := context.Background()
	c := m.client
	switch key {
	case "a":
		if len(m.products) == 0 {
			return nil
		}
		p := m.products[m.selected]
		return func() tea.Msg {
			cv, err := c.addToCart(ctx, p.ID, 1)
			if err != nil {
				return resultMsg{status: fmt.Sprintf("Add failed: %v", err)}
			}
			return resultMsg{status: "Added " + p.Name, cart: &cv}
		}
	case "c":
		return func() tea.Msg {
			pl, err := c.checkout(ctx)
			if err != nil {
				return resultMsg{status: fmt.Sprintf("Checkout failed: %v", err)}
			}
			return resultMsg{
				status:  fmt.Sprintf("Order %s created (%s). Pay at %s, or press s/x", pl.Order.ID, pl.Order.Total.StringFixed(2), pl.Payment.AuthorizationURL),
				pending: &pl,
			}
		}
	case "s", "x":
		if m.pending == nil {
			return nil
		}
		pl := *m.pending
		success := key == "s"
		return func() tea.Msg {
			res, err := c.pay(ctx, pl, success)
			if err != nil {
				return resultMsg{status: fmt.Sprintf("Payment failed: %v", err)}
			}
			cv, _ := c.cart(ctx)
			if res.Notice == checkout.NoticePaymentCancelled {
				return resultMsg{status: "Payment cancelled; order still pending, cart kept", cart: &cv}
			}
			return resultMsg{status: fmt.Sprintf("Order %s is %s", res.Order.ID, res.Order.Status), cart: &cv, clear: true}
		}
	case "o":
		return func() tea.Msg {
			orders, err := c.orders(ctx)
			if err != nil {
				return resultMsg{status: fmt.Sprintf("Orders unavailable: %v", err)}
			}
			b := &strings.Builder{}
			for _, o := range orders {
				fmt.Fprintf(b, "  %s  %-9s %8s  %d items  %s\n", o.ID, o.Status, o.Total.StringFixed(2), len(o.Items), o.CreatedAt.Format(time.DateTime))
			}
			if len(orders) == 0 {
				b.WriteString("  (no orders yet)\n")
			}
			return resultMsg{status: fmt.Sprintf("%d orders", len(orders)), orders: b.String()}
		}
	}
	return nil
}

func (m model) View() string {
	b := &strings.Builder{}
	fmt.Fprintln(b, "Skinversity storefront CLI")
	fmt.Fprintln(b, "")
	fmt.Fprintln(b, "Products:")
	for i, p := range m.products {
		marker := " "
		if i == m.selected {
			marker = ">"
		}
		fmt.Fprintf(b, " %s %-28s %-13s %6s\n", marker, p.Name, p.Category, p.Price.StringFixed(2))
	}
	fmt.Fprintln(b, "")
	fmt.Fprintf(b, "Cart: %d items, total %s\n", m.cart.TotalItems, m.cart.TotalPrice.StringFixed(2))
	if m.pending != nil {
		fmt.Fprintf(b, "Awaiting payment: order %s (ref %s)\n", m.pending.Order.ID, m.pending.Payment.Reference)
	}
	if m.orders != "" {
		fmt.Fprintln(b, "")
		fmt.Fprintln(b, "Orders:")
		fmt.Fprint(b, m.orders)
	}
	fmt.Fprintln(b, "")
	fmt.Fprintf(b, "Status: %s\n", m.status)
	fmt.Fprintln(b, "\nControls: up/down select, a add to cart, c checkout, s pay, x close payment, o orders, q quit")
	return b.String()
}

// runScenario drives one full checkout without the TUI.
func runScenario(c *client, scn string) (string, error) {
	ctx := context.Background()
	switch scn {
	case "bench":
		return runBenchmark(c), nil
	case "success", "cancel":
	default:
		return "", fmt.Errorf("unknown scenario %q", scn)
	}

	if _, err := c.addToCart(ctx, "p1", 2); err != nil {
		return "", err
	}
	if _, err := c.addToCart(ctx, "p5", 1); err != nil {
		return "", err
	}
	pl, err := c.checkout(ctx)
	if err != nil {
		return "", err
	}
	res, err := c.pay(ctx, pl, scn == "success")
	if err != nil {
		return "", err
	}
	cv, err := c.cart(ctx)
	if err != nil {
		return "", err
	}
	notice := string(res.Notice)
	if notice == "" {
		notice = "-"
	}
	return fmt.Sprintf("order=%s total=%s status=%s notice=%s cart_items=%d",
		res.Order.ID, res.Order.Total.StringFixed(2), res.Order.Status, notice, cv.TotalItems), nil
}

// runBenchmark places orders from several shoppers for a few seconds.
func runBenchmark(base *client) string {
	duration := 5 * time.Second
	vus := 5
	var mu sync.Mutex
	var total time.Duration
	var count int
	var errors int
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < vus; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				c := &client{baseURL: base.baseURL, paymentURL: base.paymentURL, token: base.token, http: base.http}
				start := time.Now()
				_, err := c.addToCart(context.Background(), "p1", 1)
				if err == nil {
					_, err = c.checkout(context.Background())
				}
				mu.Lock()
				if err != nil {
					errors++
				} else {
					count++
					total += time.Since(start)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	avg := time.Duration(0)
	if count > 0 {
		avg = total / time.Duration(count)
	}
	throughput := float64(count) / duration.Seconds()
	return fmt.Sprintf("count=%d errors=%d avg=%s throughput=%.2f orders/s", count, errors, avg, throughput)
}

func main() {
	runCmd := flag.String("run", "", "run scenario: success|cancel|bench")
	flag.Parse()

	secret := getenv("JWT_SECRET", "")
	if secret == "" {
		fmt.Println("error: JWT_SECRET is required to sign the shopper token")
		os.Exit(1)
	}
	token, err := auth.NewVerifier(secret).Issue(auth.Session{
		UserID: getenv("CLI_USER_ID", "cli-shopper"),
		Email:  getenv("CLI_EMAIL", "shopper@example.com"),
	}, 24*time.Hour)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	c := &client{
		baseURL:    getenv("ORDER_BASE_URL", "http://localhost:8080"),
		paymentURL: getenv("PAYMENT_BASE_URL", "http://localhost:8081"),
		token:      token,
		http:       &http.Client{Timeout: 15 * time.Second},
	}

	if *runCmd != "" {
		out, err := runScenario(c, *runCmd)
		if err != nil {
			fmt.Println("error:", err)
			os.Exit(1)
		}
		fmt.Println(out)
		return
	}

	p := tea.NewProgram(initialModel(c))
	if _, err := p.Run(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
