// Package aggregator implements the order summary aggregator: fetch an
// order, then fan out to User, Product and Payment concurrently, tolerating
// any individual branch's failure.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/orderflow/backbone/common/httpclient"
)

// OrderLine is one line item on the order, priced at the order's recorded
// unit price rather than the product's current catalog price.
type OrderLine struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

type orderDTO struct {
	OrderID string      `json:"orderId"`
	UserID  string      `json:"userId"`
	Status  string      `json:"status"`
	Lines   []OrderLine `json:"lines"`
}

// UserSummary is the enrichment contributed by the User branch.
type UserSummary struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// ProductSummary is one product's enrichment from the bulk Product branch.
type ProductSummary struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
}

// PaymentSummary is the enrichment contributed by the Payment branch.
type PaymentSummary struct {
	PaymentID            string `json:"paymentId"`
	Status               string `json:"status"`
	Method               string `json:"method"`
	PaidOn               string `json:"paidOn"`
	TransactionReference string `json:"transactionReference"`
}

// OrderSummary is the aggregate response. IsPartial is true whenever any
// branch failed to enrich the result; Warnings names which.
type OrderSummary struct {
	OrderID   string            `json:"orderId"`
	Status    string            `json:"status"`
	Lines     []OrderLine       `json:"lines"`
	User      *UserSummary      `json:"user,omitempty"`
	Products  []*ProductSummary `json:"products,omitempty"`
	Payment   *PaymentSummary   `json:"payment,omitempty"`
	IsPartial bool              `json:"isPartial"`
	Warnings  []string          `json:"warnings,omitempty"`
}

// Aggregator fans out to the Order, User, Product and Payment services, each
// behind its own named circuit breaker so one flapping downstream can't
// exhaust the shared connection pool for the others.
type Aggregator struct {
	orderBaseURL   string
	userBaseURL    string
	productBaseURL string
	paymentBaseURL string

	order   *httpclient.CircuitBreakerClient
	user    *httpclient.CircuitBreakerClient
	product *httpclient.CircuitBreakerClient
	payment *httpclient.CircuitBreakerClient
}

// New builds an Aggregator addressing the four downstream base URLs, each
// call routed through its own circuit breaker over the shared client.
func New(orderBaseURL, userBaseURL, productBaseURL, paymentBaseURL string, client *httpclient.Client, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		orderBaseURL:   orderBaseURL,
		userBaseURL:    userBaseURL,
		productBaseURL: productBaseURL,
		paymentBaseURL: paymentBaseURL,

		order:   httpclient.NewCircuitBreakerClient(client, httpclient.DefaultCircuitBreakerConfig("order"), logger),
		user:    httpclient.NewCircuitBreakerClient(client, httpclient.DefaultCircuitBreakerConfig("user"), logger),
		product: httpclient.NewCircuitBreakerClient(client, httpclient.DefaultCircuitBreakerConfig("product"), logger),
		payment: httpclient.NewCircuitBreakerClient(client, httpclient.DefaultCircuitBreakerConfig("payment"), logger),
	}
}

// ErrOrderNotFound is returned by Summarize when the order does not exist or
// the Order service call otherwise fails.
var ErrOrderNotFound = fmt.Errorf("order not found")

// Summarize fetches orderID and enriches it with User, Product and Payment
// data. A failed Order fetch fails the whole call; any other branch's
// failure degrades to a partial result instead.
func (a *Aggregator) Summarize(ctx context.Context, orderID, authHeader string) (*OrderSummary, error) {
	order, err := a.fetchOrder(ctx, orderID, authHeader)
	if err != nil {
		return nil, ErrOrderNotFound
	}

	summary := &OrderSummary{OrderID: order.OrderID, Status: order.Status, Lines: order.Lines}

	g, gctx := errgroup.WithContext(ctx)
	var user *UserSummary
	var products []*ProductSummary
	var payment *PaymentSummary
	var userFailed, productsFailed, paymentFailed bool

	g.Go(func() error {
		u, err := a.fetchUser(gctx, order.UserID, authHeader)
		if err != nil {
			userFailed = true
			return nil
		}
		user = u
		return nil
	})

	g.Go(func() error {
		if len(order.Lines) == 0 {
			return nil
		}
		ids := make([]string, 0, len(order.Lines))
		seen := map[string]bool{}
		for _, l := range order.Lines {
			if !seen[l.ProductID] {
				seen[l.ProductID] = true
				ids = append(ids, l.ProductID)
			}
		}
		p, err := a.fetchProducts(gctx, ids, authHeader)
		if err != nil {
			productsFailed = true
			return nil
		}
		products = p
		return nil
	})

	g.Go(func() error {
		p, err := a.fetchPayment(gctx, orderID, authHeader)
		if err != nil {
			paymentFailed = true
			return nil
		}
		payment = p
		return nil
	})

	_ = g.Wait()

	if userFailed {
		summary.addWarning("user details unavailable")
	}
	if productsFailed {
		summary.addWarning("product details unavailable")
	}
	if paymentFailed {
		summary.addWarning("payment details unavailable")
	}

	summary.User = user
	summary.Products = products
	summary.Payment = payment
	return summary, nil
}

func (s *OrderSummary) addWarning(msg string) {
	s.IsPartial = true
	s.Warnings = append(s.Warnings, msg)
}

func (a *Aggregator) fetchOrder(ctx context.Context, orderID, authHeader string) (*orderDTO, error) {
	var order orderDTO
	if err := getJSON(ctx, a.order, fmt.Sprintf("%s/orders/%s", a.orderBaseURL, orderID), authHeader, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (a *Aggregator) fetchUser(ctx context.Context, userID, authHeader string) (*UserSummary, error) {
	var user UserSummary
	if err := getJSON(ctx, a.user, fmt.Sprintf("%s/users/%s", a.userBaseURL, userID), authHeader, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (a *Aggregator) fetchProducts(ctx context.Context, ids []string, authHeader string) ([]*ProductSummary, error) {
	payload, err := json.Marshal(map[string][]string{"ids": ids})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/products/by-ids", a.productBaseURL), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := a.product.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("product service returned %d", resp.StatusCode)
	}
	var products []*ProductSummary
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		return nil, err
	}
	return products, nil
}

func (a *Aggregator) fetchPayment(ctx context.Context, orderID, authHeader string) (*PaymentSummary, error) {
	var payment PaymentSummary
	url := fmt.Sprintf("%s/payments/by-order/%s", a.paymentBaseURL, orderID)
	if err := getJSON(ctx, a.payment, url, authHeader, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func getJSON(ctx context.Context, client *httpclient.CircuitBreakerClient, url, authHeader string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := client.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
