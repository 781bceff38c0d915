// Package persistence records confirmed on-chain outcomes in the durable payment store.
package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/speedrun-hq/payflow/pkg/circuitbreaker"
	"github.com/speedrun-hq/payflow/pkg/logger"
	"github.com/speedrun-hq/payflow/pkg/metrics"
)

// Default retry timings
const (
	DefaultBaseBackoff = 10 * time.Second
	DefaultMaxBackoff  = 2 * time.Minute
)

// RecurringRecord is the initial record of one recurring payment contract
type RecurringRecord struct {
	ContractAddress  string          `json:"contract_address"`
	ChainID          int             `json:"chain_id"`
	Payer            string          `json:"payer"`
	Beneficiary      string          `json:"beneficiary"`
	Token            string          `json:"token"`
	MonthlyAmount    decimal.Decimal `json:"monthly_amount"`
	FirstMonthAmount decimal.Decimal `json:"first_month_amount"`
	TotalMonths      int             `json:"total_months"`
	DayOfMonth       int             `json:"day_of_month"`
	StartTime        time.Time       `json:"start_time"`
	Cancellable      bool            `json:"cancellable"`
	TxHash           string          `json:"tx_hash"`
	Status           string          `json:"status"`
}

// StatusUpdate patches the status of a payment record
type StatusUpdate struct {
	Status          string     `json:"status"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	ContractAddress string     `json:"contract_address,omitempty"`
	TxHash          string     `json:"tx_hash,omitempty"`
}

// Store is the durable payment store. Every call is idempotent on the payment id.
type Store interface {
	CreateRecurring(ctx context.Context, record RecurringRecord) error
	UpdatePayment(ctx context.Context, id string, update StatusUpdate) error
	UpdateRecurring(ctx context.Context, id string, update StatusUpdate) error
}

// StatusError is a non-2xx store response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, e.Body)
}

// Client is a REST client for the durable store
type Client struct {
	endpoint    string
	apiKey      string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	breaker     *circuitbreaker.CircuitBreaker
	logger      logger.Logger
}

var _ Store = (*Client)(nil)

// NewClient creates a new store client. breaker may be nil.
func NewClient(endpoint, apiKey string, maxRetries int, breaker *circuitbreaker.CircuitBreaker, logger logger.Logger) *Client {
	return &Client{
		endpoint:    strings.TrimRight(endpoint, "/"),
		apiKey:      apiKey,
		httpClient:  createHTTPClient(),
		maxRetries:  maxRetries,
		baseBackoff: DefaultBaseBackoff,
		maxBackoff:  DefaultMaxBackoff,
		breaker:     breaker,
		logger:      logger,
	}
}

// SetBackoff changes the retry timings
func (c *Client) SetBackoff(base, max time.Duration) {
	c.baseBackoff = base
	c.maxBackoff = max
}

// CreateRecurring creates the record of a recurring payment contract
func (c *Client) CreateRecurring(ctx context.Context, record RecurringRecord) error {
	return c.send(ctx, "create_recurring", http.MethodPost, "/payments/recurring", record)
}

// UpdatePayment patches an instant or scheduled payment
func (c *Client) UpdatePayment(ctx context.Context, id string, update StatusUpdate) error {
	return c.send(ctx, "update_payment", http.MethodPatch, "/payments/"+url.PathEscape(id), update)
}

// UpdateRecurring patches a recurring payment
func (c *Client) UpdateRecurring(ctx context.Context, id string, update StatusUpdate) error {
	return c.send(ctx, "update_recurring", http.MethodPatch, "/payments/recurring/"+url.PathEscape(id), update)
}

// CalculateBackoff returns the wait before retry number retryCount
func (c *Client) CalculateBackoff(retryCount int) time.Duration {
	// 2^retry * base
	backoff := time.Duration(math.Pow(2, float64(retryCount))) * c.baseBackoff
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}

func (c *Client) send(ctx context.Context, operation, method, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s body: %v", operation, err)
	}

	call := func() error {
		return c.withRetries(ctx, operation, func() error {
			return c.do(ctx, method, path, payload)
		})
	}

	if c.breaker != nil {
		err = c.breaker.Do(call)
	} else {
		err = call()
	}

	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.PersistenceWrites.WithLabelValues(operation, result).Inc()
	return err
}

func (c *Client) withRetries(ctx context.Context, operation string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil || !shouldRetry(err) || attempt >= c.maxRetries {
			return err
		}

		backoff := c.CalculateBackoff(attempt)
		c.logger.Warn("Store %s failed (attempt %d/%d), retrying in %v: %v", operation, attempt+1, c.maxRetries+1, backoff, err)
		metrics.PersistenceRetries.Inc()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", method, path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Error("Failed to close response body: %v", closeErr)
		}
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %v", err)
	}

	// the record already exists, which is what an idempotent create wants
	if resp.StatusCode == http.StatusConflict && method == http.MethodPost {
		c.logger.Debug("Store %s %s: record already exists", method, path)
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}
	return nil
}

// shouldRetry retries network errors, throttling and server errors
func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}
	return true
}

// Helper function to create an HTTP client with timeouts
func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
