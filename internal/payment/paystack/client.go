package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/example/ec-shop/internal/apperror"
	"github.com/example/ec-shop/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL     = "https://api.paystack.co"
	DefaultMaxAttempts = 3
	DefaultBackoff     = time.Second

	initializePath = "/transaction/initialize"
)

var tracer = otel.Tracer("github.com/example/ec-shop/internal/payment/paystack")

// Config configures a Client. Zero values fall back to the defaults above.
type Config struct {
	BaseURL     string
	SecretKey   string
	MaxAttempts int
	Backoff     time.Duration
	Timeout     time.Duration
}

// Client initializes charges against the Paystack transaction API
type Client struct {
	baseURL     string
	secretKey   string
	maxAttempts int
	backoff     time.Duration
	httpClient  *http.Client
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// NewClient creates a new gateway client. logger and m may be nil.
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger, m *metrics.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		secretKey:   cfg.SecretKey,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		httpClient:  httpClient,
		logger:      logger.Named("paystack"),
		metrics:     m,
	}
}

// ChargeRequest is the body of a transaction initialize call
type ChargeRequest struct {
	Email       string   `json:"email"`
	Amount      int64    `json:"amount"` // minor units
	Reference   string   `json:"reference"`
	CallbackURL string   `json:"callback_url,omitempty"`
	Metadata    Metadata `json:"metadata"`
	Channels    []string `json:"channels,omitempty"`
}

// Metadata travels with the transaction and comes back in webhook events
type Metadata struct {
	OrderID      string         `json:"order_id"`
	CancelAction string         `json:"cancel_action,omitempty"`
	OrderItems   []MetadataItem `json:"order_items,omitempty"`
	CustomFields []CustomField  `json:"custom_fields,omitempty"`
}

type MetadataItem struct {
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       string `json:"price"`
	Size        string `json:"size,omitempty"`
}

type CustomField struct {
	DisplayName  string `json:"display_name"`
	VariableName string `json:"variable_name"`
	Value        string `json:"value"`
}

// Charge is an initialized transaction awaiting customer payment
type Charge struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type initializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    Charge `json:"data"`
}

// InitializeCharge calls the gateway, retrying transport errors and non-success
// responses up to MaxAttempts with a fixed backoff between attempts.
func (c *Client) InitializeCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	ctx, span := tracer.Start(ctx, "paystack.InitializeCharge")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.reference", req.Reference),
		attribute.Int64("payment.amount", req.Amount),
	)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindGatewayInitFailed, apperror.ErrGatewayInitializationFailed.Message, err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		charge, err := c.initializeOnce(ctx, body)
		if err == nil {
			c.metrics.GatewayAttempt("success")
			span.SetAttributes(attribute.Int("payment.attempts", attempt))
			return charge, nil
		}
		lastErr = err
		c.metrics.GatewayAttempt("failure")
		c.logger.Warn("initialize attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
			zap.String("reference", req.Reference),
			zap.Error(err),
		)

		if attempt < c.maxAttempts {
			if err := sleep(ctx, c.backoff); err != nil {
				lastErr = err
				break
			}
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "initialize failed")
	return nil, apperror.Wrap(apperror.KindGatewayInitFailed, apperror.ErrGatewayInitializationFailed.Message,
		fmt.Errorf("after %d attempts: %w", c.maxAttempts, lastErr))
}

func (c *Client) initializeOnce(ctx context.Context, body []byte) (*Charge, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+initializePath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed initializeResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && parsed.Message != "" {
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, parsed.Message)
		}
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	if !parsed.Status || parsed.Data.AuthorizationURL == "" {
		return nil, errors.New("response has no authorization url")
	}
	return &parsed.Data, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
