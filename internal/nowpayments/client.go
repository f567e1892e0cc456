// Package nowpayments wraps the NOWPayments REST API: payment creation,
// minimum-amount lookup, status polling and IPN signature verification.
package nowpayments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrAmountTooSmall is returned when the provider rejects a payment because
// the fiat amount converts to less than the network minimum for the coin.
var ErrAmountTooSmall = errors.New("payment amount below provider minimum")

// APIError is a non-2xx response from the provider with its decoded body.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("nowpayments: %s (%d %s)", e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("nowpayments: request failed with status %d", e.StatusCode)
}

type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: httpClient,
	}
}

// Payment is the provider's payment object, shared by the create-payment
// response, the status endpoint and the IPN callback payload. Numeric
// fields stay json.Number so the IPN body can be re-serialized without
// altering the literals the signature was computed over.
type Payment struct {
	PaymentID        json.Number `json:"payment_id"`
	PaymentStatus    string      `json:"payment_status"`
	PayAddress       string      `json:"pay_address"`
	PriceAmount      json.Number `json:"price_amount"`
	PriceCurrency    string      `json:"price_currency"`
	PayAmount        json.Number `json:"pay_amount"`
	PayCurrency      string      `json:"pay_currency"`
	ActuallyPaid     json.Number `json:"actually_paid"`
	OutcomeAmount    json.Number `json:"outcome_amount"`
	OrderID          string      `json:"order_id"`
	OrderDescription string      `json:"order_description"`
	PayinHash        string      `json:"payin_hash"`
	Confirmations    int         `json:"confirmations"`
	Network          string      `json:"network"`
	ExpirationDate   string      `json:"expiration_estimate_date"`
	CreatedAt        string      `json:"created_at"`
	UpdatedAt        string      `json:"updated_at"`
}

type CreatePaymentRequest struct {
	PriceAmount      float64 `json:"price_amount"`
	PriceCurrency    string  `json:"price_currency"`
	PayCurrency      string  `json:"pay_currency"`
	IPNCallbackURL   string  `json:"ipn_callback_url,omitempty"`
	OrderID          string  `json:"order_id,omitempty"`
	OrderDescription string  `json:"order_description,omitempty"`
}

type MinAmount struct {
	CurrencyFrom   string      `json:"currency_from"`
	CurrencyTo     string      `json:"currency_to"`
	MinAmount      json.Number `json:"min_amount"`
	FiatEquivalent json.Number `json:"fiat_equivalent"`
}

func (c *Client) Currencies(ctx context.Context) ([]string, error) {
	var out struct {
		Currencies []string `json:"currencies"`
	}
	if err := c.do(ctx, http.MethodGet, "/currencies", nil, &out); err != nil {
		return nil, err
	}
	return out.Currencies, nil
}

// MinAmountFor returns the smallest payable amount for a coin, with its
// fiat equivalent in the given settlement currency.
func (c *Client) MinAmountFor(ctx context.Context, payCurrency, fiatCurrency string) (MinAmount, error) {
	query := url.Values{
		"currency_from":   {payCurrency},
		"currency_to":     {fiatCurrency},
		"fiat_equivalent": {fiatCurrency},
	}
	var out MinAmount
	if err := c.do(ctx, http.MethodGet, "/min-amount?"+query.Encode(), nil, &out); err != nil {
		return MinAmount{}, err
	}
	return out, nil
}

func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (Payment, error) {
	var out Payment
	if err := c.do(ctx, http.MethodPost, "/payment", req, &out); err != nil {
		return Payment{}, err
	}
	return out, nil
}

func (c *Client) PaymentStatus(ctx context.Context, paymentID string) (Payment, error) {
	var out Payment
	if err := c.do(ctx, http.MethodGet, "/payment/"+url.PathEscape(paymentID), nil, &out); err != nil {
		return Payment{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("x-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("nowpayments: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("nowpayments: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, payload)
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("nowpayments: decode response: %w", err)
	}
	return nil
}

func decodeAPIError(statusCode int, payload []byte) error {
	apiErr := &APIError{StatusCode: statusCode}
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	}
	if apiErr.Code == "AMOUNT_MINIMAL_ERROR" || strings.Contains(strings.ToLower(apiErr.Message), "amount is too small") {
		return fmt.Errorf("%w: %s", ErrAmountTooSmall, apiErr.Message)
	}
	return apiErr
}
