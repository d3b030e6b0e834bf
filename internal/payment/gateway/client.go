package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"gift-marketplace/internal/logger"
	"gift-marketplace/internal/models"
)

// Gateway result codes as reported by the query endpoint and webhook.
const (
	ResultPaid     = 1
	ResultDeclined = 2
	ResultFailed   = 3
	ResultPending  = 4
)

// StatusAccepted is the submit-endpoint status signalling the invoice was
// accepted and a checkout token issued.
const StatusAccepted = 1

// Invoice is the payload submitted to the gateway's invoice endpoint.
type Invoice struct {
	OrderID     string
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	Amount      float64
	Currency    string
	RedirectURL string
	PostURL     string
}

type SubmitResult struct {
	Status      int    `json:"status"`
	Token       string `json:"token"`
	Message     string `json:"message"`
	CheckoutURL string `json:"-"`
}

// QueryResult carries the gateway-reported transaction state. The same field
// set arrives via the query endpoint and the server-to-server webhook.
type QueryResult struct {
	Result        int     `json:"result"`
	ResultText    string  `json:"result-text"`
	TransactionID string  `json:"transaction-id"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	DateProcessed string  `json:"date-processed"`
	Token         string  `json:"token"`
	PaymentMethod string  `json:"payment-method"`
}

type Client struct {
	BaseURL    string
	MerchantID string
	APIKey     string
	HTTP       *http.Client
	Logger     *logger.Logger
}

func NewClient(baseURL, merchantID, apiKey string, httpClient *http.Client, log *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		MerchantID: merchantID,
		APIKey:     apiKey,
		HTTP:       httpClient,
		Logger:     log,
	}
}

// Submit posts a form-encoded invoice to the gateway. A status of 1 means the
// invoice was accepted and a checkout token was issued.
func (c *Client) Submit(ctx context.Context, inv Invoice) (*SubmitResult, error) {
	form := url.Values{}
	form.Set("merchant-id", c.MerchantID)
	form.Set("api-key", c.APIKey)
	form.Set("firstname", inv.FirstName)
	form.Set("lastname", inv.LastName)
	form.Set("email", inv.Email)
	form.Set("phonenumber", inv.Phone)
	form.Set("amount", fmt.Sprintf("%.2f", inv.Amount))
	form.Set("currency", inv.Currency)
	form.Set("order-id", inv.OrderID)
	form.Set("redirect-url", inv.RedirectURL)
	form.Set("post-url", inv.PostURL)

	var result SubmitResult
	if err := c.postForm(ctx, "/api/submit", form, &result); err != nil {
		return nil, err
	}

	if result.Status == StatusAccepted && result.Token != "" {
		result.CheckoutURL = fmt.Sprintf("%s/checkout?token=%s", c.BaseURL, url.QueryEscape(result.Token))
	}
	if c.Logger != nil {
		c.Logger.LogGateway("SUBMIT", MaskToken(result.Token), fmt.Sprintf("order %s status=%d %s", inv.OrderID, result.Status, result.Message))
	}
	return &result, nil
}

// Query polls transaction status by token.
func (c *Client) Query(ctx context.Context, token string) (*QueryResult, error) {
	form := url.Values{}
	form.Set("merchant-id", c.MerchantID)
	form.Set("api-key", c.APIKey)
	form.Set("token", token)

	var result QueryResult
	if err := c.postForm(ctx, "/api/query", form, &result); err != nil {
		return nil, err
	}
	result.Token = token
	if c.Logger != nil {
		c.Logger.LogGateway("QUERY", MaskToken(token), fmt.Sprintf("result=%d %s", result.Result, result.ResultText))
	}
	return &result, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}

// failureKeywords disambiguate result code 3, which the gateway uses both for
// hard failures and for still-settling transactions.
var failureKeywords = []string{"fail", "declin", "insufficient", "error", "cancel", "reject"}

// MapResult maps the gateway's numeric result code to a canonical order
// status. Unrecognized codes carry no new information and keep the current
// status unchanged.
func MapResult(result int, resultText, currentStatus string) string {
	switch result {
	case ResultPaid:
		return models.StatusPaid
	case ResultDeclined:
		return models.StatusDeclined
	case ResultFailed:
		lower := strings.ToLower(resultText)
		for _, kw := range failureKeywords {
			if strings.Contains(lower, kw) {
				return models.StatusFailed
			}
		}
		return models.StatusPending
	case ResultPending:
		return models.StatusPending
	default:
		return currentStatus
	}
}

// AmountMatches compares the gateway-reported amount/currency against the
// order's expected values at minor-unit granularity, tolerating 1 cent of
// rounding drift. A mismatch means the "paid" result cannot be trusted.
func AmountMatches(expectedAmount float64, expectedCurrency string, gotAmount float64, gotCurrency string) bool {
	if !strings.EqualFold(expectedCurrency, gotCurrency) {
		return false
	}
	diff := models.MinorUnits(expectedAmount) - models.MinorUnits(gotAmount)
	if diff < 0 {
		diff = -diff
	}
	return diff <= 1
}

// MaskToken keeps only the trailing characters of a gateway token for logs
// and debug trails.
func MaskToken(token string) string {
	if len(token) <= 4 {
		return token
	}
	return "..." + token[len(token)-4:]
}
