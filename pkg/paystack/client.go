package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Status values reported for charges and transfers
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusReversed  = "reversed"
	StatusAbandoned = "abandoned"
	StatusPending   = "pending"
	StatusOTP       = "otp"
)

// ErrUnavailable marks failures whose outcome is unknown: timeouts, network
// errors and 5xx responses. The operation may or may not have taken effect.
var ErrUnavailable = errors.New("payment gateway unavailable")

// APIError is a definitive rejection returned by the gateway
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paystack: %d %s", e.StatusCode, e.Message)
}

// IsDefinitive reports whether err is a rejection after which the operation is known not to have happened
func IsDefinitive(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// InitializeRequest opens a hosted checkout for a deposit
type InitializeRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Reference   string            `json:"reference"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// InitializeResponse carries the checkout link for the payer
type InitializeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Verification is the gateway's view of a charge
type Verification struct {
	Reference       string `json:"reference"`
	Status          string `json:"status"`
	Amount          int64  `json:"amount"`
	GatewayResponse string `json:"gateway_response"`
}

// Recipient identifies the bank account a transfer pays into
type Recipient struct {
	AccountNumber string
	BankCode      string
	AccountName   string
}

// TransferRequest initiates a payout
type TransferRequest struct {
	Amount    int64
	Reference string
	Reason    string
	Recipient Recipient
}

// Transfer is the gateway's view of a payout
type Transfer struct {
	Reference    string `json:"reference"`
	TransferCode string `json:"transfer_code"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
}

// Client represents a Paystack API client
type Client struct {
	BaseURL     string
	SecretKey   string
	CallbackURL string
	MockAPI     bool
	client      *http.Client

	mu       sync.Mutex
	mockPaid map[string]int64
	mockSent map[string]int64
}

// NewClient creates a new Paystack API client
func NewClient(baseURL, secretKey, callbackURL string, mockAPI bool, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		SecretKey:   secretKey,
		CallbackURL: callbackURL,
		MockAPI:     mockAPI,
		client:      &http.Client{Timeout: timeout},
		mockPaid:    make(map[string]int64),
		mockSent:    make(map[string]int64),
	}
}

// envelope is the common response wrapper of the Paystack API
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitializeTransaction opens a hosted checkout for a deposit
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	if req.CallbackURL == "" {
		req.CallbackURL = c.CallbackURL
	}
	if c.MockAPI {
		c.mu.Lock()
		c.mockPaid[req.Reference] = req.Amount
		c.mu.Unlock()
		return &InitializeResponse{
			AuthorizationURL: "https://checkout.paystack.com/mock/" + url.PathEscape(req.Reference),
			AccessCode:       "mock_" + req.Reference,
			Reference:        req.Reference,
		}, nil
	}

	var out InitializeResponse
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTransaction fetches the status of a charge by reference
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Verification, error) {
	if c.MockAPI {
		c.mu.Lock()
		amount, ok := c.mockPaid[reference]
		c.mu.Unlock()
		if !ok {
			return nil, &APIError{StatusCode: http.StatusNotFound, Message: "Transaction reference not found"}
		}
		return &Verification{Reference: reference, Status: StatusSuccess, Amount: amount, GatewayResponse: "Approved"}, nil
	}

	var out Verification
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InitiateTransfer registers the recipient and submits a payout. The reference makes
// resubmission safe: the gateway rejects a second transfer with the same reference.
func (c *Client) InitiateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	if c.MockAPI {
		c.mu.Lock()
		c.mockSent[req.Reference] = req.Amount
		c.mu.Unlock()
		return &Transfer{Reference: req.Reference, TransferCode: "TRF_mock_" + req.Reference, Status: StatusSuccess, Amount: req.Amount}, nil
	}

	var recipient struct {
		RecipientCode string `json:"recipient_code"`
	}
	recipientReq := map[string]string{
		"type":           "nuban",
		"name":           req.Recipient.AccountName,
		"account_number": req.Recipient.AccountNumber,
		"bank_code":      req.Recipient.BankCode,
		"currency":       "NGN",
	}
	if err := c.do(ctx, http.MethodPost, "/transferrecipient", recipientReq, &recipient); err != nil {
		return nil, fmt.Errorf("failed to create transfer recipient: %w", err)
	}

	transferReq := map[string]interface{}{
		"source":    "balance",
		"amount":    req.Amount,
		"reference": req.Reference,
		"recipient": recipient.RecipientCode,
		"reason":    req.Reason,
	}
	var out Transfer
	if err := c.do(ctx, http.MethodPost, "/transfer", transferReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTransfer fetches the status of a payout by reference
func (c *Client) VerifyTransfer(ctx context.Context, reference string) (*Transfer, error) {
	if c.MockAPI {
		c.mu.Lock()
		amount, ok := c.mockSent[reference]
		c.mu.Unlock()
		if !ok {
			return nil, &APIError{StatusCode: http.StatusNotFound, Message: "Transfer not found"}
		}
		return &Transfer{Reference: reference, TransferCode: "TRF_mock_" + reference, Status: StatusSuccess, Amount: amount}, nil
	}

	var out Transfer
	if err := c.do(ctx, http.MethodGet, "/transfer/verify/"+url.PathEscape(reference), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifySignature checks the x-paystack-signature header of a webhook body
func (c *Client) VerifySignature(body []byte, signature string) bool {
	if c.SecretKey == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(c.SecretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Status {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: malformed data: %v", ErrUnavailable, err)
		}
	}
	return nil
}
