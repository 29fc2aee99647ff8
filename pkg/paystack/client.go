package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kwabenaosei/agritrade-backend/pkg/config"
	pkgerrors "github.com/kwabenaosei/agritrade-backend/pkg/errors"
)

// SignatureHeader is the header Paystack signs webhook deliveries with.
const SignatureHeader = "X-Paystack-Signature"

// Gateway is the payment processor surface the settlement core depends on.
// All amounts are in pesewas.
type Gateway interface {
	InitializeTransaction(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	VerifyTransaction(ctx context.Context, reference string) (*VerifyResult, error)
	CreateTransferRecipient(ctx context.Context, req RecipientRequest) (string, error)
	InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	RefundTransaction(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

// InitializeRequest starts a hosted checkout for a buyer.
type InitializeRequest struct {
	Email         string
	AmountPesewas int64
	Reference     string
	CallbackURL   string
	Metadata      map[string]any
}

// InitializeResult carries the redirect URL for the buyer.
type InitializeResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// VerifyResult reports the settled state of a transaction.
type VerifyResult struct {
	Status        string
	AmountPesewas int64
	PaidAt        *time.Time
	Channel       string
	Currency      string
}

// Success reports whether the gateway confirmed the charge.
func (v *VerifyResult) Success() bool {
	return v != nil && v.Status == "success"
}

// RecipientRequest registers a seller's bank account for payouts.
type RecipientRequest struct {
	AccountName   string
	AccountNumber string
	BankCode      string
}

// TransferRequest moves held funds to a registered recipient.
type TransferRequest struct {
	AmountPesewas int64
	RecipientCode string
	Reference     string
	Reason        string
}

// TransferResult is the gateway's acknowledgement of a transfer.
// Paystack completes transfers asynchronously; a "pending" or
// "success" status here means the transfer was accepted.
type TransferResult struct {
	TransferCode string
	Status       string
}

// Accepted reports whether the gateway took ownership of the transfer.
func (t *TransferResult) Accepted() bool {
	if t == nil {
		return false
	}
	return t.Status == "success" || t.Status == "pending" || t.Status == "otp"
}

// RefundRequest reverses all or part of a settled charge.
type RefundRequest struct {
	Reference     string
	AmountPesewas int64 // zero means full refund
}

// RefundResult is the gateway's acknowledgement of a refund.
type RefundResult struct {
	RefundID int64
	Status   string
}

// Client talks to the Paystack REST API.
type Client struct {
	secretKey string
	baseURL   string
	http      *http.Client
}

// New builds a Paystack client from configuration.
func New(cfg config.Paystack) (*Client, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("paystack secret key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		secretKey: cfg.SecretKey,
		baseURL:   baseURL,
		http:      &http.Client{Timeout: timeout},
	}, nil
}

// envelope is Paystack's uniform response wrapper.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode paystack request")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build paystack request")
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "paystack request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read paystack response")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode paystack response")
	}

	if resp.StatusCode >= 500 {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("paystack %d: %s", resp.StatusCode, env.Message))
	}
	if resp.StatusCode >= 400 || !env.Status {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("paystack rejected request: %s", env.Message))
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode paystack payload")
		}
	}
	return nil
}

// InitializeTransaction starts a hosted checkout session.
func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	if req.AmountPesewas <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	payload := map[string]any{
		"email":     req.Email,
		"amount":    req.AmountPesewas,
		"reference": req.Reference,
		"currency":  "GHS",
	}
	if req.CallbackURL != "" {
		payload["callback_url"] = req.CallbackURL
	}
	if len(req.Metadata) > 0 {
		payload["metadata"] = req.Metadata
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", payload, &data); err != nil {
		return nil, err
	}
	return &InitializeResult{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

// VerifyTransaction fetches the authoritative state of a charge.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*VerifyResult, error) {
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}

	var data struct {
		Status   string `json:"status"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Channel  string `json:"channel"`
		PaidAt   string `json:"paid_at"`
	}
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &data); err != nil {
		return nil, err
	}

	result := &VerifyResult{
		Status:        data.Status,
		AmountPesewas: data.Amount,
		Currency:      data.Currency,
		Channel:       data.Channel,
	}
	if data.PaidAt != "" {
		if ts, err := time.Parse(time.RFC3339, data.PaidAt); err == nil {
			result.PaidAt = &ts
		}
	}
	return result, nil
}

// CreateTransferRecipient registers a seller's bank details and returns
// the recipient code used on subsequent transfers.
func (c *Client) CreateTransferRecipient(ctx context.Context, req RecipientRequest) (string, error) {
	if req.AccountNumber == "" || req.BankCode == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "account number and bank code are required")
	}

	payload := map[string]any{
		"type":           "nuban",
		"name":           req.AccountName,
		"account_number": req.AccountNumber,
		"bank_code":      req.BankCode,
		"currency":       "GHS",
	}
	var data struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := c.do(ctx, http.MethodPost, "/transferrecipient", payload, &data); err != nil {
		return "", err
	}
	return data.RecipientCode, nil
}

// InitiateTransfer sends held funds to a registered recipient. Paystack
// dedupes transfers by reference, so retrying with the same reference
// is safe.
func (c *Client) InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if req.AmountPesewas <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if req.RecipientCode == "" || req.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient and reference are required")
	}

	payload := map[string]any{
		"source":    "balance",
		"amount":    req.AmountPesewas,
		"recipient": req.RecipientCode,
		"reference": req.Reference,
		"currency":  "GHS",
	}
	if req.Reason != "" {
		payload["reason"] = req.Reason
	}
	var data struct {
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/transfer", payload, &data); err != nil {
		return nil, err
	}
	return &TransferResult{TransferCode: data.TransferCode, Status: data.Status}, nil
}

// RefundTransaction reverses a settled charge, fully or partially.
func (c *Client) RefundTransaction(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if req.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}

	payload := map[string]any{
		"transaction": req.Reference,
		"currency":    "GHS",
	}
	if req.AmountPesewas > 0 {
		payload["amount"] = req.AmountPesewas
	}
	var data struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodPost, "/refund", payload, &data); err != nil {
		return nil, err
	}
	return &RefundResult{RefundID: data.ID, Status: data.Status}, nil
}

// VerifyWebhookSignature checks the HMAC-SHA512 hex digest of the raw
// webhook body against the signature header in constant time.
func VerifyWebhookSignature(rawBody []byte, signatureHeader, secret string) bool {
	if signatureHeader == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}
