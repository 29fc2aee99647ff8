package paystack

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwabenaosei/agritrade-backend/pkg/config"
	pkgerrors "github.com/kwabenaosei/agritrade-backend/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(config.Paystack{
		SecretKey: "sk_test_abc",
		BaseURL:   srv.URL,
	})
	require.NoError(t, err)
	return client
}

func TestInitializeTransaction(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_abc", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "buyer@example.com", body["email"])
		assert.Equal(t, float64(10925), body["amount"])
		assert.Equal(t, "GHS", body["currency"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]any{
				"authorization_url": "https://checkout.paystack.com/abc123",
				"access_code":       "abc123",
				"reference":         "ORD-1700000000-XYZ",
			},
		})
	})

	result, err := client.InitializeTransaction(context.Background(), InitializeRequest{
		Email:         "buyer@example.com",
		AmountPesewas: 10925,
		Reference:     "ORD-1700000000-XYZ",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/abc123", result.AuthorizationURL)
	assert.Equal(t, "ORD-1700000000-XYZ", result.Reference)
}

func TestInitializeTransactionRejectsNonPositiveAmount(t *testing.T) {
	t.Parallel()

	client, err := New(config.Paystack{SecretKey: "sk_test_abc"})
	require.NoError(t, err)

	_, err = client.InitializeTransaction(context.Background(), InitializeRequest{
		Email:         "buyer@example.com",
		AmountPesewas: 0,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestVerifyTransaction(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/ORD-1700000000-XYZ", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": true,
			"data": map[string]any{
				"status":   "success",
				"amount":   10925,
				"currency": "GHS",
				"channel":  "mobile_money",
				"paid_at":  "2026-08-30T12:00:00Z",
			},
		})
	})

	result, err := client.VerifyTransaction(context.Background(), "ORD-1700000000-XYZ")
	require.NoError(t, err)
	assert.True(t, result.Success())
	assert.Equal(t, int64(10925), result.AmountPesewas)
	require.NotNil(t, result.PaidAt)
}

func TestGatewayRejectionMapsToDependencyError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  false,
			"message": "Transfer recipient not found",
		})
	})

	_, err := client.InitiateTransfer(context.Background(), TransferRequest{
		AmountPesewas: 8075,
		RecipientCode: "RCP_missing",
		Reference:     "TRF-1700000000-aa11bb22",
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
}

func TestTransferResultAccepted(t *testing.T) {
	t.Parallel()

	assert.True(t, (&TransferResult{Status: "pending"}).Accepted())
	assert.True(t, (&TransferResult{Status: "success"}).Accepted())
	assert.False(t, (&TransferResult{Status: "failed"}).Accepted())
	var nilResult *TransferResult
	assert.False(t, nilResult.Accepted())
}

func TestVerifyWebhookSignature(t *testing.T) {
	t.Parallel()

	secret := "sk_test_abc"
	body := []byte(`{"event":"charge.success","data":{"reference":"ORD-1700000000-XYZ"}}`)

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	signature := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, VerifyWebhookSignature(body, signature, secret))
	assert.False(t, VerifyWebhookSignature(body, signature, "wrong-secret"))
	assert.False(t, VerifyWebhookSignature([]byte(`tampered`), signature, secret))
	assert.False(t, VerifyWebhookSignature(body, "", secret))
}
