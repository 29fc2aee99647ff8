package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/kwabenaosei/agritrade-backend/api/responses"
	pkgerrors "github.com/kwabenaosei/agritrade-backend/pkg/errors"
	"github.com/kwabenaosei/agritrade-backend/pkg/logger"
	"github.com/kwabenaosei/agritrade-backend/pkg/paystack"
)

// PaystackWebhookService consumes a verified webhook delivery.
type PaystackWebhookService interface {
	Process(ctx context.Context, rawBody []byte) error
}

// PaystackWebhook verifies the delivery signature and hands the payload to
// the webhook service. Processing failures still return 200 so Paystack
// does not retry events we have already judged: only a bad signature is
// rejected.
func PaystackWebhook(svc PaystackWebhookService, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		rawBody, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if !paystack.VerifyWebhookSignature(rawBody, r.Header.Get(paystack.SignatureHeader), secret) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		if err := svc.Process(ctx, rawBody); err != nil {
			if logg != nil {
				logg.Error(ctx, "paystack webhook processing failed", err)
			}
		}

		responses.WriteSuccess(w, nil)
	}
}
