package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/kwabenaosei/agritrade-backend/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// RequestID tags each request with the caller-supplied request id, or a
// fresh UUID when the header is absent or malformed, and echoes it on
// the response so clients can quote it in support reports.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if _, err := uuid.Parse(reqID); err != nil {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
