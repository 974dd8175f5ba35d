package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/lakay-digital/recharge-relay/internal/app/recharge"
	"github.com/lakay-digital/recharge-relay/internal/ports/out/lockstore"
)

// Signature headers, checked in order.
const (
	HeaderSignature        = "X-Platform-Hmac-Sha256"
	HeaderShopifySignature = "X-Shopify-Hmac-Sha256"
)

// RechargeService is the application surface this adapter drives.
type RechargeService interface {
	HandleWebhook(ctx context.Context, rawBody []byte, signature string) (recharge.Result, error)
	Confirm(ctx context.Context, key lockstore.Key) (recharge.Result, error)
	Reject(ctx context.Context, key lockstore.Key, reason string) (lockstore.Record, error)
	Get(ctx context.Context, key lockstore.Key) (lockstore.Record, error)
	List(ctx context.Context, f lockstore.ListFilter) ([]lockstore.Record, error)
}

type Server struct {
	svc     RechargeService
	log     *zap.Logger
	maxBody int64
}

type ResultResponse struct {
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	Key           string `json:"key,omitempty"`
	OrderID       string `json:"orderId,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
}

func resultResponse(res recharge.Result) ResultResponse {
	return ResultResponse{
		Status:        string(res.Status),
		Reason:        res.Reason,
		Key:           string(res.Key),
		OrderID:       res.OrderID,
		TransactionID: res.TransactionID,
	}
}

// HandleOrderPaid receives the platform's order-paid webhook.
//
// Only a bad signature (401), an undecodable body (400) or a failure before the key was
// claimed (500) produce non-2xx responses; every processed delivery is acknowledged with
// 200 so the platform stops retrying.
func (s *Server) HandleOrderPaid(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "webhook body too large", map[string]any{"limit": tooLarge.Limit})
			return
		}
		writeError(w, r, http.StatusBadRequest, "MALFORMED_PAYLOAD", "could not read body", nil)
		return
	}

	sig := r.Header.Get(HeaderSignature)
	if sig == "" {
		sig = r.Header.Get(HeaderShopifySignature)
	}

	res, err := s.svc.HandleWebhook(r.Context(), raw, sig)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resultResponse(res))
	case errors.Is(err, recharge.ErrInvalidSignature):
		s.log.Warn("webhook signature rejected", zap.String("remote_addr", r.RemoteAddr))
		writeError(w, r, http.StatusUnauthorized, "INVALID_SIGNATURE", "invalid webhook signature", nil)
	case errors.Is(err, recharge.ErrMalformedPayload):
		writeError(w, r, http.StatusBadRequest, "MALFORMED_PAYLOAD", err.Error(), nil)
	default:
		s.writeAppError(w, r, err)
	}
}
