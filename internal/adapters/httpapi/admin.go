package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/nullable"
	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/lakay-digital/recharge-relay/internal/app/recharge"
	"github.com/lakay-digital/recharge-relay/internal/ports/out/lockstore"
)

type RechargeView struct {
	Key              string                    `json:"key"`
	Status           string                    `json:"status"`
	OrderID          nullable.Nullable[string] `json:"orderId,omitempty"`
	CheckoutID       nullable.Nullable[string] `json:"checkoutId,omitempty"`
	Phone            string                    `json:"phone"`
	Amount           string                    `json:"amount"`
	ProductTitle     string                    `json:"productTitle,omitempty"`
	BundleOperatorID nullable.Nullable[int64]  `json:"bundleOperatorId,omitempty"`
	TransactionID    nullable.Nullable[string] `json:"transactionId,omitempty"`
	LastError        nullable.Nullable[string] `json:"lastError,omitempty"`
	NeedsReconcile   bool                      `json:"needsReconcile"`
	CreatedAt        time.Time                 `json:"createdAt"`
	UpdatedAt        time.Time                 `json:"updatedAt"`
}

type ListRechargesResponse struct {
	Recharges []RechargeView `json:"recharges"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type ListRechargesParams struct {
	Status *string `form:"status,omitempty" json:"status,omitempty"`
	Limit  *int    `form:"limit,omitempty" json:"limit,omitempty"`
}

func (s *Server) ListRecharges(w http.ResponseWriter, r *http.Request) {
	var params ListRechargesParams
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "status", q, &params.Status); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "invalid status parameter", map[string]any{"error": err.Error()})
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", q, &params.Limit); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "invalid limit parameter", map[string]any{"error": err.Error()})
		return
	}

	var f lockstore.ListFilter
	if params.Status != nil {
		f.Status = lockstore.Status(*params.Status)
	}
	if params.Limit != nil {
		if *params.Limit < 1 {
			writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be positive", map[string]any{"limit": *params.Limit})
			return
		}
		f.Limit = *params.Limit
	}

	recs, err := s.svc.List(r.Context(), f)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	out := ListRechargesResponse{Recharges: make([]RechargeView, 0, len(recs))}
	for _, rec := range recs {
		out.Recharges = append(out.Recharges, rechargeView(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) GetRecharge(w http.ResponseWriter, r *http.Request) {
	key, ok := bindKey(w, r)
	if !ok {
		return
	}
	rec, err := s.svc.Get(r.Context(), key)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rechargeView(rec))
}

func (s *Server) ConfirmRecharge(w http.ResponseWriter, r *http.Request) {
	key, ok := bindKey(w, r)
	if !ok {
		return
	}
	actor, _ := SubjectFromContext(r.Context())
	s.log.Info("recharge confirm requested", zap.String("idempotency_key", string(key)), zap.String("actor", actor))

	res, err := s.svc.Confirm(r.Context(), key)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse(res))
}

func (s *Server) RejectRecharge(w http.ResponseWriter, r *http.Request) {
	key, ok := bindKey(w, r)
	if !ok {
		return
	}
	var body RejectRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON body", nil)
		return
	}
	actor, _ := SubjectFromContext(r.Context())
	s.log.Info("recharge reject requested", zap.String("idempotency_key", string(key)), zap.String("actor", actor))

	rec, err := s.svc.Reject(r.Context(), key, body.Reason)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rechargeView(rec))
}

func bindKey(w http.ResponseWriter, r *http.Request) (lockstore.Key, bool) {
	var key string
	err := runtime.BindStyledParameterWithOptions("simple", "key", chi.URLParam(r, "key"), &key, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil || key == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "invalid recharge key", nil)
		return "", false
	}
	return lockstore.Key(key), true
}

func rechargeView(rec lockstore.Record) RechargeView {
	return RechargeView{
		Key:              string(rec.Key),
		Status:           string(rec.Status),
		OrderID:          nullableString(rec.OrderID),
		CheckoutID:       nullableString(rec.CheckoutID),
		Phone:            rec.Phone,
		Amount:           rec.Amount,
		ProductTitle:     rec.ProductTitle,
		BundleOperatorID: nullableInt64(rec.BundleOperatorID),
		TransactionID:    nullableString(rec.TransactionID),
		LastError:        nullableString(rec.LastError),
		NeedsReconcile:   recharge.NeedsReconcile(rec),
		CreatedAt:        rec.CreatedAt.UTC(),
		UpdatedAt:        rec.UpdatedAt.UTC(),
	}
}

func nullableString(s string) nullable.Nullable[string] {
	if s == "" {
		return nil
	}
	return nullable.NewNullableWithValue(s)
}

func nullableInt64(v int64) nullable.Nullable[int64] {
	if v == 0 {
		return nil
	}
	return nullable.NewNullableWithValue(v)
}
