package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mesaflow/api/internal/auth"
	"github.com/mesaflow/api/internal/service"
	"github.com/shopspring/decimal"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps core errors onto HTTP statuses. Unknown errors are
// logged and hidden behind a 500.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	var closed *service.BusinessClosedError
	if errors.As(err, &closed) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":        closed.Error(),
			"next_opening": closed.NextOpening,
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrEmptyItems),
		errors.Is(err, service.ErrOrderItemValidation),
		errors.Is(err, service.ErrInvalidDeliveryMethod),
		errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrShippingInfoRequired),
		errors.Is(err, service.ErrPlaceRequired),
		errors.Is(err, service.ErrPlaceBusinessMismatch),
		errors.Is(err, service.ErrInvalidPaymentAmount),
		errors.Is(err, service.ErrNotDeliveryStaff):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrAccessDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrOrderItemNotFound),
		errors.Is(err, service.ErrPlaceNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrBusinessInactive),
		errors.Is(err, service.ErrBusinessClosed),
		errors.Is(err, service.ErrInvalidStatusTransition),
		errors.Is(err, service.ErrOrderAlreadyHasStatus),
		errors.Is(err, service.ErrOrderReactivationNotAllowed),
		errors.Is(err, service.ErrOrderStatusConflict),
		errors.Is(err, service.ErrOrderAlreadyPaid),
		errors.Is(err, service.ErrOrderNotPayable),
		errors.Is(err, service.ErrOrderNotEditable),
		errors.Is(err, service.ErrOrderNotReady),
		errors.Is(err, service.ErrPlaceNotAvailable),
		errors.Is(err, service.ErrPlaceNotPending):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func actorFromClaims(claims *auth.Claims) service.Actor {
	return service.Actor{ID: claims.UserID, Role: claims.Role}
}

// --- response conversion helpers ---

func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0"
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return "0"
	}
	return d.StringFixed(2)
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func numericPtr(n pgtype.Numeric) *string {
	if !n.Valid {
		return nil
	}
	s := numericToString(n)
	return &s
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func uuidPtr(u pgtype.UUID) *string {
	if !u.Valid {
		return nil
	}
	s := uuidString(u)
	return &s
}

func uuidString(u pgtype.UUID) string {
	id, _ := u.Value()
	if s, ok := id.(string); ok {
		return s
	}
	return ""
}
