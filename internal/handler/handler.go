package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/station/internal/cache"
	"github.com/kiwari-pos/station/internal/middleware"
	"github.com/kiwari-pos/station/internal/model"
	"github.com/kiwari-pos/station/internal/orderflow"
	"github.com/kiwari-pos/station/internal/pricing"
	"github.com/kiwari-pos/station/internal/service"
	"github.com/kiwari-pos/station/internal/upstream"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// session returns the caller's station session id and staff identity.
func session(w http.ResponseWriter, r *http.Request) (string, model.Staff, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return "", model.Staff{}, false
	}
	return claims.SessionID.String(), claims.Staff(), true
}

func displayParam(r *http.Request) string {
	return strings.ToUpper(chi.URLParam(r, "display"))
}

func limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

// writeError maps service, workflow and backend errors to HTTP responses.
// Backend rejections pass their message through unchanged.
func writeError(w http.ResponseWriter, op string, err error) {
	var rejected *upstream.RejectedError
	switch {
	case errors.As(err, &rejected):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": rejected.Message})
	case errors.Is(err, upstream.ErrSessionExpired):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "session expired, please log in again"})
	case errors.Is(err, upstream.ErrTransport):
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "backend unreachable"})
	case isValidationError(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case isConflictError(err):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, orderflow.ErrForbidden), errors.Is(err, orderflow.ErrNotOwner):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case isNotFoundError(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, service.ErrMissingCredentials) ||
		errors.Is(err, service.ErrEmptyCart) ||
		errors.Is(err, service.ErrProductInactive) ||
		errors.Is(err, service.ErrUnknownVariation) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrInvalidImage) ||
		errors.Is(err, service.ErrInvalidDelivery) ||
		errors.Is(err, service.ErrInvalidPayment) ||
		errors.Is(err, service.ErrInvalidAmount) ||
		errors.Is(err, service.ErrOverpayment) ||
		errors.Is(err, service.ErrInsufficientCash) ||
		errors.Is(err, service.ErrInvalidCashPortion) ||
		errors.Is(err, pricing.ErrSplitMismatch) ||
		errors.Is(err, orderflow.ErrUnknownAction) ||
		errors.Is(err, orderflow.ErrUnknownDisplay) ||
		errors.Is(err, orderflow.ErrReasonRequired) ||
		errors.Is(err, orderflow.ErrInvalidRefundAmount)
}

func isConflictError(err error) bool {
	return errors.Is(err, orderflow.ErrIllegalTransition) ||
		errors.Is(err, orderflow.ErrParallelAdvance) ||
		errors.Is(err, service.ErrAlreadyPaid) ||
		errors.Is(err, service.ErrDrawerOpen) ||
		errors.Is(err, service.ErrDrawerNotOpen)
}

func isNotFoundError(err error) bool {
	return errors.Is(err, service.ErrItemNotFound) ||
		errors.Is(err, service.ErrImageNotFound) ||
		errors.Is(err, service.ErrProductNotFound) ||
		errors.Is(err, cache.ErrNotFound)
}
