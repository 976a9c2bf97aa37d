package httphandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/niksmo/twin-supply/internal/core/domain"
)

const maxBodyBytes = 1 << 20

type (
	// ErrorResponse is the body of every non-2xx response.
	ErrorResponse struct {
		Error       string                 `json:"error"`
		Detail      string                 `json:"detail,omitempty"`
		Fields      []string               `json:"fields,omitempty"`
		ServerTotal *float64               `json:"serverTotal,omitempty"`
		ClientTotal *float64               `json:"clientTotal,omitempty"`
		Items       []domain.StockShortage `json:"items,omitempty"`
	}

	StatusUpdate struct {
		Status domain.OrderStatus `json:"status"`
	}

	OrdersPage struct {
		Orders []domain.Order `json:"orders"`
		Limit  int            `json:"limit"`
		Offset int            `json:"offset"`
	}

	UpdateProductsResponse struct {
		OK    bool `json:"ok"`
		Count int  `json:"count"`
	}

	ClearOrdersResponse struct {
		OK      bool  `json:"ok"`
		Deleted int64 `json:"deleted"`
	}
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response body", "err", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w: %w", err, domain.ErrInvalidRequest)
	}
	return nil
}

// writeError maps a core error to its status code and body.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var (
		mismatch *domain.TotalsMismatchError
		stock    *domain.InsufficientStockError
		invalid  *domain.ValidationError
	)

	switch {
	case errors.As(err, &mismatch):
		log.Warn("totals mismatch",
			"serverTotal", mismatch.ServerTotal, "clientTotal", mismatch.ClientTotal)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:       "Totals mismatch",
			ServerTotal: &mismatch.ServerTotal,
			ClientTotal: &mismatch.ClientTotal,
		})
	case errors.As(err, &stock):
		log.Warn("insufficient stock", "nShortages", len(stock.Shortages))
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:  "Insufficient stock",
			Detail: domain.ShortageMessage(stock.Shortages),
			Items:  stock.Shortages,
		})
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "Missing required fields",
			Fields: invalid.Fields,
		})
	case errors.Is(err, domain.ErrEmptyCart):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Cart is empty"})
	case errors.Is(err, domain.ErrPaymentNotCompleted):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "Payment not completed", Detail: err.Error(),
		})
	case errors.Is(err, domain.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request", Detail: err.Error(),
		})
	case errors.Is(err, domain.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
	case errors.Is(err, domain.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Order not found"})
	case errors.Is(err, domain.ErrOrderConflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "Order reference conflict"})
	case errors.Is(err, domain.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: "Invalid status transition", Detail: err.Error(),
		})
	case errors.Is(err, domain.ErrNotConfigured):
		log.Error("not configured", "err", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "Server not configured", Detail: err.Error(),
		})
	case errors.Is(err, domain.ErrProvider):
		log.Error("payment provider failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "Payment provider error", Detail: err.Error(),
		})
	default:
		log.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal error"})
	}
}
