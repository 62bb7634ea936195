package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pointsystem/point-service/internal/domain"
	"github.com/pointsystem/point-service/internal/store"
)

func TestWriteServiceErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "amount out of range", err: domain.ErrAmountOutOfRange, wantStatus: http.StatusBadRequest},
		{name: "invalid expiry", err: domain.ErrExpiresAtInvalid, wantStatus: http.StatusBadRequest},
		{name: "balance limit exceeded", err: domain.ErrBalanceLimitExceeded, wantStatus: http.StatusBadRequest},
		{name: "insufficient balance", err: domain.ErrInsufficientBalance, wantStatus: http.StatusBadRequest},
		{name: "invalid cancel amount", err: domain.ErrCancelAmountInvalid, wantStatus: http.StatusBadRequest},
		{name: "grant not found", err: store.ErrGrantNotFound, wantStatus: http.StatusNotFound},
		{name: "spend not found", err: store.ErrSpendNotFound, wantStatus: http.StatusNotFound},
		{name: "duplicate order", err: domain.ErrDuplicateOrder, wantStatus: http.StatusConflict},
		{name: "grant already canceled", err: domain.ErrGrantAlreadyCanceled, wantStatus: http.StatusConflict},
		{name: "grant already used", err: domain.ErrGrantAlreadyUsed, wantStatus: http.StatusConflict},
		{name: "spend already canceled", err: domain.ErrSpendAlreadyCanceled, wantStatus: http.StatusConflict},
		{name: "unknown error", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	h := &PointHandlers{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeServiceError(rec, tt.err)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Fatalf("expected json content type, got %q", ct)
			}
		})
	}
}

func TestWriteServiceErrorMapsWrappedErrors(t *testing.T) {
	h := &PointHandlers{}
	rec := httptest.NewRecorder()

	wrapped := errors.Join(errors.New("allocating spend"), domain.ErrInsufficientBalance)
	h.writeServiceError(rec, wrapped)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected wrapped sentinel to map to 400, got %d", rec.Code)
	}
}
