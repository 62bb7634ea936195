/**
 * @description
 * This file contains the HTTP handlers for the point-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * Business failures surface as typed sentinel errors from the service and are
 * mapped to status codes here: validation failures to 400, missing entities
 * to 404, and state conflicts (duplicate orders, already-canceled grants or
 * spends) to 409.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pointsystem/point-service/internal/app"
	"github.com/pointsystem/point-service/internal/domain"
	"github.com/pointsystem/point-service/internal/store"
)

// PointHandlers holds the application service that handlers will use.
type PointHandlers struct {
	service *app.Service
}

// NewPointHandlers creates a new instance of PointHandlers.
func NewPointHandlers(service *app.Service) *PointHandlers {
	return &PointHandlers{service: service}
}

type grantRequest struct {
	CustomerID string     `json:"customer_id"`
	Amount     int64      `json:"amount"`
	Type       string     `json:"type"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

type grantResponse struct {
	GrantID         string    `json:"grant_id"`
	CustomerID      string    `json:"customer_id"`
	Type            string    `json:"type"`
	AmountTotal     int64     `json:"amount_total"`
	AmountAvailable int64     `json:"amount_available"`
	ExpiresAt       time.Time `json:"expires_at"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

type spendRequest struct {
	CustomerID string `json:"customer_id"`
	OrderID    string `json:"order_id"`
	Amount     int64  `json:"amount"`
}

type allocationResponse struct {
	GrantID        string `json:"grant_id"`
	AmountUsed     int64  `json:"amount_used"`
	AmountCanceled int64  `json:"amount_canceled"`
}

type spendResponse struct {
	SpendID        string               `json:"spend_id"`
	CustomerID     string               `json:"customer_id"`
	OrderID        string               `json:"order_id"`
	AmountTotal    int64                `json:"amount_total"`
	AmountCanceled int64                `json:"amount_canceled"`
	Status         string               `json:"status"`
	Allocations    []allocationResponse `json:"allocations"`
}

type spendCancelRequest struct {
	Amount int64 `json:"amount"`
}

type spendCancelResponse struct {
	Spend                    spendResponse `json:"spend"`
	CanceledAmount           int64         `json:"canceled_amount"`
	RestoredToOriginalGrants int64         `json:"restored_to_original_grants"`
	RestoredAsNewGrants      int64         `json:"restored_as_new_grants"`
	NewRestoreGrantIDs       []string      `json:"new_restore_grant_ids"`
}

type ledgerEntryResponse struct {
	EntryID    string    `json:"entry_id"`
	EventType  string    `json:"event_type"`
	RefID      string    `json:"ref_id"`
	Amount     int64     `json:"amount"`
	OrderID    string    `json:"order_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func buildGrantResponse(g *domain.Grant) grantResponse {
	return grantResponse{
		GrantID:         g.ID.String(),
		CustomerID:      g.CustomerID,
		Type:            string(g.Type),
		AmountTotal:     g.AmountTotal,
		AmountAvailable: g.AmountAvailable,
		ExpiresAt:       g.ExpiresAt,
		Status:          string(g.Status),
		CreatedAt:       g.CreatedAt,
	}
}

func buildSpendResponse(s domain.Spend) spendResponse {
	allocations := make([]allocationResponse, len(s.Allocations))
	for i, a := range s.Allocations {
		allocations[i] = allocationResponse{
			GrantID:        a.GrantID.String(),
			AmountUsed:     a.AmountUsed,
			AmountCanceled: a.AmountCanceled,
		}
	}
	return spendResponse{
		SpendID:        s.ID.String(),
		CustomerID:     s.CustomerID,
		OrderID:        s.OrderID,
		AmountTotal:    s.AmountTotal,
		AmountCanceled: s.AmountCanceled,
		Status:         string(s.Status),
		Allocations:    allocations,
	}
}

// GrantPointsHandler handles requests to issue a new grant.
func (h *PointHandlers) GrantPointsHandler(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.CustomerID) == "" {
		h.writeError(w, http.StatusBadRequest, "customer_id is required")
		return
	}

	grantType, ok := parseGrantType(req.Type)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "type must be manual or system")
		return
	}

	grant, err := h.service.GrantPoints(r.Context(), req.CustomerID, req.Amount, grantType, req.ExpiresAt)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, buildGrantResponse(grant))
}

// CancelGrantHandler handles requests to cancel an unused grant.
func (h *PointHandlers) CancelGrantHandler(w http.ResponseWriter, r *http.Request) {
	grantID, err := uuid.Parse(chi.URLParam(r, "grantID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid grant ID")
		return
	}

	grant, err := h.service.CancelGrant(r.Context(), grantID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, buildGrantResponse(grant))
}

// SpendPointsHandler handles requests to spend points against an order.
func (h *PointHandlers) SpendPointsHandler(w http.ResponseWriter, r *http.Request) {
	var req spendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.CustomerID) == "" || strings.TrimSpace(req.OrderID) == "" {
		h.writeError(w, http.StatusBadRequest, "customer_id and order_id are required")
		return
	}

	spend, err := h.service.SpendPoints(r.Context(), req.CustomerID, req.OrderID, req.Amount)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, buildSpendResponse(*spend))
}

// CancelSpendHandler handles requests to cancel part or all of a spend.
func (h *PointHandlers) CancelSpendHandler(w http.ResponseWriter, r *http.Request) {
	spendID, err := uuid.Parse(chi.URLParam(r, "spendID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid spend ID")
		return
	}

	var req spendCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.CancelSpend(r.Context(), spendID, req.Amount)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	newGrantIDs := make([]string, len(result.NewRestoreGrants))
	for i, g := range result.NewRestoreGrants {
		newGrantIDs[i] = g.ID.String()
	}
	h.writeJSON(w, http.StatusOK, spendCancelResponse{
		Spend:                    buildSpendResponse(result.Spend),
		CanceledAmount:           result.CanceledAmount,
		RestoredToOriginalGrants: result.RestoredToOriginalGrants,
		RestoredAsNewGrants:      result.RestoredAsNewGrants,
		NewRestoreGrantIDs:       newGrantIDs,
	})
}

// ListLedgerHandler returns a customer's ledger entries, newest first.
func (h *PointHandlers) ListLedgerHandler(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	if strings.TrimSpace(customerID) == "" {
		h.writeError(w, http.StatusBadRequest, "customer_id is required")
		return
	}

	entries, err := h.service.ListLedger(r.Context(), customerID)
	if err != nil {
		log.Printf("level=error component=api msg=\"failed to list ledger\" customer_id=%s err=%v", customerID, err)
		h.writeError(w, http.StatusInternalServerError, "Unable to list ledger entries")
		return
	}

	response := make([]ledgerEntryResponse, len(entries))
	for i, e := range entries {
		response[i] = ledgerEntryResponse{
			EntryID:    e.ID.String(),
			EventType:  string(e.EventType),
			RefID:      e.RefID.String(),
			Amount:     e.Amount,
			OrderID:    e.OrderID,
			OccurredAt: e.CreatedAt,
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": response})
}

func parseGrantType(raw string) (domain.GrantType, bool) {
	switch domain.GrantType(raw) {
	case domain.GrantTypeManual, domain.GrantTypeSystem:
		return domain.GrantType(raw), true
	default:
		return "", false
	}
}

// writeServiceError maps typed service errors to HTTP status codes.
func (h *PointHandlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAmountOutOfRange),
		errors.Is(err, domain.ErrExpiresAtInvalid),
		errors.Is(err, domain.ErrBalanceLimitExceeded),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrCancelAmountInvalid):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrGrantNotFound),
		errors.Is(err, store.ErrSpendNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrDuplicateOrder),
		errors.Is(err, domain.ErrGrantAlreadyCanceled),
		errors.Is(err, domain.ErrGrantAlreadyUsed),
		errors.Is(err, domain.ErrSpendAlreadyCanceled):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("level=error component=api msg=\"unexpected service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *PointHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *PointHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
