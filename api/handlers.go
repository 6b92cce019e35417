/*
handlers.go - HTTP API handlers for the inventory engine

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates every decision to the engine.

ENDPOINTS:
  Catalog:
    GET    /api/orgs                    List organizations
    POST   /api/orgs                    Create organization
    GET    /api/orgs/{id}/items         List an organization's items
    POST   /api/items                   Create item
    GET    /api/items/{id}              Get item
    GET    /api/items/{id}/metrics      Derived stock figures
    GET    /api/items/{id}/transactions Item ledger history

  Ledger:
    POST   /api/items/{id}/stock/add    Add stock
    POST   /api/items/{id}/stock/lose   Record a loss
    POST   /api/items/{id}/loans        Request a loan
    POST   /api/loans/{id}/approve      Approve a loan (staff)
    POST   /api/loans/{id}/returns      Record a return
    GET    /api/users/{id}/loans        A user's loans, partitioned

  Audit:
    GET    /api/audit                   Reconciliation sweep (?org= to scope)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid quantity, past due date, malformed input
  - 403: Approver not privileged
  - 404: Unknown organization, item or loan
  - 409: Insufficient stock, over-return, double approval, unapproved loan
  - 500: Integrity violations (logged loudly - they mean a bug, not bad input)
  - 503: Store conflict that survived the bounded retry

RETRIES:
  The engine surfaces store write races as retryable errors; this layer
  resubmits the operation up to 3 times before giving up.

SECURITY NOTE:
  No authentication. The approver identity comes from the request body
  and is only checked against the injected capability set. Front it with
  a real identity layer in production.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hacklab/inventory-engine/ledger"
	"github.com/hacklab/inventory-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Service *ledger.Service
	Auditor *ledger.Auditor
}

// NewHandler creates a handler wiring the engine onto the given store.
func NewHandler(store *sqlite.Store, auth ledger.Authorizer) *Handler {
	return &Handler{
		Store:   store,
		Service: ledger.NewService(store, store, auth),
		Auditor: ledger.NewAuditor(store, store),
	}
}

// conflictRetries bounds how often a raced operation is resubmitted.
const conflictRetries = 3

func withRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		err = fn()
		if !ledger.IsRetryable(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return err
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ListOrganizations returns all organizations.
func (h *Handler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.Store.ListOrganizations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list organizations", err)
		return
	}

	dtos := make([]OrganizationDTO, len(orgs))
	for i, org := range orgs {
		dtos[i] = OrganizationDTO{
			ID:          string(org.ID),
			Name:        org.Name,
			Description: org.Description,
			CreatedAt:   org.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateOrganization creates an organization.
func (h *Handler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req CreateOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	org := ledger.Organization{
		ID:          ledger.OrgID(req.ID),
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.Store.SaveOrganization(r.Context(), org); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save organization", err)
		return
	}
	writeJSON(w, http.StatusCreated, OrganizationDTO{
		ID: req.ID, Name: req.Name, Description: req.Description,
	})
}

// ListOrgItems returns an organization's items.
func (h *Handler) ListOrgItems(w http.ResponseWriter, r *http.Request) {
	orgID := ledger.OrgID(chi.URLParam(r, "id"))
	if _, err := h.Store.Organization(r.Context(), orgID); err != nil {
		h.writeEngineError(w, err)
		return
	}

	items, err := h.Store.ItemsByOrganization(r.Context(), orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list items", err)
		return
	}

	dtos := make([]ItemDTO, len(items))
	for i, item := range items {
		dtos[i] = toItemDTO(item)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateItem creates a catalog item.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Organization == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "organization and name are required", nil)
		return
	}
	if _, err := h.Store.Organization(r.Context(), ledger.OrgID(req.Organization)); err != nil {
		h.writeEngineError(w, err)
		return
	}

	item := ledger.Item{
		ID:           ledger.NewItemID(),
		Organization: ledger.OrgID(req.Organization),
		Name:         req.Name,
		Description:  req.Description,
		Tags:         req.Tags,
	}
	if err := h.Store.SaveItem(r.Context(), item); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save item", err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemDTO(item))
}

// GetItem returns a single item.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.Store.Item(r.Context(), ledger.ItemID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(item))
}

// GetItemMetrics returns the item's derived stock figures.
func (h *Handler) GetItemMetrics(w http.ResponseWriter, r *http.Request) {
	itemID := ledger.ItemID(chi.URLParam(r, "id"))
	metrics, err := h.Service.ItemMetrics(r.Context(), itemID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ItemMetricsDTO{ItemID: string(itemID), ItemMetrics: metrics})
}

// GetItemTransactions returns the item's ledger history.
func (h *Handler) GetItemTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Service.ItemLedger(r.Context(), ledger.ItemID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// AddStock appends an add transaction.
func (h *Handler) AddStock(w http.ResponseWriter, r *http.Request) {
	h.handleStock(w, r, h.Service.AddStock)
}

// LoseStock appends a lose transaction.
func (h *Handler) LoseStock(w http.ResponseWriter, r *http.Request) {
	h.handleStock(w, r, h.Service.LoseStock)
}

type stockOp func(ctx context.Context, itemID ledger.ItemID, quantity int, description string, approver ledger.ActorID) (*ledger.Transaction, error)

func (h *Handler) handleStock(w http.ResponseWriter, r *http.Request, op stockOp) {
	itemID := ledger.ItemID(chi.URLParam(r, "id"))

	var req StockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var tx *ledger.Transaction
	err := withRetry(func() error {
		var opErr error
		tx, opErr = op(r.Context(), itemID, req.Quantity, req.Description, ledger.ActorID(req.ApproverID))
		return opErr
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(*tx))
}

// CreateLoan submits a loan request for an item.
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	itemID := ledger.ItemID(chi.URLParam(r, "id"))

	var req CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.RecipientID == "" {
		writeError(w, http.StatusBadRequest, "recipient_id is required", nil)
		return
	}
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "due_date must be YYYY-MM-DD", err)
		return
	}

	var loan *ledger.Transaction
	err = withRetry(func() error {
		var opErr error
		loan, opErr = h.Service.CreateLoan(r.Context(), itemID,
			ledger.ActorID(req.RecipientID), req.Quantity, dueDate, req.Description)
		return opErr
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanDTO(ledger.LoanView{
		Loan: *loan, State: ledger.StateOf(*loan, 0),
	}))
}

// ApproveLoan approves a pending loan.
func (h *Handler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	loanID := ledger.LoanID(chi.URLParam(r, "id"))

	var req ApproveLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var loan *ledger.Transaction
	err := withRetry(func() error {
		var opErr error
		loan, opErr = h.Service.ApproveLoan(r.Context(), loanID, ledger.ActorID(req.ApproverID))
		return opErr
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	returned, err := ledger.NewResolver(h.Store).LoanReturned(r.Context(), loanID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(ledger.LoanView{
		Loan: *loan, Returned: returned, State: ledger.StateOf(*loan, returned),
	}))
}

// RecordReturn records a return against a loan.
func (h *Handler) RecordReturn(w http.ResponseWriter, r *http.Request) {
	loanID := ledger.LoanID(chi.URLParam(r, "id"))

	var req ReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var ret *ledger.Transaction
	err := withRetry(func() error {
		var opErr error
		ret, opErr = h.Service.RecordReturn(r.Context(), loanID, req.Quantity, req.Description)
		return opErr
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionDTO(*ret))
}

// ListUserLoans returns the user's loans partitioned into the three
// buckets the original inventory pages showed.
func (h *Handler) ListUserLoans(w http.ResponseWriter, r *http.Request) {
	userID := ledger.ActorID(chi.URLParam(r, "id"))

	views, err := h.Service.LoansForUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list loans", err)
		return
	}

	result := UserLoansDTO{
		WaitingApproval: []LoanDTO{},
		OnLoan:          []LoanDTO{},
		History:         []LoanDTO{},
	}
	for _, view := range views {
		dto := toLoanDTO(view)
		switch {
		case !view.Loan.Approved:
			result.WaitingApproval = append(result.WaitingApproval, dto)
		case view.IsReturned():
			result.History = append(result.History, dto)
		default:
			result.OnLoan = append(result.OnLoan, dto)
		}
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// AUDIT HANDLER
// =============================================================================

// RunAudit runs a reconciliation sweep over the whole store or one
// organization (?org=).
func (h *Handler) RunAudit(w http.ResponseWriter, r *http.Request) {
	scope := ledger.Scope{Org: ledger.OrgID(r.URL.Query().Get("org"))}

	violations, err := h.Auditor.Run(r.Context(), scope)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if len(violations) > 0 {
		log.Printf("AUDIT: %d integrity violation(s) detected", len(violations))
	}

	scopeName := "all"
	if scope.Org != "" {
		scopeName = string(scope.Org)
	}
	writeJSON(w, http.StatusOK, AuditReportDTO{
		Scope:      scopeName,
		Violations: violations,
		Clean:      len(violations) == 0,
	})
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidQuantity) || errors.Is(err, ledger.ErrPastDueDate):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case errors.Is(err, ledger.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "Permission denied", err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusConflict, "Operation rejected", err)
	case errors.Is(err, ledger.ErrIntegrityViolation):
		// A guard let something through. This is a bug, not bad input.
		log.Printf("INTEGRITY: write rejected by pre-commit guard: %v", err)
		writeError(w, http.StatusInternalServerError, "Ledger integrity violation", err)
	case ledger.IsRetryable(err):
		writeError(w, http.StatusServiceUnavailable, "Store busy, retry the operation", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
