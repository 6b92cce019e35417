/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and the engine, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/hacklab/inventory-engine/ledger"
)

// =============================================================================
// CATALOG
// =============================================================================

// OrganizationDTO represents an organization in API responses.
type OrganizationDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// CreateOrganizationRequest is the request to create an organization.
type CreateOrganizationRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ItemDTO represents a catalog item. Stock figures are NOT here - they
// are derived, served by the metrics endpoint.
type ItemDTO struct {
	ID           string   `json:"id"`
	Organization string   `json:"organization"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	CreatedAt    string   `json:"created_at,omitempty"`
}

// CreateItemRequest is the request to create an item.
type CreateItemRequest struct {
	Organization string   `json:"organization"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Tags         []string `json:"tags"`
}

// ItemMetricsDTO pairs an item with its derived stock figures.
type ItemMetricsDTO struct {
	ItemID string `json:"item_id"`
	ledger.ItemMetrics
}

// =============================================================================
// LEDGER OPERATIONS
// =============================================================================

// StockRequest adds or removes stock.
type StockRequest struct {
	Quantity    int    `json:"quantity"`
	Description string `json:"description"`
	ApproverID  string `json:"approver_id"`
}

// CreateLoanRequest submits a loan request for an item.
type CreateLoanRequest struct {
	RecipientID string `json:"recipient_id"`
	Quantity    int    `json:"quantity"`
	DueDate     string `json:"due_date"` // YYYY-MM-DD
	Description string `json:"description"`
}

// ApproveLoanRequest approves a pending loan.
type ApproveLoanRequest struct {
	ApproverID string `json:"approver_id"`
}

// ReturnRequest records a return against a loan.
type ReturnRequest struct {
	Quantity    int    `json:"quantity"`
	Description string `json:"description"`
}

// TransactionDTO represents one ledger row.
type TransactionDTO struct {
	ID          string `json:"id"`
	ItemID      string `json:"item_id"`
	Type        string `json:"type"`
	Quantity    int    `json:"quantity"`
	Description string `json:"description,omitempty"`
	ApproverID  string `json:"approver_id,omitempty"`
	RecipientID string `json:"recipient_id,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	Approved    bool   `json:"approved"`
	LoanID      string `json:"loan_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// LoanDTO represents a loan with its derived progress.
type LoanDTO struct {
	ID          string `json:"id"`
	ItemID      string `json:"item_id"`
	RecipientID string `json:"recipient_id"`
	Quantity    int    `json:"quantity"`
	DueDate     string `json:"due_date"`
	Approved    bool   `json:"approved"`
	ApproverID  string `json:"approver_id,omitempty"`
	Returned    int    `json:"returned"`
	Outstanding int    `json:"outstanding"`
	State       string `json:"state"`
	CreatedAt   string `json:"created_at"`
}

// UserLoansDTO partitions a user's loans the way the original inventory
// pages did: awaiting approval, currently out, fully returned.
type UserLoansDTO struct {
	WaitingApproval []LoanDTO `json:"waiting_approval"`
	OnLoan          []LoanDTO `json:"on_loan"`
	History         []LoanDTO `json:"history"`
}

// AuditReportDTO is the result of a reconciliation sweep.
type AuditReportDTO struct {
	Scope      string             `json:"scope"`
	Violations []ledger.Violation `json:"violations"`
	Clean      bool               `json:"clean"`
}

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:          string(tx.ID),
		ItemID:      string(tx.ItemID),
		Type:        string(tx.Type),
		Quantity:    tx.Quantity,
		Description: tx.Description,
		RecipientID: string(tx.Recipient),
		Approved:    tx.Approved,
		LoanID:      string(tx.Loan),
		CreatedAt:   tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.Approver != nil {
		dto.ApproverID = string(*tx.Approver)
	}
	if !tx.DueDate.IsZero() {
		dto.DueDate = tx.DueDate.Format("2006-01-02")
	}
	return dto
}

func toLoanDTO(view ledger.LoanView) LoanDTO {
	loan := view.Loan
	dto := LoanDTO{
		ID:          string(loan.ID),
		ItemID:      string(loan.ItemID),
		RecipientID: string(loan.Recipient),
		Quantity:    loan.Quantity,
		DueDate:     loan.DueDate.Format("2006-01-02"),
		Approved:    loan.Approved,
		Returned:    view.Returned,
		Outstanding: view.Outstanding(),
		State:       string(view.State),
		CreatedAt:   loan.CreatedAt.Format(time.RFC3339),
	}
	if loan.Approver != nil {
		dto.ApproverID = string(*loan.Approver)
	}
	return dto
}

func toItemDTO(item ledger.Item) ItemDTO {
	return ItemDTO{
		ID:           string(item.ID),
		Organization: string(item.Organization),
		Name:         item.Name,
		Description:  item.Description,
		Tags:         item.Tags,
		CreatedAt:    item.CreatedAt.Format(time.RFC3339),
	}
}
