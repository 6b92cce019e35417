/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates organizations, items,
	and ledger transactions that demonstrate specific features.

AVAILABLE SCENARIOS:

	makerspace:     Tools and consumables, one loan mid-flight
	lending-desk:   Loans in every state, including a closed one
	audit-drill:    Clean ledger to run reconciliation sweeps against

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create organizations and items
 3. Drive the normal engine operations (add, loan, approve, return)

	Scenarios never append raw transactions. Everything flows through the
	service so the write-path guards apply, which means a loaded scenario
	is always audit-clean by construction.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "makerspace"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, h)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler context and error helpers
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hacklab/inventory-engine/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// scenarioStaff is the approver identity used by all scenario loaders.
// Wire it into the server's authorizer (see cmd/server) or approvals
// during loading will fail.
const scenarioStaff = ledger.ActorID("staff-demo")

var scenarios = []ScenarioDTO{
	{
		ID:          "makerspace",
		Name:        "Makerspace",
		Description: "Tools and consumables with one loan mid-flight",
	},
	{
		ID:          "lending-desk",
		Name:        "Lending Desk",
		Description: "Loans in every state: pending, active, partial, closed",
	},
	{
		ID:          "audit-drill",
		Name:        "Audit Drill",
		Description: "A clean multi-org ledger to run reconciliation against",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "makerspace":
		err = h.loadMakerspaceScenario(ctx)
	case "lending-desk":
		err = h.loadLendingDeskScenario(ctx)
	case "audit-drill":
		err = h.loadAuditDrillScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// seedItem creates an item under the org and stocks it. Item IDs are
// fresh UUIDs each load so a reloaded scenario never collides with
// leftover ledger rows.
func (h *Handler) seedItem(ctx context.Context, org ledger.OrgID, name string, tags []string, stock int) (ledger.ItemID, error) {
	item := ledger.Item{
		ID:           ledger.NewItemID(),
		Organization: org,
		Name:         name,
		Tags:         tags,
	}
	if err := h.Store.SaveItem(ctx, item); err != nil {
		return "", err
	}
	if _, err := h.Service.AddStock(ctx, item.ID, stock, "initial stock", ""); err != nil {
		return "", err
	}
	return item.ID, nil
}

func (h *Handler) loadMakerspaceScenario(ctx context.Context) error {
	org := ledger.Organization{
		ID:          "makerspace",
		Name:        "Makerspace",
		Description: "Shared workshop tools and consumables",
	}
	if err := h.Store.SaveOrganization(ctx, org); err != nil {
		return err
	}

	drills, err := h.seedItem(ctx, org.ID, "Cordless drill", []string{"tool", "power"}, 6)
	if err != nil {
		return err
	}
	if _, err := h.seedItem(ctx, org.ID, "Soldering iron", []string{"tool", "electronics"}, 4); err != nil {
		return err
	}
	filament, err := h.seedItem(ctx, org.ID, "PLA filament spool", []string{"consumable", "3d-printing"}, 20)
	if err != nil {
		return err
	}

	// One spool damaged in storage.
	if _, err := h.Service.LoseStock(ctx, filament, 1, "water damage", scenarioStaff); err != nil {
		return err
	}

	// An approved loan mid-flight: two drills out, none back yet.
	due := time.Now().AddDate(0, 0, 7)
	loan, err := h.Service.CreateLoan(ctx, drills, "member-alice", 2, due, "weekend project")
	if err != nil {
		return err
	}
	if _, err := h.Service.ApproveLoan(ctx, ledger.LoanID(loan.ID), scenarioStaff); err != nil {
		return err
	}
	return nil
}

func (h *Handler) loadLendingDeskScenario(ctx context.Context) error {
	org := ledger.Organization{
		ID:          "lending-desk",
		Name:        "Lending Desk",
		Description: "Equipment checkout counter",
	}
	if err := h.Store.SaveOrganization(ctx, org); err != nil {
		return err
	}

	cameras, err := h.seedItem(ctx, org.ID, "DSLR camera", []string{"media"}, 10)
	if err != nil {
		return err
	}
	due := time.Now().AddDate(0, 0, 14)

	// Pending: requested, never approved.
	if _, err := h.Service.CreateLoan(ctx, cameras, "member-bob", 1, due, "awaiting approval"); err != nil {
		return err
	}

	// Active: approved, nothing back.
	active, err := h.Service.CreateLoan(ctx, cameras, "member-carol", 2, due, "film shoot")
	if err != nil {
		return err
	}
	if _, err := h.Service.ApproveLoan(ctx, ledger.LoanID(active.ID), scenarioStaff); err != nil {
		return err
	}

	// Partial: three out, one back.
	partial, err := h.Service.CreateLoan(ctx, cameras, "member-dave", 3, due, "workshop series")
	if err != nil {
		return err
	}
	if _, err := h.Service.ApproveLoan(ctx, ledger.LoanID(partial.ID), scenarioStaff); err != nil {
		return err
	}
	if _, err := h.Service.RecordReturn(ctx, ledger.LoanID(partial.ID), 1, "returned early"); err != nil {
		return err
	}

	// Closed: fully returned, lives in history.
	closed, err := h.Service.CreateLoan(ctx, cameras, "member-carol", 1, due, "portrait session")
	if err != nil {
		return err
	}
	if _, err := h.Service.ApproveLoan(ctx, ledger.LoanID(closed.ID), scenarioStaff); err != nil {
		return err
	}
	if _, err := h.Service.RecordReturn(ctx, ledger.LoanID(closed.ID), 1, "all done"); err != nil {
		return err
	}
	return nil
}

func (h *Handler) loadAuditDrillScenario(ctx context.Context) error {
	orgs := []ledger.Organization{
		{ID: "wood-shop", Name: "Wood Shop"},
		{ID: "bio-lab", Name: "Bio Lab"},
	}
	for _, org := range orgs {
		if err := h.Store.SaveOrganization(ctx, org); err != nil {
			return err
		}
	}

	saws, err := h.seedItem(ctx, "wood-shop", "Japanese pull saw", []string{"tool"}, 8)
	if err != nil {
		return err
	}
	if _, err := h.seedItem(ctx, "bio-lab", "Micropipette", []string{"lab"}, 12); err != nil {
		return err
	}

	due := time.Now().AddDate(0, 0, 3)
	loan, err := h.Service.CreateLoan(ctx, saws, "member-erin", 2, due, "joinery class")
	if err != nil {
		return err
	}
	if _, err := h.Service.ApproveLoan(ctx, ledger.LoanID(loan.ID), scenarioStaff); err != nil {
		return err
	}
	if _, err := h.Service.RecordReturn(ctx, ledger.LoanID(loan.ID), 2, "class over"); err != nil {
		return err
	}
	return nil
}
