/*
workflow.go - Payroll approval state machine

PURPOSE:
  Governs a payroll record's lifecycle and which roles may drive which
  transition. The role guards are a server-side authorization boundary,
  not a UI affordance: an unauthorized call is rejected with a
  distinguishable error and no state change.

STATE MACHINE:

  DRAFT ──submit──▶ PENDING_REVIEW ──confirm──▶ CONFIRMED ──markPaid──▶ PAID
                          │                         │
                          └────────dispute──────────┴──▶ DISPUTED

  DISPUTED returns the payroll to an editable state: it can be regenerated
  (aggregate.go) and re-submitted. Delete is only permitted in DRAFT.

GUARDS:
  submit:   any authorized editor (driver, admin, accountant)
  confirm:  the payroll's own driver, or an admin
  markPaid: accountant or admin only
  dispute:  either party (driver, admin, accountant)
  delete:   admin or accountant, DRAFT only

  Every transition records its timestamp and is rejected with an
  InvalidTransition error when attempted from a non-source state - no
  skipping PENDING_REVIEW, no re-confirming a PAID record.
*/
package payroll

import (
	"context"
	"time"
)

// Workflow drives payroll status transitions. It shares the PeriodGuard
// with the Aggregator so a transition never races a regeneration of the
// same (driver, period).
type Workflow struct {
	Payrolls PayrollStore
	Guard    *PeriodGuard
}

func NewWorkflow(payrolls PayrollStore, guard *PeriodGuard) *Workflow {
	if guard == nil {
		guard = NewPeriodGuard()
	}
	return &Workflow{Payrolls: payrolls, Guard: guard}
}

// Submit moves a DRAFT payroll to PENDING_REVIEW, freezing its adjustments
// and notes as submitted.
func (w *Workflow) Submit(ctx context.Context, actor Actor, id PayrollID) (*Payroll, error) {
	return w.transition(ctx, actor, id, "submit",
		func(role Role) bool {
			return role == RoleDriver || role == RoleAdmin || role == RoleAccountant
		},
		func(p *Payroll, _ Actor, now time.Time) error {
			if p.Status != StatusDraft {
				return &TransitionError{PayrollID: p.ID, Action: "submit", From: p.Status}
			}
			p.Status = StatusPendingReview
			p.SubmittedAt = &now
			return nil
		})
}

// Confirm moves PENDING_REVIEW to CONFIRMED. Restricted to the payroll's
// own driver (self-confirmation) or an admin; the timestamp records which
// side confirmed.
func (w *Workflow) Confirm(ctx context.Context, actor Actor, id PayrollID) (*Payroll, error) {
	return w.transition(ctx, actor, id, "confirm",
		func(role Role) bool { return role == RoleDriver || role == RoleAdmin },
		func(p *Payroll, actor Actor, now time.Time) error {
			if p.Status != StatusPendingReview {
				return &TransitionError{PayrollID: p.ID, Action: "confirm", From: p.Status}
			}
			if actor.Role == RoleDriver && actor.ID != string(p.DriverID) {
				return &UnauthorizedError{Action: "confirm another driver's payroll", Role: actor.Role}
			}
			p.Status = StatusConfirmed
			if actor.Role == RoleDriver {
				p.ConfirmedByDriverAt = &now
			} else {
				p.ConfirmedByHRAt = &now
			}
			return nil
		})
}

// MarkPaid moves CONFIRMED to PAID. Accounting/admin only - this is the
// hard authorization boundary of the workflow.
func (w *Workflow) MarkPaid(ctx context.Context, actor Actor, id PayrollID) (*Payroll, error) {
	return w.transition(ctx, actor, id, "mark paid",
		func(role Role) bool { return role == RoleAccountant || role == RoleAdmin },
		func(p *Payroll, _ Actor, now time.Time) error {
			if p.Status != StatusConfirmed {
				return &TransitionError{PayrollID: p.ID, Action: "mark paid", From: p.Status}
			}
			p.Status = StatusPaid
			p.PaidAt = &now
			return nil
		})
}

// Dispute moves PENDING_REVIEW or CONFIRMED to DISPUTED, returning the
// payroll to an editable state. Either party may raise a dispute.
func (w *Workflow) Dispute(ctx context.Context, actor Actor, id PayrollID, reason string) (*Payroll, error) {
	return w.transition(ctx, actor, id, "dispute",
		func(role Role) bool {
			return role == RoleDriver || role == RoleAdmin || role == RoleAccountant
		},
		func(p *Payroll, _ Actor, now time.Time) error {
			if p.Status != StatusPendingReview && p.Status != StatusConfirmed {
				return &TransitionError{PayrollID: p.ID, Action: "dispute", From: p.Status}
			}
			p.Status = StatusDisputed
			p.DisputedAt = &now
			p.DisputeReason = reason
			return nil
		})
}

// Delete removes a payroll. Only DRAFT records may be deleted; anything
// further along the workflow is history.
func (w *Workflow) Delete(ctx context.Context, actor Actor, id PayrollID) error {
	if actor.Role != RoleAdmin && actor.Role != RoleAccountant {
		return &UnauthorizedError{Action: "delete", Role: actor.Role}
	}

	p, err := w.Payrolls.GetPayroll(ctx, id)
	if err != nil {
		return err
	}

	period := p.Period()
	if err := w.Guard.Acquire(p.DriverID, period); err != nil {
		return err
	}
	defer w.Guard.Release(p.DriverID, period)

	p, err = w.Payrolls.GetPayroll(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != StatusDraft {
		return &TransitionError{PayrollID: p.ID, Action: "delete", From: p.Status}
	}
	return w.Payrolls.DeletePayroll(ctx, id)
}

// transition is the shared skeleton: role guard, period lock, reload,
// state-specific mutation, timestamp, save.
func (w *Workflow) transition(
	ctx context.Context,
	actor Actor,
	id PayrollID,
	action string,
	roleAllowed func(Role) bool,
	apply func(p *Payroll, actor Actor, now time.Time) error,
) (*Payroll, error) {
	if !roleAllowed(actor.Role) {
		return nil, &UnauthorizedError{Action: action, Role: actor.Role}
	}

	p, err := w.Payrolls.GetPayroll(ctx, id)
	if err != nil {
		return nil, err
	}

	period := p.Period()
	if err := w.Guard.Acquire(p.DriverID, period); err != nil {
		return nil, err
	}
	defer w.Guard.Release(p.DriverID, period)

	// Re-read under the lock: the record may have moved while we waited.
	p, err = w.Payrolls.GetPayroll(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := apply(p, actor, now); err != nil {
		return nil, err
	}
	p.UpdatedAt = now

	if err := w.Payrolls.SavePayroll(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
