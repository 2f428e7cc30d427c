package payroll_test

// Engine setup helpers (newTestEngine, seedTrips, march2025) are defined in
// aggregate_test.go.

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulmark/payroll-engine/payroll"
)

var (
	driverActor     = payroll.Actor{ID: "driver-1", Role: payroll.RoleDriver}
	otherDriver     = payroll.Actor{ID: "driver-9", Role: payroll.RoleDriver}
	adminActor      = payroll.Actor{ID: "hr-1", Role: payroll.RoleAdmin}
	accountantActor = payroll.Actor{ID: "acct-1", Role: payroll.RoleAccountant}
)

func newDraftPayroll(t *testing.T) (*payroll.Aggregator, *payroll.Workflow, payroll.PayrollID) {
	t.Helper()
	agg, wf, mem := newTestEngine(t)

	at := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	seedTrips(t, mem, tripOn("a", payroll.Date(2025, time.March, 10), at))

	p, err := agg.Generate(context.Background(), "driver-1", march2025())
	require.NoError(t, err)
	return agg, wf, p.ID
}

// =============================================================================
// LIFECYCLE TESTS
// =============================================================================

func TestWorkflow_FullLifecycle(t *testing.T) {
	// DRAFT -> PENDING_REVIEW -> CONFIRMED -> PAID, with each transition
	// stamping its timestamp.

	_, wf, id := newDraftPayroll(t)
	ctx := context.Background()

	p, err := wf.Submit(ctx, adminActor, id)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusPendingReview, p.Status)
	require.NotNil(t, p.SubmittedAt)

	p, err = wf.Confirm(ctx, driverActor, id)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusConfirmed, p.Status)
	require.NotNil(t, p.ConfirmedByDriverAt)
	assert.Nil(t, p.ConfirmedByHRAt)

	p, err = wf.MarkPaid(ctx, accountantActor, id)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusPaid, p.Status)
	require.NotNil(t, p.PaidAt)
}

func TestWorkflow_AdminConfirmStampsHRSide(t *testing.T) {
	_, wf, id := newDraftPayroll(t)
	ctx := context.Background()

	_, err := wf.Submit(ctx, adminActor, id)
	require.NoError(t, err)

	p, err := wf.Confirm(ctx, adminActor, id)
	require.NoError(t, err)
	require.NotNil(t, p.ConfirmedByHRAt)
	assert.Nil(t, p.ConfirmedByDriverAt)
}

// =============================================================================
// ROLE GUARD TESTS
// =============================================================================

func TestWorkflow_MarkPaidRoleGuard(t *testing.T) {
	// GIVEN: A CONFIRMED payroll
	// WHEN: A driver tries to mark it paid
	// THEN: Unauthorized, no state change; an accountant then succeeds

	_, wf, id := newDraftPayroll(t)
	ctx := context.Background()

	_, err := wf.Submit(ctx, adminActor, id)
	require.NoError(t, err)
	_, err = wf.Confirm(ctx, driverActor, id)
	require.NoError(t, err)

	_, err = wf.MarkPaid(ctx, driverActor, id)
	assert.ErrorIs(t, err, payroll.ErrUnauthorized)

	p, err := wf.MarkPaid(ctx, accountantActor, id)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusPaid, p.Status)
}

func TestWorkflow_MarkPaidOnlyFromConfirmed(t *testing.T) {
	_, wf, id := newDraftPayroll(t)
	ctx := context.Background()

	// Straight from DRAFT
	_, err := wf.MarkPaid(ctx, accountantActor, id)
	assert.ErrorIs(t, err, payroll.ErrInvalidTransition)

	// From PENDING_REVIEW
	_, err = wf.Submit(ctx, adminActor, id)
	require.NoError(t, err)
	_, err = wf.MarkPaid(ctx, accountantActor, id)
	assert.ErrorIs(t, err, payroll.ErrInvalidTransition)
}

func TestWorkflow_ConfirmRestrictedToOwnDriverOrAdmin(t *testing.T) {
	_, wf, id := newDraftPayroll(t)
	ctx := context.Background()

	_, err := wf.Submit(ctx, adminActor, id)
	require.NoError(t, err)

	// Another driver's payroll is off limits.
	_, err = wf.Confirm(ctx, otherDriver, id)
	require.ErrorIs(t, err, payroll.ErrUnauthorized)

	// An accountant is not in the confirm set at all.
	_, err = wf.Confirm(ctx, accountantActor, id)
	require.ErrorIs(t, err, payroll.ErrUnauthorized)

	p, err := wf.Confirm(ctx, driverActor, id)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusConfirmed, p.Status)
}

// =============================================================================
// DISPUTE TESTS
// =============================================================================

func TestWorkflow_DisputeFromReviewOrConfirmed(t *testing.T) {
	t.Run("from pending review", func(t *testing.T) {
		_, wf, id := newDraftPayroll(t)
		ctx := context.Background()

		_, err := wf.Submit(ctx, adminActor, id)
		require.NoError(t, err)

		p, err := wf.Dispute(ctx, driverActor, id, "missing port gate fee on March 12")
		require.NoError(t, err)
		assert.Equal(t, payroll.StatusDisputed, p.Status)
		assert.Equal(t, "missing port gate fee on March 12", p.DisputeReason)
		require.NotNil(t, p.DisputedAt)
	})

	t.Run("from confirmed", func(t *testing.T) {
		_, wf, id := newDraftPayroll(t)
		ctx := context.Background()

		_, err := wf.Submit(ctx, adminActor, id)
		require.NoError(t, err)
		_, err = wf.Confirm(ctx, adminActor, id)
		require.NoError(t, err)

		p, err := wf.Dispute(ctx, accountantActor, id, "net mismatch")
		require.NoError(t, err)
		assert.Equal(t, payroll.StatusDisputed, p.Status)
	})

	t.Run("not from draft or paid", func(t *testing.T) {
		_, wf, id := newDraftPayroll(t)
		ctx := context.Background()

		_, err := wf.Dispute(ctx, driverActor, id, "too early")
		assert.ErrorIs(t, err, payroll.ErrInvalidTransition)

		_, err = wf.Submit(ctx, adminActor, id)
		require.NoError(t, err)
		_, err = wf.Confirm(ctx, adminActor, id)
		require.NoError(t, err)
		_, err = wf.MarkPaid(ctx, accountantActor, id)
		require.NoError(t, err)

		_, err = wf.Dispute(ctx, driverActor, id, "too late")
		assert.ErrorIs(t, err, payroll.ErrInvalidTransition)
	})
}

// =============================================================================
// INVALID TRANSITION TESTS
// =============================================================================

func TestWorkflow_NoSkippingOrRepeating(t *testing.T) {
	_, wf, id := newDraftPayroll(t)
	ctx := context.Background()

	// Confirm straight from DRAFT skips PENDING_REVIEW.
	_, err := wf.Confirm(ctx, adminActor, id)
	assert.ErrorIs(t, err, payroll.ErrInvalidTransition)

	_, err = wf.Submit(ctx, adminActor, id)
	require.NoError(t, err)

	// Re-submitting a submitted payroll.
	_, err = wf.Submit(ctx, adminActor, id)
	assert.ErrorIs(t, err, payroll.ErrInvalidTransition)

	var te *payroll.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, payroll.StatusPendingReview, te.From)
}

func TestWorkflow_UnknownPayroll(t *testing.T) {
	_, wf, _ := newTestEngine(t)
	_, err := wf.Submit(context.Background(), adminActor, "ghost")
	assert.ErrorIs(t, err, payroll.ErrPayrollNotFound)
}

// =============================================================================
// DELETE TESTS
// =============================================================================

func TestWorkflow_DeleteDraftOnly(t *testing.T) {
	agg, wf, id := newDraftPayroll(t)
	ctx := context.Background()

	// Drivers may never delete.
	err := wf.Delete(ctx, driverActor, id)
	assert.ErrorIs(t, err, payroll.ErrUnauthorized)

	require.NoError(t, wf.Delete(ctx, adminActor, id))
	_, err = agg.Payrolls.GetPayroll(ctx, id)
	assert.ErrorIs(t, err, payroll.ErrPayrollNotFound)
}

func TestWorkflow_DeleteSubmittedRejected(t *testing.T) {
	_, wf, id := newDraftPayroll(t)
	ctx := context.Background()

	_, err := wf.Submit(ctx, adminActor, id)
	require.NoError(t, err)

	err = wf.Delete(ctx, accountantActor, id)
	assert.ErrorIs(t, err, payroll.ErrInvalidTransition)
}

// =============================================================================
// CONTENTION
// =============================================================================

func TestWorkflow_TransitionLosesGuardToConcurrentHolder(t *testing.T) {
	_, wf, id := newDraftPayroll(t)
	ctx := context.Background()

	require.NoError(t, wf.Guard.Acquire("driver-1", march2025()))
	defer wf.Guard.Release("driver-1", march2025())

	_, err := wf.Submit(ctx, adminActor, id)
	assert.ErrorIs(t, err, payroll.ErrConcurrentModification)
}
