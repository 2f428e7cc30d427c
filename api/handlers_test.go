/*
handlers_test.go - HTTP-level tests for the payroll API

Tests for:
- Role gating on back-office routes
- Trip recording with the re-sequencing ripple
- Payroll generation, including the 422 missing-distance payload
- Workflow transitions over HTTP
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulmark/payroll-engine/payroll"
	"github.com/haulmark/payroll-engine/payroll/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	h := NewHandler(mem, nil)

	// Empty secret: the authenticator accepts X-Actor-ID/X-Role headers.
	srv := httptest.NewServer(NewRouter(h, &Authenticator{}))
	t.Cleanup(srv.Close)
	return srv, mem
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, role payroll.Role, actorID string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("X-Role", string(role))
		req.Header.Set("X-Actor-ID", actorID)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, raw
}

func seedRates(t *testing.T, srv *httptest.Server) {
	t.Helper()
	doc := map[string]any{
		"id":              "rates-2025",
		"effective_start": "2025-01-01",
		"distance_brackets": []int{
			10, 20, 30, 40, 50, 60, 80, 100, 120, 150, 200, 250},
		"port_band_amounts": []string{
			"200000", "300000", "400000", "450000", "500000", "550000", "600000",
			"650000", "700000", "750000", "800000", "900000", "1000000"},
		"warehouse_band_amounts": []string{
			"100000", "120000", "150000", "180000", "210000", "240000", "280000",
			"320000", "360000", "420000", "500000", "600000", "700000"},
		"port_gate_fee":               "50000",
		"flatbed_tarp_fee":            "80000",
		"warehouse_to_customer_bonus": "30000",
		"second_trip_bonus":           "400000",
		"third_trip_bonus":            "700000",
		"monthly_bonus_tiers": []map[string]any{
			{"min_trips": 45, "max_trips": 50, "amount": "500000"},
		},
		"holiday_multiplier": "2.0",
	}
	resp, raw := doJSON(t, srv, http.MethodPost, "/api/rates", payroll.RoleAdmin, "hr-1", doc)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
}

func seedDriver(t *testing.T, srv *httptest.Server, id string) {
	t.Helper()
	resp, raw := doJSON(t, srv, http.MethodPost, "/api/drivers", payroll.RoleAdmin, "hr-1",
		CreateDriverRequest{ID: id, Name: "Driver " + id, HiredAt: "2020-05-01"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
}

func seedTrip(t *testing.T, srv *httptest.Server, req CreateTripRequest) TripDTO {
	t.Helper()
	resp, raw := doJSON(t, srv, http.MethodPost, "/api/trips", payroll.RoleAdmin, "hr-1", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var dto TripDTO
	require.NoError(t, json.Unmarshal(raw, &dto))
	return dto
}

func kmDec(v float64) *decimal.Decimal {
	d := decimal.NewFromFloat(v)
	return &d
}

// =============================================================================
// AUTHORIZATION TESTS
// =============================================================================

func TestRoutes_BackOfficeGating(t *testing.T) {
	srv, _ := newTestServer(t)

	// No identity at all.
	resp, _ := doJSON(t, srv, http.MethodPost, "/api/payrolls/generate", "", "",
		GenerateRequest{DriverID: "d1", Year: 2025, Month: 3})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// A driver is not back office.
	resp, _ = doJSON(t, srv, http.MethodPost, "/api/payrolls/generate",
		payroll.RoleDriver, "d1", GenerateRequest{DriverID: "d1", Year: 2025, Month: 3})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodPost, "/api/drivers",
		payroll.RoleDriver, "d1", CreateDriverRequest{ID: "x", Name: "X", HiredAt: "2020-01-01"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// =============================================================================
// TRIP ENDPOINT TESTS
// =============================================================================

func TestTrips_CreateSequencesSiblings(t *testing.T) {
	srv, _ := newTestServer(t)
	seedRates(t, srv)
	seedDriver(t, srv, "d1")

	first := seedTrip(t, srv, CreateTripRequest{
		ID: "t1", DriverID: "d1", OrderCode: "ORD-1",
		DistanceKm: kmDec(25), DeliveryDate: "2025-03-10",
	})
	assert.Equal(t, 1, first.TripNumberInDay)
	require.NotNil(t, first.Salary)
	assert.Equal(t, "0", first.Salary.DailyBonus.String())

	second := seedTrip(t, srv, CreateTripRequest{
		ID: "t2", DriverID: "d1", OrderCode: "ORD-2",
		DistanceKm: kmDec(25), DeliveryDate: "2025-03-10",
	})
	assert.Equal(t, 2, second.TripNumberInDay)
	require.NotNil(t, second.Salary)
	assert.Equal(t, "400000", second.Salary.DailyBonus.String())
	assert.Equal(t, 2, second.TripCountInMonth)
}

func TestTrips_PatchRipplesMonth(t *testing.T) {
	srv, _ := newTestServer(t)
	seedRates(t, srv)
	seedDriver(t, srv, "d1")

	seedTrip(t, srv, CreateTripRequest{
		ID: "t1", DriverID: "d1", OrderCode: "ORD-1",
		DistanceKm: kmDec(25), DeliveryDate: "2025-03-10",
	})
	seedTrip(t, srv, CreateTripRequest{
		ID: "t2", DriverID: "d1", OrderCode: "ORD-2",
		DistanceKm: kmDec(25), DeliveryDate: "2025-03-10",
	})

	// Move the first trip to another day: t2 becomes first of March 10.
	newDate := "2025-03-11"
	resp, raw := doJSON(t, srv, http.MethodPatch, "/api/trips/t1",
		payroll.RoleAdmin, "hr-1", UpdateTripRequest{DeliveryDate: &newDate})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	resp, raw = doJSON(t, srv, http.MethodGet, "/api/trips/t2", payroll.RoleAdmin, "hr-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dto TripDTO
	require.NoError(t, json.Unmarshal(raw, &dto))
	assert.Equal(t, 1, dto.TripNumberInDay)
	assert.Equal(t, "0", dto.Salary.DailyBonus.String(), "stale daily bonus survived the ripple")
}

func TestTrips_UnknownDriverRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	seedRates(t, srv)

	resp, _ := doJSON(t, srv, http.MethodPost, "/api/trips", payroll.RoleAdmin, "hr-1",
		CreateTripRequest{DriverID: "ghost", OrderCode: "ORD-1", DistanceKm: kmDec(25), DeliveryDate: "2025-03-10"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// PAYROLL ENDPOINT TESTS
// =============================================================================

func TestPayrolls_GenerateAndFetch(t *testing.T) {
	srv, _ := newTestServer(t)
	seedRates(t, srv)
	seedDriver(t, srv, "d1")
	seedTrip(t, srv, CreateTripRequest{
		ID: "t1", DriverID: "d1", OrderCode: "ORD-1",
		DistanceKm: kmDec(25), DeliveryDate: "2025-03-10",
	})

	resp, raw := doJSON(t, srv, http.MethodPost, "/api/payrolls/generate",
		payroll.RoleAccountant, "acct-1", GenerateRequest{DriverID: "d1", Year: 2025, Month: 3})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var dto PayrollDTO
	require.NoError(t, json.Unmarshal(raw, &dto))
	assert.Equal(t, string(payroll.StatusDraft), dto.Status)
	assert.Equal(t, 1, dto.TotalTrips)
	assert.Len(t, dto.TripSnapshot, 1)

	// List omits the snapshot; the detail view includes it.
	resp, raw = doJSON(t, srv, http.MethodGet, "/api/payrolls?year=2025&month=3",
		payroll.RoleDriver, "d1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []PayrollDTO
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list, 1)
	assert.Empty(t, list[0].TripSnapshot)

	resp, raw = doJSON(t, srv, http.MethodGet, "/api/payrolls/"+dto.ID,
		payroll.RoleDriver, "d1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail PayrollDTO
	require.NoError(t, json.Unmarshal(raw, &detail))
	assert.Len(t, detail.TripSnapshot, 1)
}

func TestPayrolls_MissingDistanceReturns422WithPayload(t *testing.T) {
	srv, _ := newTestServer(t)
	seedRates(t, srv)
	seedDriver(t, srv, "d1")
	seedTrip(t, srv, CreateTripRequest{
		ID: "t1", DriverID: "d1", OrderCode: "ORD-NO-KM", DeliveryDate: "2025-03-10",
	})

	resp, raw := doJSON(t, srv, http.MethodPost, "/api/payrolls/generate",
		payroll.RoleAdmin, "hr-1", GenerateRequest{DriverID: "d1", Year: 2025, Month: 3})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(raw))

	var er ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &er))
	require.Len(t, er.MissingTrips, 1)
	assert.Equal(t, payroll.DriverID("d1"), er.MissingTrips[0].DriverID)
	assert.Equal(t, "ORD-NO-KM", er.MissingTrips[0].Trips[0].OrderCode)
}

func TestPayrolls_GenerateAllPartial(t *testing.T) {
	srv, _ := newTestServer(t)
	seedRates(t, srv)
	seedDriver(t, srv, "d1")
	seedDriver(t, srv, "d2")
	seedTrip(t, srv, CreateTripRequest{
		ID: "t1", DriverID: "d1", OrderCode: "ORD-1",
		DistanceKm: kmDec(25), DeliveryDate: "2025-03-10",
	})
	seedTrip(t, srv, CreateTripRequest{
		ID: "t2", DriverID: "d2", OrderCode: "ORD-2", DeliveryDate: "2025-03-11",
	})

	resp, raw := doJSON(t, srv, http.MethodPost, "/api/payrolls/generate-all",
		payroll.RoleAdmin, "hr-1", GenerateAllRequest{Year: 2025, Month: 3})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var result BulkResultDTO
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Len(t, result.Generated, 1)
	assert.Equal(t, "d1", result.Generated[0].DriverID)
	require.Len(t, result.Missing, 1)
	assert.Equal(t, payroll.DriverID("d2"), result.Missing[0].DriverID)
}

// =============================================================================
// WORKFLOW ENDPOINT TESTS
// =============================================================================

func TestPayrolls_WorkflowOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	seedRates(t, srv)
	seedDriver(t, srv, "d1")
	seedTrip(t, srv, CreateTripRequest{
		ID: "t1", DriverID: "d1", OrderCode: "ORD-1",
		DistanceKm: kmDec(25), DeliveryDate: "2025-03-10",
	})

	resp, raw := doJSON(t, srv, http.MethodPost, "/api/payrolls/generate",
		payroll.RoleAdmin, "hr-1", GenerateRequest{DriverID: "d1", Year: 2025, Month: 3})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var p PayrollDTO
	require.NoError(t, json.Unmarshal(raw, &p))
	base := "/api/payrolls/" + p.ID

	resp, _ = doJSON(t, srv, http.MethodPost, base+"/submit", payroll.RoleAdmin, "hr-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Another driver may not confirm d1's payroll.
	resp, _ = doJSON(t, srv, http.MethodPost, base+"/confirm", payroll.RoleDriver, "d9", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, raw = doJSON(t, srv, http.MethodPost, base+"/confirm", payroll.RoleDriver, "d1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	// Drivers may not mark paid.
	resp, _ = doJSON(t, srv, http.MethodPost, base+"/pay", payroll.RoleDriver, "d1", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, raw = doJSON(t, srv, http.MethodPost, base+"/pay", payroll.RoleAccountant, "acct-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var paid PayrollDTO
	require.NoError(t, json.Unmarshal(raw, &paid))
	assert.Equal(t, string(payroll.StatusPaid), paid.Status)
	assert.NotNil(t, paid.PaidAt)

	// Paid payrolls cannot be re-submitted.
	resp, _ = doJSON(t, srv, http.MethodPost, base+"/submit", payroll.RoleAdmin, "hr-1", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPayrolls_AdjustmentsAndDelete(t *testing.T) {
	srv, _ := newTestServer(t)
	seedRates(t, srv)
	seedDriver(t, srv, "d1")
	seedTrip(t, srv, CreateTripRequest{
		ID: "t1", DriverID: "d1", OrderCode: "ORD-1",
		DistanceKm: kmDec(25), DeliveryDate: "2025-03-10",
	})

	resp, raw := doJSON(t, srv, http.MethodPost, "/api/payrolls/generate",
		payroll.RoleAdmin, "hr-1", GenerateRequest{DriverID: "d1", Year: 2025, Month: 3})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var p PayrollDTO
	require.NoError(t, json.Unmarshal(raw, &p))
	base := fmt.Sprintf("/api/payrolls/%s", p.ID)

	resp, raw = doJSON(t, srv, http.MethodPost, base+"/adjustments", payroll.RoleAccountant, "acct-1",
		AdjustmentRequest{Reason: "toll refund", Amount: payroll.NewMoney(75000)})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var adjusted PayrollDTO
	require.NoError(t, json.Unmarshal(raw, &adjusted))
	assert.Equal(t, "75000", adjusted.TotalAdjustments.String())

	resp, _ = doJSON(t, srv, http.MethodDelete, base, payroll.RoleAdmin, "hr-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodGet, base, payroll.RoleAdmin, "hr-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// RATE ENDPOINT TESTS
// =============================================================================

func TestRates_ResolveAndRejectInvalid(t *testing.T) {
	srv, _ := newTestServer(t)
	seedRates(t, srv)

	resp, raw := doJSON(t, srv, http.MethodGet, "/api/rates/resolve?date=2025-06-01",
		payroll.RoleDriver, "d1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "rates-2025", doc["id"])

	// A date before any table is a 404, not a silent default.
	resp, _ = doJSON(t, srv, http.MethodGet, "/api/rates/resolve?date=2024-06-01",
		payroll.RoleDriver, "d1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Structurally invalid table is a 400.
	resp, _ = doJSON(t, srv, http.MethodPost, "/api/rates", payroll.RoleAdmin, "hr-1",
		map[string]any{"id": "bad", "effective_start": "2025-01-01"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
