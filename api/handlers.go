/*
handlers.go - HTTP API handlers for the payroll engine

PURPOSE:
  Exposes the payroll engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Drivers:
    GET    /api/drivers                 List drivers
    POST   /api/drivers                 Create driver
    GET    /api/drivers/{id}/trips      Driver's trips for a month

  Trips:
    POST   /api/trips                   Record a delivered trip
    PATCH  /api/trips/{id}              Edit flags/distance/date (ripples)
    GET    /api/trips/{id}              Get trip with cached breakdown

  Rates:
    GET    /api/rates                   Rate table history
    POST   /api/rates                   Upload a rate table (JSON)
    GET    /api/rates/resolve?date=     Table in force on a date

  Payrolls:
    POST   /api/payrolls/generate       One driver's month
    POST   /api/payrolls/generate-all   Every driver with trips in month
    GET    /api/payrolls?year=&month=   Period summary
    GET    /api/payrolls/{id}           Full payroll with snapshot
    POST   /api/payrolls/{id}/adjustments
    POST   /api/payrolls/{id}/submit
    POST   /api/payrolls/{id}/confirm
    POST   /api/payrolls/{id}/dispute
    POST   /api/payrolls/{id}/pay
    DELETE /api/payrolls/{id}

ERROR HANDLING:
  Domain errors map onto HTTP status via the payroll package helpers:
  - 400: malformed input, invalid rate table
  - 403: role guard failures
  - 404: missing records
  - 409: invalid transitions, finalized payrolls, lock contention
  - 422: missing-distance precondition (with structured trip list)
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Actor extraction
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/haulmark/payroll-engine/factory"
	"github.com/haulmark/payroll-engine/payroll"
)

// Store bundles every persistence interface the handlers need. Both the
// SQLite store and the in-memory store satisfy it.
type Store interface {
	payroll.TripStore
	payroll.RateStore
	payroll.PayrollStore
	payroll.DriverStore
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       Store
	Aggregator  *payroll.Aggregator
	Workflow    *payroll.Workflow
	RateFactory *factory.RateFactory
}

// NewHandler wires the engine around a store. The aggregator and workflow
// share one period guard so generation never races a transition.
func NewHandler(store Store, reports payroll.ReportProvider) *Handler {
	guard := payroll.NewPeriodGuard()
	return &Handler{
		Store:       store,
		Aggregator:  payroll.NewAggregator(store, store, store, store, reports, guard),
		Workflow:    payroll.NewWorkflow(store, guard),
		RateFactory: factory.NewRateFactory(),
	}
}

// =============================================================================
// DRIVER HANDLERS
// =============================================================================

func (h *Handler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := h.Store.ListDrivers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list drivers", err)
		return
	}

	dtos := make([]DriverDTO, len(drivers))
	for i, d := range drivers {
		dtos[i] = DriverDTO{
			ID:      string(d.ID),
			Name:    d.Name,
			HiredAt: d.HiredAt.Format("2006-01-02"),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateDriver(w http.ResponseWriter, r *http.Request) {
	var req CreateDriverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	hiredAt, err := time.Parse("2006-01-02", req.HiredAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hired_at format (use YYYY-MM-DD)", err)
		return
	}

	d := payroll.Driver{ID: payroll.DriverID(req.ID), Name: req.Name, HiredAt: hiredAt}
	if err := h.Store.SaveDriver(r.Context(), d); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create driver", err)
		return
	}
	writeJSON(w, http.StatusCreated, DriverDTO{ID: req.ID, Name: req.Name, HiredAt: req.HiredAt})
}

func (h *Handler) ListDriverTrips(w http.ResponseWriter, r *http.Request) {
	driverID := payroll.DriverID(chi.URLParam(r, "id"))
	period, ok := periodFromQuery(w, r)
	if !ok {
		return
	}

	trips, err := h.Store.ListTripsForMonth(r.Context(), driverID, period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list trips", err)
		return
	}

	dtos := make([]TripDTO, len(trips))
	for i := range trips {
		dtos[i] = toTripDTO(&trips[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// TRIP HANDLERS
// =============================================================================

func (h *Handler) CreateTrip(w http.ResponseWriter, r *http.Request) {
	var req CreateTripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.DriverID == "" || req.OrderCode == "" {
		writeError(w, http.StatusBadRequest, "driver_id and order_code are required", nil)
		return
	}

	deliveryDate, err := time.Parse("2006-01-02", req.DeliveryDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid delivery_date format (use YYYY-MM-DD)", err)
		return
	}

	ctx := r.Context()
	if _, err := h.Store.GetDriver(ctx, payroll.DriverID(req.DriverID)); err != nil {
		writeDomainError(w, err)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	trip := payroll.Trip{
		ID:              payroll.TripID(id),
		DriverID:        payroll.DriverID(req.DriverID),
		OrderCode:       req.OrderCode,
		PickupSite:      req.PickupSite,
		DeliverySite:    req.DeliverySite,
		DistanceKm:      req.DistanceKm,
		DeliveryDate:    deliveryDate,
		IsFromPort:      req.IsFromPort,
		IsFlatbed:       req.IsFlatbed,
		IsInternalCargo: req.IsInternalCargo,
		IsHoliday:       req.IsHoliday,
		CreatedAt:       time.Now().UTC(),
	}
	if err := h.Store.SaveTrip(ctx, trip); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save trip", err)
		return
	}

	// A new trip shifts siblings' daily/monthly sequence.
	if _, err := h.Aggregator.RecalculateDriverMonth(ctx, trip.DriverID, payroll.PeriodOf(deliveryDate)); err != nil {
		writeDomainError(w, err)
		return
	}

	saved, err := h.Store.GetTrip(ctx, trip.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTripDTO(saved))
}

func (h *Handler) GetTrip(w http.ResponseWriter, r *http.Request) {
	trip, err := h.Store.GetTrip(r.Context(), payroll.TripID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTripDTO(trip))
}

// UpdateTrip applies partial edits and re-runs the sequencing/calculation
// pass over every affected driver-month. Moving a trip across months
// ripples both the old and the new month.
func (h *Handler) UpdateTrip(w http.ResponseWriter, r *http.Request) {
	var req UpdateTripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	trip, err := h.Store.GetTrip(ctx, payroll.TripID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	oldPeriod := payroll.PeriodOf(trip.Day())

	if req.DistanceKm != nil {
		trip.DistanceKm = req.DistanceKm
	}
	if req.DeliveryDate != nil {
		d, err := time.Parse("2006-01-02", *req.DeliveryDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid delivery_date format (use YYYY-MM-DD)", err)
			return
		}
		trip.DeliveryDate = d
	}
	if req.IsFromPort != nil {
		trip.IsFromPort = *req.IsFromPort
	}
	if req.IsFlatbed != nil {
		trip.IsFlatbed = *req.IsFlatbed
	}
	if req.IsInternalCargo != nil {
		trip.IsInternalCargo = *req.IsInternalCargo
	}
	if req.IsHoliday != nil {
		trip.IsHoliday = *req.IsHoliday
	}
	trip.UpdatedAt = time.Now().UTC()

	if err := h.Store.SaveTrip(ctx, *trip); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save trip", err)
		return
	}

	newPeriod := payroll.PeriodOf(trip.Day())
	if _, err := h.Aggregator.RecalculateDriverMonth(ctx, trip.DriverID, newPeriod); err != nil {
		writeDomainError(w, err)
		return
	}
	if oldPeriod != newPeriod {
		if _, err := h.Aggregator.RecalculateDriverMonth(ctx, trip.DriverID, oldPeriod); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	saved, err := h.Store.GetTrip(ctx, trip.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTripDTO(saved))
}

// =============================================================================
// RATE HANDLERS
// =============================================================================

func (h *Handler) ListRateTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.Store.ListRateTables(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rate tables", err)
		return
	}

	docs := make([]factory.RateTableJSON, len(tables))
	for i := range tables {
		docs[i] = h.RateFactory.Render(&tables[i])
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *Handler) CreateRateTable(w http.ResponseWriter, r *http.Request) {
	var doc factory.RateTableJSON
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rt, err := h.RateFactory.FromJSON(doc)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.Store.SaveRateTable(r.Context(), *rt); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.RateFactory.Render(rt))
}

func (h *Handler) ResolveRateTable(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing date (use YYYY-MM-DD)", err)
		return
	}

	rt, err := h.Store.ResolveRateTable(r.Context(), date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.RateFactory.Render(rt))
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

func (h *Handler) GeneratePayroll(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	period, ok := validPeriod(w, req.Year, req.Month)
	if !ok {
		return
	}

	p, err := h.Aggregator.Generate(r.Context(), payroll.DriverID(req.DriverID), period)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPayrollDTO(p, true))
}

func (h *Handler) GenerateAllPayrolls(w http.ResponseWriter, r *http.Request) {
	var req GenerateAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	period, ok := validPeriod(w, req.Year, req.Month)
	if !ok {
		return
	}

	result, err := h.Aggregator.GenerateAll(r.Context(), period)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dto := BulkResultDTO{Generated: make([]PayrollDTO, len(result.Generated))}
	for i, p := range result.Generated {
		dto.Generated[i] = toPayrollDTO(p, false)
	}
	if result.Missing != nil {
		dto.Missing = result.Missing.Drivers
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) ListPayrolls(w http.ResponseWriter, r *http.Request) {
	period, ok := periodFromQuery(w, r)
	if !ok {
		return
	}

	payrolls, err := h.Store.ListPayrollsForPeriod(r.Context(), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payrolls", err)
		return
	}

	dtos := make([]PayrollDTO, len(payrolls))
	for i, p := range payrolls {
		dtos[i] = toPayrollDTO(p, false)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetPayroll(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.GetPayroll(r.Context(), payroll.PayrollID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayrollDTO(p, true))
}

func (h *Handler) AddAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required", nil)
		return
	}

	p, err := h.Aggregator.AddAdjustment(r.Context(),
		payroll.PayrollID(chi.URLParam(r, "id")),
		payroll.Adjustment{Reason: req.Reason, Amount: req.Amount})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayrollDTO(p, false))
}

// =============================================================================
// WORKFLOW HANDLERS
// =============================================================================

func (h *Handler) SubmitPayroll(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, func(actor payroll.Actor, id payroll.PayrollID) (*payroll.Payroll, error) {
		return h.Workflow.Submit(r.Context(), actor, id)
	})
}

func (h *Handler) ConfirmPayroll(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, func(actor payroll.Actor, id payroll.PayrollID) (*payroll.Payroll, error) {
		return h.Workflow.Confirm(r.Context(), actor, id)
	})
}

func (h *Handler) PayPayroll(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, func(actor payroll.Actor, id payroll.PayrollID) (*payroll.Payroll, error) {
		return h.Workflow.MarkPaid(r.Context(), actor, id)
	})
}

func (h *Handler) DisputePayroll(w http.ResponseWriter, r *http.Request) {
	var req DisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	h.runTransition(w, r, func(actor payroll.Actor, id payroll.PayrollID) (*payroll.Payroll, error) {
		return h.Workflow.Dispute(r.Context(), actor, id, req.Reason)
	})
}

func (h *Handler) DeletePayroll(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing or invalid credentials", nil)
		return
	}

	if err := h.Workflow.Delete(r.Context(), actor, payroll.PayrollID(chi.URLParam(r, "id"))); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) runTransition(w http.ResponseWriter, r *http.Request,
	fn func(actor payroll.Actor, id payroll.PayrollID) (*payroll.Payroll, error)) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Missing or invalid credentials", nil)
		return
	}

	p, err := fn(actor, payroll.PayrollID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayrollDTO(p, false))
}

// =============================================================================
// HELPERS
// =============================================================================

func periodFromQuery(w http.ResponseWriter, r *http.Request) (payroll.Period, bool) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing year", err)
		return payroll.Period{}, false
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing month", err)
		return payroll.Period{}, false
	}
	return validPeriod(w, year, month)
}

func validPeriod(w http.ResponseWriter, year, month int) (payroll.Period, bool) {
	if year < 2000 || year > 2200 || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "year/month out of range", nil)
		return payroll.Period{}, false
	}
	return payroll.Period{Year: year, Month: time.Month(month)}, true
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

// writeDomainError maps engine errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var missing *payroll.MissingDistanceError
	if errors.As(err, &missing) {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:        "Trips missing distance data",
			Details:      missing.Error(),
			MissingTrips: missing.Drivers,
		})
		return
	}

	switch {
	case errors.Is(err, payroll.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "Not authorized", err)
	case payroll.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case payroll.IsRetryable(err):
		writeError(w, http.StatusConflict, "Concurrent operation in progress, retry", err)
	case errors.Is(err, payroll.ErrInvalidTransition),
		errors.Is(err, payroll.ErrPayrollFinalized),
		errors.Is(err, payroll.ErrDuplicateRecord):
		writeError(w, http.StatusConflict, "Conflicting payroll state", err)
	case errors.Is(err, payroll.ErrInvalidRateTable),
		errors.Is(err, payroll.ErrAmbiguousRateTable):
		writeError(w, http.StatusBadRequest, "Invalid rate configuration", err)
	case errors.Is(err, payroll.ErrMissingDistance):
		writeError(w, http.StatusUnprocessableEntity, "Trip missing distance data", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
