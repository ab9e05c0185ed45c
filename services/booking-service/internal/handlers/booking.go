package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anathi-mjali/branchbook/services/booking-service/internal/availability"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/booking"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/model"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/ratelimit"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/storage"
)

// Limits is the booking rate-limit policy applied per customer.
type Limits struct {
	MaxAttempts int
	Window      time.Duration
	Cooldown    time.Duration
}

type BookingHandler struct {
	bookings *booking.Service
	slots    *availability.Provider
	appts    *storage.AppointmentRepository
	limiter  *ratelimit.Service
	limits   Limits
	logger   *slog.Logger
}

func NewBookingHandler(bookings *booking.Service, slots *availability.Provider, appts *storage.AppointmentRepository, limiter *ratelimit.Service, limits Limits, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		slots:    slots,
		appts:    appts,
		limiter:  limiter,
		limits:   limits,
		logger:   logger,
	}
}

type slotItem struct {
	Date     string `json:"date"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Sequence int    `json:"sequence"`
	Booked   bool   `json:"booked"`
}

type appointmentResponse struct {
	AppointmentID string `json:"appointment_id"`
	Reference     string `json:"reference"`
	BranchID      string `json:"branch_id"`
	CustomerID    string `json:"customer_id"`
	Date          string `json:"date"`
	Start         string `json:"start"`
	End           string `json:"end"`
	Status        string `json:"status"`
}

type createAppointmentRequest struct {
	BranchID   string `json:"branch_id"`
	CustomerID string `json:"customer_id"`
	Date       string `json:"date"`
	Start      string `json:"start"`
	End        string `json:"end"`
}

type cancelAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
	TriggeredBy   string `json:"triggered_by"`
}

type rescheduleAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
	Date          string `json:"date"`
	Start         string `json:"start"`
	End           string `json:"end"`
	TriggeredBy   string `json:"triggered_by"`
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	branchID := strings.TrimSpace(r.URL.Query().Get("branch_id"))
	if branchID == "" {
		http.Error(w, "branch_id required", http.StatusBadRequest)
		return
	}
	day, err := time.Parse(model.DateLayout, r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	slots, err := h.slots.ListOpen(r.Context(), branchID, day)
	if err != nil {
		if errors.Is(err, availability.ErrInvalidWindow) {
			http.Error(w, "branch operating hours are misconfigured", http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("slot listing failed", "err", err, "branch_id", branchID)
		http.Error(w, "failed to list slots", http.StatusInternalServerError)
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			Date:     s.Day.Format(model.DateLayout),
			Start:    model.FormatClock(s.Start),
			End:      model.FormatClock(s.End),
			Sequence: s.Sequence,
			Booked:   s.Booked,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"branch_id": branchID, "slots": items})
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BranchID = strings.TrimSpace(req.BranchID)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.BranchID == "" || req.CustomerID == "" {
		http.Error(w, "branch_id and customer_id required", http.StatusBadRequest)
		return
	}
	day, start, end, ok := h.parseSlotTimes(w, req.Date, req.Start, req.End)
	if !ok {
		return
	}

	ctx := r.Context()
	if !h.allowAttempt(ctx, w, req.CustomerID) {
		return
	}

	appt, err := h.bookings.Book(ctx, req.BranchID, day, start, end, req.CustomerID)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}
	actor, ok := parseActor(w, req.TriggeredBy)
	if !ok {
		return
	}

	appt, err := h.bookings.Cancel(r.Context(), req.AppointmentID, actor)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rescheduleAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}
	day, start, end, ok := h.parseSlotTimes(w, req.Date, req.Start, req.End)
	if !ok {
		return
	}
	actor, ok := parseActor(w, req.TriggeredBy)
	if !ok {
		return
	}

	ctx := r.Context()
	current, err := h.appts.Get(ctx, req.AppointmentID)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	if !h.allowAttempt(ctx, w, current.CustomerID) {
		return
	}

	appt, err := h.bookings.Reschedule(ctx, req.AppointmentID, day, start, end, actor)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	appt, err := h.bookings.Complete(r.Context(), req.AppointmentID, model.TriggeredByStaff)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	customerID := strings.TrimSpace(r.URL.Query().Get("customer_id"))
	if customerID == "" {
		http.Error(w, "customer_id required", http.StatusBadRequest)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	appts, err := h.appts.ListByCustomer(r.Context(), customerID, limit)
	if err != nil {
		h.logger.Error("appointment listing failed", "err", err, "customer_id", customerID)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}

	items := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer_id": customerID, "appointments": items})
}

// allowAttempt enforces the per-customer booking rate limit. Limiter outages
// fail open: a degraded Redis must not take bookings down with it.
func (h *BookingHandler) allowAttempt(ctx context.Context, w http.ResponseWriter, customerID string) bool {
	exceeded, err := h.limiter.IsLimitExceeded(ctx, customerID, ratelimit.PurposeBooking, h.limits.MaxAttempts, h.limits.Window)
	if err != nil {
		h.logger.Warn("rate limit check failed, allowing request", "err", err, "customer_id", customerID)
		return true
	}
	if exceeded {
		passed, err := h.limiter.IsCooldownPassed(ctx, customerID, ratelimit.PurposeBooking, h.limits.Cooldown)
		if err != nil {
			h.logger.Warn("cooldown check failed, allowing request", "err", err, "customer_id", customerID)
			return true
		}
		if !passed {
			w.Header().Set("Retry-After", strconv.Itoa(int(h.limits.Cooldown.Seconds())))
			http.Error(w, "too many booking attempts", http.StatusTooManyRequests)
			return false
		}
		if err := h.limiter.Reset(ctx, customerID, ratelimit.PurposeBooking); err != nil {
			h.logger.Warn("rate limit reset failed", "err", err, "customer_id", customerID)
		}
	}
	if _, err := h.limiter.RecordAttempt(ctx, customerID, ratelimit.PurposeBooking, h.limits.Window); err != nil {
		h.logger.Warn("rate limit record failed", "err", err, "customer_id", customerID)
	}
	return true
}

func (h *BookingHandler) parseSlotTimes(w http.ResponseWriter, date, start, end string) (time.Time, time.Duration, time.Duration, bool) {
	day, err := time.Parse(model.DateLayout, date)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return time.Time{}, 0, 0, false
	}
	startAt, err := model.ParseClock(start)
	if err != nil {
		http.Error(w, "invalid start", http.StatusBadRequest)
		return time.Time{}, 0, 0, false
	}
	endAt, err := model.ParseClock(end)
	if err != nil {
		http.Error(w, "invalid end", http.StatusBadRequest)
		return time.Time{}, 0, 0, false
	}
	if startAt >= endAt {
		http.Error(w, "end must be after start", http.StatusBadRequest)
		return time.Time{}, 0, 0, false
	}
	return day, startAt, endAt, true
}

func (h *BookingHandler) writeBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrSlotUnavailable):
		http.Error(w, "slot is not available", http.StatusConflict)
	case errors.Is(err, booking.ErrAppointmentNotFound) || storage.IsNotFound(err):
		http.Error(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, booking.ErrInvalidStateTransition):
		http.Error(w, "appointment state does not allow this operation", http.StatusUnprocessableEntity)
	case errors.Is(err, availability.ErrInvalidWindow):
		http.Error(w, "branch operating hours are misconfigured", http.StatusUnprocessableEntity)
	default:
		h.logger.Error("booking operation failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func parseActor(w http.ResponseWriter, raw string) (model.TriggerActor, bool) {
	switch model.TriggerActor(strings.TrimSpace(raw)) {
	case "":
		return model.TriggeredByCustomer, true
	case model.TriggeredByCustomer:
		return model.TriggeredByCustomer, true
	case model.TriggeredByStaff:
		return model.TriggeredByStaff, true
	case model.TriggeredBySystem:
		return model.TriggeredBySystem, true
	default:
		http.Error(w, "invalid triggered_by", http.StatusBadRequest)
		return "", false
	}
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	return appointmentResponse{
		AppointmentID: a.ID,
		Reference:     a.Reference,
		BranchID:      a.BranchID,
		CustomerID:    a.CustomerID,
		Date:          a.Day.Format(model.DateLayout),
		Start:         model.FormatClock(a.Start),
		End:           model.FormatClock(a.End),
		Status:        string(a.Status),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
