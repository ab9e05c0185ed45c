package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anathi-mjali/branchbook/services/booking-service/internal/model"
	"github.com/anathi-mjali/branchbook/services/booking-service/internal/storage"
)

// HoursHandler lets branch staff place date overrides on operating hours.
type HoursHandler struct {
	hours  *storage.HoursRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewHoursHandler(hours *storage.HoursRepository, logger *slog.Logger) *HoursHandler {
	return &HoursHandler{hours: hours, logger: logger, now: time.Now}
}

type setOverrideRequest struct {
	BranchID string `json:"branch_id"`
	Date     string `json:"date"`
	Open     string `json:"open"`
	Close    string `json:"close"`
	Closed   bool   `json:"closed"`
	Reason   string `json:"reason"`
}

func (h *HoursHandler) SetOverride(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req setOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BranchID = strings.TrimSpace(req.BranchID)
	if req.BranchID == "" {
		http.Error(w, "branch_id required", http.StatusBadRequest)
		return
	}
	date, err := time.Parse(model.DateLayout, req.Date)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	o := model.OperationHoursOverride{
		BranchID:      req.BranchID,
		EffectiveDate: model.Date(date),
		Closed:        req.Closed,
		Reason:        strings.TrimSpace(req.Reason),
	}
	if !req.Closed {
		if o.OpenAt, err = model.ParseClock(req.Open); err != nil {
			http.Error(w, "invalid open", http.StatusBadRequest)
			return
		}
		if o.CloseAt, err = model.ParseClock(req.Close); err != nil {
			http.Error(w, "invalid close", http.StatusBadRequest)
			return
		}
	}
	if err := o.Validate(h.now()); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	if err := h.hours.SaveOverride(r.Context(), o); err != nil {
		h.logger.Error("override save failed", "err", err, "branch_id", o.BranchID)
		http.Error(w, "failed to save override", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"branch_id": o.BranchID,
		"date":      o.EffectiveDate.Format(model.DateLayout),
		"closed":    o.Closed,
	})
}
