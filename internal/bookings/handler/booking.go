package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	availability "lessonbook/internal/availability/service"
	"lessonbook/internal/bookings/service"
	"lessonbook/pkg/config"
	apperrors "lessonbook/pkg/errors"
	httputil "lessonbook/pkg/http"
	"lessonbook/pkg/logger"
)

type BookingHandler struct {
	availability availability.AvailabilityService
	reservations service.ReservationService
	cfg          *config.Config
	log          *logger.Logger
}

func NewBookingHandler(
	availabilitySvc availability.AvailabilityService,
	reservations service.ReservationService,
	cfg *config.Config,
) *BookingHandler {
	return &BookingHandler{
		availability: availabilitySvc,
		reservations: reservations,
		cfg:          cfg,
		log:          cfg.Log,
	}
}

type slotsRequest struct {
	LocationID string `json:"locationId"`
	Data       struct {
		TimeMin string `json:"timeMin"`
		TimeMax string `json:"timeMax"`
	} `json:"data"`
	SlotDurationMinutes int `json:"slotDurationMinutes"`
	SlotStepMinutes     int `json:"slotStepMinutes"`
}

type slotResponse struct {
	StartISO string `json:"startISO"`
	EndISO   string `json:"endISO"`
}

type slotsResponse struct {
	Slots       []slotResponse `json:"slots"`
	Approximate bool           `json:"approximate,omitempty"`
}

type createBookingRequest struct {
	LocationID       string `json:"locationId"`
	DateISO          string `json:"dateISO"`
	DurationMinutes  int    `json:"durationMinutes"`
	ClientName       string `json:"clientName"`
	ClientEmail      string `json:"clientEmail"`
	ClientPhone      string `json:"clientPhone"`
	Sport            string `json:"sport"`
	LessonType       string `json:"lessonType"`
	Message          string `json:"message"`
	TargetCalendarID string `json:"targetCalendarId"`
}

type createBookingResponse struct {
	Success     bool   `json:"success"`
	BookingID   string `json:"bookingId"`
	Status      string `json:"status"`
	GcalEventID string `json:"gcalEventId,omitempty"`
}

type bookingFailureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// FreeSlots answers POST /getBusySlotsOnBehalfOfAdmin. The route name is
// historical; the response lists free candidate windows, not busy ones.
// The approximate=true query flag skips busy-interval validation and
// returns rule-only candidates flagged as approximate.
func (h *BookingHandler) FreeSlots(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req slotsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "FreeSlots", apperrors.InvalidInput("Invalid request body"))
		return
	}

	if req.LocationID == "" {
		h.writeError(w, "FreeSlots", apperrors.InvalidInput("locationId is required"))
		return
	}
	timeMin, err := time.Parse(time.RFC3339, req.Data.TimeMin)
	if err != nil {
		h.writeError(w, "FreeSlots", apperrors.InvalidInput("data.timeMin must be an ISO-8601 timestamp"))
		return
	}
	timeMax, err := time.Parse(time.RFC3339, req.Data.TimeMax)
	if err != nil {
		h.writeError(w, "FreeSlots", apperrors.InvalidInput("data.timeMax must be an ISO-8601 timestamp"))
		return
	}

	query := availability.SlotQuery{
		LocationID:      req.LocationID,
		TimeMin:         timeMin,
		TimeMax:         timeMax,
		DurationMinutes: req.SlotDurationMinutes,
		StepMinutes:     req.SlotStepMinutes,
	}

	compute := h.availability.FreeSlots
	if r.URL.Query().Get("approximate") == "true" {
		compute = h.availability.ApproximateSlots
	}

	result, err := compute(r.Context(), query)
	if err != nil {
		h.writeError(w, "FreeSlots", err)
		return
	}

	resp := slotsResponse{
		Slots:       make([]slotResponse, 0, len(result.Slots)),
		Approximate: result.Approximate,
	}
	for _, s := range result.Slots {
		resp.Slots = append(resp.Slots, slotResponse{
			StartISO: s.Start.Format(time.RFC3339),
			EndISO:   s.End.Format(time.RFC3339),
		})
	}

	if err := httputil.WriteSuccess(w, resp); err != nil {
		h.log.Error("failed to write success response", "handler", "FreeSlots", "operation", "WriteSuccess", "error", err)
	}
}

// CreateBooking answers POST /createBooking. Slot contention surfaces as
// 409 with success:false so booking widgets can re-fetch slots and retry.
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBookingFailure(w, apperrors.InvalidInput("Invalid request body"))
		return
	}

	if req.LocationID == "" || req.DateISO == "" || req.ClientName == "" {
		h.writeBookingFailure(w, apperrors.InvalidInput("locationId, dateISO and clientName are required"))
		return
	}
	if req.DurationMinutes <= 0 {
		h.writeBookingFailure(w, apperrors.InvalidInput("durationMinutes must be positive"))
		return
	}
	start, err := time.Parse(time.RFC3339, req.DateISO)
	if err != nil {
		h.writeBookingFailure(w, apperrors.InvalidInput("dateISO must be an ISO-8601 timestamp"))
		return
	}

	reservation, err := h.reservations.Reserve(r.Context(), service.ReservationRequest{
		LocationID:       req.LocationID,
		ServiceID:        h.serviceID(req),
		Start:            start,
		DurationMinutes:  req.DurationMinutes,
		ClientName:       req.ClientName,
		ClientEmail:      req.ClientEmail,
		ClientPhone:      req.ClientPhone,
		Notes:            req.Message,
		TargetCalendarID: req.TargetCalendarID,
	})
	if err != nil {
		h.writeBookingFailure(w, err)
		return
	}

	resp := createBookingResponse{
		Success:     true,
		BookingID:   reservation.BookingID,
		Status:      reservation.Status,
		GcalEventID: reservation.ExternalEventID,
	}
	if err := httputil.WriteSuccess(w, resp); err != nil {
		h.log.Error("failed to write success response", "handler", "CreateBooking", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")

	booking, err := h.reservations.GetBooking(r.Context(), id)
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

// serviceID resolves the service identity used in the deterministic slot
// id: lessonType wins over sport, and both fall back to the configured
// default so every location has exactly one bookable resource.
func (h *BookingHandler) serviceID(req createBookingRequest) string {
	if req.LessonType != "" {
		return req.LessonType
	}
	if req.Sport != "" {
		return req.Sport
	}
	return h.cfg.DefaultServiceID
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handlerName string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handlerName, "operation", "WriteError", "error", writeErr)
	}
}

func (h *BookingHandler) writeBookingFailure(w http.ResponseWriter, err error) {
	appErr := apperrors.AsAppError(err)
	resp := bookingFailureResponse{
		Success: false,
		Error:   appErr.Code,
		Message: appErr.Message,
	}
	if writeErr := httputil.WriteJSON(w, appErr.StatusCode(), resp); writeErr != nil {
		h.log.Error("failed to write error response", "handler", "CreateBooking", "operation", "WriteJSON", "error", writeErr)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/getBusySlotsOnBehalfOfAdmin", h.FreeSlots)
	router.POST("/createBooking", h.CreateBooking)
	router.GET("/bookings/id/:id", h.GetByID)
}
