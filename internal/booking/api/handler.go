package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-grounds/internal/auth"
	"ms-grounds/internal/booking"
	"ms-grounds/internal/closure"
	"ms-grounds/internal/logger"
	"ms-grounds/internal/models"
	"ms-grounds/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	BookingService *booking.BookingService
	Closures       *closure.Registry
	Logger         *logger.Logger
}

func (h *Handler) PlaceReservation(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("PlaceReservation: user=%s", userID))

	var req models.ReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("PlaceReservation: failed to decode request body: %v", err))
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	reservation, err := h.BookingService.TryCreateReservation(r.Context(), userID, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("PlaceReservation: %v", err))
		writeServiceError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, "Reservation created", reservation)
	h.Logger.Info("API", fmt.Sprintf("PlaceReservation: created %s", reservation.ReservationID))
}

func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	reservationID := chi.URLParam(r, "reservationId")
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("GetReservation: reservationId=%s", reservationID))

	reservation, err := h.BookingService.GetReservation(r.Context(), reservationID)
	if err != nil || reservation.UserID != userID {
		h.Logger.Warn("API", fmt.Sprintf("GetReservation: not found or not owned: %s", reservationID))
		utils.WriteError(w, http.StatusNotFound, "Reservation not found", "")
		return
	}

	utils.WriteJSON(w, http.StatusOK, "Reservation", reservation)
}

func (h *Handler) UpdateReservation(w http.ResponseWriter, r *http.Request) {
	reservationID := chi.URLParam(r, "reservationId")
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("UpdateReservation: reservationId=%s", reservationID))

	var req models.ReservationUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	reservation, err := h.BookingService.UpdateWindow(r.Context(), reservationID, userID, req.StartTime, req.EndTime)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("UpdateReservation: %v", err))
		writeServiceError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "Reservation updated", reservation)
}

func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	reservationID := chi.URLParam(r, "reservationId")
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("CancelReservation: reservationId=%s", reservationID))

	// A failed cancel is always "not found": callers can't probe for other
	// users' reservations or their states.
	if !h.BookingService.Cancel(r.Context(), reservationID, userID) {
		utils.WriteError(w, http.StatusNotFound, "Reservation not found", "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
	h.Logger.Info("API", fmt.Sprintf("CancelReservation: cancelled %s", reservationID))
}

func (h *Handler) ListMyReservations(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("ListMyReservations: user=%s", userID))

	reservations, err := h.BookingService.ListMyReservations(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListMyReservations: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "Failed to list reservations", err.Error())
		return
	}

	utils.WriteJSON(w, http.StatusOK, "Reservations", reservations)
}

func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	groundID := chi.URLParam(r, "groundId")
	date := chi.URLParam(r, "date")
	h.Logger.Info("API", fmt.Sprintf("GetSchedule: ground=%s date=%s", groundID, date))

	reservations, err := h.BookingService.ListSchedule(r.Context(), groundID, date)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, "Schedule", reservations)
}

// ---------------- CLOSURE WINDOWS ----------------

func (h *Handler) AddClosure(w http.ResponseWriter, r *http.Request) {
	var req models.ClosureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	window, err := h.Closures.AddWindow(r.Context(), req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("AddClosure: %v", err))
		writeServiceError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, "Closure window added", window)
}

func (h *Handler) RemoveClosure(w http.ResponseWriter, r *http.Request) {
	closureID := chi.URLParam(r, "closureId")

	if err := h.Closures.RemoveWindow(r.Context(), closureID); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListClosures(w http.ResponseWriter, r *http.Request) {
	groundID := chi.URLParam(r, "groundId")

	windows, err := h.Closures.ListForGround(r.Context(), groundID)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to list closure windows", err.Error())
		return
	}

	utils.WriteJSON(w, http.StatusOK, "Closure windows", windows)
}

// writeServiceError maps the shared error taxonomy onto HTTP statuses. Taken
// slots and closures are expected outcomes, not server faults.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		utils.WriteError(w, http.StatusBadRequest, "Invalid request", err.Error())
	case errors.Is(err, models.ErrSlotTaken):
		utils.WriteError(w, http.StatusConflict, "Slot already taken", err.Error())
	case errors.Is(err, models.ErrSlotClosed):
		utils.WriteError(w, http.StatusConflict, "Slot closed", err.Error())
	case errors.Is(err, models.ErrConflict):
		utils.WriteError(w, http.StatusConflict, "Conflicting state", err.Error())
	case errors.Is(err, models.ErrNotFound):
		utils.WriteError(w, http.StatusNotFound, "Not found", "")
	default:
		utils.WriteError(w, http.StatusInternalServerError, "Internal error", err.Error())
	}
}
