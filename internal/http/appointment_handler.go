package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/appointment-store/internal/application"
	"github.com/example/appointment-store/internal/calendar"
	"github.com/example/appointment-store/internal/classify"
	"github.com/example/appointment-store/internal/record"
)

const maxAppointmentBodySize = 64 << 10

type appointmentStore interface {
	LoadAll(ctx context.Context) ([]application.Appointment, error)
	Create(ctx context.Context, draft application.AppointmentDraft) (application.Appointment, error)
	Delete(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string) error
	Views() application.Views
	Location() *time.Location
}

// AppointmentHandler serves the appointment routes.
type AppointmentHandler struct {
	store     appointmentStore
	responder responder
	logger    *slog.Logger
}

// NewAppointmentHandler returns a handler backed by store. A nil logger falls
// back to the default logger.
func NewAppointmentHandler(store appointmentStore, logger *slog.Logger) *AppointmentHandler {
	base := defaultLogger(logger)
	return &AppointmentHandler{store: store, responder: newResponder(base), logger: base}
}

func (h *AppointmentHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AppointmentHandler", operation, attrs...)
}

func (h *AppointmentHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.store == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

// List returns the full current set, re-read from the backend.
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	records, err := h.store.LoadAll(r.Context())
	if err != nil {
		h.log(r.Context(), "List", "error_kind", application.ErrorKind(err)).WarnContext(r.Context(), "serving empty appointment list", "error", err)
		h.responder.writeDegraded(r.Context(), w, []application.Appointment{})
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, nonNil(records))
}

// Create validates and stores a new appointment. The body uses the persisted
// layout; any id in it is replaced by a freshly minted one.
func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAppointmentBodySize)
	var req record.Appointment
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode appointment request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	for _, field := range req.CoercedFields() {
		if field == record.FieldID {
			continue
		}
		h.log(r.Context(), "Create", "error_kind", "bad_request").ErrorContext(r.Context(), "appointment request field has the wrong type", "field", field)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create")

	appointment, err := h.store.Create(r.Context(), application.AppointmentDraft{
		SubjectName: req.SubjectName,
		Date:        req.Date,
		Time:        req.Time,
		Reason:      req.Reason,
		Notes:       req.Notes,
		Extensions:  req.Extensions,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "appointment creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("appointment_id", appointment.ID).InfoContext(r.Context(), "appointment created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, appointment)
}

// Delete removes the appointment named in the path. Unknown ids succeed.
func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	id, ok := appointmentID(r)
	if !ok {
		h.log(r.Context(), "Delete", "error_kind", "bad_request").ErrorContext(r.Context(), "missing appointment id for delete")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidAppointmentID)
		return
	}

	logger := h.log(r.Context(), "Delete", "appointment_id", id)
	if err := h.store.Delete(r.Context(), id); err != nil {
		logger.ErrorContext(r.Context(), "appointment deletion failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "appointment deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, successResponse{Success: true})
}

// Complete marks the appointment named in the path as completed. Unknown ids
// succeed.
func (h *AppointmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	id, ok := appointmentID(r)
	if !ok {
		h.log(r.Context(), "Complete", "error_kind", "bad_request").ErrorContext(r.Context(), "missing appointment id for complete")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidAppointmentID)
		return
	}

	logger := h.log(r.Context(), "Complete", "appointment_id", id)
	if err := h.store.MarkCompleted(r.Context(), id); err != nil {
		logger.ErrorContext(r.Context(), "marking appointment completed failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "appointment completed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, successResponse{Success: true})
}

// Upcoming returns the records scheduled at or after now, earliest first.
func (h *AppointmentHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	h.serveView(w, r, "Upcoming", func(v application.Views) any { return nonNil(v.Upcoming) })
}

// Past returns the records scheduled before now, earliest first.
func (h *AppointmentHandler) Past(w http.ResponseWriter, r *http.Request) {
	h.serveView(w, r, "Past", func(v application.Views) any { return nonNil(v.Past) })
}

// Missed returns the past records that were never completed.
func (h *AppointmentHandler) Missed(w http.ResponseWriter, r *http.Request) {
	h.serveView(w, r, "Missed", func(v application.Views) any { return nonNil(v.Missed) })
}

// Malformed reports the records whose date and time do not parse.
func (h *AppointmentHandler) Malformed(w http.ResponseWriter, r *http.Request) {
	h.serveView(w, r, "Malformed", func(v application.Views) any {
		out := make([]malformedDTO, 0, len(v.Malformed))
		for _, m := range v.Malformed {
			out = append(out, malformedDTO{ID: m.ID, Date: m.Date, Time: m.Time, Error: m.Err.Error()})
		}
		return out
	})
}

// Summary returns the per-view counts and the instant they were taken at.
func (h *AppointmentHandler) Summary(w http.ResponseWriter, r *http.Request) {
	h.serveView(w, r, "Summary", func(v application.Views) any {
		return summaryResponse{Now: v.Now, Summary: v.Summary}
	})
}

// ExportICS renders the current set as text/calendar.
func (h *AppointmentHandler) ExportICS(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	logger := h.log(r.Context(), "ExportICS")
	if _, err := h.store.LoadAll(r.Context()); err != nil {
		logger.WarnContext(r.Context(), "exporting empty calendar", "error", err, "error_kind", application.ErrorKind(err))
		w.Header().Set("Warning", backendWarning)
	}

	views := h.store.Views()
	data, err := calendar.Render(views.Sorted, h.store.Location(), views.Now)
	if err != nil {
		logger.ErrorContext(r.Context(), "calendar rendering failed", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="appointments.ics"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.ErrorContext(r.Context(), "failed to write calendar", "error", err)
	}
}

func (h *AppointmentHandler) serveView(w http.ResponseWriter, r *http.Request, operation string, pick func(application.Views) any) {
	if !h.ready(w) {
		return
	}

	if _, err := h.store.LoadAll(r.Context()); err != nil {
		h.log(r.Context(), operation, "error_kind", application.ErrorKind(err)).WarnContext(r.Context(), "serving empty view", "error", err)
		h.responder.writeDegraded(r.Context(), w, pick(h.store.Views()))
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, pick(h.store.Views()))
}

func appointmentID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	return id, id != ""
}

func nonNil(records []application.Appointment) []application.Appointment {
	if records == nil {
		return []application.Appointment{}
	}
	return records
}

type malformedDTO struct {
	ID    string `json:"id"`
	Date  string `json:"date"`
	Time  string `json:"time"`
	Error string `json:"error"`
}

type summaryResponse struct {
	Now time.Time `json:"now"`
	classify.Summary
}
