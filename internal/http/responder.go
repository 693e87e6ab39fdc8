package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/appointment-store/internal/application"
)

var (
	errBadRequestBody       = errors.New("無効なリクエスト形式です。")
	errInvalidAppointmentID = errors.New("無効な予約 ID です。")
)

// backendWarning is sent in the Warning header when a read degrades to an empty set.
const backendWarning = `199 apptstore "appointment backend unavailable; showing an empty set"`

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := localizedStatusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// writeDegraded answers a failed read with an empty list and a Warning header.
func (r responder) writeDegraded(ctx context.Context, w http.ResponseWriter, payload any) {
	w.Header().Set("Warning", backendWarning)
	r.writeJSON(ctx, w, http.StatusOK, payload)
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var vErr *application.ValidationError
	switch {
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   "入力内容に誤りがあります。",
			Errors:    localizeValidationErrors(vErr),
		})
	case errors.Is(err, application.ErrBackendUnavailable):
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{
			ErrorCode: "BACKEND_UNAVAILABLE",
			Message:   localizedStatusMessage(http.StatusServiceUnavailable),
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{Message: "リクエストがタイムアウトしました。"})
	default:
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: localizedStatusMessage(http.StatusInternalServerError)})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func localizedStatusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "リクエスト内容が正しくありません。"
	case http.StatusNotFound:
		return "指定されたリソースが見つかりません。"
	case http.StatusUnprocessableEntity:
		return "入力内容に誤りがあります。"
	case http.StatusServiceUnavailable:
		return "予約データの保存先に接続できません。しばらくしてから再度お試しください。"
	default:
		return "サーバー内部でエラーが発生しました。"
	}
}

func localizeValidationErrors(vErr *application.ValidationError) map[string]string {
	if vErr == nil || len(vErr.FieldErrors) == 0 {
		return nil
	}

	translated := make(map[string]string, len(vErr.FieldErrors))
	for field, msg := range vErr.FieldErrors {
		translated[field] = translateValidationMessage(msg)
	}
	return translated
}

func translateValidationMessage(message string) string {
	switch message {
	case "subject name is required":
		return "氏名は必須です。"
	case "date is required":
		return "日付は必須です。"
	case "date must be YYYY-MM-DD":
		return "日付は YYYY-MM-DD 形式で指定してください。"
	case "time is required":
		return "時刻は必須です。"
	case "time must be HH:MM":
		return "時刻は HH:MM 形式で指定してください。"
	case "reason is required":
		return "予約理由は必須です。"
	default:
		return message
	}
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}

type successResponse struct {
	Success bool `json:"success"`
}
