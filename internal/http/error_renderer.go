package httpx

import (
	"context"
	"errors"
	"net/http"

	apperrors "github.com/scadforge/scadforge/internal/errors"
)

// statusForCode maps application error codes to HTTP status codes.
func statusForCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict, apperrors.ErrCodeForeignKey:
		return http.StatusConflict
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodeCanceled, apperrors.ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// RenderAppError writes a JSON error response for a service error. Client
// errors carry their own message through; anything internal is masked so
// infrastructure details never reach the response body.
func RenderAppError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		WriteError(w, ErrorParams{
			Code:    http.StatusGatewayTimeout,
			ErrCode: "timeout",
			Err:     errors.New("request timed out"),
		})
		return
	}

	code := apperrors.GetCode(err)
	status := statusForCode(code)
	if status >= http.StatusInternalServerError {
		WriteError(w, ErrorParams{
			Code:    status,
			ErrCode: "internal",
			Err:     errors.New("internal server error"),
		})
		return
	}

	// Client errors expose only the AppError message, never the wrapped cause.
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	WriteError(w, ErrorParams{Code: status, ErrCode: string(code), Err: errors.New(msg)})
}
