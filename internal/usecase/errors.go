package usecase

import (
	"errors"
	"fmt"
	"net/http"

	repo "marketplace/internal/repository"
)

// クライアントが分岐に使う機械可読な種別
type ErrorKind string

const (
	KindProductUnavailable    ErrorKind = "ProductUnavailable"
	KindMinimumQuantityNotMet ErrorKind = "MinimumQuantityNotMet"
	KindSlotExpired           ErrorKind = "SlotExpired"
	KindCapacityExceeded      ErrorKind = "CapacityExceeded"
	KindInvalidTransition     ErrorKind = "InvalidTransition"
	KindConflict              ErrorKind = "Conflict"
	KindValidationFailed      ErrorKind = "ValidationFailed"
	KindNotFound              ErrorKind = "NotFound"
	KindForbidden             ErrorKind = "Forbidden"
	KindUnauthorized          ErrorKind = "Unauthorized"
	KindBadRequest            ErrorKind = "BadRequest"
	KindInternal              ErrorKind = "Internal"
)

var kindStatus = map[ErrorKind]int{
	KindProductUnavailable:    http.StatusBadRequest,
	KindMinimumQuantityNotMet: http.StatusBadRequest,
	KindSlotExpired:           http.StatusBadRequest,
	KindCapacityExceeded:      http.StatusConflict,
	KindInvalidTransition:     http.StatusConflict,
	KindConflict:              http.StatusConflict,
	KindValidationFailed:      http.StatusUnprocessableEntity,
	KindNotFound:              http.StatusNotFound,
	KindForbidden:             http.StatusForbidden,
	KindUnauthorized:          http.StatusUnauthorized,
	KindBadRequest:            http.StatusBadRequest,
	KindInternal:              http.StatusInternalServerError,
}

type HTTPError struct {
	Status  int
	Kind    ErrorKind
	Message string
	// ValidationFailedのときだけ（項目名→理由）
	Fields map[string]string

	cause error
}

func (e *HTTPError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%d: %s: %v", e.Status, e.Message, e.cause)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error { return e.cause }

// ステータスから種別を決める（細かい種別が要るときはNewKindError）
func NewHTTPError(status int, message string) error {
	kind := KindInternal
	switch status {
	case http.StatusBadRequest:
		kind = KindBadRequest
	case http.StatusUnauthorized:
		kind = KindUnauthorized
	case http.StatusForbidden:
		kind = KindForbidden
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusConflict:
		kind = KindConflict
	case http.StatusUnprocessableEntity:
		kind = KindValidationFailed
	}
	return &HTTPError{Status: status, Kind: kind, Message: message}
}

func NewKindError(kind ErrorKind, message string) error {
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &HTTPError{Status: status, Kind: kind, Message: message}
}

func NewValidationError(fields map[string]string) error {
	return &HTTPError{
		Status:  http.StatusUnprocessableEntity,
		Kind:    KindValidationFailed,
		Message: "validation failed",
		Fields:  fields,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// 原因はログ用に保持し、レスポンスには出さない
func internalError(err error) error {
	return &HTTPError{
		Status:  http.StatusInternalServerError,
		Kind:    KindInternal,
		Message: "db error",
		cause:   err,
	}
}

// repositoryの番兵エラーを種別へ。HTTPErrorはそのまま通す。
func fromRepoError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsHTTPError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return NewKindError(KindNotFound, "not found")
	case errors.Is(err, repo.ErrCapacityExceeded):
		return NewKindError(KindCapacityExceeded, "delivery slot capacity exceeded")
	case errors.Is(err, repo.ErrSlotExpired):
		return NewKindError(KindSlotExpired, "delivery slot date has passed")
	case errors.Is(err, repo.ErrSlotInUse):
		return NewKindError(KindConflict, "delivery slot has bookings")
	case errors.Is(err, repo.ErrDuplicate):
		return NewKindError(KindConflict, "already exists")
	case errors.Is(err, repo.ErrStatusChanged):
		return NewKindError(KindInvalidTransition, "order status changed concurrently")
	}
	return internalError(err)
}
