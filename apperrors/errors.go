package apperrors

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

type ErrorCode string

const (
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
	CodeConflict           ErrorCode = "CONFLICT"
	CodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	CodeForbidden          ErrorCode = "FORBIDDEN"
	CodePicksLocked        ErrorCode = "PICKS_LOCKED"
	CodeSongAlreadyWon     ErrorCode = "SONG_ALREADY_WON"
	CodeParticipantOut     ErrorCode = "PARTICIPANT_OUT"
	CodePoolFull           ErrorCode = "POOL_FULL"
	CodeSignupsClosed      ErrorCode = "SIGNUPS_CLOSED"
	CodeSetlistUnavailable ErrorCode = "SETLIST_UNAVAILABLE"
	CodeDatabaseError      ErrorCode = "DATABASE_ERROR"
	CodeUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	CodeInternal           ErrorCode = "INTERNAL"
)

type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func NotFound(entity, id string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s %s not found", entity, id), nil)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message, nil)
}

func Conflict(message string) *AppError {
	return New(CodeConflict, message, nil)
}

// Database wraps a persistence failure with the operation and entity id it hit.
func Database(op string, err error) *AppError {
	return New(CodeDatabaseError, op, err)
}

// CodeOf returns the code of the first AppError in err's chain, or CodeInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeInvalidInput:
		return fiber.StatusBadRequest
	case CodeUnauthorized:
		return fiber.StatusUnauthorized
	case CodeForbidden, CodeParticipantOut:
		return fiber.StatusForbidden
	case CodeConflict, CodePicksLocked, CodeSongAlreadyWon, CodePoolFull, CodeSignupsClosed:
		return fiber.StatusConflict
	case CodeSetlistUnavailable:
		return fiber.StatusUnprocessableEntity
	case CodeUpstreamError:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// Respond writes err as a JSON error body. Internal errors never leak their cause.
func Respond(c *fiber.Ctx, err error) error {
	status := HTTPStatus(err)
	code := CodeOf(err)

	message := "internal server error"
	var appErr *AppError
	if errors.As(err, &appErr) && status != fiber.StatusInternalServerError {
		message = appErr.Message
	}

	return c.Status(status).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}
