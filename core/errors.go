package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	BrokerErrorBadInput            = "BROKER_BAD_INPUT"
	BrokerErrorUnauthenticated     = "BROKER_UNAUTHENTICATED"
	BrokerErrorUpstreamRejected    = "BROKER_UPSTREAM_REJECTED"
	BrokerErrorUpstreamUnavailable = "BROKER_UPSTREAM_UNAVAILABLE"
	BrokerErrorNotFound            = "BROKER_NOT_FOUND"
	BrokerErrorConflict            = "BROKER_CONFLICT"
	BrokerErrorOperationFailed     = "BROKER_OPERATION_FAILED"
	BrokerErrorInternal            = "BROKER_INTERNAL_ERROR"
)

func brokerErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureBrokerErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "no credential"), strings.Contains(msg, "not authenticated"):
		return newBrokerError(err.Error(), goerrors.CategoryAuth, BrokerErrorUnauthenticated)
	case strings.Contains(msg, "rejected"), strings.Contains(msg, "invalid_grant"):
		return newBrokerError(err.Error(), goerrors.CategoryAuth, BrokerErrorUpstreamRejected)
	case strings.Contains(msg, "unavailable"), strings.Contains(msg, "connection refused"), strings.Contains(msg, "timeout"):
		return newBrokerError(err.Error(), goerrors.CategoryExternal, BrokerErrorUpstreamUnavailable)
	case strings.Contains(msg, "not found"), strings.Contains(msg, "no record"):
		return newBrokerError(err.Error(), goerrors.CategoryNotFound, BrokerErrorNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "incomplete"):
		return newBrokerError(err.Error(), goerrors.CategoryBadInput, BrokerErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureBrokerErrorEnvelope(mapped)
}

func newBrokerError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureBrokerErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureBrokerErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = BrokerHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultBrokerTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultBrokerTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return BrokerErrorBadInput
	case goerrors.CategoryNotFound:
		return BrokerErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return BrokerErrorUnauthenticated
	case goerrors.CategoryConflict:
		return BrokerErrorConflict
	case goerrors.CategoryExternal:
		return BrokerErrorUpstreamUnavailable
	case goerrors.CategoryOperation:
		return BrokerErrorOperationFailed
	default:
		return BrokerErrorInternal
	}
}

// BrokerHTTPStatus maps an error category to the status an embedding host
// should answer with.
func BrokerHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func NewUnauthenticatedError(principalID string) *goerrors.Error {
	return newBrokerError(
		"no credential record for principal",
		goerrors.CategoryAuth,
		BrokerErrorUnauthenticated,
	).WithMetadata(map[string]any{"principal_id": strings.TrimSpace(principalID)})
}

func NewUpstreamRejectedError(message string, metadata map[string]any) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = "authority rejected the grant"
	}
	err := newBrokerError(message, goerrors.CategoryAuth, BrokerErrorUpstreamRejected)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func NewUpstreamUnavailableError(source error, message string) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = "upstream is unavailable"
	}
	if source == nil {
		return newBrokerError(message, goerrors.CategoryExternal, BrokerErrorUpstreamUnavailable)
	}
	return ensureBrokerErrorEnvelope(
		goerrors.Wrap(source, goerrors.CategoryExternal, message).
			WithTextCode(BrokerErrorUpstreamUnavailable),
	)
}

func NewInvalidArgumentError(message string) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = "invalid argument"
	}
	return newBrokerError(message, goerrors.CategoryBadInput, BrokerErrorBadInput)
}

func NewRecordNotFoundError(principalID string) *goerrors.Error {
	return newBrokerError(
		"credential record not found",
		goerrors.CategoryNotFound,
		BrokerErrorNotFound,
	).WithMetadata(map[string]any{"principal_id": strings.TrimSpace(principalID)})
}

func errorTextCode(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return strings.TrimSpace(richErr.TextCode)
	}
	return ""
}

func hasTextCode(err error, textCode string) bool {
	return errorTextCode(err) == textCode
}

func IsUnauthenticated(err error) bool {
	return hasTextCode(err, BrokerErrorUnauthenticated)
}

func IsUpstreamRejected(err error) bool {
	return hasTextCode(err, BrokerErrorUpstreamRejected)
}

func IsInvalidArgument(err error) bool {
	return hasTextCode(err, BrokerErrorBadInput)
}

func IsUpstreamUnavailable(err error) bool {
	return hasTextCode(err, BrokerErrorUpstreamUnavailable)
}

func IsRecordNotFound(err error) bool {
	if hasTextCode(err, BrokerErrorNotFound) {
		return true
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == goerrors.CategoryNotFound
	}
	return false
}

// IsRetryable reports whether a caller outside this package may retry the
// operation. Only upstream availability failures qualify; rejections and
// validation failures are final.
func IsRetryable(err error) bool {
	return IsUpstreamUnavailable(err)
}

// FailureKind returns the machine-readable kind recorded on batch failures.
func FailureKind(err error) string {
	if err == nil {
		return ""
	}
	if code := errorTextCode(err); code != "" {
		return code
	}
	mapped := brokerErrorMapper(err)
	if mapped == nil {
		return BrokerErrorInternal
	}
	return mapped.TextCode
}
