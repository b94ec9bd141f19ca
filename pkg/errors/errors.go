package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups error codes by how the offramp flow should react to them.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindTransient    Kind = "transient"
	KindOnChain      Kind = "onchain"
	KindInvalidState Kind = "invalid_state"
	KindValidation   Kind = "validation"
	KindAuth         Kind = "auth"
	KindInternal     Kind = "internal"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Kind       Kind   `json:"kind,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	Details    any    `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
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

// Is reports whether target carries the same code, so copies produced by
// WithDetails/WithError/WithMessage still match their sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) clone() *AppError {
	c := *e
	return &c
}

func (e *AppError) WithDetails(details any) *AppError {
	c := e.clone()
	c.Details = details
	return c
}

func (e *AppError) WithError(err error) *AppError {
	c := e.clone()
	c.Err = err
	return c
}

func (e *AppError) WithMessage(message string) *AppError {
	c := e.clone()
	c.Message = message
	return c
}

func (e *AppError) WithMessagef(format string, args ...any) *AppError {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// As extracts the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func KindOf(err error) Kind {
	if appErr, ok := As(err); ok && appErr.Kind != "" {
		return appErr.Kind
	}
	return KindInternal
}

func IsRetryable(err error) bool {
	if appErr, ok := As(err); ok {
		return appErr.Retryable
	}
	return false
}

func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		Kind:       KindAuth,
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidToken = &AppError{
		Code:       "INVALID_TOKEN",
		Message:    "Invalid or expired session token",
		Kind:       KindAuth,
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Access denied",
		Kind:       KindAuth,
		HTTPStatus: http.StatusForbidden,
	}

	ErrValidation = &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    "Invalid input",
		Kind:       KindValidation,
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidPhone = &AppError{
		Code:       "INVALID_PHONE",
		Message:    "Invalid phone number format",
		Kind:       KindValidation,
		HTTPStatus: http.StatusBadRequest,
	}

	ErrUnsupportedCountry = &AppError{
		Code:       "UNSUPPORTED_COUNTRY",
		Message:    "Country is not supported",
		Kind:       KindValidation,
		HTTPStatus: http.StatusBadRequest,
	}

	ErrUnsupportedToken = &AppError{
		Code:       "UNSUPPORTED_TOKEN",
		Message:    "Token is not supported",
		Kind:       KindValidation,
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidAmount = &AppError{
		Code:       "INVALID_AMOUNT",
		Message:    "Amount must be greater than zero",
		Kind:       KindValidation,
		HTTPStatus: http.StatusBadRequest,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		Kind:       KindNotFound,
		HTTPStatus: http.StatusNotFound,
	}

	ErrProviderNotFound = &AppError{
		Code:       "PROVIDER_NOT_FOUND",
		Message:    "Provider not found",
		Kind:       KindNotFound,
		HTTPStatus: http.StatusNotFound,
	}

	ErrProvidersLoading = &AppError{
		Code:       "PROVIDERS_LOADING",
		Message:    "Provider list has not been loaded yet",
		Kind:       KindTransient,
		Retryable:  true,
		HTTPStatus: http.StatusServiceUnavailable,
	}

	ErrProviderUnsupported = &AppError{
		Code:       "PROVIDER_UNSUPPORTED",
		Message:    "Provider has no known capabilities",
		Kind:       KindValidation,
		HTTPStatus: http.StatusUnprocessableEntity,
	}

	ErrRequestNotFound = &AppError{
		Code:       "REQUEST_NOT_FOUND",
		Message:    "Offramp request not found",
		Kind:       KindNotFound,
		HTTPStatus: http.StatusNotFound,
	}

	ErrWalletNotFound = &AppError{
		Code:       "WALLET_NOT_FOUND",
		Message:    "No mobile money wallet registered for this phone number",
		Kind:       KindNotFound,
		HTTPStatus: http.StatusNotFound,
	}

	ErrFiatWalletNotFound = &AppError{
		Code:       "FIAT_WALLET_NOT_FOUND",
		Message:    "No fiat wallet for currency",
		Kind:       KindNotFound,
		HTTPStatus: http.StatusNotFound,
	}

	ErrStatusNotFound = &AppError{
		Code:       "STATUS_NOT_FOUND",
		Message:    "No status available for this reference",
		Kind:       KindNotFound,
		HTTPStatus: http.StatusNotFound,
	}

	ErrSessionNotFound = &AppError{
		Code:       "SESSION_NOT_FOUND",
		Message:    "Offramp session not found",
		Kind:       KindNotFound,
		HTTPStatus: http.StatusNotFound,
	}

	ErrBackendUnavailable = &AppError{
		Code:       "BACKEND_UNAVAILABLE",
		Message:    "Offramp backend temporarily unavailable",
		Kind:       KindTransient,
		Retryable:  true,
		HTTPStatus: http.StatusBadGateway,
	}

	ErrBackendRejected = &AppError{
		Code:       "BACKEND_REJECTED",
		Message:    "Offramp backend rejected the request",
		Kind:       KindValidation,
		HTTPStatus: http.StatusUnprocessableEntity,
	}

	ErrChainUnavailable = &AppError{
		Code:       "CHAIN_UNAVAILABLE",
		Message:    "Chain RPC temporarily unavailable",
		Kind:       KindTransient,
		Retryable:  true,
		HTTPStatus: http.StatusBadGateway,
	}

	ErrTransferRejected = &AppError{
		Code:       "TRANSFER_REJECTED",
		Message:    "Transfer was rejected by the wallet",
		Kind:       KindOnChain,
		HTTPStatus: http.StatusUnprocessableEntity,
	}

	ErrTransferReverted = &AppError{
		Code:       "TRANSFER_REVERTED",
		Message:    "Transfer reverted on chain",
		Kind:       KindOnChain,
		HTTPStatus: http.StatusUnprocessableEntity,
	}

	ErrReceiptTimeout = &AppError{
		Code:       "RECEIPT_TIMEOUT",
		Message:    "Timed out waiting for transaction receipt",
		Kind:       KindTransient,
		Retryable:  true,
		HTTPStatus: http.StatusGatewayTimeout,
	}

	ErrMissingEscrowAddress = &AppError{
		Code:       "MISSING_ESCROW_ADDRESS",
		Message:    "Offramp request has no escrow address",
		Kind:       KindInvalidState,
		HTTPStatus: http.StatusConflict,
	}

	ErrMissingTxHash = &AppError{
		Code:       "MISSING_TX_HASH",
		Message:    "No confirmed transaction hash for execution",
		Kind:       KindInvalidState,
		HTTPStatus: http.StatusConflict,
	}

	ErrSenderMismatch = &AppError{
		Code:       "SENDER_MISMATCH",
		Message:    "Connected address does not match the request sender",
		Kind:       KindInvalidState,
		HTTPStatus: http.StatusConflict,
	}

	ErrRequestCancelled = &AppError{
		Code:       "REQUEST_CANCELLED",
		Message:    "Offramp request has been cancelled",
		Kind:       KindInvalidState,
		HTTPStatus: http.StatusConflict,
	}

	ErrInvalidState = &AppError{
		Code:       "INVALID_STATE",
		Message:    "Operation not allowed in the current state",
		Kind:       KindInvalidState,
		HTTPStatus: http.StatusConflict,
	}

	ErrRateLimited = &AppError{
		Code:       "RATE_LIMITED",
		Message:    "Too many requests, please try again later",
		Kind:       KindTransient,
		Retryable:  true,
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		Kind:       KindInternal,
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrServiceUnavailable = &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "Service temporarily unavailable",
		Kind:       KindTransient,
		Retryable:  true,
		HTTPStatus: http.StatusServiceUnavailable,
	}
)
