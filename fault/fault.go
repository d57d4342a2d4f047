// Package fault defines the coded errors shared by the dispatch engine,
// providers and stores. A *Fault carries a stable string code so that
// callers can branch on failure class without string matching.
package fault

import (
	"errors"
	"fmt"
)

// Code identifies a failure class.
type Code string

const (
	OptionError                       Code = "OPTION_ERROR"
	HistoryGetError                   Code = "HISTORY_GET_ERROR"
	ProviderNoModelsAvailableError    Code = "PROVIDER_NO_MODELS_AVAILABLE_ERROR"
	ProviderRateLimitError            Code = "PROVIDER_RATE_LIMIT_ERROR"
	ProviderRequestTimeoutError       Code = "PROVIDER_REQUEST_TIMEOUT_ERROR"
	ProviderRequestStreamTimeoutError Code = "PROVIDER_REQUEST_STREAM_TIMEOUT_ERROR"
	ProviderRequestEndError           Code = "PROVIDER_REQUEST_END_ERROR"
	ProviderResponseError             Code = "PROVIDER_RESPONSE_ERROR"
	ProviderResponseNoContent         Code = "PROVIDER_RESPONSE_NO_CONTENT"
	ProviderResponseMaxTokensError    Code = "PROVIDER_RESPONSE_MAX_TOKENS_ERROR"
	ProviderExceededQuotaError        Code = "PROVIDER_EXCEEDED_QUOTA_ERROR"
	ProviderStreamError               Code = "PROVIDER_STREAM_ERROR"
	StorageGetError                   Code = "STORAGE_GET_ERROR"
	StorageSetError                   Code = "STORAGE_SET_ERROR"
	StorageSubscribeError             Code = "STORAGE_SUBSCRIBE_ERROR"
	InvalidTimeWindowFormat           Code = "INVALID_TIME_WINDOW_FORMAT"
	InvalidTimeWindowUnit             Code = "INVALID_TIME_WINDOW_UNIT"
)

// Fault is a coded error. WaitSeconds is populated for rate-limit refusals
// so that callers can surface a retry-after hint.
type Fault struct {
	Code        Code
	Message     string
	WaitSeconds int
	cause       error
}

// Error implements error.
func (f *Fault) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Message, f.cause)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// Unwrap exposes the cause to errors.Is/As.
func (f *Fault) Unwrap() error {
	return f.cause
}

// New creates a fault with the given code and message.
func New(code Code, message string) *Fault {
	return &Fault{Code: code, Message: message}
}

// Newf creates a fault with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a fault whose cause is err.
func Wrap(code Code, message string, err error) *Fault {
	return &Fault{Code: code, Message: message, cause: err}
}

// CodeOf returns the code of the outermost fault in err's chain, or empty
// when err carries no fault.
func CodeOf(err error) Code {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return ""
}

// Has reports whether err's chain contains a fault with the given code.
func Has(err error, code Code) bool {
	for err != nil {
		var f *Fault
		if !errors.As(err, &f) {
			return false
		}
		if f.Code == code {
			return true
		}
		err = f.cause
	}
	return false
}

// RetryableSameModel reports whether err may be retried against the same
// model before falling back.
func RetryableSameModel(err error) bool {
	switch CodeOf(err) {
	case ProviderStreamError, ProviderResponseError:
		return true
	}
	return false
}

// UpdatesModelState reports whether err moves the failing model into the
// error state before fallback.
func UpdatesModelState(err error) bool {
	switch CodeOf(err) {
	case ProviderRateLimitError,
		ProviderRequestTimeoutError,
		ProviderRequestStreamTimeoutError,
		ProviderResponseError,
		ProviderResponseNoContent,
		ProviderExceededQuotaError,
		ProviderResponseMaxTokensError,
		ProviderStreamError:
		return true
	}
	return false
}
