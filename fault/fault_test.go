package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfUnwrapsChains(t *testing.T) {
	base := New(ProviderResponseError, "upstream failed")
	wrapped := fmt.Errorf("request openai:gpt-4o-mini: %w", base)
	assert.EqualValues(t, ProviderResponseError, CodeOf(wrapped))
	assert.True(t, Has(wrapped, ProviderResponseError))
	assert.False(t, Has(wrapped, ProviderStreamError))
	assert.EqualValues(t, "", CodeOf(errors.New("plain")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	f := Wrap(StorageGetError, "failed to load session", cause)
	assert.ErrorIs(t, f, cause)
	assert.Contains(t, f.Error(), "STORAGE_GET_ERROR")
	assert.Contains(t, f.Error(), "connection reset")
}

func TestClassification(t *testing.T) {
	assert.True(t, RetryableSameModel(New(ProviderResponseError, "")))
	assert.True(t, RetryableSameModel(New(ProviderStreamError, "")))
	assert.False(t, RetryableSameModel(New(ProviderRequestTimeoutError, "")))

	stateUpdating := []Code{
		ProviderRateLimitError,
		ProviderRequestTimeoutError,
		ProviderRequestStreamTimeoutError,
		ProviderResponseError,
		ProviderResponseNoContent,
		ProviderExceededQuotaError,
		ProviderResponseMaxTokensError,
		ProviderStreamError,
	}
	for _, code := range stateUpdating {
		assert.True(t, UpdatesModelState(New(code, "")), string(code))
	}
	assert.False(t, UpdatesModelState(New(OptionError, "")))
	assert.False(t, UpdatesModelState(New(ProviderNoModelsAvailableError, "")))
}
