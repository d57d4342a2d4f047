package gemini

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/dispatchly/event"
	"github.com/viant/dispatchly/fault"
)

func TestGenerate(t *testing.T) {
	testCases := []struct {
		description string
		status      int
		body        string
		expectText  string
		expectCode  fault.Code
		expect      event.ResultCode
	}{
		{
			description: "complete response",
			status:      http.StatusOK,
			body:        `{"candidates":[{"content":{"role":"model","parts":[{"text":"All "},{"text":"good"}]},"finishReason":"STOP"}]}`,
			expectText:  "All good",
			expect:      event.ResultComplete,
		},
		{
			description: "truncated response",
			status:      http.StatusOK,
			body:        `{"candidates":[{"content":{"parts":[{"text":"part"}]},"finishReason":"MAX_TOKENS"}]}`,
			expectText:  "part",
			expect:      event.ResultIncompleteMaxTokens,
		},
		{
			description: "empty truncated response",
			status:      http.StatusOK,
			body:        `{"candidates":[{"content":{"parts":[]},"finishReason":"MAX_TOKENS"}]}`,
			expectCode:  fault.ProviderResponseMaxTokensError,
		},
		{
			description: "quota exhausted",
			status:      http.StatusTooManyRequests,
			body:        `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`,
			expectCode:  fault.ProviderExceededQuotaError,
		},
		{
			description: "server error",
			status:      http.StatusBadGateway,
			body:        `bad`,
			expectCode:  fault.ProviderResponseError,
		},
	}

	for _, tc := range testCases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.EqualValues(t, "test-key", r.Header.Get("x-goog-api-key"), tc.description)
			assert.True(t, strings.HasSuffix(r.URL.Path, ":generateContent"), tc.description)
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		}))
		client := NewClient("test-key", WithBaseURL(server.URL))
		response, err := client.Generate(context.Background(), "gemini-2.0-flash", "Hello", nil)
		if tc.expectCode != "" {
			assert.EqualValues(t, tc.expectCode, fault.CodeOf(err), tc.description)
			server.Close()
			continue
		}
		if assert.NoError(t, err, tc.description) {
			assert.EqualValues(t, tc.expectText, response.Text, tc.description)
			assert.EqualValues(t, tc.expect, response.Result, tc.description)
		}
		server.Close()
	}
}

func TestStreamTranslation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, ":streamGenerateContent"))
		_, _ = io.WriteString(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hel\"}]}}]}\n\n")
		_, _ = io.WriteString(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"lo\"}]},\"finishReason\":\"STOP\"}]}\n\n")
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	streamer, err := client.Stream(context.Background(), "gemini-2.0-flash", "Hello", nil)
	if !assert.NoError(t, err) {
		return
	}
	defer streamer.Close()

	var events []*event.Event
	for {
		frame, err := streamer.Recv()
		if err == io.EOF {
			break
		}
		if !assert.NoError(t, err) {
			return
		}
		events = append(events, event.Decode(frame, nil)...)
	}
	if !assert.Len(t, events, 3) {
		return
	}
	assert.EqualValues(t, "Hel", events[0].Content.Response)
	assert.EqualValues(t, "lo", events[1].Content.Response)
	assert.EqualValues(t, event.NameEnd, events[2].Name)
	assert.EqualValues(t, event.ResultComplete, events[2].End.Response)
}
