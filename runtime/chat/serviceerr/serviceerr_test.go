package serviceerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyModelService(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		kind    Kind
		status  int
		message string
	}{
		{
			name:    "api key text",
			err:     errors.New("invalid API key provided"),
			kind:    KindAPIKey,
			status:  401,
			message: "Invalid or missing API key",
		},
		{
			name:    "unauthorized status",
			err:     WithStatus(errors.New("request failed"), 401),
			kind:    KindAPIKey,
			status:  401,
			message: "Invalid or missing API key",
		},
		{
			name:    "quota text",
			err:     errors.New("you exceeded your current quota"),
			kind:    KindQuotaExceeded,
			status:  429,
			message: "API quota exceeded",
		},
		{
			name:    "rate limit status",
			err:     WithStatus(errors.New("too many requests"), 429),
			kind:    KindQuotaExceeded,
			status:  429,
			message: "API quota exceeded",
		},
		{
			name:    "safety",
			err:     errors.New("response blocked by safety settings"),
			kind:    KindSafety,
			status:  400,
			message: "Content violates safety guidelines",
		},
		{
			name:    "model not found",
			err:     errors.New("model gemini-9000 not found"),
			kind:    KindModel,
			status:  404,
			message: "Model not found or unavailable",
		},
		{
			name:    "model error keeps original status",
			err:     WithStatus(errors.New("model overloaded"), 503),
			kind:    KindModel,
			status:  503,
			message: "Model not found or unavailable",
		},
		{
			name:    "generic",
			err:     errors.New("boom"),
			kind:    KindUnknown,
			status:  500,
			message: "Service error occurred",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			se := Classify(tc.err, "chat", "gemini")
			require.Equal(t, tc.kind, se.Kind)
			require.Equal(t, "gemini", se.Service)
			require.Equal(t, tc.status, se.StatusCode)
			require.Equal(t, tc.message, se.Message)
			require.Equal(t, tc.err.Error(), se.Details)
		})
	}
}

func TestClassifyTransport(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		kind   Kind
		status int
	}{
		{"connection refused", errors.New("dial tcp: connection refused"), KindNetwork, 503},
		{"econnrefused", errors.New("ECONNREFUSED"), KindNetwork, 503},
		{"timeout", errors.New("request timed out"), KindTimeout, 408},
		{"unknown", errors.New("something odd"), KindUnknown, 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			se := Classify(tc.err, "chat", "")
			require.Equal(t, tc.kind, se.Kind)
			require.Equal(t, "chat", se.Service)
			require.Equal(t, tc.status, se.StatusCode)
		})
	}
}

func TestClassifyNil(t *testing.T) {
	se := Classify(nil, "chat", "")
	require.NotNil(t, se)
	require.Equal(t, KindUnknown, se.Kind)
	require.Equal(t, 500, se.StatusCode)
}

func TestStatusUnwrapsWrappedErrors(t *testing.T) {
	inner := WithStatus(errors.New("upstream said no"), 429)
	wrapped := fmt.Errorf("call provider: %w", inner)
	se := Classify(wrapped, "chat", "gemini")
	require.Equal(t, KindQuotaExceeded, se.Kind)
	require.Equal(t, 429, se.StatusCode)
}

func TestValidationError(t *testing.T) {
	se := NewValidation("chat", "Messages are required")
	require.Equal(t, KindValidation, se.Kind)
	require.Equal(t, 400, se.StatusCode)
	require.EqualError(t, se, "chat: Messages are required")
}
