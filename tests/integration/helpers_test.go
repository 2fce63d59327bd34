//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/bissquit/fieldservice-sla/internal/testutil"
	"github.com/stretchr/testify/require"
)

// envelope is the {"data": ...} response wrapper.
type envelope[T any] struct {
	Data T `json:"data"`
}

type faultResponse struct {
	ID        string  `json:"id"`
	Reference string  `json:"reference"`
	Severity  string  `json:"severity"`
	Status    string  `json:"status"`
	RaisedAt  string  `json:"raised_at"`
	Responded *string `json:"responded_at"`
	Resolved  *string `json:"resolved_at"`
	Deadlines struct {
		Respond     *string `json:"respond_deadline"`
		Onsite      *string `json:"onsite_deadline"`
		TempRestore *string `json:"temp_restore_deadline"`
	} `json:"deadlines"`
}

// createFault logs a fault through the API and returns it.
func createFault(t *testing.T, client *testutil.Client, severity, raisedAt string) faultResponse {
	t.Helper()

	payload := map[string]any{
		"reference": testutil.RandomReference("FLT"),
		"severity":  severity,
	}
	if raisedAt != "" {
		payload["raised_at"] = raisedAt
	}

	resp, err := client.POST("/api/v1/faults", payload)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result envelope[faultResponse]
	testutil.DecodeJSON(t, resp, &result)
	require.NotEmpty(t, result.Data.ID)
	return result.Data
}

// decode reads an enveloped response, asserting the status first.
func decode[T any](t *testing.T, resp *http.Response, status int) T {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("unexpected status %d (want %d): %s", resp.StatusCode, status, testutil.ReadBody(t, resp))
	}
	var result envelope[T]
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// requireStatus asserts the response status and closes the body.
func requireStatus(t *testing.T, resp *http.Response, status int) {
	t.Helper()
	body := testutil.ReadBody(t, resp)
	require.Equal(t, status, resp.StatusCode, body)
}
