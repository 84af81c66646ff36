package agentclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/agentsync/internal/domain/agent"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type recordedRequest struct {
	Method      string
	Path        string
	ContentType string
	Body        map[string]any
}

// newRecordingServer captures every request and answers with the given
// status and JSON body.
func newRecordingServer(t *testing.T, status int, response string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var seen []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		rec := recordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			ContentType: r.Header.Get("Content-Type"),
		}
		if len(raw) > 0 {
			require.NoError(t, json.Unmarshal(raw, &rec.Body))
		}
		seen = append(seen, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func testAgent(t *testing.T, baseURL string) *agent.Agent {
	t.Helper()
	a, err := agent.NewAgent("VENDOR1", baseURL, "hash", "1.0.0")
	require.NoError(t, err)
	return a
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestHTTPClient_ChecksumCallsArePostedAsJSON(t *testing.T) {
	srv, seen := newRecordingServer(t, http.StatusOK,
		`{"checksum":"abc123","itemCount":42}`)
	client := NewHTTPClient(5*time.Second, zap.NewNop())
	a := testAgent(t, srv.URL)

	t.Run("whole-catalog checksum", func(t *testing.T) {
		checksum, count, err := client.GetCatalogChecksum(context.Background(), a)
		require.NoError(t, err)
		assert.Equal(t, "abc123", checksum)
		assert.Equal(t, 42, count)

		last := (*seen)[len(*seen)-1]
		assert.Equal(t, http.MethodPost, last.Method)
		assert.Equal(t, "/sync/catalog/checksum", last.Path)
		assert.Equal(t, "application/json", last.ContentType)
		assert.NotContains(t, last.Body, "startSku")
		assert.NotContains(t, last.Body, "endSku")
	})

	t.Run("range checksum carries bounds in the body", func(t *testing.T) {
		checksum, err := client.GetRangeChecksum(context.Background(), a, "SKU100", "SKU200")
		require.NoError(t, err)
		assert.Equal(t, "abc123", checksum)

		last := (*seen)[len(*seen)-1]
		assert.Equal(t, http.MethodPost, last.Method)
		assert.Equal(t, "/sync/catalog/checksum", last.Path)
		assert.Equal(t, "SKU100", last.Body["startSku"])
		assert.Equal(t, "SKU200", last.Body["endSku"])
	})
}

func TestHTTPClient_GetItemChecksums(t *testing.T) {
	srv, seen := newRecordingServer(t, http.StatusOK,
		`{"items":{"SKU001":"h1","SKU002":"h2"}}`)
	client := NewHTTPClient(5*time.Second, zap.NewNop())
	a := testAgent(t, srv.URL)

	checksums, err := client.GetItemChecksums(context.Background(), a, "SKU001", "SKU099")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"SKU001": "h1", "SKU002": "h2"}, checksums)

	last := (*seen)[len(*seen)-1]
	assert.Equal(t, http.MethodPost, last.Method)
	assert.Equal(t, "/sync/catalog/item-checksums", last.Path)
	assert.Equal(t, "SKU001", last.Body["startSku"])
	assert.Equal(t, "SKU099", last.Body["endSku"])
}

func TestHTTPClient_StatusErrorMapping(t *testing.T) {
	t.Run("5xx maps to unavailable", func(t *testing.T) {
		srv, _ := newRecordingServer(t, http.StatusInternalServerError, `{}`)
		client := NewHTTPClient(5*time.Second, zap.NewNop())

		_, _, err := client.GetCatalogChecksum(context.Background(), testAgent(t, srv.URL))
		assert.ErrorIs(t, err, ErrAgentUnavailable)
	})

	t.Run("4xx maps to rejected", func(t *testing.T) {
		srv, _ := newRecordingServer(t, http.StatusBadRequest, `{}`)
		client := NewHTTPClient(5*time.Second, zap.NewNop())

		_, err := client.GetRangeChecksum(context.Background(), testAgent(t, srv.URL), "A", "B")
		assert.ErrorIs(t, err, ErrAgentRejected)
	})
}
