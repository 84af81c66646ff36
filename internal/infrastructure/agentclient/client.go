// Package agentclient implements the HTTP client for vendor agent APIs.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/erp/agentsync/internal/domain/agent"
	"github.com/erp/agentsync/internal/domain/catalog"
	domainsync "github.com/erp/agentsync/internal/domain/sync"
)

// maxResponseSize is the maximum allowed response size from an agent (10MB)
const maxResponseSize = 10 * 1024 * 1024

var (
	// ErrAgentUnavailable indicates the agent could not be reached
	ErrAgentUnavailable = errors.New("agentclient: agent unavailable")
	// ErrAgentRequestFailed indicates the agent returned an error status
	ErrAgentRequestFailed = errors.New("agentclient: agent request failed")
	// ErrAgentRejected indicates the agent rejected the request as invalid
	ErrAgentRejected = errors.New("agentclient: agent rejected request")
)

// HTTPClient talks to vendor agents over their REST API. It implements
// sync.AgentClient.
type HTTPClient struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPClient creates an agent client. The transport-level timeout is a
// backstop; callers bound individual calls through their context.
func NewHTTPClient(requestTimeout time.Duration, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: requestTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type orderRequest struct {
	Operation     string          `json:"operation"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID string          `json:"correlationId"`
}

type checksumRequest struct {
	StartSKU string `json:"startSku,omitempty"`
	EndSKU   string `json:"endSku,omitempty"`
}

type checksumResponse struct {
	Checksum  string `json:"checksum"`
	ItemCount int    `json:"itemCount"`
}

type itemChecksumsResponse struct {
	Items map[string]string `json:"items"`
}

type itemsRequest struct {
	SKUs []string `json:"skus"`
}

type itemPayload struct {
	SKU           string    `json:"sku"`
	Name          string    `json:"name"`
	UnitCode      string    `json:"unitCode"`
	VATCode       string    `json:"vatCode"`
	FamilyCode    string    `json:"familyCode"`
	SubfamilyCode string    `json:"subfamilyCode"`
	Price         string    `json:"price"`
	ContentHash   string    `json:"contentHash"`
	LastSyncedAt  time.Time `json:"lastSyncedAt"`
}

type itemsResponse struct {
	Items []itemPayload `json:"items"`
}

// ---------------------------------------------------------------------------
// sync.AgentClient
// ---------------------------------------------------------------------------

// SendOrder dispatches an outbound order operation to the agent
func (c *HTTPClient) SendOrder(ctx context.Context, a *agent.Agent, operation domainsync.OperationKind, payload json.RawMessage, correlationID string) error {
	body := orderRequest{
		Operation:     operation.String(),
		Payload:       payload,
		CorrelationID: correlationID,
	}
	_, err := c.doRequest(ctx, a, "/sync/orders", body)
	return err
}

// GetCatalogChecksum requests the agent's whole-catalog checksum
func (c *HTTPClient) GetCatalogChecksum(ctx context.Context, a *agent.Agent) (string, int, error) {
	respBody, err := c.doRequest(ctx, a, "/sync/catalog/checksum", checksumRequest{})
	if err != nil {
		return "", 0, err
	}
	var resp checksumResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", 0, fmt.Errorf("agentclient: failed to decode checksum response: %w", err)
	}
	return resp.Checksum, resp.ItemCount, nil
}

// GetRangeChecksum requests the agent's checksum for a SKU range
func (c *HTTPClient) GetRangeChecksum(ctx context.Context, a *agent.Agent, startSKU, endSKU string) (string, error) {
	respBody, err := c.doRequest(ctx, a, "/sync/catalog/checksum", checksumRequest{StartSKU: startSKU, EndSKU: endSKU})
	if err != nil {
		return "", err
	}
	var resp checksumResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("agentclient: failed to decode checksum response: %w", err)
	}
	return resp.Checksum, nil
}

// GetItemChecksums returns the content hash of every agent item in the range
func (c *HTTPClient) GetItemChecksums(ctx context.Context, a *agent.Agent, startSKU, endSKU string) (map[string]string, error) {
	respBody, err := c.doRequest(ctx, a, "/sync/catalog/item-checksums", checksumRequest{StartSKU: startSKU, EndSKU: endSKU})
	if err != nil {
		return nil, err
	}
	var resp itemChecksumsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("agentclient: failed to decode item checksums: %w", err)
	}
	if resp.Items == nil {
		resp.Items = make(map[string]string)
	}
	return resp.Items, nil
}

// GetItems fetches the agent's full records for the given SKUs
func (c *HTTPClient) GetItems(ctx context.Context, a *agent.Agent, skus []string) ([]catalog.Item, error) {
	respBody, err := c.doRequest(ctx, a, "/sync/catalog/items/fetch", itemsRequest{SKUs: skus})
	if err != nil {
		return nil, err
	}
	var resp itemsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("agentclient: failed to decode items response: %w", err)
	}
	items := make([]catalog.Item, 0, len(resp.Items))
	for _, p := range resp.Items {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			c.logger.Warn("skipping agent item with invalid price",
				zap.String("vendor_id", a.VendorID),
				zap.String("sku", p.SKU),
				zap.String("price", p.Price))
			continue
		}
		items = append(items, catalog.Item{
			VendorID:      a.VendorID,
			SKU:           p.SKU,
			Name:          p.Name,
			UnitCode:      p.UnitCode,
			VATCode:       p.VATCode,
			FamilyCode:    p.FamilyCode,
			SubfamilyCode: p.SubfamilyCode,
			Price:         price,
			ContentHash:   p.ContentHash,
			LastSyncedAt:  p.LastSyncedAt,
		})
	}
	return items, nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// doRequest POSTs a JSON body to a path under the agent's base URL. Every
// agent operation goes through this single shape.
func (c *HTTPClient) doRequest(ctx context.Context, a *agent.Agent, path string, body any) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("agentclient: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("agentclient: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("agentclient: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", ErrAgentUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: HTTP %d", ErrAgentRejected, resp.StatusCode)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: HTTP %d", ErrAgentRequestFailed, resp.StatusCode)
	}
	return respBody, nil
}

// Ensure HTTPClient implements sync.AgentClient
var _ domainsync.AgentClient = (*HTTPClient)(nil)
