package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/bimakw/pagemarket/internal/config"
	"github.com/bimakw/pagemarket/internal/domain/entities"
)

// maxBodyBytes bounds how much of a metadata response is read
const maxBodyBytes = 1 << 20

// Client fetches token metadata from the off-chain metadata service
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new metadata service client
func NewClient(cfg config.MetadataConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// FetchMetadata retrieves the metadata of one token via GET {base}/token?id=N
func (c *Client) FetchMetadata(ctx context.Context, id entities.TokenID) (*entities.TokenMetadata, error) {
	params := url.Values{}
	params.Set("id", id.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/token?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata for token %s: %w", id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("token %s: %w", id, entities.ErrMetadataNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("metadata service returned status %d for token %s", resp.StatusCode, id)
	}

	var metadata entities.TokenMetadata
	if err := json.Unmarshal(body, &metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata for token %s: %w", id, err)
	}
	// the service keys responses by request, the id field is optional
	metadata.ID = id

	c.logger.Debug("Fetched token metadata",
		zap.Stringer("token_id", id),
		zap.String("title", metadata.Title),
	)

	return &metadata, nil
}
