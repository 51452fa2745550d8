package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/address-analyzer/internal/logging"
	"github.com/address-analyzer/internal/types"
)

// DefaultTransferCategories are the transfer kinds requested for prompt evidence
var DefaultTransferCategories = []string{"external", "internal", "erc20", "erc721", "erc1155"}

// AlchemyAssetTransfer represents a transfer from Alchemy's API
type AlchemyAssetTransfer struct {
	UniqueID string      `json:"uniqueId"`
	BlockNum string      `json:"blockNum"`
	Hash     string      `json:"hash"`
	From     string      `json:"from"`
	To       *string     `json:"to"`
	Value    interface{} `json:"value"` // Can be string or number
	Asset    *string     `json:"asset"`
	Category string      `json:"category"`
	Metadata *struct {
		BlockTimestamp string `json:"blockTimestamp"` // ISO 8601 format
	} `json:"metadata"`
}

// AlchemyAssetTransfersResponse represents the response from alchemy_getAssetTransfers
type AlchemyAssetTransfersResponse struct {
	Transfers []AlchemyAssetTransfer `json:"transfers"`
	PageKey   *string                `json:"pageKey,omitempty"`
}

// AlchemyClient fetches asset transfers from one Alchemy endpoint pair per network
type AlchemyClient struct {
	httpClient *http.Client
	networks   map[types.ChainID]*RPCProvider
	maxCount   int
	logger     *logging.Logger
}

// NewAlchemyClient creates a client. Networks without a provider are not queried.
func NewAlchemyClient(networks map[types.ChainID]*RPCProvider, maxCount int, timeout time.Duration, logger *logging.Logger) *AlchemyClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxCount <= 0 {
		maxCount = 25
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &AlchemyClient{
		httpClient: &http.Client{Timeout: timeout},
		networks:   networks,
		maxCount:   maxCount,
		logger:     logger.WithField("component", "alchemy"),
	}
}

// Networks returns the configured networks in a stable order
func (c *AlchemyClient) Networks() []types.ChainID {
	out := make([]types.ChainID, 0, len(c.networks))
	for n := range c.networks {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RecentTransfers fetches recent transfers on every configured network in parallel.
// A failing network contributes an empty list.
func (c *AlchemyClient) RecentTransfers(ctx context.Context, address string) types.TransactionContext {
	result := make(types.TransactionContext, len(c.networks))
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	for _, network := range c.Networks() {
		network := network
		eg.Go(func() error {
			transfers, err := c.FetchAssetTransfers(egCtx, network, address, DefaultTransferCategories, c.maxCount, "desc")
			if err != nil {
				c.logger.WithFields(map[string]interface{}{
					"network": network,
					"address": address,
				}).WithError(err).Warn("transfer enrichment failed, continuing without this network")
				transfers = []types.AssetTransfer{}
			}
			mu.Lock()
			result[network] = transfers
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	return result
}

// FetchAssetTransfers fetches incoming and outgoing transfers of address on one network,
// merged and ordered by block. It fails only when both directions fail.
func (c *AlchemyClient) FetchAssetTransfers(ctx context.Context, network types.ChainID, address string, categories []string, maxCount int, order string) ([]types.AssetTransfer, error) {
	provider, ok := c.networks[network]
	if !ok {
		return nil, NewAdapterError(network, "getAssetTransfers", ErrProviderUnavailable, nil)
	}
	if !types.IsValidAddress(address) {
		return nil, NewAdapterError(network, "getAssetTransfers", ErrInvalidAddress, map[string]interface{}{"address": address})
	}
	if order != "asc" {
		order = "desc"
	}

	outgoing, outErr := c.fetchDirection(ctx, provider, network, "fromAddress", address, categories, maxCount, order)
	incoming, inErr := c.fetchDirection(ctx, provider, network, "toAddress", address, categories, maxCount, order)
	if outErr != nil && inErr != nil {
		return nil, NewAdapterError(network, "getAssetTransfers", outErr, map[string]interface{}{"incoming": inErr.Error()})
	}
	if outErr != nil || inErr != nil {
		c.logger.WithField("network", network).WithError(firstErr(outErr, inErr)).Warn("one transfer direction failed")
	}

	seen := make(map[string]struct{}, len(outgoing)+len(incoming))
	merged := make([]types.AssetTransfer, 0, len(outgoing)+len(incoming))
	for _, group := range [][]AlchemyAssetTransfer{outgoing, incoming} {
		for _, raw := range group {
			key := raw.UniqueID
			if key == "" {
				key = raw.Hash + ":" + raw.Category + ":" + raw.From
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if t, ok := convertAlchemyTransfer(raw); ok {
				merged = append(merged, t)
			}
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if order == "asc" {
			return merged[i].BlockNumber < merged[j].BlockNumber
		}
		return merged[i].BlockNumber > merged[j].BlockNumber
	})
	if maxCount > 0 && len(merged) > maxCount {
		merged = merged[:maxCount]
	}
	return merged, nil
}

// fetchDirection issues one alchemy_getAssetTransfers call, failing over once
func (c *AlchemyClient) fetchDirection(ctx context.Context, provider *RPCProvider, network types.ChainID, direction, address string, categories []string, maxCount int, order string) ([]AlchemyAssetTransfer, error) {
	requestBody := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "alchemy_getAssetTransfers",
		"params": []map[string]interface{}{
			{
				direction:      address,
				"category":     categories,
				"maxCount":     fmt.Sprintf("0x%x", maxCount),
				"order":        order,
				"withMetadata": true,
			},
		},
	}
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	transfers, err := c.post(ctx, provider, jsonData)
	if err != nil && shouldFailover(err) && provider.Failover() == nil {
		c.logger.WithField("network", network).WithError(err).Warn("failing over to secondary endpoint")
		transfers, err = c.post(ctx, provider, jsonData)
	}
	return transfers, err
}

func (c *AlchemyClient) post(ctx context.Context, provider *RPCProvider, jsonData []byte) ([]AlchemyAssetTransfer, error) {
	start := time.Now()
	transfers, err := c.doPost(ctx, provider.CurrentURL(), jsonData)
	if err != nil {
		provider.RecordFailure(err)
		return nil, err
	}
	provider.RecordSuccess(time.Since(start))
	return transfers, nil
}

func (c *AlchemyClient) doPost(ctx context.Context, url string, jsonData []byte) ([]AlchemyAssetTransfer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, truncateBody(body))
	}

	var rpcResponse struct {
		Result AlchemyAssetTransfersResponse `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResponse); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if rpcResponse.Error != nil {
		return nil, fmt.Errorf("RPC error %d: %s", rpcResponse.Error.Code, rpcResponse.Error.Message)
	}
	return rpcResponse.Result.Transfers, nil
}

// convertAlchemyTransfer converts an Alchemy transfer to an AssetTransfer
func convertAlchemyTransfer(transfer AlchemyAssetTransfer) (types.AssetTransfer, bool) {
	blockNum, err := strconv.ParseUint(strings.TrimPrefix(transfer.BlockNum, "0x"), 16, 64)
	if err != nil {
		return types.AssetTransfer{}, false
	}

	t := types.AssetTransfer{
		Hash:        transfer.Hash,
		BlockNumber: blockNum,
		From:        strings.ToLower(transfer.From),
		Category:    transfer.Category,
	}
	if transfer.To != nil {
		t.To = strings.ToLower(*transfer.To)
	}
	if transfer.Asset != nil {
		t.Asset = *transfer.Asset
	}
	if transfer.Metadata != nil {
		t.Timestamp = transfer.Metadata.BlockTimestamp
	}

	switch v := transfer.Value.(type) {
	case float64:
		t.Value = v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			t.Value = f
		}
	}
	return t, true
}

func truncateBody(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
