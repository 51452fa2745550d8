package adapter

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/address-analyzer/internal/types"
)

const powersABIJSON = `[{"type":"function","name":"getActiveLaw","stateMutability":"view",
"inputs":[{"name":"lawId","type":"uint16"}],
"outputs":[{"name":"law","type":"address"},{"name":"lawHash","type":"bytes32"},{"name":"active","type":"bool"}]}]`

const addressAnalysisABIJSON = `[{"type":"function","name":"getAddressAnalysis","stateMutability":"view",
"inputs":[{"name":"user","type":"address"}],
"outputs":[{"name":"category","type":"uint256"},{"name":"explanation","type":"string"},{"name":"roleId","type":"uint256"},{"name":"analyzed","type":"bool"}]}]`

var (
	powersABI          = mustParseABI(powersABIJSON)
	addressAnalysisABI = mustParseABI(addressAnalysisABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid contract ABI: %v", err))
	}
	return parsed
}

// PowersReader resolves the address analysis contract through the Powers
// protocol's claim law and reads the analysis record of an address.
type PowersReader struct {
	caller ethereum.ContractCaller
	chain  types.ChainID
	powers common.Address
	lawID  uint16
}

// NewPowersReader creates a reader over any contract caller
func NewPowersReader(caller ethereum.ContractCaller, chain types.ChainID, powersAddress string, lawID uint16) (*PowersReader, error) {
	if !types.IsValidAddress(powersAddress) {
		return nil, fmt.Errorf("invalid Powers address %q", powersAddress)
	}
	return &PowersReader{
		caller: caller,
		chain:  chain,
		powers: common.HexToAddress(powersAddress),
		lawID:  lawID,
	}, nil
}

// ResolveAnalysisContract returns the contract behind the active claim law
func (r *PowersReader) ResolveAnalysisContract(ctx context.Context) (common.Address, error) {
	data, err := powersABI.Pack("getActiveLaw", r.lawID)
	if err != nil {
		return common.Address{}, fmt.Errorf("pack getActiveLaw: %w", err)
	}

	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.powers, Data: data}, nil)
	if err != nil {
		return common.Address{}, categorize("powers", NewAdapterError(r.chain, "getActiveLaw", err, nil))
	}

	values, err := powersABI.Unpack("getActiveLaw", out)
	if err != nil || len(values) != 3 {
		return common.Address{}, categorize("powers", NewAdapterError(r.chain, "getActiveLaw", ErrUnexpectedOutput, map[string]interface{}{"decode": fmt.Sprint(err)}))
	}
	law, okLaw := values[0].(common.Address)
	active, okActive := values[2].(bool)
	if !okLaw || !okActive {
		return common.Address{}, categorize("powers", NewAdapterError(r.chain, "getActiveLaw", ErrUnexpectedOutput, nil))
	}
	if !active || law == (common.Address{}) {
		return common.Address{}, categorize("powers", NewAdapterError(r.chain, "getActiveLaw", ErrLawInactive, map[string]interface{}{"lawId": r.lawID}))
	}
	return law, nil
}

// CheckAddress reads the on-chain analysis of address
func (r *PowersReader) CheckAddress(ctx context.Context, address string) (*types.ChainAnalysis, error) {
	if !types.IsValidAddress(address) {
		return nil, NewAdapterError(r.chain, "getAddressAnalysis", ErrInvalidAddress, map[string]interface{}{"address": address})
	}

	target, err := r.ResolveAnalysisContract(ctx)
	if err != nil {
		return nil, err
	}

	data, err := addressAnalysisABI.Pack("getAddressAnalysis", common.HexToAddress(address))
	if err != nil {
		return nil, fmt.Errorf("pack getAddressAnalysis: %w", err)
	}

	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, nil)
	if err != nil {
		return nil, categorize("address-analysis", NewAdapterError(r.chain, "getAddressAnalysis", err, nil))
	}

	values, err := addressAnalysisABI.Unpack("getAddressAnalysis", out)
	if err != nil || len(values) != 4 {
		return nil, categorize("address-analysis", NewAdapterError(r.chain, "getAddressAnalysis", ErrUnexpectedOutput, map[string]interface{}{"decode": fmt.Sprint(err)}))
	}

	category, okCat := values[0].(*big.Int)
	explanation, okExp := values[1].(string)
	roleID, okRole := values[2].(*big.Int)
	analyzed, okAnalyzed := values[3].(bool)
	if !okCat || !okExp || !okRole || !okAnalyzed || !category.IsInt64() {
		return nil, categorize("address-analysis", NewAdapterError(r.chain, "getAddressAnalysis", ErrUnexpectedOutput, nil))
	}

	return &types.ChainAnalysis{
		Category:    int(category.Int64()),
		Explanation: explanation,
		RoleID:      roleID.String(),
		Analyzed:    analyzed,
	}, nil
}

// FailoverCaller is a ContractCaller over an RPCProvider. It dials endpoints
// lazily and retries once on the other endpoint for transport failures.
type FailoverCaller struct {
	provider *RPCProvider

	mu      sync.Mutex
	clients map[string]*ethclient.Client
}

// NewFailoverCaller creates a caller for the provider's endpoints
func NewFailoverCaller(provider *RPCProvider) *FailoverCaller {
	return &FailoverCaller{
		provider: provider,
		clients:  make(map[string]*ethclient.Client),
	}
}

// CallContract implements ethereum.ContractCaller
func (f *FailoverCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	out, err := f.call(ctx, msg, blockNumber)
	if err != nil && shouldFailover(err) && f.provider.Failover() == nil {
		out, err = f.call(ctx, msg, blockNumber)
	}
	return out, err
}

func (f *FailoverCaller) call(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	client, err := f.client(ctx, f.provider.CurrentURL())
	if err != nil {
		f.provider.RecordFailure(err)
		return nil, err
	}

	start := time.Now()
	out, err := client.CallContract(ctx, msg, blockNumber)
	if err != nil {
		f.provider.RecordFailure(err)
		return nil, err
	}
	f.provider.RecordSuccess(time.Since(start))
	return out, nil
}

func (f *FailoverCaller) client(ctx context.Context, url string) (*ethclient.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[url]; ok {
		return c, nil
	}
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	f.clients[url] = c
	return c, nil
}

// Close closes every dialed client
func (f *FailoverCaller) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for url, c := range f.clients {
		c.Close()
		delete(f.clients, url)
	}
}
