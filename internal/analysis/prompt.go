package analysis

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/address-analyzer/internal/errors"
	"github.com/address-analyzer/internal/types"
)

// PromptPayload is the request sent to the model
type PromptPayload struct {
	Address     string
	Text        string
	CategoryIDs []int
	MinID       int
	MaxID       int
}

// PromptBuilder renders classification prompts
type PromptBuilder struct {
	focusNetworks  []string
	explanationMax int
}

// NewPromptBuilder creates a builder. focusNetworks lists the networks the
// model is asked to weigh most; explanationMax is the advised explanation length.
func NewPromptBuilder(focusNetworks []string, explanationMax int) *PromptBuilder {
	if explanationMax <= 0 {
		explanationMax = 255
	}
	return &PromptBuilder{
		focusNetworks:  focusNetworks,
		explanationMax: explanationMax,
	}
}

// BuildRequest renders the classification prompt for address. txContext may be nil.
func (b *PromptBuilder) BuildRequest(address string, catalog *Catalog, txContext types.TransactionContext) (*PromptPayload, error) {
	if strings.TrimSpace(address) == "" {
		return nil, apperrors.NewMissingAddressError()
	}
	if !types.IsValidAddress(address) {
		return nil, apperrors.NewInvalidAddressError(address)
	}

	ids := catalog.IDs()
	idList := joinInts(ids)
	settings := catalog.Prompt()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Please analyze the on-chain history of the Ethereum address %s and identify which of the following user types best fits this address:\n\n", address)
	for _, c := range catalog.Categories() {
		if c.Description != "" {
			fmt.Fprintf(&sb, "%d. **%s** - %s\n", c.ID, c.Title, c.Description)
		} else {
			fmt.Fprintf(&sb, "%d. **%s**\n", c.ID, c.Title)
		}
	}

	sb.WriteString("\nRespond with a single JSON object and nothing else, with exactly these keys:\n")
	fmt.Fprintf(&sb, "- \"category\": the number of the most appropriate user type, one of: %s\n", idList)
	fmt.Fprintf(&sb, "- \"explanation\": why the address falls into this category based on its transaction patterns, token holdings and on-chain behavior, at most %d characters\n", b.explanationMax)

	if txContext != nil && !txContext.IsEmpty() {
		sb.WriteString("\nRecent asset transfers of this address per network, use them as evidence:\n")
		sb.WriteString(renderContext(txContext))
		sb.WriteString("\n")
	} else {
		sb.WriteString("\nNo transfer history is attached. Reason from whatever on-chain history of this address you can access.\n")
	}

	if len(b.focusNetworks) > 0 || len(settings.Focus) > 0 {
		sb.WriteString("\nFocus on analyzing:\n")
		if len(b.focusNetworks) > 0 {
			fmt.Fprintf(&sb, "- %s.\n", strings.Join(b.focusNetworks, " and "))
		}
		for _, f := range settings.Focus {
			fmt.Fprintf(&sb, "- %s\n", f)
		}
	}

	if d, ok := catalog.Get(settings.Discourage); ok {
		fmt.Fprintf(&sb, "\nTry to avoid the %q category unless the address truly doesn't fit any of the defined categories.", d.Title)
	}

	lo, hi := catalog.Range()
	return &PromptPayload{
		Address:     address,
		Text:        sb.String(),
		CategoryIDs: ids,
		MinID:       lo,
		MaxID:       hi,
	}, nil
}

// renderContext embeds the transfer context as JSON with networks in a stable order
func renderContext(txContext types.TransactionContext) string {
	networks := make([]string, 0, len(txContext))
	for n := range txContext {
		networks = append(networks, string(n))
	}
	sort.Strings(networks)

	ordered := make([]struct {
		Network   string                `json:"network"`
		Transfers []types.AssetTransfer `json:"transfers"`
	}, len(networks))
	for i, n := range networks {
		ordered[i].Network = n
		ordered[i].Transfers = txContext[types.ChainID(n)]
		if ordered[i].Transfers == nil {
			ordered[i].Transfers = []types.AssetTransfer{}
		}
	}

	data, err := json.MarshalIndent(ordered, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}
