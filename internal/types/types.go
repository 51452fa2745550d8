// Package types provides common type definitions for the address analyzer.
package types

import (
	"regexp"
	"strings"
	"time"
)

// ChainID represents supported blockchain networks
type ChainID string

const (
	// ChainEthereum represents the Ethereum mainnet
	ChainEthereum ChainID = "ethereum"
	// ChainBase represents the Base network
	ChainBase ChainID = "base"
	// ChainArbitrum represents the Arbitrum network
	ChainArbitrum ChainID = "arbitrum"
	// ChainPolygon represents the Polygon network
	ChainPolygon ChainID = "polygon"
	// ChainOptimism represents the Optimism network
	ChainOptimism ChainID = "optimism"
	// ChainMantle represents the Mantle network
	ChainMantle ChainID = "mantle"
	// ChainSepolia represents the Ethereum Sepolia testnet
	ChainSepolia ChainID = "sepolia"
)

// ServiceError represents a service-level error returned in API bodies
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsValidAddress reports whether s is a 0x-prefixed 20-byte hex address
func IsValidAddress(s string) bool {
	return len(s) == 42 && addressPattern.MatchString(s)
}

// NormalizeAddress lowercases an address for use as a key
func NormalizeAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Category is a named classification bucket assigned to an address
type Category struct {
	ID          int    `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

// AnalysisSource records which path produced an AnalysisResult
type AnalysisSource string

const (
	// SourceModel is a well-formed model reply
	SourceModel AnalysisSource = "model"
	// SourceRecovered is a category scraped out of a malformed reply
	SourceRecovered AnalysisSource = "recovered"
	// SourceFallbackParse is the default used when the reply could not be read
	SourceFallbackParse AnalysisSource = "fallback_parse"
	// SourceFallbackUnavailable is the default used when the model could not be reached
	SourceFallbackUnavailable AnalysisSource = "fallback_unavailable"
)

// AnalysisResult is the normalized classification of an address
type AnalysisResult struct {
	Category    int            `json:"category"`
	Explanation string         `json:"explanation"`
	Address     string         `json:"address,omitempty"`
	Source      AnalysisSource `json:"source,omitempty"`
}

// IsFallback reports whether the result is a default rather than a model verdict
func (r AnalysisResult) IsFallback() bool {
	return r.Source == SourceFallbackParse || r.Source == SourceFallbackUnavailable
}

// AnalysisRecord is an audit row for a completed analysis
type AnalysisRecord struct {
	ID          string         `json:"id"`
	Address     string         `json:"address"`
	Category    int            `json:"category"`
	Explanation string         `json:"explanation"`
	Source      AnalysisSource `json:"source"`
	Model       string         `json:"model"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// AssetTransfer is a single transfer returned by the indexing provider
type AssetTransfer struct {
	Hash        string  `json:"hash"`
	BlockNumber uint64  `json:"blockNumber"`
	From        string  `json:"from"`
	To          string  `json:"to"`
	Category    string  `json:"category"`
	Asset       string  `json:"asset,omitempty"`
	Value       float64 `json:"value,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
}

// TransactionContext holds recent transfers per network used as prompt evidence
type TransactionContext map[ChainID][]AssetTransfer

// IsEmpty reports whether no network returned any transfer
func (c TransactionContext) IsEmpty() bool {
	for _, transfers := range c {
		if len(transfers) > 0 {
			return false
		}
	}
	return true
}

// ChainAnalysis is the on-chain analysis record for an address
type ChainAnalysis struct {
	Category    int    `json:"category"`
	Explanation string `json:"explanation"`
	RoleID      string `json:"roleId"`
	Analyzed    bool   `json:"analyzed"`
}

// ClaimStatus is the state of a claim countdown
type ClaimStatus string

const (
	// ClaimNotStarted means no start anchor exists
	ClaimNotStarted ClaimStatus = "not_started"
	// ClaimRunning means the countdown is in progress
	ClaimRunning ClaimStatus = "running"
	// ClaimCompleted means the countdown has elapsed
	ClaimCompleted ClaimStatus = "completed"
)

// Stage is a named sub-interval of the claim countdown
type Stage struct {
	ID              int     `json:"id"`
	Label           string  `json:"label"`
	DurationMinutes int     `json:"durationMinutes"`
	Completed       bool    `json:"completed"`
	Percent         float64 `json:"percent"`
}

// ProgressState is the derived view of a claim countdown at one instant
type ProgressState struct {
	Address         string      `json:"address"`
	Status          ClaimStatus `json:"status"`
	StartTime       *time.Time  `json:"startTime,omitempty"`
	ElapsedMinutes  int         `json:"elapsedMinutes"`
	TimeLeftMinutes int         `json:"timeLeftMinutes"`
	TotalMinutes    int         `json:"totalMinutes"`
	Stages          []Stage     `json:"stages"`
}

// VerificationStatus is the state of the on-chain verification poll
type VerificationStatus string

const (
	VerificationIdle    VerificationStatus = "idle"
	VerificationPolling VerificationStatus = "polling"
	VerificationSuccess VerificationStatus = "success"
	VerificationError   VerificationStatus = "error"
)

// VerificationState is the observable state of a verification poll
type VerificationState struct {
	Status        VerificationStatus `json:"status"`
	Attempts      int                `json:"attempts"`
	LastError     string             `json:"lastError,omitempty"`
	LastCheckedAt *time.Time         `json:"lastCheckedAt,omitempty"`
	Result        *ChainAnalysis     `json:"result,omitempty"`
}

// ChatRole is the author of a chat message
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of a chat conversation
type ChatMessage struct {
	Role      ChatRole   `json:"role"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}
