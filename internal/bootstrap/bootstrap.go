// Package bootstrap builds the service graph shared by the server and the CLI
// from a loaded configuration.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/address-analyzer/internal/adapter"
	"github.com/address-analyzer/internal/analysis"
	"github.com/address-analyzer/internal/circuitbreaker"
	"github.com/address-analyzer/internal/config"
	"github.com/address-analyzer/internal/llm"
	"github.com/address-analyzer/internal/logging"
	"github.com/address-analyzer/internal/retry"
	"github.com/address-analyzer/internal/service"
	"github.com/address-analyzer/internal/types"
)

// Analysis is the wired classification and chat stack
type Analysis struct {
	Catalog  *analysis.Catalog
	Model    *llm.GeminiClient
	Service  *service.AnalysisService
	Chat     *service.ChatService
	Breaker  *circuitbreaker.CircuitBreaker
	Networks int
}

// NewAnalysis wires the model, enrichment and normalizer. recorder may be nil.
func NewAnalysis(ctx context.Context, cfg *config.Config, recorder service.AnalysisRecorder, logger *logging.Logger) (*Analysis, error) {
	if err := cfg.ValidateAnalysis(); err != nil {
		return nil, err
	}

	catalog, err := analysis.LoadCatalog(cfg.Analysis.CategoriesFile)
	if err != nil {
		return nil, err
	}
	normalizer, err := analysis.NewNormalizer(catalog, analysis.FallbackPolicy{
		ParseCategory:       cfg.Analysis.FallbackParse,
		UnavailableCategory: cfg.Analysis.FallbackUnavailable,
	}, cfg.Analysis.ExplanationMax)
	if err != nil {
		return nil, err
	}

	model, err := llm.NewGeminiClient(ctx, llm.Options{
		APIKey:    cfg.Gemini.APIKey,
		Model:     cfg.Gemini.Model,
		ChatModel: cfg.Gemini.ChatModel,
		Timeout:   cfg.Gemini.Timeout,
	})
	if err != nil {
		return nil, err
	}

	transfers, networks, err := NewTransferSource(&cfg.Alchemy, logger)
	if err != nil {
		return nil, err
	}

	breaker := circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
		Name:             "gemini",
		MaxFailures:      cfg.Analysis.BreakerThreshold,
		Timeout:          cfg.Analysis.BreakerReset,
		HalfOpenMaxCalls: 1,
	})

	retryCfg := retry.DefaultRetryConfig()
	if cfg.Gemini.MaxAttempts > 0 {
		retryCfg.MaxAttempts = cfg.Gemini.MaxAttempts
	}

	svcCfg := &service.AnalysisServiceConfig{
		Catalog:    catalog,
		Builder:    analysis.NewPromptBuilder(cfg.Analysis.FocusNetworks, cfg.Analysis.ExplanationMax),
		Normalizer: normalizer,
		Model:      model,
		Recorder:   recorder,
		Breaker:    breaker,
		Retry:      retryCfg,
		CacheSize:  cfg.Analysis.CacheSize,
		CacheTTL:   cfg.Analysis.CacheTTL,
		Logger:     logger,
	}
	// a nil *AlchemyClient must not become a non-nil interface
	if transfers != nil {
		svcCfg.Transfers = transfers
	}
	analysisService, err := service.NewAnalysisService(svcCfg)
	if err != nil {
		return nil, err
	}

	chatService, err := service.NewChatService(model, service.DefaultMaxChatHistory, logger)
	if err != nil {
		return nil, err
	}

	return &Analysis{
		Catalog:  catalog,
		Model:    model,
		Service:  analysisService,
		Chat:     chatService,
		Breaker:  breaker,
		Networks: networks,
	}, nil
}

// NewTransferSource creates the enrichment client for every configured
// network. It returns nil when no network has an endpoint.
func NewTransferSource(cfg *config.AlchemyConfig, logger *logging.Logger) (*adapter.AlchemyClient, int, error) {
	if len(cfg.Networks) == 0 {
		return nil, 0, nil
	}
	providers := make(map[types.ChainID]*adapter.RPCProvider, len(cfg.Networks))
	for chain, endpoints := range cfg.Networks {
		provider, err := adapter.NewRPCProvider(endpoints.URLPrimary, endpoints.URLSecondary)
		if err != nil {
			return nil, 0, fmt.Errorf("alchemy %s: %w", chain, err)
		}
		providers[chain] = provider
	}
	return adapter.NewAlchemyClient(providers, cfg.MaxCount, cfg.Timeout, logger), len(providers), nil
}

// Verifier is the on-chain analysis reader plus its connection cleanup
type Verifier struct {
	*adapter.PowersReader
	caller *adapter.FailoverCaller
}

// Close releases the RPC connections
func (v *Verifier) Close() {
	v.caller.Close()
}

// NewVerifier creates the reader used by the claim verification poll
func NewVerifier(cfg *config.Config) (*Verifier, error) {
	if err := cfg.ValidateClaims(); err != nil {
		return nil, err
	}
	provider, err := adapter.NewRPCProvider(cfg.Chain.RPCPrimary, cfg.Chain.RPCSecondary)
	if err != nil {
		return nil, err
	}
	caller := adapter.NewFailoverCaller(provider)
	reader, err := adapter.NewPowersReader(caller, cfg.Chain.Network, cfg.Chain.PowersAddress, cfg.Chain.ClaimLawID)
	if err != nil {
		caller.Close()
		return nil, err
	}
	return &Verifier{PowersReader: reader, caller: caller}, nil
}

// ShutdownContext returns a context bounded by timeout, falling back to ten seconds
func ShutdownContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}
