package service

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/address-analyzer/internal/adapter"
	"github.com/address-analyzer/internal/analysis"
	"github.com/address-analyzer/internal/circuitbreaker"
	apperrors "github.com/address-analyzer/internal/errors"
	"github.com/address-analyzer/internal/logging"
	"github.com/address-analyzer/internal/retry"
	"github.com/address-analyzer/internal/types"
)

// AnalysisModel produces the raw classification reply for a prompt
type AnalysisModel interface {
	Name() string
	GenerateAnalysis(ctx context.Context, payload *analysis.PromptPayload) (string, error)
}

// AnalysisRecorder stores an audit row per returned analysis
type AnalysisRecorder interface {
	Record(ctx context.Context, rec *types.AnalysisRecord) error
}

// AnalysisServiceConfig holds the collaborators of an AnalysisService
type AnalysisServiceConfig struct {
	Catalog    *analysis.Catalog
	Builder    *analysis.PromptBuilder
	Normalizer *analysis.Normalizer
	Model      AnalysisModel
	Transfers  adapter.TransferSource // optional
	Recorder   AnalysisRecorder       // optional
	Breaker    *circuitbreaker.CircuitBreaker
	Retry      *retry.RetryConfig
	CacheSize  int
	CacheTTL   time.Duration
	Logger     *logging.Logger
}

// AnalysisService classifies addresses. Apart from input validation it never
// fails: an unusable or unreachable model degrades to a fallback result.
type AnalysisService struct {
	catalog    *analysis.Catalog
	builder    *analysis.PromptBuilder
	normalizer *analysis.Normalizer
	model      AnalysisModel
	transfers  adapter.TransferSource
	recorder   AnalysisRecorder
	breaker    *circuitbreaker.CircuitBreaker
	retry      *retry.RetryConfig
	cache      *expirable.LRU[string, types.AnalysisResult]
	logger     *logging.Logger
}

// NewAnalysisService creates an analysis service
func NewAnalysisService(cfg *AnalysisServiceConfig) (*AnalysisService, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog cannot be nil")
	}
	if cfg.Builder == nil {
		return nil, fmt.Errorf("prompt builder cannot be nil")
	}
	if cfg.Normalizer == nil {
		return nil, fmt.Errorf("normalizer cannot be nil")
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("model cannot be nil")
	}

	breaker := cfg.Breaker
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("analysis-model"))
	}
	retryCfg := cfg.Retry
	if retryCfg == nil {
		retryCfg = retry.DefaultRetryConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	s := &AnalysisService{
		catalog:    cfg.Catalog,
		builder:    cfg.Builder,
		normalizer: cfg.Normalizer,
		model:      cfg.Model,
		transfers:  cfg.Transfers,
		recorder:   cfg.Recorder,
		breaker:    breaker,
		retry:      retryCfg,
		logger:     logger.WithField("component", "analysis_service"),
	}
	if cfg.CacheSize > 0 && cfg.CacheTTL > 0 {
		s.cache = expirable.NewLRU[string, types.AnalysisResult](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return s, nil
}

// Catalog returns the configured category catalog
func (s *AnalysisService) Catalog() *analysis.Catalog {
	return s.catalog
}

// Analyze returns the category of address. The only errors are InvalidInput.
func (s *AnalysisService) Analyze(ctx context.Context, address string) (types.AnalysisResult, error) {
	if address == "" {
		return types.AnalysisResult{}, apperrors.NewMissingAddressError()
	}
	if !types.IsValidAddress(address) {
		return types.AnalysisResult{}, apperrors.NewInvalidAddressError(address)
	}
	key := types.NormalizeAddress(address)
	logger := s.logger.WithField("address", key)

	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			logger.Debug("analysis cache hit")
			cached.Address = address
			return cached, nil
		}
	}

	var txContext types.TransactionContext
	if s.transfers != nil {
		txContext = s.transfers.RecentTransfers(ctx, address)
	}

	payload, err := s.builder.BuildRequest(address, s.catalog, txContext)
	if err != nil {
		return types.AnalysisResult{}, err
	}

	var result types.AnalysisResult
	raw, err := s.generate(ctx, payload)
	switch {
	case apperrors.Is(err, apperrors.CategoryUpstreamMalformed):
		// the model answered without usable text
		logger.WithError(err).Warn("analysis reply was empty, returning fallback category")
		result = s.normalizer.Normalize(address, "")
	case err != nil:
		logger.WithError(err).Warn("analysis model unavailable, returning fallback category")
		result = s.normalizer.Unavailable(address, err)
	default:
		result = s.normalizer.Normalize(address, raw)
		if result.IsFallback() {
			logger.WithField("reply", truncateForLog(raw)).Warn("analysis reply could not be parsed")
		}
	}

	s.record(ctx, result)

	if s.cache != nil && (result.Source == types.SourceModel || result.Source == types.SourceRecovered) {
		s.cache.Add(key, result)
	}

	logger.WithFields(map[string]interface{}{
		"category": result.Category,
		"source":   result.Source,
	}).Info("address analyzed")
	return result, nil
}

// generate calls the model behind the breaker. Retries happen inside one
// breaker call so a single request counts once against the upstream. A
// malformed reply means the model answered, so it does not trip the breaker.
func (s *AnalysisService) generate(ctx context.Context, payload *analysis.PromptPayload) (string, error) {
	var (
		raw       string
		malformed error
	)
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		err := retry.Do(ctx, s.retry, func(ctx context.Context, attempt int) error {
			text, err := s.model.GenerateAnalysis(ctx, payload)
			if err != nil {
				return err
			}
			raw = text
			return nil
		})
		if apperrors.Is(err, apperrors.CategoryUpstreamMalformed) {
			malformed = err
			return nil
		}
		return err
	})
	if err != nil {
		return "", err
	}
	if malformed != nil {
		return "", malformed
	}
	return raw, nil
}

func (s *AnalysisService) record(ctx context.Context, result types.AnalysisResult) {
	if s.recorder == nil {
		return
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()

	rec := &types.AnalysisRecord{
		Address:     result.Address,
		Category:    result.Category,
		Explanation: result.Explanation,
		Source:      result.Source,
		Model:       s.model.Name(),
	}
	if err := s.recorder.Record(recordCtx, rec); err != nil {
		s.logger.WithError(err).Warn("failed to record analysis")
	}
}

func truncateForLog(s string) string {
	const limit = 200
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
