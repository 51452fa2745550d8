// Package llm wraps the hosted Gemini model used for address analysis and chat.
package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/address-analyzer/internal/analysis"
	apperrors "github.com/address-analyzer/internal/errors"
	"github.com/address-analyzer/internal/types"
)

const upstreamName = "gemini"

// Options configures a GeminiClient
type Options struct {
	APIKey    string
	Model     string
	ChatModel string
	Timeout   time.Duration
	// BaseURL overrides the API endpoint, used by tests
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiClient issues analysis and chat requests. Each call is bounded by Timeout.
type GeminiClient struct {
	cli       *genai.Client
	model     string
	chatModel string
	timeout   time.Duration
}

// NewGeminiClient creates a client for the Gemini API backend
func NewGeminiClient(ctx context.Context, opts Options) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, apperrors.NewConfigurationMissingError("GEMINI_API_KEY")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.ChatModel == "" {
		opts.ChatModel = opts.Model
	}

	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	cli, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{
		cli:       cli,
		model:     opts.Model,
		chatModel: opts.ChatModel,
		timeout:   opts.Timeout,
	}, nil
}

// Name returns the analysis model name
func (g *GeminiClient) Name() string {
	return g.model
}

// GenerateAnalysis sends a classification prompt with a structured-output schema
// and returns the raw reply text. The text is not validated here.
func (g *GeminiClient) GenerateAnalysis(ctx context.Context, payload *analysis.PromptPayload) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(payload.Text, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   AnalysisSchema(payload.MinID, payload.MaxID),
		},
	)
	if err != nil {
		return "", classify(ctx, err)
	}
	return responseText(resp)
}

// Chat continues a conversation. history holds prior turns, oldest first.
func (g *GeminiClient) Chat(ctx context.Context, history []types.ChatMessage, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.cli.Models.GenerateContent(ctx, g.chatModel, ChatContents(history, message), ChatConfig())
	if err != nil {
		return "", classify(ctx, err)
	}
	return responseText(resp)
}

// AnalysisSchema describes the {category, explanation} reply
func AnalysisSchema(minID, maxID int) *genai.Schema {
	category := &genai.Schema{
		Type:        genai.TypeInteger,
		Description: fmt.Sprintf("The category number (%d-%d) that best fits the address", minID, maxID),
	}
	if maxID >= minID && minID > 0 {
		category.Minimum = genai.Ptr(float64(minID))
		category.Maximum = genai.Ptr(float64(maxID))
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"category": category,
			"explanation": {
				Type:        genai.TypeString,
				Description: "Short explanation of why the address belongs to this category",
			},
		},
		Required:         []string{"category", "explanation"},
		PropertyOrdering: []string{"category", "explanation"},
	}
}

// ChatConfig returns the sampling settings used for chat
func ChatConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(0.7)),
		TopK:            genai.Ptr(float32(40)),
		TopP:            genai.Ptr(float32(0.95)),
		MaxOutputTokens: 8192,
	}
}

// ChatContents converts a chat history plus the new message into model contents
func ChatContents(history []types.ChatMessage, message string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, m := range history {
		role := genai.Role(genai.RoleUser)
		if m.Role == types.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return append(contents, genai.NewContentFromText(message, genai.RoleUser))
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", apperrors.NewUpstreamMalformedError(upstreamName, fmt.Errorf("reply has no candidates"))
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", apperrors.NewUpstreamMalformedError(upstreamName, fmt.Errorf("reply has no text"))
	}
	return sb.String(), nil
}

// classify maps a transport failure onto the error taxonomy
func classify(ctx context.Context, err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.NewUpstreamTimeoutError(upstreamName, err)
	}
	return apperrors.NewUpstreamUnavailableError(upstreamName, err)
}
