package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/address-analyzer/internal/errors"
	"github.com/address-analyzer/internal/logging"
	"github.com/address-analyzer/internal/types"
)

// DefaultMaxChatHistory bounds the turns forwarded to the model
const DefaultMaxChatHistory = 50

// ChatModel continues a conversation
type ChatModel interface {
	Chat(ctx context.Context, history []types.ChatMessage, message string) (string, error)
}

// ChatReply is the model's answer plus the extended conversation
type ChatReply struct {
	Response string              `json:"response"`
	History  []types.ChatMessage `json:"history"`
}

// ChatService forwards conversations to the chat model
type ChatService struct {
	model      ChatModel
	maxHistory int
	now        func() time.Time
	logger     *logging.Logger
}

// NewChatService creates a chat service. maxHistory <= 0 uses DefaultMaxChatHistory.
func NewChatService(model ChatModel, maxHistory int, logger *logging.Logger) (*ChatService, error) {
	if model == nil {
		return nil, fmt.Errorf("chat model cannot be nil")
	}
	if maxHistory <= 0 {
		maxHistory = DefaultMaxChatHistory
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &ChatService{
		model:      model,
		maxHistory: maxHistory,
		now:        time.Now,
		logger:     logger.WithField("component", "chat_service"),
	}, nil
}

// Chat sends message after history and returns the reply. Unlike analysis,
// a model failure is returned to the caller.
func (s *ChatService) Chat(ctx context.Context, message string, history []types.ChatMessage) (*ChatReply, error) {
	if strings.TrimSpace(message) == "" {
		return nil, apperrors.NewInvalidParameterError("message", "Message is required and must be a string")
	}
	for i, m := range history {
		if m.Role != types.RoleUser && m.Role != types.RoleAssistant {
			return nil, apperrors.NewInvalidParameterError("history", fmt.Sprintf("history[%d] has unknown role %q", i, m.Role))
		}
		if strings.TrimSpace(m.Content) == "" {
			return nil, apperrors.NewInvalidParameterError("history", fmt.Sprintf("history[%d] has empty content", i))
		}
	}

	forwarded := history
	if len(forwarded) > s.maxHistory {
		forwarded = forwarded[len(forwarded)-s.maxHistory:]
	}

	sent := s.now()
	response, err := s.model.Chat(ctx, forwarded, message)
	if err != nil {
		s.logger.WithError(err).Warn("chat model call failed")
		if apperrors.Categorize(err).Category == apperrors.CategorySystem {
			err = apperrors.NewUpstreamUnavailableError("chat model", err)
		}
		return nil, err
	}
	received := s.now()

	extended := make([]types.ChatMessage, 0, len(history)+2)
	extended = append(extended, history...)
	extended = append(extended,
		types.ChatMessage{Role: types.RoleUser, Content: message, Timestamp: &sent},
		types.ChatMessage{Role: types.RoleAssistant, Content: response, Timestamp: &received},
	)

	return &ChatReply{Response: response, History: extended}, nil
}
