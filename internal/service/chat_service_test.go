package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/address-analyzer/internal/errors"
	"github.com/address-analyzer/internal/logging"
	"github.com/address-analyzer/internal/types"
)

type mockChatModel struct {
	history []types.ChatMessage
	message string
	chatFn  func() (string, error)
}

func (m *mockChatModel) Chat(ctx context.Context, history []types.ChatMessage, message string) (string, error) {
	m.history = history
	m.message = message
	return m.chatFn()
}

func TestChatService_Chat(t *testing.T) {
	model := &mockChatModel{chatFn: func() (string, error) { return "Hello there", nil }}
	svc, err := NewChatService(model, 0, logging.NewNop())
	require.NoError(t, err)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	history := []types.ChatMessage{
		{Role: types.RoleUser, Content: "hi"},
		{Role: types.RoleAssistant, Content: "hey"},
	}
	reply, err := svc.Chat(context.Background(), "What is a whale?", history)
	require.NoError(t, err)

	assert.Equal(t, "Hello there", reply.Response)
	assert.Equal(t, "What is a whale?", model.message)
	assert.Equal(t, history, model.history)

	require.Len(t, reply.History, 4)
	assert.Equal(t, types.RoleUser, reply.History[2].Role)
	assert.Equal(t, "What is a whale?", reply.History[2].Content)
	assert.Equal(t, types.RoleAssistant, reply.History[3].Role)
	assert.Equal(t, fixed, *reply.History[3].Timestamp)
	assert.Len(t, history, 2, "caller history must not be modified")
}

func TestChatService_Validation(t *testing.T) {
	model := &mockChatModel{chatFn: func() (string, error) {
		t.Error("model must not be called")
		return "", nil
	}}
	svc, err := NewChatService(model, 0, logging.NewNop())
	require.NoError(t, err)

	tests := []struct {
		name    string
		message string
		history []types.ChatMessage
		param   string
	}{
		{name: "empty message", message: "", param: "message"},
		{name: "blank message", message: "   ", param: "message"},
		{name: "unknown role", message: "hi", history: []types.ChatMessage{{Role: "system", Content: "x"}}, param: "history"},
		{name: "empty turn", message: "hi", history: []types.ChatMessage{{Role: types.RoleUser}}, param: "history"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Chat(context.Background(), tt.message, tt.history)
			require.Error(t, err)
			catErr := apperrors.Categorize(err)
			assert.Equal(t, apperrors.CategoryInvalidInput, catErr.Category)
			assert.Equal(t, tt.param, catErr.Details["parameter"])
		})
	}

	_, err = svc.Chat(context.Background(), "", nil)
	assert.Equal(t, "Message is required and must be a string", apperrors.Categorize(err).Message)
}

func TestChatService_TrimsForwardedHistory(t *testing.T) {
	model := &mockChatModel{chatFn: func() (string, error) { return "ok", nil }}
	svc, err := NewChatService(model, 2, logging.NewNop())
	require.NoError(t, err)

	history := []types.ChatMessage{
		{Role: types.RoleUser, Content: "1"},
		{Role: types.RoleAssistant, Content: "2"},
		{Role: types.RoleUser, Content: "3"},
	}
	reply, err := svc.Chat(context.Background(), "4", history)
	require.NoError(t, err)
	assert.Equal(t, history[1:], model.history)
	assert.Len(t, reply.History, 5)
}

func TestChatService_UpstreamFailure(t *testing.T) {
	model := &mockChatModel{chatFn: func() (string, error) { return "", errors.New("socket closed") }}
	svc, err := NewChatService(model, 0, logging.NewNop())
	require.NoError(t, err)

	_, err = svc.Chat(context.Background(), "hi", nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryUpstreamUnavailable))
	assert.Equal(t, 502, apperrors.GetHTTPStatusCode(err))

	model.chatFn = func() (string, error) {
		return "", apperrors.NewUpstreamMalformedError("gemini", errors.New("empty"))
	}
	_, err = svc.Chat(context.Background(), "hi", nil)
	assert.True(t, apperrors.Is(err, apperrors.CategoryUpstreamMalformed))

	_, err = NewChatService(nil, 0, nil)
	assert.Error(t, err)
}
