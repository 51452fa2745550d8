package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/address-analyzer/internal/errors"
	"github.com/address-analyzer/internal/service"
	"github.com/address-analyzer/internal/types"
)

func TestListCategories(t *testing.T) {
	server := createTestServer(Services{})

	w := doRequest(t, server, "GET", "/api/categories", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string][]types.Category
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.NotEmpty(t, body["categories"])
	assert.Equal(t, 1, body["categories"][0].ID)
}

func TestGetCategory(t *testing.T) {
	server := createTestServer(Services{})

	tests := []struct {
		name    string
		path    string
		status  int
		message string
	}{
		{name: "known id", path: "/api/categories/1", status: http.StatusOK},
		{name: "unknown id", path: "/api/categories/999", status: http.StatusNotFound, message: "Category Not Found"},
		{name: "non-numeric id", path: "/api/categories/abc", status: http.StatusBadRequest, message: "Category id must be an integer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, server, "GET", tt.path, nil)
			require.Equal(t, tt.status, w.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, decodeError(t, w).Error)
				return
			}
			var category types.Category
			require.NoError(t, json.NewDecoder(w.Body).Decode(&category))
			assert.Equal(t, 1, category.ID)
			assert.NotEmpty(t, category.Title)
		})
	}
}

func TestAddressAnalysis_Success(t *testing.T) {
	server := createTestServer(Services{})

	for _, method := range []string{"GET", "POST"} {
		t.Run(method, func(t *testing.T) {
			target := "/api/address-analysis"
			var body interface{}
			if method == "GET" {
				target += "?address=" + testAddress
			} else {
				body = map[string]string{"address": testAddress}
			}

			w := doRequest(t, server, method, target, body)
			require.Equal(t, http.StatusOK, w.Code)

			var resp AddressAnalysisResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, testAddress, resp.Address)
			assert.Equal(t, 2, resp.Analysis.Category)

			var inner struct {
				Category    int    `json:"category"`
				Explanation string `json:"explanation"`
			}
			require.NoError(t, json.Unmarshal([]byte(resp.Response), &inner))
			assert.Equal(t, 2, inner.Category)
			assert.Equal(t, "Holds long-term positions", inner.Explanation)
		})
	}
}

func TestAddressAnalysis_InvalidInput(t *testing.T) {
	server := createTestServer(Services{})

	tests := []struct {
		name    string
		method  string
		target  string
		body    interface{}
		message string
	}{
		{name: "missing address", method: "GET", target: "/api/address-analysis", message: "Address is required"},
		{name: "empty body", method: "POST", target: "/api/address-analysis", body: map[string]string{}, message: "Address is required"},
		{name: "malformed address", method: "POST", target: "/api/address-analysis", body: map[string]string{"address": "0x1234"}, message: "Invalid Ethereum address format"},
		{name: "invalid json", method: "POST", target: "/api/address-analysis", body: "not json", message: "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, server, tt.method, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.message, decodeError(t, w).Error)
		})
	}
}

func TestAddressAnalysis_FallbackIsSuccess(t *testing.T) {
	server := createTestServer(Services{
		Analysis: &mockAnalysisService{analyzeFunc: func(_ context.Context, address string) (types.AnalysisResult, error) {
			return types.AnalysisResult{
				Category:    7,
				Explanation: "Unable to reach the analysis service",
				Address:     address,
				Source:      types.SourceFallbackUnavailable,
			}, nil
		}},
	})

	w := doRequest(t, server, "GET", "/api/address-analysis?address="+testAddress, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp AddressAnalysisResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, types.SourceFallbackUnavailable, resp.Analysis.Source)
}

func TestAnalysisHistory(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var gotLimit int
	history := &mockHistory{listFunc: func(_ context.Context, address string, limit int) ([]*types.AnalysisRecord, error) {
		gotLimit = limit
		return []*types.AnalysisRecord{{ID: "a1", Address: types.NormalizeAddress(address), Category: 2, CreatedAt: created}}, nil
	}}
	server := createTestServer(Services{History: history})

	w := doRequest(t, server, "GET", "/api/addresses/"+testAddress+"/analyses?limit=500", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxHistoryLimit, gotLimit)

	var body struct {
		Address  string                  `json:"address"`
		Analyses []*types.AnalysisRecord `json:"analyses"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Len(t, body.Analyses, 1)
	assert.Equal(t, "a1", body.Analyses[0].ID)

	w = doRequest(t, server, "GET", "/api/addresses/0xnope/analyses", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	history.listFunc = func(context.Context, string, int) ([]*types.AnalysisRecord, error) {
		return nil, errors.New("connection refused")
	}
	w = doRequest(t, server, "GET", "/api/addresses/"+testAddress+"/analyses", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "An internal error occurred", decodeError(t, w).Error)
}

func TestAnalysisHistory_Disabled(t *testing.T) {
	server := createTestServer(Services{})

	w := doRequest(t, server, "GET", "/api/addresses/"+testAddress+"/analyses", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, w).Code)
}

func TestChat(t *testing.T) {
	server := createTestServer(Services{})

	w := doRequest(t, server, "POST", "/api/chat", map[string]interface{}{
		"message": "hello",
		"history": []map[string]string{{"role": "user", "content": "hi"}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var reply service.ChatReply
	require.NoError(t, json.NewDecoder(w.Body).Decode(&reply))
	assert.Equal(t, "echo: hello", reply.Response)
	assert.Len(t, reply.History, 3)
}

func TestChat_InvalidInput(t *testing.T) {
	server := createTestServer(Services{})

	tests := []struct {
		name string
		body interface{}
	}{
		{name: "missing message", body: map[string]interface{}{}},
		{name: "numeric message", body: map[string]interface{}{"message": 42}},
		{name: "null message", body: map[string]interface{}{"message": nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, server, "POST", "/api/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "Message is required and must be a string", decodeError(t, w).Error)
		})
	}
}

func TestChat_UpstreamFailure(t *testing.T) {
	server := createTestServer(Services{
		Chat: &mockChatService{chatFunc: func(context.Context, string, []types.ChatMessage) (*service.ChatReply, error) {
			return nil, apperrors.NewUpstreamUnavailableError("chat model", errors.New("reset"))
		}},
	})

	w := doRequest(t, server, "POST", "/api/chat", map[string]string{"message": "hello"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", decodeError(t, w).Code)
}

func TestClaims(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	running := &service.ClaimStatus{
		Progress: types.ProgressState{
			Address:         types.NormalizeAddress(testAddress),
			Status:          types.ClaimRunning,
			StartTime:       &start,
			TimeLeftMinutes: 77,
			TotalMinutes:    77,
		},
		Verification: types.VerificationState{Status: types.VerificationIdle},
		Watching:     true,
	}
	var resetCalled string
	claims := &mockClaimService{
		startFunc:  func(context.Context, string) (*service.ClaimStatus, error) { return running, nil },
		statusFunc: func(context.Context, string) (*service.ClaimStatus, error) { return running, nil },
		resetFunc: func(_ context.Context, address string) error {
			resetCalled = address
			return nil
		},
	}
	server := createTestServer(Services{Claims: claims})

	w := doRequest(t, server, "POST", "/api/claims/"+testAddress, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status service.ClaimStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, types.ClaimRunning, status.Progress.Status)
	assert.Equal(t, 77, status.Progress.TimeLeftMinutes)
	assert.True(t, status.Watching)

	w = doRequest(t, server, "GET", "/api/claims/"+testAddress, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, server, "DELETE", "/api/claims/"+testAddress, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, testAddress, resetCalled)
}

func TestClaims_Errors(t *testing.T) {
	claims := &mockClaimService{
		startFunc: func(_ context.Context, address string) (*service.ClaimStatus, error) {
			return nil, apperrors.NewInvalidAddressError(address)
		},
		statusFunc: func(context.Context, string) (*service.ClaimStatus, error) {
			return nil, apperrors.NewInternalError("failed to load claim result", errors.New("redis down"))
		},
		resetFunc: func(context.Context, string) error { return nil },
	}
	server := createTestServer(Services{Claims: claims})

	w := doRequest(t, server, "POST", "/api/claims/0xnope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid Ethereum address format", decodeError(t, w).Error)

	w = doRequest(t, server, "GET", "/api/claims/"+testAddress, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "redis down")
}

func TestClaims_Disabled(t *testing.T) {
	server := createTestServer(Services{})

	for _, method := range []string{"POST", "GET", "DELETE"} {
		w := doRequest(t, server, method, "/api/claims/"+testAddress, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, method)
	}
}
