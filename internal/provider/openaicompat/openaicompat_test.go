// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package openaicompat_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/parley-dev/parley/internal/provider"
	"github.com/parley-dev/parley/internal/provider/openaicompat"
	parleyerr "github.com/parley-dev/parley/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdapter(baseURL string) *openaicompat.Adapter {
	return openaicompat.New(openaicompat.Config{
		ProviderID: provider.ProviderOpenAI,
		BaseURL:    baseURL,
	})
}

// collect drains a delta channel into the concatenated text and the
// terminal error, if any.
func collect(t *testing.T, deltas <-chan provider.Delta) (string, []string, error) {
	t.Helper()
	var text string
	var parts []string
	for d := range deltas {
		if d.Err != nil {
			return text, parts, d.Err
		}
		text += d.Text
		parts = append(parts, d.Text)
	}
	return text, parts, nil
}

func sseChunk(content string) string {
	payload, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"delta": map[string]any{"content": content}},
		},
	})
	return fmt.Sprintf("data: %s\n", payload)
}

func TestStream_ConcatenatesDeltasInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o", req.Model)
		assert.True(t, req.Stream)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "user", req.Messages[0].Role)

		fmt.Fprint(w, sseChunk("Hel"))
		fmt.Fprint(w, sseChunk("lo"))
		fmt.Fprint(w, sseChunk(", world"))
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	a := newAdapter(srv.URL)
	deltas, err := a.Stream(context.Background(), []provider.Turn{
		{Role: provider.RoleUser, Content: "hi"},
		{Role: provider.RoleAssistant, Content: "hello"},
	}, "gpt-4o", "sk-test")
	require.NoError(t, err)

	text, parts, streamErr := collect(t, deltas)
	require.NoError(t, streamErr)
	assert.Equal(t, "Hello, world", text)
	assert.Equal(t, []string{"Hel", "lo", ", world"}, parts)
}

func TestStream_SkipsKeepAliveChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Role-only first chunk and empty-delta keep-alives carry no content.
		fmt.Fprint(w, `data: {"choices":[{"delta":{"role":"assistant"}}]}`+"\n")
		fmt.Fprint(w, sseChunk("ok"))
		fmt.Fprint(w, `data: {"choices":[{"delta":{}}]}`+"\n")
		fmt.Fprint(w, "\n")
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	a := newAdapter(srv.URL)
	deltas, err := a.Stream(context.Background(), []provider.Turn{{Role: provider.RoleUser, Content: "x"}}, "gpt-4o", "k")
	require.NoError(t, err)

	text, parts, streamErr := collect(t, deltas)
	require.NoError(t, streamErr)
	assert.Equal(t, "ok", text)
	assert.Len(t, parts, 1)
}

func TestStream_ClassifiesPreStreamStatus(t *testing.T) {
	tests := []struct {
		status int
		check  func(error) bool
		name   string
	}{
		{http.StatusUnauthorized, parleyerr.IsInvalidCredential, "401 is invalid credential"},
		{http.StatusForbidden, parleyerr.IsInvalidCredential, "403 is invalid credential"},
		{http.StatusTooManyRequests, parleyerr.IsRateLimited, "429 is rate limited"},
		{http.StatusInternalServerError, func(err error) bool {
			return parleyerr.HasCode(err, parleyerr.CodeProviderAPIFailure)
		}, "500 is generic api failure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":{"message":"nope"}}`)
			}))
			defer srv.Close()

			a := newAdapter(srv.URL)
			_, err := a.Stream(context.Background(), []provider.Turn{{Role: provider.RoleUser, Content: "x"}}, "gpt-4o", "bad")
			require.Error(t, err, "error must surface before any delta")
			assert.True(t, tt.check(err))
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestStream_MalformedPayloadIsInvalidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, sseChunk("par"))
		fmt.Fprint(w, "data: {not json\n")
	}))
	defer srv.Close()

	a := newAdapter(srv.URL)
	deltas, err := a.Stream(context.Background(), []provider.Turn{{Role: provider.RoleUser, Content: "x"}}, "gpt-4o", "k")
	require.NoError(t, err)

	text, _, streamErr := collect(t, deltas)
	require.Error(t, streamErr)
	assert.True(t, parleyerr.HasCode(streamErr, parleyerr.CodeProviderResponseInvalid))
	assert.Equal(t, "par", text, "deltas before the bad payload are kept")
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"data":[{"id":"gpt-4o"},{"id":"gpt-4o-mini"}]}`)
	}))
	defer srv.Close()

	a := newAdapter(srv.URL)
	models, err := a.ListModels(context.Background(), "sk-test")
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini"}, models)
}

func TestListModels_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := newAdapter(srv.URL)
	_, err := a.ListModels(context.Background(), "bad")
	require.Error(t, err)
	assert.True(t, parleyerr.IsInvalidCredential(err))
}
