// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package ollama streams chat responses from a local model server speaking
// NDJSON: one JSON object per line with no SSE prefix, terminated by a line
// carrying done=true rather than a sentinel token. No credential is
// required.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/parley-dev/parley/internal/provider"
	parleyerr "github.com/parley-dev/parley/pkg/errors"
)

const maxScanTokenSize = 1024 * 1024

// Config holds adapter configuration.
type Config struct {
	BaseURL string
	// HTTPClient is optional; the default client is used when nil.
	HTTPClient *http.Client
}

// Adapter implements provider.Adapter for the local NDJSON family.
type Adapter struct {
	baseURL string
	client  *http.Client
}

// Compile-time interface checks.
var (
	_ provider.Adapter = (*Adapter)(nil)
	_ provider.Catalog = (*Adapter)(nil)
)

// New creates an Ollama adapter.
func New(cfg Config) *Adapter {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
	}
}

func (a *Adapter) ID() string { return provider.ProviderOllama }

// Request/response wire shapes.

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

func (a *Adapter) Stream(ctx context.Context, conversation []provider.Turn, model, _ string) (<-chan provider.Delta, error) {
	body := chatRequest{Model: model, Stream: true}
	for _, t := range conversation {
		body.Messages = append(body.Messages, chatMessage{
			Role:    string(t.Role),
			Content: t.Content,
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeInternalFailure, "ollama: encoding chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeInternalFailure, "ollama: building chat request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeProviderNetworkFailure, "ollama: chat request failed")
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, parleyerr.New(
			parleyerr.CodeProviderAPIFailure,
			"ollama: chat request rejected",
			parleyerr.FieldProvider(provider.ProviderOllama),
			parleyerr.FieldHTTPStatus(resp.StatusCode),
		)
	}

	deltas := make(chan provider.Delta, 100)

	go func() {
		defer close(deltas)
		defer resp.Body.Close()
		scanStream(ctx, resp.Body, deltas)
	}()

	return deltas, nil
}

// scanStream consumes one JSON object per line until a line carries
// done=true.
func scanStream(ctx context.Context, body io.Reader, deltas chan<- provider.Delta) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			deltas <- provider.Delta{Err: parleyerr.Wrapf(err,
				parleyerr.CodeProviderResponseInvalid, "ollama: malformed stream line")}
			return
		}

		if chunk.Message.Content != "" {
			deltas <- provider.Delta{Text: chunk.Message.Content}
		}
		if chunk.Done {
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		deltas <- provider.Delta{Err: parleyerr.Wrapf(err,
			parleyerr.CodeProviderNetworkFailure, "ollama: reading stream")}
	}
}

type tagList struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels queries the local server's GET /api/tags listing.
func (a *Adapter) ListModels(ctx context.Context, _ string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeInternalFailure, "ollama: building tags request")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeProviderNetworkFailure, "ollama: tags request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parleyerr.New(
			parleyerr.CodeProviderAPIFailure,
			"ollama: tags request rejected",
			parleyerr.FieldProvider(provider.ProviderOllama),
			parleyerr.FieldHTTPStatus(resp.StatusCode),
		)
	}

	var list tagList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeProviderResponseInvalid, "ollama: decoding tag list")
	}

	models := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, m.Name)
	}
	return models, nil
}
