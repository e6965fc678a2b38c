// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package openaicompat streams chat completions from backends speaking the
// OpenAI wire format: SSE framing of `data: <json>` lines terminated by a
// literal `data: [DONE]` sentinel. Two of the supported backends share this
// adapter, differing only in endpoint and credential.
package openaicompat

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

const doneSentinel = "[DONE]"

// maxScanTokenSize bounds a single SSE line; generous because a data line
// carries one delta, not the whole completion.
const maxScanTokenSize = 1024 * 1024

// Config holds adapter configuration.
type Config struct {
	// ProviderID distinguishes the backends sharing this wire format.
	ProviderID string
	BaseURL    string
	// HTTPClient is optional; the default client is used when nil.
	HTTPClient *http.Client
}

// Adapter implements provider.Adapter for the OpenAI-compatible family.
type Adapter struct {
	providerID string
	baseURL    string
	client     *http.Client
}

// Compile-time interface checks.
var (
	_ provider.Adapter = (*Adapter)(nil)
	_ provider.Catalog = (*Adapter)(nil)
)

// New creates an adapter for one OpenAI-compatible backend.
func New(cfg Config) *Adapter {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{
		providerID: cfg.ProviderID,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		client:     client,
	}
}

func (a *Adapter) ID() string { return a.providerID }

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
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (a *Adapter) Stream(ctx context.Context, conversation []provider.Turn, model, credential string) (<-chan provider.Delta, error) {
	body := chatRequest{Model: model, Stream: true}
	for _, t := range conversation {
		body.Messages = append(body.Messages, chatMessage{
			Role:    string(t.Role),
			Content: t.Content,
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeInternalFailure, "%s: encoding chat request", a.providerID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeInternalFailure, "%s: building chat request", a.providerID)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeProviderNetworkFailure, "%s: chat request failed", a.providerID)
	}

	// A non-200 before streaming begins is classified immediately; no
	// deltas are ever emitted for it.
	if resp.StatusCode != http.StatusOK {
		detail := readErrorBody(resp.Body)
		resp.Body.Close()
		return nil, parleyerr.New(
			parleyerr.ClassifyStatus(resp.StatusCode),
			a.providerID+": chat request rejected: "+detail,
			parleyerr.FieldProvider(a.providerID),
			parleyerr.FieldHTTPStatus(resp.StatusCode),
		)
	}

	deltas := make(chan provider.Delta, 100)

	go func() {
		defer close(deltas)
		defer resp.Body.Close()
		a.scanStream(ctx, resp.Body, deltas)
	}()

	return deltas, nil
}

// scanStream consumes `data: <json>` lines until the [DONE] sentinel,
// emitting each non-empty content fragment in arrival order.
func (a *Adapter) scanStream(ctx context.Context, body io.Reader, deltas chan<- provider.Delta) {
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

		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if data == doneSentinel {
			return
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			deltas <- provider.Delta{Err: parleyerr.Wrapf(err,
				parleyerr.CodeProviderResponseInvalid,
				"%s: malformed stream payload", a.providerID)}
			return
		}

		// Payloads without content are keep-alives.
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}

		deltas <- provider.Delta{Text: chunk.Choices[0].Delta.Content}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		deltas <- provider.Delta{Err: parleyerr.Wrapf(err,
			parleyerr.CodeProviderNetworkFailure,
			"%s: reading stream", a.providerID)}
	}
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ListModels queries the backend's GET /models listing.
func (a *Adapter) ListModels(ctx context.Context, credential string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/models", nil)
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeInternalFailure, "%s: building models request", a.providerID)
	}
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeProviderNetworkFailure, "%s: models request failed", a.providerID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parleyerr.New(
			parleyerr.ClassifyStatus(resp.StatusCode),
			a.providerID+": models request rejected",
			parleyerr.FieldProvider(a.providerID),
			parleyerr.FieldHTTPStatus(resp.StatusCode),
		)
	}

	var list modelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeProviderResponseInvalid, "%s: decoding model list", a.providerID)
	}

	models := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

// readErrorBody extracts a short detail string from an error response.
func readErrorBody(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return "no detail"
	}

	var wrapped struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Error.Message != "" {
		return wrapped.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
