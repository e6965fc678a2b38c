// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package gemini streams generations from the Google-style API. The framing
// is SSE-like (`data: <json>` lines) but looser than the OpenAI family:
// blank lines and non-JSON fragments are skipped rather than treated as
// errors, the credential travels as a query parameter, and the stream ends
// at EOF with no sentinel.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
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

// Adapter implements provider.Adapter for the Gemini-style family.
type Adapter struct {
	baseURL string
	client  *http.Client
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates a Gemini adapter.
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

func (a *Adapter) ID() string { return provider.ProviderGemini }

// Request/response wire shapes.

type generateRequest struct {
	Contents          []content `json:"contents"`
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateChunk struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (a *Adapter) Stream(ctx context.Context, conversation []provider.Turn, model, credential string) (<-chan provider.Delta, error) {
	body := buildRequest(conversation)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeInternalFailure, "gemini: encoding request")
	}

	endpoint := a.baseURL + "/models/" + url.PathEscape(model) + ":streamGenerateContent?alt=sse&key=" + url.QueryEscape(credential)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeInternalFailure, "gemini: building request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, parleyerr.Wrapf(err, parleyerr.CodeProviderNetworkFailure, "gemini: generation request failed")
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, parleyerr.New(
			parleyerr.CodeProviderAPIFailure,
			"gemini: generation request rejected",
			parleyerr.FieldProvider(provider.ProviderGemini),
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

// buildRequest maps the normalized conversation onto Gemini content. System
// turns become the systemInstruction; assistant turns use the "model" role.
func buildRequest(conversation []provider.Turn) generateRequest {
	var req generateRequest

	for _, t := range conversation {
		switch t.Role {
		case provider.RoleSystem:
			req.SystemInstruction = &content{Parts: []part{{Text: t.Content}}}
		case provider.RoleAssistant:
			req.Contents = append(req.Contents, content{
				Role:  "model",
				Parts: []part{{Text: t.Content}},
			})
		default:
			req.Contents = append(req.Contents, content{
				Role:  "user",
				Parts: []part{{Text: t.Content}},
			})
		}
	}

	return req
}

// scanStream consumes the loose SSE framing: `data: <json>` lines carry
// candidate parts, everything else (blank lines, non-JSON fragments) is
// skipped.
func scanStream(ctx context.Context, body io.Reader, deltas chan<- provider.Delta) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}

		var chunk generateChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Loose framing: non-JSON fragments are not an error.
			continue
		}

		if len(chunk.Candidates) == 0 {
			continue
		}
		for _, p := range chunk.Candidates[0].Content.Parts {
			if p.Text != "" {
				deltas <- provider.Delta{Text: p.Text}
			}
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		deltas <- provider.Delta{Err: parleyerr.Wrapf(err,
			parleyerr.CodeProviderNetworkFailure, "gemini: reading stream")}
	}
}
