// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package chat

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/parley-dev/parley/internal/provider"
	parleyerr "github.com/parley-dev/parley/pkg/errors"
)

// maxTitleLen bounds the synthesized title, including the ellipsis.
const maxTitleLen = 80

const titleInstruction = "Write a short title for a conversation that starts with the " +
	"message below. Reply with the title only, in title case, without quotes " +
	"and without trailing punctuation."

// Synthesizer produces a session title from the first user message with a
// single one-shot generation call. It is pointed at the local backend,
// which needs no credential, so it can always run.
type Synthesizer struct {
	adapter provider.Adapter
	model   string
}

// NewSynthesizer returns a Synthesizer issuing one-shot calls against the
// given adapter and model.
func NewSynthesizer(adapter provider.Adapter, model string) *Synthesizer {
	return &Synthesizer{adapter: adapter, model: model}
}

// Synthesize runs the one-shot title generation and returns the normalized
// result. Callers treat any failure as best-effort and keep the
// placeholder title.
func (s *Synthesizer) Synthesize(ctx context.Context, firstUserMessage string) (string, error) {
	turns := []provider.Turn{
		{Role: provider.RoleSystem, Content: titleInstruction},
		{Role: provider.RoleUser, Content: firstUserMessage},
	}

	deltas, err := s.adapter.Stream(ctx, turns, s.model, "")
	if err != nil {
		return "", err
	}

	var raw strings.Builder
	for d := range deltas {
		if d.Err != nil {
			return "", d.Err
		}
		raw.WriteString(d.Text)
	}

	title := NormalizeTitle(raw.String())
	if title == "" {
		return "", parleyerr.New(parleyerr.CodeProviderResponseInvalid, "title generation returned no usable text")
	}
	return title, nil
}

// NormalizeTitle turns raw model output into a display title: reasoning
// blocks are stripped entirely (unterminated ones drop their tail),
// newlines collapse to spaces, surrounding quote characters are removed,
// and the result is truncated to maxTitleLen runes with an ellipsis.
func NormalizeTitle(raw string) string {
	title := StripThink(raw)
	title = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(title)
	title = strings.Join(strings.Fields(title), " ")
	title = strings.Trim(title, `"'`)

	if utf8.RuneCountInString(title) > maxTitleLen {
		runes := []rune(title)
		title = strings.TrimSpace(string(runes[:maxTitleLen-1])) + "…"
	}
	return title
}
