// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package chat

import "strings"

// Reasoning-capable models wrap their chain of thought in think tags.
// Stored content always keeps the raw text; these helpers only shape what
// is shown or reused elsewhere.
const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// CloseThinkForDisplay appends a synthetic closing tag when the text ends
// inside an open reasoning block, so renderers never see a dangling open
// tag mid-stream. The stored accumulator is left untouched by callers;
// the synthetic tag must never be fed back into delta concatenation.
func CloseThinkForDisplay(s string) string {
	open := strings.LastIndex(s, thinkOpen)
	if open == -1 {
		return s
	}
	if strings.Contains(s[open:], thinkClose) {
		return s
	}
	return s + thinkClose
}

// StripThink removes every reasoning block from s. A block whose closing
// tag never arrived is dropped from its opening tag to the end of the
// string.
func StripThink(s string) string {
	for {
		open := strings.Index(s, thinkOpen)
		if open == -1 {
			return s
		}
		rest := s[open+len(thinkOpen):]
		end := strings.Index(rest, thinkClose)
		if end == -1 {
			return s[:open]
		}
		s = s[:open] + rest[end+len(thinkClose):]
	}
}
