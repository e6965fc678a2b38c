// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package chat_test

import (
	"testing"

	"github.com/parley-dev/parley/internal/chat"
	"github.com/stretchr/testify/assert"
)

func TestCloseThinkForDisplay(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "no reasoning block",
			in:   "plain answer",
			want: "plain answer",
		},
		{
			name: "terminated block untouched",
			in:   "<think>hmm</think>answer",
			want: "<think>hmm</think>answer",
		},
		{
			name: "open block gets synthetic close",
			in:   "<think>still thinking",
			want: "<think>still thinking</think>",
		},
		{
			name: "second block open",
			in:   "<think>a</think>text<think>b",
			want: "<think>a</think>text<think>b</think>",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chat.CloseThinkForDisplay(tt.in))
		})
	}
}

func TestStripThink(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "no block",
			in:   "plain",
			want: "plain",
		},
		{
			name: "single block removed",
			in:   "<think>musing</think>Quicksort Algorithm Overview",
			want: "Quicksort Algorithm Overview",
		},
		{
			name: "unterminated block drops tail",
			in:   "Title<think>never closed",
			want: "Title",
		},
		{
			name: "multiple blocks",
			in:   "a<think>x</think>b<think>y</think>c",
			want: "abc",
		},
		{
			name: "block only",
			in:   "<think>everything</think>",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chat.StripThink(tt.in))
		})
	}
}
