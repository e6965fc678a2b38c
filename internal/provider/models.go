// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package provider

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var versionRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

// modelVersion extracts the first version-looking number from a model name.
// "gpt-4.1-mini" → 4.1, "gemini-2.5-pro" → 2.5, "llama3.2" → 3.2.
// Names without a number sort as version 0.
func modelVersion(name string) float64 {
	m := versionRe.FindString(name)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}

// SortModels orders a model list by recency heuristic so the newest, most
// capable model sits at the head and becomes the default selection: higher
// version numbers first, then shorter names (base models before their
// -mini/-nano cuts), then lexicographic for stability.
func SortModels(models []string) {
	sort.SliceStable(models, func(i, j int) bool {
		vi, vj := modelVersion(models[i]), modelVersion(models[j])
		if vi != vj {
			return vi > vj
		}
		if len(models[i]) != len(models[j]) {
			return len(models[i]) < len(models[j])
		}
		return strings.Compare(models[i], models[j]) < 0
	})
}
