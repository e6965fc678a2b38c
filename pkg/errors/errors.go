// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package errors

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeProviderCredentialInvalid Code = "provider.credential.invalid"
	CodeProviderCredentialMissing Code = "provider.credential.missing"
	CodeProviderRateLimited       Code = "provider.api.rate_limited"
	CodeProviderAPIFailure        Code = "provider.api.failure"
	CodeProviderNetworkFailure    Code = "provider.network.failure"
	CodeProviderResponseInvalid   Code = "provider.response.invalid"
	CodeProviderNotFound          Code = "provider.registry.not_found"

	CodeChatModelNotSelected Code = "chat.model.not_selected"
	CodeChatMessageNotFound  Code = "chat.message.not_found"
	CodeChatInvalidInput     Code = "chat.invalid_input"

	CodeStoreSessionNotFound Code = "store.session.get.not_found"
	CodeStoreMessageNotFound Code = "store.message.get.not_found"
	CodeStoreDatabaseFailure Code = "store.database.failure"
	CodeStoreInvalidInput    Code = "store.invalid_input"

	CodeSecretNotFound     Code = "secret.get.not_found"
	CodeSecretInvalidInput Code = "secret.invalid_input"
	CodeSecretStoreFailure Code = "secret.store.failure"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeCLIInputInvalid Code = "cli.input.invalid"
	CodeCLISetupFailure Code = "cli.setup.failure"
	CodeInternalFailure Code = "internal.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldSessionID(value string) Attr {
	return Field("session_id", value)
}

func FieldMessageID(value string) Attr {
	return Field("message_id", value)
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func FieldModel(value string) Attr {
	return Field("model", value)
}

func FieldHTTPStatus(value int) Attr {
	return Field("http_status", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// IsInvalidCredential reports whether err means the stored credential was
// rejected by the backend (401/403) or is missing entirely. The shell uses
// this to prompt for re-authentication instead of rendering a generic error.
func IsInvalidCredential(err error) bool {
	return HasCode(err, CodeProviderCredentialInvalid) ||
		HasCode(err, CodeProviderCredentialMissing)
}

// IsRateLimited reports whether err is a backend 429 so the shell can show
// backoff messaging.
func IsRateLimited(err error) bool {
	return HasCode(err, CodeProviderRateLimited)
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

// ClassifyStatus maps a non-200 HTTP status observed before streaming began
// to the provider error taxonomy.
func ClassifyStatus(status int) Code {
	switch status {
	case 401, 403:
		return CodeProviderCredentialInvalid
	case 429:
		return CodeProviderRateLimited
	default:
		return CodeProviderAPIFailure
	}
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
