// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursevoice/coursevoice/pkg/errutil"
)

func TestLogError_WithOopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("TOKEN_MALFORMED").
		With("jti", "abc").
		Errorf("token has 2 segments")

	errutil.LogError(logger, "token rejected", err)

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Equal(t, "token rejected", logEntry["msg"])
	assert.Equal(t, "TOKEN_MALFORMED", logEntry["code"])
}

func TestLogError_WithStandardError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(logger, "operation failed", errors.New("standard error"))

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "ERROR", logEntry["level"])
	assert.Contains(t, logEntry["error"], "standard error")
	assert.NotContains(t, logEntry, "code")
}

func TestLog_RespectsLevelAndExtraAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	err := oops.Code("SESSION_EXPIRED").Errorf("idle timeout")
	errutil.Log(context.Background(), logger, slog.LevelDebug, "session destroyed", err, "reason", "idle_timeout")

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
	assert.Equal(t, "DEBUG", logEntry["level"])
	assert.Equal(t, "idle_timeout", logEntry["reason"])
	assert.Equal(t, "SESSION_EXPIRED", logEntry["code"])
}

func TestCode(t *testing.T) {
	assert.Equal(t, "RESET_TOKEN_EXPIRED", errutil.Code(oops.Code("RESET_TOKEN_EXPIRED").Errorf("expired")))
	assert.Equal(t, "", errutil.Code(errors.New("plain")))
	assert.Equal(t, "", errutil.Code(nil))
}
