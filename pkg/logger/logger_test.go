package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext(t *testing.T) {
	t.Run("Should attach context fields to log records", func(t *testing.T) {
		var buf bytes.Buffer
		InitWithWriter(&buf, "info", "json")

		ctx := WithContext(context.Background(), RequestIDKey, "req-1")
		ctx = WithContext(ctx, JobIDKey, "job-9")
		Error(ctx, "ingest failed", errors.New("boom"), "chunks", 3)

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "ingest failed", rec["msg"])
		assert.Equal(t, "req-1", rec["request_id"])
		assert.Equal(t, "job-9", rec["job_id"])
		assert.Equal(t, "boom", rec["error"])
		assert.EqualValues(t, 3, rec["chunks"])
	})

	t.Run("Should drop records below the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		InitWithWriter(&buf, "warn", "json")

		Info(context.Background(), "quiet")
		assert.Zero(t, buf.Len())

		Warn(context.Background(), "loud")
		assert.Contains(t, buf.String(), "loud")
	})
}
