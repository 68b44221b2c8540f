package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterTagsService(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "report-worker", zerolog.InfoLevel)

	logger.Info().Str("schedule_id", "abc").Msg("executed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "report-worker", line["service"])
	assert.Equal(t, "abc", line["schedule_id"])
	assert.Equal(t, "executed", line["message"])
	assert.Contains(t, line, "time")
}

func TestNewWithWriterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "api-server", zerolog.WarnLevel)

	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())
}
