package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogOutput(t *testing.T) {
	saved := log.Logger
	t.Cleanup(func() { log.Logger = saved })

	var buf bytes.Buffer
	require.NoError(t, SetLogOutput(&buf, zerolog.LevelWarnValue, LogFormatJsonValue))

	log.Info().Msg("hidden")
	log.Warn().Str("table", "orders").Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "orders", entry["table"])
}

func TestSetLogOutputErrors(t *testing.T) {
	saved := log.Logger
	t.Cleanup(func() { log.Logger = saved })

	var buf bytes.Buffer
	assert.Error(t, SetLogOutput(&buf, "verbose", LogFormatTextValue))
	assert.Error(t, SetLogOutput(&buf, zerolog.LevelInfoValue, "xml"))
}
