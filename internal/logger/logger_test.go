package logger_test

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/skillswap-api/internal/logger"
)

func TestNewWritesToBuffer(t *testing.T) {
	buff := bytes.NewBuffer(nil)
	l := logger.New(buff, "debug")

	require.Equal(t, 0, buff.Len())
	l.Info().Str("collection", "trades").Msg("Test")
	require.Contains(t, buff.String(), "Test")
	require.Contains(t, buff.String(), `"collection":"trades"`)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, logger.ParseLevel(""))
	require.Equal(t, zerolog.InfoLevel, logger.ParseLevel("nonsense"))
	require.Equal(t, zerolog.WarnLevel, logger.ParseLevel(" WARN "))
	require.Equal(t, zerolog.DebugLevel, logger.ParseLevel("debug"))
}

func TestLevelFiltersMessages(t *testing.T) {
	buff := bytes.NewBuffer(nil)
	l := logger.New(buff, "error")

	l.Info().Msg("skipped")
	require.Equal(t, 0, buff.Len())
	l.Error().Msg("kept")
	require.Contains(t, buff.String(), "kept")
}
