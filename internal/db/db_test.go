package db

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/skillswap-api/internal/config"
	"github.com/rajivgeraev/skillswap-api/internal/store/memory"
)

func TestConnectMemory(t *testing.T) {
	s, closeFn, err := Connect(context.Background(), &config.Config{StoreDriver: config.StoreDriverMemory}, zerolog.Nop())
	require.NoError(t, err)
	defer closeFn()

	assert.IsType(t, &memory.Store{}, s)
	require.NoError(t, s.Ping(context.Background()))
}

func TestConnectUnknownDriver(t *testing.T) {
	_, _, err := Connect(context.Background(), &config.Config{StoreDriver: "cassandra"}, zerolog.Nop())
	require.Error(t, err)
}
