package database

import (
	"context"
	"testing"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &config.Config{}
	cfg.Redis.Addr = mr.Addr()
	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	v, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := &config.Config{}
	cfg.Redis.Addr = addr
	_, err := NewRedisClient(context.Background(), cfg)
	assert.Error(t, err)
}
