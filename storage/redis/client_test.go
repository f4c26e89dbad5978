package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindagrowAPI/config"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "mindagrow:job:reset-missions", Key("mindagrow", "job", "reset-missions"))
	assert.Equal(t, "mindagrow:leaderboard", Key("", "leaderboard", ""))
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), config.Config{RedisAddr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	assert.True(t, mr.Exists("k"))
}

func TestNewClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), config.Config{RedisAddr: addr})
	assert.Error(t, err)
}
