package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdrc-devforce/devforce/internal/conversation"
)

func setupMiniredis(t *testing.T, maxMessages int) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, time.Hour, maxMessages), mr
}

func msg(role conversation.Role, content string) conversation.Message {
	return conversation.Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

func seedTurns() []conversation.Message {
	return []conversation.Message{
		msg(conversation.RoleUser, "You are the assistant."),
		msg(conversation.RoleAssistant, "Understood."),
	}
}

func TestStore_SeedOnce(t *testing.T) {
	store, _ := setupMiniredis(t, 10)
	ctx := context.Background()

	created, err := store.Seed(ctx, "s1", seedTurns())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.Seed(ctx, "s1", []conversation.Message{msg(conversation.RoleUser, "other")})
	require.NoError(t, err)
	assert.False(t, created)

	history, err := store.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "You are the assistant.", history[0].Content)
}

func TestStore_AppendAndHistory(t *testing.T) {
	store, _ := setupMiniredis(t, 10)
	ctx := context.Background()

	_, err := store.Seed(ctx, "s1", seedTurns())
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, "s1",
		msg(conversation.RoleUser, "Hello"),
		msg(conversation.RoleAssistant, "Hi there!"),
	))

	history, err := store.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, conversation.RoleUser, history[2].Role)
	assert.Equal(t, "Hello", history[2].Content)
	assert.Equal(t, conversation.RoleAssistant, history[3].Role)
	assert.Equal(t, "Hi there!", history[3].Content)
}

func TestStore_TrimKeepsSeed(t *testing.T) {
	store, _ := setupMiniredis(t, 3)
	ctx := context.Background()

	_, err := store.Seed(ctx, "s1", seedTurns())
	require.NoError(t, err)
	for _, c := range []string{"one", "two", "three", "four", "five"} {
		require.NoError(t, store.Append(ctx, "s1", msg(conversation.RoleUser, c)))
	}

	history, err := store.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, "You are the assistant.", history[0].Content)
	assert.Equal(t, "three", history[2].Content)
	assert.Equal(t, "five", history[4].Content)
}

func TestStore_EmptySession(t *testing.T) {
	store, _ := setupMiniredis(t, 10)

	history, err := store.History(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStore_Clear(t *testing.T) {
	store, mr := setupMiniredis(t, 10)
	ctx := context.Background()

	_, err := store.Seed(ctx, "s1", seedTurns())
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, "s1", msg(conversation.RoleUser, "Hello")))

	require.NoError(t, store.Clear(ctx, "s1"))
	assert.False(t, mr.Exists(seedKey("s1")))
	assert.False(t, mr.Exists(turnsKey("s1")))

	created, err := store.Seed(ctx, "s1", seedTurns())
	require.NoError(t, err)
	assert.True(t, created)
}

func TestStore_TTL(t *testing.T) {
	store, mr := setupMiniredis(t, 10)
	ctx := context.Background()

	_, err := store.Seed(ctx, "s1", seedTurns())
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, "s1", msg(conversation.RoleUser, "Hello")))

	assert.Equal(t, time.Hour, mr.TTL(seedKey("s1")))
	assert.Equal(t, time.Hour, mr.TTL(turnsKey("s1")))

	mr.FastForward(2 * time.Hour)
	history, err := store.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStore_SkipsMalformedTurns(t *testing.T) {
	store, mr := setupMiniredis(t, 10)
	ctx := context.Background()

	_, err := mr.Push(turnsKey("s1"), "not-json")
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, "s1", msg(conversation.RoleUser, "valid")))

	history, err := store.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "valid", history[0].Content)
}

func TestStore_RedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { client.Close() })
	store := NewStore(client, time.Hour, 10)

	_, err := store.History(context.Background(), "s1")
	assert.Error(t, err)
}
