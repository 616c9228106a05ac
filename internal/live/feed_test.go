package live

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.True(t, ok, "signal channel closed")
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for signal")
	}
}

func TestMemoryFeedCoalescesSignals(t *testing.T) {
	feed := NewMemoryFeed()
	defer feed.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := feed.Subscribe(ctx, "t")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, feed.Publish(ctx, "t"))
	}

	expectSignal(t, ch)
	select {
	case <-ch:
		t.Fatal("signals should coalesce into one pending notification")
	default:
	}
}

func TestMemoryFeedUnsubscribesOnCancel(t *testing.T) {
	feed := NewMemoryFeed()
	defer feed.Close()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := feed.Subscribe(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, 1, feed.Subscribers("t"))

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(waitFor):
		t.Fatal("channel not closed after cancel")
	}
	assert.Equal(t, 0, feed.Subscribers("t"))
}

func TestMemoryFeedPublishAfterClose(t *testing.T) {
	feed := NewMemoryFeed()
	require.NoError(t, feed.Close())
	assert.ErrorIs(t, feed.Publish(context.Background(), "t"), ErrFeedClosed)
}

// TestRedisFeedRoundTrip needs a reachable Redis; set TEST_REDIS_ADDR to run it.
func TestRedisFeedRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	feed := NewRedisFeed(redis.NewClient(&redis.Options{Addr: addr}), "aipass-test")
	defer feed.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := feed.Subscribe(ctx, "messages.s1")
	require.NoError(t, err)

	require.NoError(t, feed.Publish(ctx, "messages.s1"))
	expectSignal(t, ch)
}

// TestNATSFeedRoundTrip needs a reachable NATS server; set TEST_NATS_URL to run it.
func TestNATSFeedRoundTrip(t *testing.T) {
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("TEST_NATS_URL not set")
	}

	feed, err := ConnectNATS(url, "aipass-test")
	require.NoError(t, err)
	defer feed.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := feed.Subscribe(ctx, "messages.s1")
	require.NoError(t, err)

	require.NoError(t, feed.Publish(ctx, "messages.s1"))
	expectSignal(t, ch)
}

func TestNATSSubjectEscapesTopicKeys(t *testing.T) {
	feed := &NATSFeed{prefix: "aipass"}

	assert.Equal(t, "aipass.applications", feed.subject("applications"))

	seen := map[string]string{}
	for _, owner := range []string{"user-1", "a.b", "*", ">", "a b", "a.*", ""} {
		subject := feed.subject("sessions." + owner)
		tokens := strings.Split(subject, ".")
		require.Len(t, tokens, 3, subject)
		assert.Equal(t, []string{"aipass", "sessions"}, tokens[:2])
		assert.NotEmpty(t, tokens[2])
		assert.NotContains(t, tokens[2], "*")
		assert.NotContains(t, tokens[2], ">")
		assert.NotContains(t, tokens[2], " ")

		prev, dup := seen[subject]
		assert.False(t, dup, "%q and %q share subject %s", owner, prev, subject)
		seen[subject] = owner
	}
}
