package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "landregistry/pkg/domain"
)

type fakePusher struct {
	failures int
	pushed   [][]byte
	keys     []string
}

func (f *fakePusher) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "lpush")
	if f.failures > 0 {
		f.failures--
		cmd.SetErr(errors.New("connection reset"))
		return cmd
	}
	f.keys = append(f.keys, key)
	f.pushed = append(f.pushed, values[0].([]byte))
	cmd.SetVal(int64(len(f.pushed)))
	return cmd
}

type countingDrops struct{ drops int }

func (c *countingDrops) IncNotificationsDropped() { c.drops++ }

func TestRedisSink_Publish(t *testing.T) {
	ctx := context.Background()
	recipient := id.NewActorID()

	t.Run("enqueues on the recipient's list", func(t *testing.T) {
		pusher := &fakePusher{}
		sink := NewRedisSink(pusher)

		sink.Publish(ctx, Message{
			Recipient: recipient,
			Entity:    "property_application",
			EntityID:  "abc",
			Event:     "application_approved",
		})

		require.Len(t, pusher.pushed, 1)
		assert.Equal(t, "landregistry:notifications:"+recipient.String(), pusher.keys[0])

		var msg Message
		require.NoError(t, json.Unmarshal(pusher.pushed[0], &msg))
		assert.Equal(t, "application_approved", msg.Event)
		assert.False(t, msg.At.IsZero())
	})

	t.Run("retries once on transient failure", func(t *testing.T) {
		pusher := &fakePusher{failures: 1}
		drops := &countingDrops{}
		sink := NewRedisSink(pusher, WithDropCounter(drops))

		sink.Publish(ctx, Message{Recipient: recipient, Event: "x"})

		assert.Len(t, pusher.pushed, 1)
		assert.Zero(t, drops.drops)
	})

	t.Run("drops after retry and counts it", func(t *testing.T) {
		pusher := &fakePusher{failures: 2}
		drops := &countingDrops{}
		sink := NewRedisSink(pusher, WithDropCounter(drops))

		sink.Publish(ctx, Message{Recipient: recipient, Event: "x"})

		assert.Empty(t, pusher.pushed)
		assert.Equal(t, 1, drops.drops)
	})

	t.Run("nil recipient is ignored", func(t *testing.T) {
		pusher := &fakePusher{}
		sink := NewRedisSink(pusher)
		sink.Publish(ctx, Message{Event: "x"})
		assert.Empty(t, pusher.pushed)
	})

	t.Run("nil sink is safe", func(t *testing.T) {
		var sink *RedisSink
		sink.Publish(ctx, Message{Recipient: recipient})
	})
}
