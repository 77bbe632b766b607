package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(StreamReady, "abc", map[string]string{"url": "http://localhost:1"})
	evt := <-ch
	assert.Equal(t, StreamReady, evt.Topic)
	assert.Equal(t, "abc", evt.Subject)

	var body map[string]string
	require.NoError(t, json.Unmarshal(evt.Payload, &body))
	assert.Equal(t, "http://localhost:1", body["url"])
}

func TestNilPayloadIsNull(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(StreamReady, "s", nil)
	assert.Equal(t, "null", string((<-ch).Payload))
}

func TestSlowSubscriberDrops(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < 100; i++ {
		b.Publish(ContentCompleted, "x", i)
	}
	assert.Len(t, ch, 64)
}

func TestCancelAndClose(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()
	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)

	ch2, _ := b.Subscribe()
	b.Close()
	_, ok = <-ch2
	assert.False(t, ok)

	ch3, _ := b.Subscribe()
	_, ok = <-ch3
	assert.False(t, ok)
	b.Publish(StreamClosed, "", nil)
}
