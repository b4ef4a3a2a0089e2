// Copyright 2025 Digix Global
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSubscribeAndPublish(t *testing.T) {
	bus := NewEventBus(nil, nil)
	defer bus.Stop()

	_, ch := bus.Subscribe(QuarterStartedEventType)
	bus.Publish(
		QuarterStartedEventType,
		NewEvent(QuarterStartedEventType, QuarterStartedEvent{Quarter: 2}),
	)

	select {
	case evt := <-ch:
		data, ok := evt.Data.(QuarterStartedEvent)
		require.True(t, ok)
		assert.Equal(t, uint64(2), data.Quarter)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishOnlyMatchingType(t *testing.T) {
	bus := NewEventBus(nil, nil)
	defer bus.Stop()

	_, ch := bus.Subscribe(StakeLockedEventType)
	bus.Publish(
		RewardsClaimedEventType,
		NewEvent(RewardsClaimedEventType, RewardsClaimedEvent{}),
	)

	select {
	case <-ch:
		t.Fatal("received event of wrong type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeFunc(t *testing.T) {
	bus := NewEventBus(nil, nil)

	var mu sync.Mutex
	var got []uint64
	done := make(chan struct{})
	bus.SubscribeFunc(QuarterStartedEventType, func(evt Event) {
		mu.Lock()
		got = append(got, evt.Data.(QuarterStartedEvent).Quarter)
		if len(got) == 2 {
			close(done)
		}
		mu.Unlock()
	})

	for q := uint64(2); q <= 3; q++ {
		bus.Publish(
			QuarterStartedEventType,
			NewEvent(QuarterStartedEventType, QuarterStartedEvent{Quarter: q}),
		)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for handler")
	}
	// Stop closes the subscription channel so the handler goroutine exits
	bus.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{2, 3}, got)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewEventBus(nil, nil)
	defer bus.Stop()

	subId, ch := bus.Subscribe(ProposalStateEventType)
	bus.Unsubscribe(ProposalStateEventType, subId)

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe is a no-op
	bus.Publish(
		ProposalStateEventType,
		NewEvent(ProposalStateEventType, ProposalStateEvent{}),
	)
}

func TestFullSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewEventBus(nil, nil)
	defer bus.Stop()

	_, ch := bus.Subscribe(StakeLockedEventType)
	// Overfill the buffer; publishes beyond it are dropped, not blocking
	for i := 0; i < EventQueueSize+10; i++ {
		bus.Publish(
			StakeLockedEventType,
			NewEvent(StakeLockedEventType, StakeLockedEvent{Amount: uint64(i)}),
		)
	}
	assert.Equal(t, EventQueueSize, len(ch))
}

func TestMetricsRegistered(t *testing.T) {
	registry := prometheus.NewRegistry()
	bus := NewEventBus(registry, nil)
	defer bus.Stop()

	_, _ = bus.Subscribe(QuarterStartedEventType)
	bus.Publish(
		QuarterStartedEventType,
		NewEvent(QuarterStartedEventType, QuarterStartedEvent{Quarter: 2}),
	)

	families, err := registry.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["daoengine_events_published_total"])
	assert.True(t, names["daoengine_event_subscribers"])
}
