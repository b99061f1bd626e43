// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scans

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweepd/sweepd/internal/models"
)

func TestBroadcasterProgressFanOut(t *testing.T) {
	b := NewBroadcaster()

	events1, cancel1 := b.Subscribe("scan-1")
	defer cancel1()
	events2, cancel2 := b.Subscribe("scan-1")
	defer cancel2()
	other, cancelOther := b.Subscribe("scan-2")
	defer cancelOther()

	b.Progress("scan-1", models.Progress{Stage: "hashing", ItemsProcessed: 7})

	for _, events := range []<-chan Event{events1, events2} {
		select {
		case ev := <-events:
			assert.Equal(t, EventProgress, ev.Type)
			require.NotNil(t, ev.Progress)
			assert.Equal(t, "hashing", ev.Progress.Stage)
			assert.Equal(t, 7, ev.Progress.ItemsProcessed)
		case <-time.After(time.Second):
			t.Fatal("expected a progress event")
		}
	}

	select {
	case ev := <-other:
		t.Fatalf("unrelated subscriber received %v", ev.Type)
	default:
	}
}

func TestBroadcasterDoneClosesChannel(t *testing.T) {
	b := NewBroadcaster()

	events, cancel := b.Subscribe("scan-1")
	defer cancel()

	b.Done(&models.Scan{ID: "scan-1", Status: models.ScanStatusCompleted})

	ev, ok := <-events
	require.True(t, ok)
	assert.Equal(t, EventDone, ev.Type)
	require.NotNil(t, ev.Scan)
	assert.Equal(t, models.ScanStatusCompleted, ev.Scan.Status)

	_, ok = <-events
	assert.False(t, ok, "channel must be closed after done")
}

func TestBroadcasterDoneDeliveredToSaturatedSubscriber(t *testing.T) {
	b := NewBroadcaster()

	events, cancel := b.Subscribe("scan-1")
	defer cancel()

	// Fill the subscriber buffer without reading.
	for i := 0; i < subscriberBuffer+10; i++ {
		b.Progress("scan-1", models.Progress{ItemsProcessed: i})
	}

	b.Done(&models.Scan{ID: "scan-1", Status: models.ScanStatusCancelled})

	var sawDone bool
	for ev := range events {
		if ev.Type == EventDone {
			sawDone = true
		}
	}
	assert.True(t, sawDone, "done event must survive a full buffer")
}

func TestBroadcasterCancelStopsDelivery(t *testing.T) {
	b := NewBroadcaster()

	events, cancel := b.Subscribe("scan-1")
	cancel()
	cancel() // idempotent

	b.Progress("scan-1", models.Progress{Stage: "hashing"})

	select {
	case ev, ok := <-events:
		if ok {
			t.Fatalf("cancelled subscriber received %v", ev.Type)
		}
	default:
	}
}

func TestBroadcasterDoneWithoutSubscribers(t *testing.T) {
	b := NewBroadcaster()
	// Must not panic or block.
	b.Done(&models.Scan{ID: "scan-1", Status: models.ScanStatusFailed})
	b.Progress("scan-1", models.Progress{})
}
