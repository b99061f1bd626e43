// Copyright (c) 2025, the sweepd contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scans

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sweepd/sweepd/internal/models"
)

// EventType distinguishes broadcast events.
type EventType string

const (
	// EventProgress carries a progress snapshot for a running scan.
	EventProgress EventType = "progress"
	// EventDone carries the final scan record. It is the last event a
	// subscriber receives; the channel is closed right after.
	EventDone EventType = "done"
)

// Event is one update published for a scan.
type Event struct {
	Type     EventType        `json:"type"`
	Progress *models.Progress `json:"progress,omitempty"`
	Scan     *models.Scan     `json:"scan,omitempty"`
}

const subscriberBuffer = 16

// Broadcaster fans out scan events to subscribers. Slow subscribers never
// block the publisher: when a subscriber's buffer is full the event is
// dropped, except the done event which always closes the subscription.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[string]map[chan Event]struct{}),
	}
}

// Subscribe registers a subscriber for a scan's events. The returned cancel
// func is idempotent and must be called when the subscriber goes away; the
// channel is closed either by cancel or by the done event, whichever comes
// first.
func (b *Broadcaster) Subscribe(scanID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	set, ok := b.subs[scanID]
	if !ok {
		set = make(map[chan Event]struct{})
		b.subs[scanID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if set, ok := b.subs[scanID]; ok {
				if _, present := set[ch]; present {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(b.subs, scanID)
				}
			}
			b.mu.Unlock()
		})
	}

	return ch, cancel
}

// Progress publishes a progress snapshot to all subscribers of a scan.
func (b *Broadcaster) Progress(scanID string, p models.Progress) {
	b.publish(scanID, Event{Type: EventProgress, Progress: &p})
}

// Done publishes the final record to all subscribers and closes their
// channels. The scan's subscriber set is removed; later subscribers get a
// fresh empty set and rely on the store for the terminal state.
func (b *Broadcaster) Done(scan *models.Scan) {
	ev := Event{Type: EventDone, Scan: scan}

	b.mu.Lock()
	set := b.subs[scan.ID]
	delete(b.subs, scan.ID)
	b.mu.Unlock()

	for ch := range set {
		// The buffer may be full of progress events; the done event must
		// still arrive, so drain slots until the send lands. Nothing else
		// writes to the channel once the set is detached from the map.
		for sent := false; !sent; {
			select {
			case ch <- ev:
				sent = true
			default:
				select {
				case <-ch:
				default:
				}
			}
		}
		close(ch)
	}
}

func (b *Broadcaster) publish(scanID string, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[scanID] {
		select {
		case ch <- ev:
		default:
			log.Trace().Str("scanID", scanID).Msg("Dropping event for slow subscriber")
		}
	}
}
