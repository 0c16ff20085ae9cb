// Package eventbus carries the two signals that tie otherwise-unrelated
// dashboard components together: "the active region changed" and "the
// map level changed".  Overlay layers subscribe to decide their own
// visibility; the firehose subscribes to scope live events to the
// region under the user's feet.  Channels and a single run goroutine
// replace the ambient window-event soup of a browser dashboard; no
// mutexes are involved.
package eventbus

import (
	"context"

	"github.com/paulmach/orb"
)

// RegionChange announces the geometry live-event queries should scope
// to.  Geometry is nil at world level, meaning "no scoping".
type RegionChange struct {
	Level    int
	ISO      string
	Geometry orb.Geometry
}

// LevelChange announces the drill-down level so overlays can show or
// hide themselves.
type LevelChange struct {
	Level int
}

type regionSub struct {
	ch chan RegionChange
}

type levelSub struct {
	ch chan LevelChange
}

// Bus fans out both signal kinds to subscribers.  Slow subscribers
// lose their oldest pending signal, never the newest: a consumer that
// wakes up late must still observe the latest region, not a stale one.
type Bus struct {
	publishRegion chan RegionChange
	publishLevel  chan LevelChange
	subRegion     chan regionSub
	unsubRegion   chan regionSub
	subLevel      chan levelSub
	unsubLevel    chan levelSub
}

// NewBus starts the fan-out goroutine.  The goroutine lives for the
// process lifetime; subscriber contexts prune individual listeners.
func NewBus() *Bus {
	b := &Bus{
		publishRegion: make(chan RegionChange, 16),
		publishLevel:  make(chan LevelChange, 16),
		subRegion:     make(chan regionSub),
		unsubRegion:   make(chan regionSub),
		subLevel:      make(chan levelSub),
		unsubLevel:    make(chan levelSub),
	}
	go b.run()
	return b
}

// PublishRegion broadcasts a region change to all listeners.
func (b *Bus) PublishRegion(rc RegionChange) { b.publishRegion <- rc }

// PublishLevel broadcasts a level change to all listeners.
func (b *Bus) PublishLevel(lc LevelChange) { b.publishLevel <- lc }

// SubscribeRegion returns a channel of region changes.  The channel
// closes when ctx ends.
func (b *Bus) SubscribeRegion(ctx context.Context, buffer int) <-chan RegionChange {
	if buffer < 1 {
		buffer = 1
	}
	sub := regionSub{ch: make(chan RegionChange, buffer)}
	b.subRegion <- sub
	go func() {
		<-ctx.Done()
		b.unsubRegion <- sub
		close(sub.ch)
	}()
	return sub.ch
}

// SubscribeLevel returns a channel of level changes.  The channel
// closes when ctx ends.
func (b *Bus) SubscribeLevel(ctx context.Context, buffer int) <-chan LevelChange {
	if buffer < 1 {
		buffer = 1
	}
	sub := levelSub{ch: make(chan LevelChange, buffer)}
	b.subLevel <- sub
	go func() {
		<-ctx.Done()
		b.unsubLevel <- sub
		close(sub.ch)
	}()
	return sub.ch
}

func (b *Bus) run() {
	regions := make(map[chan RegionChange]struct{})
	levels := make(map[chan LevelChange]struct{})

	for {
		select {
		case sub := <-b.subRegion:
			regions[sub.ch] = struct{}{}
		case sub := <-b.unsubRegion:
			delete(regions, sub.ch)
		case sub := <-b.subLevel:
			levels[sub.ch] = struct{}{}
		case sub := <-b.unsubLevel:
			delete(levels, sub.ch)
		case rc := <-b.publishRegion:
			for ch := range regions {
				deliverRegion(ch, rc)
			}
		case lc := <-b.publishLevel:
			for ch := range levels {
				deliverLevel(ch, lc)
			}
		}
	}
}

// deliverRegion pushes rc, evicting the oldest queued signal when the
// subscriber buffer is full.
func deliverRegion(ch chan RegionChange, rc RegionChange) {
	for {
		select {
		case ch <- rc:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

func deliverLevel(ch chan LevelChange, lc LevelChange) {
	for {
		select {
		case ch <- lc:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
