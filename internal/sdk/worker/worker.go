// Package worker implements the per-controller queue that serializes
// hardware-facing writes. It is the
// channel-driven redesign calls for in place of a condition
// variable: queue entries own their payload bytes, and the run loop is a
// select over work and shutdown.
package worker

import (
	"github.com/cespare/xxhash/v2"

	"github.com/ninevoltz/rgbsdk/internal/dal"
	"github.com/ninevoltz/rgbsdk/internal/dal/codec"
	"github.com/ninevoltz/rgbsdk/internal/sdk/proto"
	"github.com/ninevoltz/rgbsdk/pkg/log"
)

// Entry is one queued mutation.
type Entry struct {
	Payload       []byte
	PacketType    proto.PacketType
	ClientVersion codec.Version
}

// Worker owns one controller's write queue and dedicated goroutine.
type Worker struct {
	controller *dal.Controller
	entries    chan Entry
	shutdown   chan struct{}
	done       chan struct{}
	log        log.Logger
	lastHash   uint64
}

// DefaultQueueDepth is the back-pressure watermark used when none is
// configured.
const DefaultQueueDepth = 64

// New starts a Worker for c with the given bounded queue depth. A zero
// depth selects DefaultQueueDepth.
func New(c *dal.Controller, depth int, logger log.Logger) *Worker {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	if logger == nil {
		logger = log.NewNullLogger()
	}
	w := &Worker{
		controller: c,
		entries:    make(chan Entry, depth),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		log:        logger,
	}
	go w.run()
	return w
}

// Enqueue submits e, blocking if the queue is at its watermark — this is
// the back-pressure path: the slow device throttles the fast client
//. It is a no-op once the worker has been
// told to Stop.
func (w *Worker) Enqueue(e Entry) {
	select {
	case w.entries <- e:
	case <-w.shutdown:
	}
}

// Stop signals the worker to finish applying whatever is already queued,
// then exit, and blocks until it has.
func (w *Worker) Stop() {
	close(w.shutdown)
	<-w.done
}

func (w *Worker) run() {
	defer close(w.done)
	for {
		select {
		case e := <-w.entries:
			w.applyCoalesced(e)
		case <-w.shutdown:
			w.drain()
			return
		}
	}
}

// drain applies every entry already sitting in the channel without
// blocking for more, so work accepted before shutdown is never silently
// dropped.
func (w *Worker) drain() {
	for {
		select {
		case e := <-w.entries:
			w.applyCoalesced(e)
		default:
			return
		}
	}
}

// applyCoalesced applies first, opportunistically folding any
// consecutive RGBCONTROLLER_UPDATELEDS entries already queued behind it
// into the latest one when the controller's RESET_BEFORE_UPDATE flag
// permits coalescing.
func (w *Worker) applyCoalesced(first Entry) {
	current := first
coalesce:
	for current.PacketType == proto.RGBControllerUpdateLEDs && w.coalesceAllowed() {
		select {
		case next := <-w.entries:
			if next.PacketType != proto.RGBControllerUpdateLEDs {
				w.apply(current)
				current = next
				break coalesce
			}
			current = next
		default:
			break coalesce
		}
	}
	w.apply(current)
}

func (w *Worker) coalesceAllowed() bool {
	return w.controller.Flags().Has(dal.FlagResetBeforeUpdate)
}

func (w *Worker) apply(e Entry) {
	if e.PacketType != proto.RGBControllerUpdateLEDs {
		// Any other write may change the color buffer, so the next
		// UPDATELEDS must not be skipped as a repeat.
		w.lastHash = 0
	}
	switch e.PacketType {
	case proto.RGBControllerUpdateLEDs:
		w.applyUpdateLEDs(e)
	case proto.RGBControllerUpdateZoneLEDs:
		w.applyUpdateZoneLEDs(e)
	case proto.RGBControllerUpdateSingleLED:
		w.applyUpdateSingleLED(e)
	case proto.RGBControllerResizeZone:
		w.applyResizeZone(e)
	case proto.RGBControllerSetCustomMode:
		if err := w.controller.SetCustomMode(); err != nil {
			w.log.Warnf("set_custom_mode: %v", err)
		}
	case proto.RGBControllerUpdateMode:
		if err := w.controller.UpdateMode(); err != nil {
			w.log.Warnf("update_mode: %v", err)
		}
	case proto.RGBControllerSaveMode:
		if err := w.controller.SaveMode(); err != nil {
			w.log.Warnf("save_mode: %v", err)
		}
	default:
		w.log.Warnf("worker: unhandled packet type %d", e.PacketType)
	}
}

// applyUpdateLEDs skips the hardware write entirely when this frame's
// payload hashes the same as the last one actually applied, with no
// other entry applied by this worker in between: a byte-identical
// UPDATELEDS is then a no-op for the controller, and hashing
// is cheaper than the DecodeColors + driver round trip it avoids.
func (w *Worker) applyUpdateLEDs(e Entry) {
	hash := xxhash.Sum64(e.Payload)
	if hash == w.lastHash {
		w.log.Debugf("update_leds: payload identical to last applied frame, skipping redundant write")
		return
	}

	colors, err := codec.DecodeColors(e.Payload)
	if err != nil {
		w.log.Warnf("update_leds: decode: %v", err)
		return
	}
	if err := w.controller.UpdateLEDs(colors); err != nil {
		w.log.Warnf("update_leds: %v", err)
		return
	}
	w.lastHash = hash
}

func (w *Worker) applyUpdateZoneLEDs(e Entry) {
	zone, colors, err := codec.DecodeZoneColors(e.Payload)
	if err != nil {
		w.log.Warnf("update_zone_leds: decode: %v", err)
		return
	}
	if err := w.controller.UpdateZoneLEDs(int(zone), colors); err != nil {
		w.log.Warnf("update_zone_leds: %v", err)
	}
}

func (w *Worker) applyUpdateSingleLED(e Entry) {
	led, color, err := codec.DecodeSingleColor(e.Payload)
	if err != nil {
		w.log.Warnf("update_single_led: decode: %v", err)
		return
	}
	if err := w.controller.UpdateSingleLED(int(led), color); err != nil {
		w.log.Warnf("update_single_led: %v", err)
	}
}

func (w *Worker) applyResizeZone(e Entry) {
	p, err := codec.DecodeResizeZone(e.Payload)
	if err != nil {
		w.log.Warnf("resize_zone: decode: %v", err)
		return
	}
	if err := w.controller.ResizeZone(int(p.Zone), p.NewSize); err != nil {
		w.log.Warnf("resize_zone: %v", err)
	}
}
