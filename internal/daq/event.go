// Package daq holds the event and status item types moved through the
// ring queues between the acquire/monitor producers and the writer
// consumer (design §3 "Event item", "Status item").
package daq

import "time"

// EventHeader carries the fixed-layout fields stamped onto every event:
// identifiers, trigger classification, and timestamps. The actual
// waveform/header wire encoding is out of scope (design §1); this is the
// in-memory shape the acquire thread fills and the writer serializes.
type EventHeader struct {
	EventNumber uint64
	RunNumber   uint32
	StationID   uint16

	TriggerMask uint32

	TriggerTimeSeconds uint32
	TriggerTimeNanos   uint32
	ReadoutTime        time.Time

	PrimaryHeaderWords   [8]uint32
	AuxiliaryHeaderWords [4]uint32
}

// EventItem is the unit handed through the event ring queue. Waveform is a
// fixed-capacity byte buffer carved from an arena slot (design §4.2);
// acquire fills it in place, the writer drains it, and the slot is reused
// without a fresh allocation.
type EventItem struct {
	Header   EventHeader
	Waveform []byte
}

// Reset clears an EventItem for reuse by a fresh acquire cycle, without
// releasing the underlying Waveform backing array.
func (e *EventItem) Reset() {
	e.Header = EventHeader{}
	if e.Waveform != nil {
		e.Waveform = e.Waveform[:0]
	}
}
