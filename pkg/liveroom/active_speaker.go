package liveroom

import "sync"

// DefaultSpeakerThreshold is the volume level (out of a nominal 100) a
// sample must exceed to be considered speech rather than ambient noise.
const DefaultSpeakerThreshold = 8

// ActiveSpeakerDetector derives a single "current speaker" value from the
// stream of volume-sample batches the transport delivers. Arbitration is
// max-of-batch plus a fixed threshold: O(batch) with no retained history,
// with the threshold suppressing flicker from ambient-noise samples. An
// empty batch clears the speaker immediately so a highlight never outlives
// silence.
type ActiveSpeakerDetector struct {
	mu        sync.Mutex
	threshold int
	resolve   func(TransportUid) (string, bool)
	current   string
}

// NewActiveSpeakerDetector creates a detector. resolve maps transport uids
// to identities (normally IdentityMapper.IdentityFor); samples whose uid no
// longer resolves are ignored rather than crashing the arbitration. A
// non-positive threshold selects DefaultSpeakerThreshold.
func NewActiveSpeakerDetector(threshold int, resolve func(TransportUid) (string, bool)) *ActiveSpeakerDetector {
	if threshold <= 0 {
		threshold = DefaultSpeakerThreshold
	}
	return &ActiveSpeakerDetector{
		threshold: threshold,
		resolve:   resolve,
	}
}

// Process arbitrates one batch and returns the resulting speaker identity
// (empty for none) plus whether it changed from the previous batch. Batches
// are independent; no cross-batch ordering is assumed.
func (d *ActiveSpeakerDetector) Process(batch []VolumeSample) (string, bool) {
	speaker := ""
	best := 0
	for _, sample := range batch {
		if sample.Level <= d.threshold || sample.Level < best {
			continue
		}
		identity, ok := d.resolve(sample.Uid)
		if !ok {
			// Identity left the room since the last snapshot.
			continue
		}
		speaker = identity
		best = sample.Level
	}

	d.mu.Lock()
	changed := speaker != d.current
	d.current = speaker
	d.mu.Unlock()
	return speaker, changed
}

// Current returns the identity of the current speaker, or empty for none.
func (d *ActiveSpeakerDetector) Current() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Clear drops the current speaker if it is the given identity, returning
// true if anything changed. Called when that participant unpublishes or
// leaves so the highlight does not linger.
func (d *ActiveSpeakerDetector) Clear(identity string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if identity == "" || d.current != identity {
		return false
	}
	d.current = ""
	return true
}

// Reset clears all detector state.
func (d *ActiveSpeakerDetector) Reset() {
	d.mu.Lock()
	d.current = ""
	d.mu.Unlock()
}
