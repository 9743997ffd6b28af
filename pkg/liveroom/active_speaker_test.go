package liveroom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDetector(threshold int) *ActiveSpeakerDetector {
	m := NewIdentityMapper()
	m.Rebuild(testSnapshot())
	return NewActiveSpeakerDetector(threshold, m.IdentityFor)
}

func TestDetectorPicksLoudestSample(t *testing.T) {
	d := newTestDetector(0)

	speaker, changed := d.Process([]VolumeSample{
		{Uid: UidFor("alice"), Level: 40},
		{Uid: UidFor("bob"), Level: 80},
		{Uid: UidFor("carol"), Level: 55},
	})

	assert.Equal(t, "bob", speaker)
	assert.True(t, changed)
	assert.Equal(t, "bob", d.Current())
}

func TestDetectorAppliesThreshold(t *testing.T) {
	d := newTestDetector(20)

	speaker, changed := d.Process([]VolumeSample{
		{Uid: UidFor("alice"), Level: 5},
		{Uid: UidFor("bob"), Level: 20},
	})

	assert.Empty(t, speaker, "at-threshold samples are still noise")
	assert.False(t, changed)

	speaker, changed = d.Process([]VolumeSample{{Uid: UidFor("bob"), Level: 21}})
	assert.Equal(t, "bob", speaker)
	assert.True(t, changed)
}

func TestDetectorDefaultThreshold(t *testing.T) {
	d := newTestDetector(0)

	speaker, _ := d.Process([]VolumeSample{
		{Uid: UidFor("alice"), Level: DefaultSpeakerThreshold},
	})
	assert.Empty(t, speaker)

	speaker, _ = d.Process([]VolumeSample{
		{Uid: UidFor("alice"), Level: DefaultSpeakerThreshold + 1},
	})
	assert.Equal(t, "alice", speaker)
}

func TestDetectorSkipsUnmappedUids(t *testing.T) {
	d := newTestDetector(0)

	speaker, changed := d.Process([]VolumeSample{
		{Uid: UidFor("mallory"), Level: 90},
		{Uid: UidFor("carol"), Level: 30},
	})

	assert.Equal(t, "carol", speaker)
	assert.True(t, changed)
}

func TestDetectorEmptyBatchClearsSpeaker(t *testing.T) {
	d := newTestDetector(0)

	_, _ = d.Process([]VolumeSample{{Uid: UidFor("alice"), Level: 50}})
	require.Equal(t, "alice", d.Current())

	speaker, changed := d.Process(nil)
	assert.Empty(t, speaker)
	assert.True(t, changed)
	assert.Empty(t, d.Current())
}

func TestDetectorChangedOnlyOnTransition(t *testing.T) {
	d := newTestDetector(0)
	batch := []VolumeSample{{Uid: UidFor("alice"), Level: 50}}

	_, changed := d.Process(batch)
	assert.True(t, changed)

	_, changed = d.Process(batch)
	assert.False(t, changed)
}

func TestDetectorClear(t *testing.T) {
	d := newTestDetector(0)
	_, _ = d.Process([]VolumeSample{{Uid: UidFor("alice"), Level: 50}})

	assert.False(t, d.Clear("bob"))
	assert.Equal(t, "alice", d.Current())

	assert.True(t, d.Clear("alice"))
	assert.Empty(t, d.Current())
	assert.False(t, d.Clear("alice"))
}

func TestDetectorReset(t *testing.T) {
	d := newTestDetector(0)
	_, _ = d.Process([]VolumeSample{{Uid: UidFor("alice"), Level: 50}})

	d.Reset()
	assert.Empty(t, d.Current())
}
