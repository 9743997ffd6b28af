package liveroom

import "context"

// JoinParams carries everything a transport needs to join a media session.
type JoinParams struct {
	AppID  string
	RoomID string
	Token  string
	Uid    TransportUid
}

// TransportEvents are the callbacks a transport fires while joined. All of
// them are optional; the transport must tolerate nil entries. Callbacks for
// a session must stop after Leave returns.
type TransportEvents struct {
	// OnRemotePublished fires when a remote participant first publishes a
	// track of the given kind.
	OnRemotePublished func(uid TransportUid, kind TrackKind)
	// OnRemoteUnpublished fires when a remote participant unpublishes a track.
	OnRemoteUnpublished func(uid TransportUid, kind TrackKind)
	// OnRemoteLeft fires when a remote participant leaves the session.
	OnRemoteLeft func(uid TransportUid)
	// OnVolumeBatch delivers unordered per-participant volume samples at the
	// transport's sampling cadence, once EnableVolumeSampling has been called.
	OnVolumeBatch func(batch []VolumeSample)
}

// MediaTransportSession is the contract the coordinator drives. It is
// implemented by a real-time media engine adapter (see LiveKitTransport);
// the coordinator never talks to the engine directly.
//
// Join and the publish/subscribe calls are request/response operations whose
// completion is awaited; implementations surface device failures using the
// ErrDeviceNotFound/ErrPermissionDenied sentinels so the coordinator can
// classify them.
type MediaTransportSession interface {
	// Join connects to the media session. events stay registered until Leave.
	Join(ctx context.Context, params JoinParams, events TransportEvents) error
	// Leave disconnects and releases all local tracks. Safe to call more
	// than once.
	Leave() error

	// PublishAudio publishes the local microphone track.
	PublishAudio(ctx context.Context) error
	// UnpublishAudio stops and unpublishes the local microphone track.
	UnpublishAudio() error
	// PublishVideo publishes the local camera track.
	PublishVideo(ctx context.Context) error
	// UnpublishVideo stops and unpublishes the local camera track.
	UnpublishVideo() error
	// SetAudioMuted mutes or unmutes the published microphone track without
	// unpublishing it. A no-op when no audio is published.
	SetAudioMuted(muted bool) error

	// Subscribe starts receiving a remote participant's track; audio tracks
	// begin playback immediately.
	Subscribe(uid TransportUid, kind TrackKind) error
	// Unsubscribe stops receiving a remote participant's track.
	Unsubscribe(uid TransportUid, kind TrackKind) error

	// EnableVolumeSampling turns on the volume-sample stream feeding
	// OnVolumeBatch.
	EnableVolumeSampling() error
}
