package liveroom

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/logger"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
)

// TrackFactory produces a local track for publishing. Factories are
// injectable because device capture is environment-specific; the defaults
// create static sample tracks suitable for headless publishers and tests.
// A factory that cannot open its device should return ErrDeviceNotFound or
// ErrPermissionDenied (wrapped as needed) so failures classify correctly.
type TrackFactory func() (webrtc.TrackLocal, error)

// LiveKitTransportOption configures a LiveKitTransport.
type LiveKitTransportOption func(*LiveKitTransport)

// WithAudioTrackFactory overrides how the local microphone track is created.
func WithAudioTrackFactory(f TrackFactory) LiveKitTransportOption {
	return func(t *LiveKitTransport) { t.audioFactory = f }
}

// WithVideoTrackFactory overrides how the local camera track is created.
func WithVideoTrackFactory(f TrackFactory) LiveKitTransportOption {
	return func(t *LiveKitTransport) { t.videoFactory = f }
}

// LiveKitTransport implements MediaTransportSession on the LiveKit Go SDK.
// Remote participants are expected to carry their transport uid as their
// decimal participant identity (the token providers mint grants that way);
// identities that do not parse fall back to the deterministic hash so the
// uid space stays consistent either way.
type LiveKitTransport struct {
	serverURL    string
	audioFactory TrackFactory
	videoFactory TrackFactory

	mu       sync.Mutex
	room     *lksdk.Room
	events   TransportEvents
	audioPub *lksdk.LocalTrackPublication
	videoPub *lksdk.LocalTrackPublication
	joined   bool
	sampling bool
}

// NewLiveKitTransport creates a transport pointed at a LiveKit server.
func NewLiveKitTransport(serverURL string, opts ...LiveKitTransportOption) *LiveKitTransport {
	t := &LiveKitTransport{
		serverURL: serverURL,
		audioFactory: func() (webrtc.TrackLocal, error) {
			return webrtc.NewTrackLocalStaticSample(
				webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
				"microphone",
				"liveroom-audio",
			)
		},
		videoFactory: func() (webrtc.TrackLocal, error) {
			return webrtc.NewTrackLocalStaticSample(
				webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
				"camera",
				"liveroom-video",
			)
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Join implements MediaTransportSession.
func (t *LiveKitTransport) Join(ctx context.Context, params JoinParams, events TransportEvents) error {
	t.mu.Lock()
	if t.joined {
		t.mu.Unlock()
		return fmt.Errorf("already joined a media session")
	}
	t.events = events
	t.mu.Unlock()

	callback := &lksdk.RoomCallback{
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			if cb := t.callbacks().OnRemoteLeft; cb != nil {
				cb(remoteUid(rp))
			}
		},
		OnActiveSpeakersChanged: func(speakers []lksdk.Participant) {
			t.mu.Lock()
			sampling := t.sampling && t.joined
			cb := t.events.OnVolumeBatch
			t.mu.Unlock()
			if !sampling || cb == nil {
				return
			}
			batch := make([]VolumeSample, 0, len(speakers))
			for _, p := range speakers {
				batch = append(batch, VolumeSample{
					Uid:   participantUid(p.Identity()),
					Level: int(p.AudioLevel() * 100),
				})
			}
			cb(batch)
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackPublished: func(pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				if cb := t.callbacks().OnRemotePublished; cb != nil {
					cb(remoteUid(rp), publicationKind(pub))
				}
			},
			OnTrackUnpublished: func(pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				if cb := t.callbacks().OnRemoteUnpublished; cb != nil {
					cb(remoteUid(rp), publicationKind(pub))
				}
			},
		},
	}

	room, err := lksdk.ConnectToRoomWithToken(t.serverURL, params.Token, callback, lksdk.WithAutoSubscribe(false))
	if err != nil {
		return fmt.Errorf("failed to connect to media session: %w", err)
	}

	t.mu.Lock()
	t.room = room
	t.joined = true
	t.mu.Unlock()

	logger.Infow("joined media session",
		"room", params.RoomID,
		"uid", params.Uid)
	return nil
}

// Leave implements MediaTransportSession.
func (t *LiveKitTransport) Leave() error {
	t.mu.Lock()
	room := t.room
	t.room = nil
	t.joined = false
	t.sampling = false
	t.audioPub = nil
	t.videoPub = nil
	t.events = TransportEvents{}
	t.mu.Unlock()

	if room != nil {
		room.Disconnect()
	}
	return nil
}

// PublishAudio implements MediaTransportSession.
func (t *LiveKitTransport) PublishAudio(ctx context.Context) error {
	t.mu.Lock()
	room := t.room
	already := t.audioPub != nil
	t.mu.Unlock()
	if room == nil {
		return ErrNotJoined
	}
	if already {
		return nil
	}

	track, err := t.audioFactory()
	if err != nil {
		return fmt.Errorf("failed to open microphone: %w", err)
	}

	pub, err := room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   "microphone",
		Source: livekit.TrackSource_MICROPHONE,
	})
	if err != nil {
		return fmt.Errorf("failed to publish audio track: %w", err)
	}

	t.mu.Lock()
	t.audioPub = pub
	t.mu.Unlock()
	return nil
}

// UnpublishAudio implements MediaTransportSession.
func (t *LiveKitTransport) UnpublishAudio() error {
	t.mu.Lock()
	room := t.room
	pub := t.audioPub
	t.audioPub = nil
	t.mu.Unlock()
	if room == nil || pub == nil {
		return nil
	}

	if err := room.LocalParticipant.UnpublishTrack(pub.SID()); err != nil {
		return fmt.Errorf("failed to unpublish audio track: %w", err)
	}
	return nil
}

// PublishVideo implements MediaTransportSession.
func (t *LiveKitTransport) PublishVideo(ctx context.Context) error {
	t.mu.Lock()
	room := t.room
	already := t.videoPub != nil
	t.mu.Unlock()
	if room == nil {
		return ErrNotJoined
	}
	if already {
		return nil
	}

	track, err := t.videoFactory()
	if err != nil {
		return fmt.Errorf("failed to open camera: %w", err)
	}

	pub, err := room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   "camera",
		Source: livekit.TrackSource_CAMERA,
	})
	if err != nil {
		return fmt.Errorf("failed to publish video track: %w", err)
	}

	t.mu.Lock()
	t.videoPub = pub
	t.mu.Unlock()
	return nil
}

// UnpublishVideo implements MediaTransportSession.
func (t *LiveKitTransport) UnpublishVideo() error {
	t.mu.Lock()
	room := t.room
	pub := t.videoPub
	t.videoPub = nil
	t.mu.Unlock()
	if room == nil || pub == nil {
		return nil
	}

	if err := room.LocalParticipant.UnpublishTrack(pub.SID()); err != nil {
		return fmt.Errorf("failed to unpublish video track: %w", err)
	}
	return nil
}

// SetAudioMuted implements MediaTransportSession.
func (t *LiveKitTransport) SetAudioMuted(muted bool) error {
	t.mu.Lock()
	pub := t.audioPub
	t.mu.Unlock()
	if pub == nil {
		return nil
	}
	pub.SetMuted(muted)
	return nil
}

// Subscribe implements MediaTransportSession. Audio subscriptions begin
// playback as soon as the SDK attaches the track.
func (t *LiveKitTransport) Subscribe(uid TransportUid, kind TrackKind) error {
	pub, err := t.findRemotePublication(uid, kind)
	if err != nil {
		return err
	}
	if err := pub.SetSubscribed(true); err != nil {
		return fmt.Errorf("failed to subscribe to %s track of uid %d: %w", kind, uid, err)
	}
	return nil
}

// Unsubscribe implements MediaTransportSession.
func (t *LiveKitTransport) Unsubscribe(uid TransportUid, kind TrackKind) error {
	pub, err := t.findRemotePublication(uid, kind)
	if err != nil {
		return err
	}
	if err := pub.SetSubscribed(false); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s track of uid %d: %w", kind, uid, err)
	}
	return nil
}

// EnableVolumeSampling implements MediaTransportSession. Levels come from
// the server's active-speaker updates scaled to the 0-100 range.
func (t *LiveKitTransport) EnableVolumeSampling() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.joined {
		return ErrNotJoined
	}
	t.sampling = true
	return nil
}

func (t *LiveKitTransport) callbacks() TransportEvents {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.joined {
		return TransportEvents{}
	}
	return t.events
}

func (t *LiveKitTransport) findRemotePublication(uid TransportUid, kind TrackKind) (*lksdk.RemoteTrackPublication, error) {
	t.mu.Lock()
	room := t.room
	t.mu.Unlock()
	if room == nil {
		return nil, ErrNotJoined
	}

	for _, rp := range room.GetRemoteParticipants() {
		if remoteUid(rp) != uid {
			continue
		}
		for _, pub := range rp.TrackPublications() {
			remote, ok := pub.(*lksdk.RemoteTrackPublication)
			if !ok || publicationKind(remote) != kind {
				continue
			}
			return remote, nil
		}
		return nil, fmt.Errorf("uid %d has no %s track published", uid, kind)
	}
	return nil, fmt.Errorf("no remote participant with uid %d", uid)
}

// participantUid recovers the transport uid from a participant identity.
// Identities minted by the token providers are decimal uids; anything else
// is mapped through the deterministic hash.
func participantUid(identity string) TransportUid {
	if n, err := strconv.ParseInt(identity, 10, 32); err == nil && n >= 0 {
		return TransportUid(n)
	}
	return UidFor(identity)
}

func remoteUid(rp *lksdk.RemoteParticipant) TransportUid {
	return participantUid(rp.Identity())
}

func publicationKind(pub *lksdk.RemoteTrackPublication) TrackKind {
	if pub.Kind() == lksdk.TrackKindVideo {
		return TrackKindVideo
	}
	return TrackKindAudio
}
