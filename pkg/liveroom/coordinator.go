package liveroom

import (
	"context"
	"fmt"
	"sync"

	"github.com/livekit/protocol/logger"
)

// ExitReason says why a session left its room.
type ExitReason int

const (
	ExitLeft ExitReason = iota
	ExitKicked
	ExitRoomEnded
	ExitError
)

func (r ExitReason) String() string {
	switch r {
	case ExitKicked:
		return "kicked"
	case ExitRoomEnded:
		return "room_ended"
	case ExitError:
		return "error"
	default:
		return "left"
	}
}

// CoordinatorOptions configures a SessionCoordinator. One coordinator serves
// exactly one room membership; create a fresh instance per join so no
// derived state leaks across room switches.
type CoordinatorOptions struct {
	AppID    string
	RoomID   string
	Identity string

	Capabilities RoomCapabilities
	Transport    MediaTransportSession
	Store        RoomStateStore
	Tokens       TokenProvider

	// SpeakerThreshold tunes the active-speaker detector; zero selects the
	// default.
	SpeakerThreshold int

	// OnViewUpdate receives the derived read model after every
	// recomputation.
	OnViewUpdate func(view RoomView)
	// OnExit is called exactly once when the session leaves the room, with
	// the reason and, for ExitError, the cause.
	OnExit func(reason ExitReason, cause error)
}

// SessionCoordinator reconciles the room-state snapshot stream against the
// media transport session: it derives the local participant's authoritative
// role from each snapshot, issues the minimal publish/unpublish calls to
// close the gap, tracks remote subscriptions, feeds volume batches through
// the active-speaker detector, and validates moderation intents against the
// freshest snapshot before forwarding them to the store.
//
// Event handling is serial: snapshot updates, volume batches, and user
// intents all run under one mutex, matching the single-owner model for
// MediaPublishState and the identity table.
type SessionCoordinator struct {
	opts     CoordinatorOptions
	localUid TransportUid
	mapper   *IdentityMapper
	detector *ActiveSpeakerDetector

	mu       sync.Mutex
	joined   bool
	exited   bool
	snapshot *RoomSnapshot
	publish  MediaPublishState

	// Transient-failure gates: when a publish attempt fails for a non-device
	// reason, the same desired state is not retried until it genuinely
	// changes.
	audioFailed     bool
	audioFailedWant bool
	videoFailed     bool
	videoFailedWant bool

	subscriptions map[TransportUid]map[TrackKind]bool
	unsubscribe   func()
	lastError     error
}

// NewSessionCoordinator validates the options and builds a coordinator. It
// does not touch the network; call Join to enter the room.
func NewSessionCoordinator(opts CoordinatorOptions) (*SessionCoordinator, error) {
	if opts.AppID == "" || opts.RoomID == "" || opts.Identity == "" {
		return nil, newSessionError(ErrorKindConfiguration, "new coordinator",
			fmt.Errorf("app id, room id, and identity are all required"))
	}
	if opts.Transport == nil || opts.Store == nil || opts.Tokens == nil {
		return nil, newSessionError(ErrorKindConfiguration, "new coordinator",
			fmt.Errorf("transport, store, and token provider are all required"))
	}

	c := &SessionCoordinator{
		opts:          opts,
		localUid:      UidFor(opts.Identity),
		mapper:        NewIdentityMapper(),
		subscriptions: make(map[TransportUid]map[TrackKind]bool),
	}
	c.detector = NewActiveSpeakerDetector(opts.SpeakerThreshold, c.mapper.IdentityFor)
	return c, nil
}

// LocalUid returns the transport uid derived for the local identity.
func (c *SessionCoordinator) LocalUid() TransportUid {
	return c.localUid
}

// Join enters the room: resolve the local uid, obtain a fresh credential,
// join the media session, and subscribe to the snapshot stream. A token or
// join failure is terminal for this session; the coordinator exits and the
// error is returned. No retry: a rejected credential will not become valid
// by asking again.
func (c *SessionCoordinator) Join(ctx context.Context) error {
	c.mu.Lock()
	if c.joined || c.exited {
		c.mu.Unlock()
		return fmt.Errorf("coordinator already used; create a new instance per room session")
	}
	c.mu.Unlock()

	token, err := c.opts.Tokens.RequestToken(ctx, c.opts.RoomID, c.localUid)
	if err != nil {
		if Classify(err) != ErrorKindCredential && Classify(err) != ErrorKindConfiguration {
			err = newSessionError(ErrorKindCredential, "request token", err)
		}
		c.exit(ExitError, err)
		return err
	}

	events := TransportEvents{
		OnRemotePublished:   c.handleRemotePublished,
		OnRemoteUnpublished: c.handleRemoteUnpublished,
		OnRemoteLeft:        c.handleRemoteLeft,
		OnVolumeBatch:       c.handleVolumeBatch,
	}
	params := JoinParams{
		AppID:  c.opts.AppID,
		RoomID: c.opts.RoomID,
		Token:  token,
		Uid:    c.localUid,
	}
	if err := c.opts.Transport.Join(ctx, params, events); err != nil {
		werr := newSessionError(ErrorKindCredential, "join media session", err)
		c.exit(ExitError, werr)
		return werr
	}

	c.mu.Lock()
	c.joined = true
	c.mu.Unlock()

	if err := c.opts.Transport.EnableVolumeSampling(); err != nil {
		// Degraded but usable: the room works without a speaker highlight.
		logger.Warnw("failed to enable volume sampling", err, "room", c.opts.RoomID)
	}

	unsubscribe, err := c.opts.Store.Subscribe(ctx, c.opts.RoomID, c.handleSnapshot)
	if err != nil {
		werr := fmt.Errorf("failed to subscribe to room state: %w", err)
		c.exit(ExitError, werr)
		return werr
	}

	c.mu.Lock()
	alreadyExited := c.exited
	if !alreadyExited {
		c.unsubscribe = unsubscribe
	}
	c.mu.Unlock()
	if alreadyExited {
		// The first snapshot already ended the session (room gone, kicked).
		unsubscribe()
		return nil
	}

	logger.Infow("joined room",
		"room", c.opts.RoomID,
		"identity", c.opts.Identity,
		"uid", c.localUid)
	return nil
}

// Leave exits the room voluntarily: unpublish local tracks, leave the
// transport, drop the snapshot subscription. If the local participant is
// the host, the room is ended for everyone first.
func (c *SessionCoordinator) Leave(ctx context.Context) error {
	c.mu.Lock()
	if c.exited {
		c.mu.Unlock()
		return nil
	}
	isHost := RoleOf(c.snapshot, c.opts.Identity) == RoleHost
	c.mu.Unlock()

	// Exit first so the ended broadcast below is not echoed back into this
	// session's own snapshot handler.
	c.exit(ExitLeft, nil)
	if isHost {
		if err := c.opts.Store.EndRoom(ctx, c.opts.RoomID, c.opts.Identity); err != nil {
			logger.Warnw("failed to signal room end", err, "room", c.opts.RoomID)
		}
	}
	return nil
}

// View returns the current derived read model.
func (c *SessionCoordinator) View() RoomView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// LastError returns the most recent surfaced failure, if any.
func (c *SessionCoordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// SetMuted toggles the local microphone mute. Purely local: the transport
// is told directly and no store round trip happens.
func (c *SessionCoordinator) SetMuted(muted bool) error {
	c.mu.Lock()
	if !c.joined || c.exited {
		c.mu.Unlock()
		return ErrNotJoined
	}
	c.publish.Muted = muted
	published := c.publish.AudioPublished
	view := c.viewLocked()
	c.mu.Unlock()

	if published {
		if err := c.opts.Transport.SetAudioMuted(muted); err != nil {
			logger.Warnw("failed to set audio mute", err, "muted", muted)
		}
	}
	c.notify(view)
	return nil
}

// SetCameraOff toggles the local camera. Purely local; the publish diff
// runs against the latest snapshot immediately.
func (c *SessionCoordinator) SetCameraOff(ctx context.Context, off bool) error {
	c.mu.Lock()
	if !c.joined || c.exited {
		c.mu.Unlock()
		return ErrNotJoined
	}
	c.publish.CameraOff = off
	c.reconcileLocked(ctx)
	view := c.viewLocked()
	c.mu.Unlock()

	c.notify(view)
	return nil
}

// RaiseHand asks the store to add the local listener to the raised-hand
// set.
func (c *SessionCoordinator) RaiseHand(ctx context.Context) error {
	return c.moderate(ctx, ActionRaiseHand, c.opts.Identity, func(ctx context.Context) error {
		return c.opts.Store.RaiseHand(ctx, c.opts.RoomID, c.opts.Identity)
	})
}

// InviteToSpeak promotes a raised hand to speaker.
func (c *SessionCoordinator) InviteToSpeak(ctx context.Context, targetID string) error {
	return c.moderate(ctx, ActionInviteToSpeak, targetID, func(ctx context.Context) error {
		return c.opts.Store.InviteToSpeak(ctx, c.opts.RoomID, c.opts.Identity, targetID)
	})
}

// MoveToListener returns a speaker to the audience.
func (c *SessionCoordinator) MoveToListener(ctx context.Context, targetID string) error {
	return c.moderate(ctx, ActionMoveToListener, targetID, func(ctx context.Context) error {
		return c.opts.Store.MoveToListener(ctx, c.opts.RoomID, c.opts.Identity, targetID)
	})
}

// PromoteCoHost makes a speaker a co-host.
func (c *SessionCoordinator) PromoteCoHost(ctx context.Context, targetID string) error {
	return c.moderate(ctx, ActionPromoteCoHost, targetID, func(ctx context.Context) error {
		return c.opts.Store.PromoteCoHost(ctx, c.opts.RoomID, c.opts.Identity, targetID)
	})
}

// DemoteCoHost removes a co-host's moderation rights.
func (c *SessionCoordinator) DemoteCoHost(ctx context.Context, targetID string) error {
	return c.moderate(ctx, ActionDemoteCoHost, targetID, func(ctx context.Context) error {
		return c.opts.Store.DemoteCoHost(ctx, c.opts.RoomID, c.opts.Identity, targetID)
	})
}

// MuteSpeaker adds a speaker to the muted set.
func (c *SessionCoordinator) MuteSpeaker(ctx context.Context, targetID string) error {
	return c.moderate(ctx, ActionMuteSpeaker, targetID, func(ctx context.Context) error {
		return c.opts.Store.MuteSpeaker(ctx, c.opts.RoomID, c.opts.Identity, targetID)
	})
}

// UnmuteSpeaker removes a speaker from the muted set.
func (c *SessionCoordinator) UnmuteSpeaker(ctx context.Context, targetID string) error {
	return c.moderate(ctx, ActionUnmuteSpeaker, targetID, func(ctx context.Context) error {
		return c.opts.Store.UnmuteSpeaker(ctx, c.opts.RoomID, c.opts.Identity, targetID)
	})
}

// Kick removes a participant from the room.
func (c *SessionCoordinator) Kick(ctx context.Context, targetID string) error {
	return c.moderate(ctx, ActionKick, targetID, func(ctx context.Context) error {
		return c.opts.Store.Kick(ctx, c.opts.RoomID, c.opts.Identity, targetID)
	})
}

// moderate validates an intent against the freshest snapshot and, when
// permitted, forwards it to the store. Unauthorized intents are silent
// no-ops: the UI should not have offered them, and a role may have changed
// between render and tap. Store failures are logged, not surfaced, because
// commands are fire-and-forget and the authoritative effect is the next
// snapshot.
func (c *SessionCoordinator) moderate(ctx context.Context, action ModerationAction, targetID string, send func(context.Context) error) error {
	c.mu.Lock()
	snap := c.snapshot
	active := c.joined && !c.exited
	c.mu.Unlock()

	if !active {
		return ErrNotJoined
	}
	if action != ActionRaiseHand && !c.opts.Capabilities.Moderation {
		logger.Debugw("dropping moderation intent on read-only surface", "action", action.String())
		return nil
	}

	actor := RoleOf(snap, c.opts.Identity)
	target := RoleOf(snap, targetID)
	if !Allows(actor, target, action) {
		logger.Debugw("dropping unauthorized moderation intent",
			"action", action.String(),
			"actor", actor.String(),
			"target", target.String())
		return nil
	}

	if err := send(ctx); err != nil {
		logger.Warnw("moderation command failed", err,
			"action", action.String(),
			"room", c.opts.RoomID)
	}
	return nil
}

// handleSnapshot is the store-facing half of the reconciliation loop.
func (c *SessionCoordinator) handleSnapshot(snap *RoomSnapshot) {
	c.mu.Lock()
	if c.exited {
		c.mu.Unlock()
		return
	}

	if snap == nil || snap.Ended {
		c.mu.Unlock()
		c.exit(ExitRoomEnded, nil)
		return
	}

	// Snapshots apply in delivery order; an older one arriving after a
	// newer one would revert a role change, so it is dropped.
	if c.snapshot != nil && snap.Version < c.snapshot.Version {
		logger.Debugw("dropping stale snapshot",
			"room", c.opts.RoomID,
			"version", snap.Version,
			"current", c.snapshot.Version)
		c.mu.Unlock()
		return
	}

	normalized := snap.Normalize()
	c.snapshot = normalized
	c.mapper.Rebuild(normalized)

	if normalized.IsKicked(c.opts.Identity) {
		c.mu.Unlock()
		c.exit(ExitKicked, nil)
		return
	}

	c.reconcileLocked(context.Background())
	view := c.viewLocked()
	c.mu.Unlock()

	c.notify(view)
}

// reconcileLocked diffs the desired local publish state, as derived from
// the authoritative role, against MediaPublishState and issues exactly the
// transport calls needed to close the gap. Re-applying an already-aligned
// snapshot issues nothing.
func (c *SessionCoordinator) reconcileLocked(ctx context.Context) {
	if !c.joined || c.snapshot == nil {
		return
	}

	role := RoleOf(c.snapshot, c.opts.Identity)

	wantAudio := role.CanPublish() &&
		!c.snapshot.IsMuted(c.opts.Identity) &&
		!c.publish.AudioUnavailable
	if c.audioFailed && wantAudio != c.audioFailedWant {
		// Desired state changed since the failure; the gate no longer applies.
		c.audioFailed = false
	}
	if wantAudio != c.publish.AudioPublished {
		c.setAudioPublishedLocked(ctx, wantAudio)
	}

	wantVideo := c.opts.Capabilities.Video &&
		role.CanPublish() &&
		!c.publish.CameraOff &&
		!c.publish.VideoUnavailable
	if c.videoFailed && wantVideo != c.videoFailedWant {
		c.videoFailed = false
	}
	if wantVideo != c.publish.VideoPublished {
		c.setVideoPublishedLocked(ctx, wantVideo)
	}
}

func (c *SessionCoordinator) setAudioPublishedLocked(ctx context.Context, want bool) {
	if c.audioFailed && want == c.audioFailedWant {
		// Same desired state that already failed transiently; wait for a
		// genuine change instead of retrying on every tick.
		return
	}

	var err error
	if want {
		err = c.opts.Transport.PublishAudio(ctx)
	} else {
		err = c.opts.Transport.UnpublishAudio()
	}
	if err == nil {
		c.publish.AudioPublished = want
		c.audioFailed = false
		if want && c.publish.Muted {
			if merr := c.opts.Transport.SetAudioMuted(true); merr != nil {
				logger.Warnw("failed to apply mute after publish", merr)
			}
		}
		return
	}

	c.lastError = err
	switch Classify(err) {
	case ErrorKindDevice:
		c.publish.AudioUnavailable = true
		logger.Warnw("microphone unavailable, staying listen-only", err,
			"room", c.opts.RoomID,
			"message", UserMessage(err))
	default:
		c.audioFailed = true
		c.audioFailedWant = want
		logger.Warnw("audio publish state not achieved", err,
			"room", c.opts.RoomID,
			"want", want)
	}
}

func (c *SessionCoordinator) setVideoPublishedLocked(ctx context.Context, want bool) {
	if c.videoFailed && want == c.videoFailedWant {
		return
	}

	var err error
	if want {
		err = c.opts.Transport.PublishVideo(ctx)
	} else {
		err = c.opts.Transport.UnpublishVideo()
	}
	if err == nil {
		c.publish.VideoPublished = want
		c.videoFailed = false
		return
	}

	c.lastError = err
	switch Classify(err) {
	case ErrorKindDevice:
		c.publish.VideoUnavailable = true
		logger.Warnw("camera unavailable, staying video-off", err,
			"room", c.opts.RoomID,
			"message", UserMessage(err))
	default:
		c.videoFailed = true
		c.videoFailedWant = want
		logger.Warnw("video publish state not achieved", err,
			"room", c.opts.RoomID,
			"want", want)
	}
}

// handleRemotePublished subscribes to a newly published remote track.
// Completions arriving after leave are ignored.
func (c *SessionCoordinator) handleRemotePublished(uid TransportUid, kind TrackKind) {
	c.mu.Lock()
	if !c.joined || c.exited {
		c.mu.Unlock()
		return
	}
	if c.subscriptions[uid][kind] {
		c.mu.Unlock()
		return
	}
	if err := c.opts.Transport.Subscribe(uid, kind); err != nil {
		c.mu.Unlock()
		logger.Warnw("failed to subscribe to remote track", err,
			"uid", uid,
			"kind", string(kind))
		return
	}
	if c.subscriptions[uid] == nil {
		c.subscriptions[uid] = make(map[TrackKind]bool)
	}
	c.subscriptions[uid][kind] = true
	c.mu.Unlock()
}

func (c *SessionCoordinator) handleRemoteUnpublished(uid TransportUid, kind TrackKind) {
	c.mu.Lock()
	if c.exited {
		c.mu.Unlock()
		return
	}
	if c.subscriptions[uid][kind] {
		delete(c.subscriptions[uid], kind)
		if err := c.opts.Transport.Unsubscribe(uid, kind); err != nil {
			logger.Debugw("failed to unsubscribe from remote track",
				"uid", uid,
				"kind", string(kind),
				"error", err)
		}
	}
	changed := false
	if kind == TrackKindAudio {
		if identity, ok := c.mapper.IdentityFor(uid); ok {
			changed = c.detector.Clear(identity)
		}
	}
	view := c.viewLocked()
	c.mu.Unlock()

	if changed {
		c.notify(view)
	}
}

func (c *SessionCoordinator) handleRemoteLeft(uid TransportUid) {
	c.mu.Lock()
	if c.exited {
		c.mu.Unlock()
		return
	}
	delete(c.subscriptions, uid)
	changed := false
	if identity, ok := c.mapper.IdentityFor(uid); ok {
		changed = c.detector.Clear(identity)
	}
	view := c.viewLocked()
	c.mu.Unlock()

	if changed {
		c.notify(view)
	}
}

// handleVolumeBatch feeds one batch through the detector and pushes a view
// only when the speaker actually changed.
func (c *SessionCoordinator) handleVolumeBatch(batch []VolumeSample) {
	c.mu.Lock()
	if !c.joined || c.exited {
		c.mu.Unlock()
		return
	}
	_, changed := c.detector.Process(batch)
	view := c.viewLocked()
	c.mu.Unlock()

	if changed {
		c.notify(view)
	}
}

// exit tears the session down exactly once and reports the reason.
func (c *SessionCoordinator) exit(reason ExitReason, cause error) {
	c.mu.Lock()
	if c.exited {
		c.mu.Unlock()
		return
	}
	c.exited = true
	wasJoined := c.joined
	c.joined = false
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	if cause != nil {
		c.lastError = cause
	}
	hadAudio := c.publish.AudioPublished
	hadVideo := c.publish.VideoPublished
	c.publish = MediaPublishState{}
	c.subscriptions = make(map[TransportUid]map[TrackKind]bool)
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if wasJoined {
		if hadAudio {
			if err := c.opts.Transport.UnpublishAudio(); err != nil {
				logger.Debugw("unpublish audio on exit failed", "error", err)
			}
		}
		if hadVideo {
			if err := c.opts.Transport.UnpublishVideo(); err != nil {
				logger.Debugw("unpublish video on exit failed", "error", err)
			}
		}
		if err := c.opts.Transport.Leave(); err != nil {
			logger.Warnw("failed to leave media session", err, "room", c.opts.RoomID)
		}
	}

	c.detector.Reset()
	c.mapper.Reset()

	logger.Infow("left room",
		"room", c.opts.RoomID,
		"identity", c.opts.Identity,
		"reason", reason.String())

	if c.opts.OnExit != nil {
		c.opts.OnExit(reason, cause)
	}
}

func (c *SessionCoordinator) viewLocked() RoomView {
	view := RoomView{
		Publish:         c.publish,
		ActiveSpeakerID: c.detector.Current(),
		Ended:           c.exited,
	}
	if c.snapshot != nil {
		view.Role = RoleOf(c.snapshot, c.opts.Identity)
		view.Topic = c.snapshot.Topic
		view.RaisedHandIDs = append([]string(nil), c.snapshot.RaisedHands...)
		view.MutedSpeakerIDs = append([]string(nil), c.snapshot.MutedSpeakers...)
	}
	return view
}

func (c *SessionCoordinator) notify(view RoomView) {
	if c.opts.OnViewUpdate != nil {
		c.opts.OnViewUpdate(view)
	}
}
