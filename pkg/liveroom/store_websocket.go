package liveroom

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/livekit/protocol/logger"
)

const (
	storeWriteTimeout     = 5 * time.Second
	storeHandshakeTimeout = 10 * time.Second
	storePingPeriod       = 15 * time.Second
)

// storeFrame is the wire format shared by both directions of the store
// connection: snapshot and ended frames downstream, subscribe and command
// frames upstream.
type storeFrame struct {
	Type      string        `json:"type"`
	RequestID string        `json:"requestId,omitempty"`
	RoomID    string        `json:"roomId,omitempty"`
	Action    string        `json:"action,omitempty"`
	ActorID   string        `json:"actorId,omitempty"`
	TargetID  string        `json:"targetId,omitempty"`
	Snapshot  *RoomSnapshot `json:"snapshot,omitempty"`
}

const (
	frameTypeSubscribe   = "subscribe"
	frameTypeUnsubscribe = "unsubscribe"
	frameTypeSnapshot    = "snapshot"
	frameTypeEnded       = "ended"
	frameTypeCommand     = "command"
)

// WebsocketStore is a RoomStateStore client speaking JSON frames over a
// single websocket connection to the room-state service. Snapshots for
// subscribed rooms arrive as "snapshot" frames; an "ended" frame is the nil
// snapshot. Moderation commands are fire-and-forget "command" frames tagged
// with a request id for log correlation on the service side.
type WebsocketStore struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string]SnapshotHandler
	closed   bool
	done     chan struct{}
}

// DialWebsocketStore connects to the room-state service. authToken, when
// non-empty, is sent as a Bearer authorization header.
func DialWebsocketStore(ctx context.Context, rawURL, authToken string) (*WebsocketStore, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid store url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = storeHandshakeTimeout

	header := http.Header{}
	if authToken != "" {
		header.Set("Authorization", "Bearer "+authToken)
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to room-state service: %w", err)
	}

	s := &WebsocketStore{
		conn:     conn,
		handlers: make(map[string]SnapshotHandler),
		done:     make(chan struct{}),
	}
	go s.readLoop()
	go s.pingLoop()
	return s, nil
}

// Subscribe implements RoomStateStore.
func (s *WebsocketStore) Subscribe(ctx context.Context, roomID string, handler SnapshotHandler) (func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("store connection is closed")
	}
	s.handlers[roomID] = handler
	s.mu.Unlock()

	if err := s.writeFrame(storeFrame{Type: frameTypeSubscribe, RoomID: roomID}); err != nil {
		s.mu.Lock()
		delete(s.handlers, roomID)
		s.mu.Unlock()
		return nil, err
	}

	unsubscribe := func() {
		s.mu.Lock()
		delete(s.handlers, roomID)
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			if err := s.writeFrame(storeFrame{Type: frameTypeUnsubscribe, RoomID: roomID}); err != nil {
				logger.Debugw("failed to send unsubscribe", "room", roomID, "error", err)
			}
		}
	}
	return unsubscribe, nil
}

func (s *WebsocketStore) RaiseHand(ctx context.Context, roomID, selfID string) error {
	return s.sendCommand(roomID, ActionRaiseHand, selfID, selfID)
}

func (s *WebsocketStore) InviteToSpeak(ctx context.Context, roomID, actorID, targetID string) error {
	return s.sendCommand(roomID, ActionInviteToSpeak, actorID, targetID)
}

func (s *WebsocketStore) MoveToListener(ctx context.Context, roomID, actorID, targetID string) error {
	return s.sendCommand(roomID, ActionMoveToListener, actorID, targetID)
}

func (s *WebsocketStore) PromoteCoHost(ctx context.Context, roomID, actorID, targetID string) error {
	return s.sendCommand(roomID, ActionPromoteCoHost, actorID, targetID)
}

func (s *WebsocketStore) DemoteCoHost(ctx context.Context, roomID, actorID, targetID string) error {
	return s.sendCommand(roomID, ActionDemoteCoHost, actorID, targetID)
}

func (s *WebsocketStore) MuteSpeaker(ctx context.Context, roomID, actorID, targetID string) error {
	return s.sendCommand(roomID, ActionMuteSpeaker, actorID, targetID)
}

func (s *WebsocketStore) UnmuteSpeaker(ctx context.Context, roomID, actorID, targetID string) error {
	return s.sendCommand(roomID, ActionUnmuteSpeaker, actorID, targetID)
}

func (s *WebsocketStore) Kick(ctx context.Context, roomID, actorID, targetID string) error {
	return s.sendCommand(roomID, ActionKick, actorID, targetID)
}

func (s *WebsocketStore) EndRoom(ctx context.Context, roomID, actorID string) error {
	return s.sendCommand(roomID, ActionEndRoom, actorID, "")
}

// Close tears the connection down. Registered handlers stop receiving
// snapshots; they are not called with nil, since a dropped connection says
// nothing about whether the room ended.
func (s *WebsocketStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	conn := s.conn
	s.mu.Unlock()

	return conn.Close()
}

func (s *WebsocketStore) sendCommand(roomID string, action ModerationAction, actorID, targetID string) error {
	frame := storeFrame{
		Type:      frameTypeCommand,
		RequestID: uuid.NewString(),
		RoomID:    roomID,
		Action:    action.String(),
		ActorID:   actorID,
		TargetID:  targetID,
	}
	if err := s.writeFrame(frame); err != nil {
		return fmt.Errorf("failed to send %s command: %w", action, err)
	}
	logger.Debugw("sent moderation command",
		"room", roomID,
		"action", action.String(),
		"requestID", frame.RequestID)
	return nil
}

func (s *WebsocketStore) writeFrame(frame storeFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store connection is closed")
	}
	s.conn.SetWriteDeadline(time.Now().Add(storeWriteTimeout))
	return s.conn.WriteJSON(frame)
}

func (s *WebsocketStore) readLoop() {
	for {
		var frame storeFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				logger.Warnw("room-state connection read failed", err)
			}
			return
		}

		s.mu.Lock()
		handler := s.handlers[frame.RoomID]
		s.mu.Unlock()
		if handler == nil {
			continue
		}

		switch frame.Type {
		case frameTypeSnapshot:
			if frame.Snapshot != nil {
				handler(frame.Snapshot)
			}
		case frameTypeEnded:
			handler(nil)
		}
	}
}

func (s *WebsocketStore) pingLoop() {
	ticker := time.NewTicker(storePingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(storeWriteTimeout))
			s.mu.Unlock()
			if err != nil {
				logger.Debugw("store ping failed", "error", err)
				return
			}
		}
	}
}
