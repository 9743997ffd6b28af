package liveroom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/livekit/protocol/auth"
)

// TokenProvider mints the short-lived media-session credential used to join
// the transport. Credentials expire (~1 hour), so a fresh one is requested
// on every join; a failure here is fatal for the join attempt and is never
// retried.
type TokenProvider interface {
	RequestToken(ctx context.Context, roomID string, uid TransportUid) (string, error)
}

// HTTPTokenProvider requests credentials from an external issuance endpoint
// with a single blocking POST.
type HTTPTokenProvider struct {
	Endpoint string
	// Client defaults to http.DefaultClient.
	Client *http.Client
}

type tokenRequest struct {
	RoomID string       `json:"roomId"`
	Uid    TransportUid `json:"uid"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// RequestToken implements TokenProvider. Any failure, transport-level or a
// non-200 response, is classified as a credential error.
func (p *HTTPTokenProvider) RequestToken(ctx context.Context, roomID string, uid TransportUid) (string, error) {
	body, err := json.Marshal(tokenRequest{RoomID: roomID, Uid: uid})
	if err != nil {
		return "", newSessionError(ErrorKindCredential, "request token", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", newSessionError(ErrorKindCredential, "request token", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", newSessionError(ErrorKindCredential, "request token", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", newSessionError(ErrorKindCredential, "request token",
			fmt.Errorf("token endpoint returned status %d", resp.StatusCode))
	}

	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", newSessionError(ErrorKindCredential, "request token", err)
	}
	if out.Token == "" {
		return "", newSessionError(ErrorKindCredential, "request token",
			fmt.Errorf("token endpoint returned an empty credential"))
	}
	return out.Token, nil
}

// LocalTokenProvider mints credentials directly with an API key pair, for
// self-hosted deployments where no issuance service sits in front of the
// transport. The participant identity inside the grant is the decimal
// transport uid, which is how remote uids are recovered on the other side.
type LocalTokenProvider struct {
	APIKey    string
	APISecret string
	// TTL defaults to one hour.
	TTL time.Duration
}

// RequestToken implements TokenProvider.
func (p *LocalTokenProvider) RequestToken(ctx context.Context, roomID string, uid TransportUid) (string, error) {
	if p.APIKey == "" || p.APISecret == "" {
		return "", newSessionError(ErrorKindConfiguration, "request token",
			fmt.Errorf("missing api key or secret"))
	}

	ttl := p.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	at := auth.NewAccessToken(p.APIKey, p.APISecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     roomID,
	}
	at.SetVideoGrant(grant).
		SetIdentity(strconv.FormatInt(int64(uid), 10)).
		SetValidFor(ttl)

	token, err := at.ToJWT()
	if err != nil {
		return "", newSessionError(ErrorKindCredential, "request token", err)
	}
	return token, nil
}
