// Package relay implements MediaRelayControl (§4.12): issuing short-lived
// LiveKit room-access tokens for calls and rejecting token issuance once a
// call's participant cap is reached. Grounded on the teacher's
// internal/voice/voice.go LiveKit wiring (lksdk.RoomServiceClient +
// auth.NewAccessToken/VideoGrant), generalized from named voice channels to
// this spec's ad hoc, per-conversation call rooms.
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"

	"github.com/confide-gg/confide/internal/apperr"
)

// MaxCallParticipants bounds how many tokens a single call room will hand
// out, matching the data model's call-lifecycle messages (§3) which imply
// a small-group call rather than an unbounded broadcast room.
const MaxCallParticipants = 16

// tokenTTL is how long an issued room token remains usable; a reconnect
// after this window requires asking for a fresh one.
const tokenTTL = 6 * time.Hour

// Service issues and tracks admission for LiveKit call rooms.
type Service struct {
	roomClient *lksdk.RoomServiceClient
	apiKey     string
	apiSecret  string

	mu        sync.Mutex
	occupancy map[string]map[string]struct{} // callID -> set of userID
}

func New(url, apiKey, apiSecret string) (*Service, error) {
	if url == "" || apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("livekit url, api_key and api_secret are required")
	}
	return &Service{
		roomClient: lksdk.NewRoomServiceClient(url, apiKey, apiSecret),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		occupancy:  make(map[string]map[string]struct{}),
	}, nil
}

// IssueToken admits userID to callID's room, rejecting the request once
// MaxCallParticipants is already occupied by other users (§4.12's
// admission control). Re-admitting a user already in the call is always
// allowed, covering reconnects.
func (s *Service) IssueToken(callID, userID string, canPublish, canSubscribe bool) (string, *apperr.Error) {
	s.mu.Lock()
	members, ok := s.occupancy[callID]
	if !ok {
		members = make(map[string]struct{})
		s.occupancy[callID] = members
	}
	if _, already := members[userID]; !already && len(members) >= MaxCallParticipants {
		s.mu.Unlock()
		return "", apperr.Conflict("call is full")
	}
	members[userID] = struct{}{}
	s.mu.Unlock()

	grant := &auth.VideoGrant{RoomJoin: true, Room: callID}
	grant.CanPublish = &canPublish
	grant.CanSubscribe = &canSubscribe

	token := auth.NewAccessToken(s.apiKey, s.apiSecret).
		SetVideoGrant(grant).
		SetIdentity(userID).
		SetValidFor(tokenTTL)

	jwt, err := token.ToJWT()
	if err != nil {
		return "", apperr.Internal(fmt.Errorf("minting relay token: %w", err))
	}
	return jwt, nil
}

// Release removes userID from callID's tracked occupancy, called when a
// call_leave/call_end event is dispatched so the seat is freed for the
// next admission check.
func (s *Service) Release(callID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if members, ok := s.occupancy[callID]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(s.occupancy, callID)
		}
	}
}

// EndCall force-removes a LiveKit room and forgets its tracked occupancy.
// No HTTP handler calls it; the call/leave handlers only call Release.
func (s *Service) EndCall(ctx context.Context, callID string) error {
	s.mu.Lock()
	delete(s.occupancy, callID)
	s.mu.Unlock()

	_, err := s.roomClient.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: callID})
	return err
}
