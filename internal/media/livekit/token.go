package livekit

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/livekit/protocol/auth"
	lkproto "github.com/livekit/protocol/livekit"

	"liveclass-backend/internal/domain"
	"liveclass-backend/pkg/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// participantMetadata travels in the token and comes back in every
// ParticipantInfo the server reports
type participantMetadata struct {
	Role         domain.Role `json:"role"`
	ProfileImage string      `json:"profile_image,omitempty"`
}

// TokenIssuer signs room join tokens
type TokenIssuer struct {
	apiKey    string
	apiSecret string
	ttl       time.Duration
}

func NewTokenIssuer(cfg config.LiveKitConfig) *TokenIssuer {
	return &TokenIssuer{
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		ttl:       cfg.TokenTTL,
	}
}

// IssueToken returns a join token for p in roomID. Hosts get room admin rights.
func (i *TokenIssuer) IssueToken(roomID string, p domain.Participant) (string, error) {
	metadata, err := json.Marshal(participantMetadata{Role: p.Role, ProfileImage: p.ProfileImage})
	if err != nil {
		return "", fmt.Errorf("failed to encode participant metadata: %w", err)
	}

	grant := &auth.VideoGrant{
		Room:      roomID,
		RoomJoin:  true,
		RoomAdmin: p.IsHost(),
	}

	tk := auth.NewAccessToken(i.apiKey, i.apiSecret)
	tk.AddGrant(grant).
		SetIdentity(p.ID).
		SetName(p.Name).
		SetMetadata(string(metadata)).
		SetValidFor(i.ttl)

	token, err := tk.ToJWT()
	if err != nil {
		return "", fmt.Errorf("failed to sign join token: %w", err)
	}
	return token, nil
}

// participantFromInfo rebuilds a participant from server-side info. Missing or
// unreadable metadata makes the participant an attendee.
func participantFromInfo(info *lkproto.ParticipantInfo) domain.Participant {
	p := domain.Participant{
		ID:   info.GetIdentity(),
		Name: info.GetName(),
		Role: domain.RoleAttendee,
	}

	var meta participantMetadata
	if raw := info.GetMetadata(); raw != "" && json.Unmarshal([]byte(raw), &meta) == nil {
		if meta.Role == domain.RoleHost {
			p.Role = domain.RoleHost
		}
		p.ProfileImage = meta.ProfileImage
	}

	for _, track := range info.GetTracks() {
		if track.GetMuted() {
			continue
		}
		if kind, ok := streamKind(track); ok {
			switch kind {
			case domain.StreamVideo:
				p.CameraOn = true
			case domain.StreamAudio:
				p.MicOn = true
			}
		}
	}
	return p
}
