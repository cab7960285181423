// Package livekit adapts the LiveKit media server to the classroom controller.
package livekit

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	lkproto "github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go"
	"go.uber.org/zap"

	"liveclass-backend/internal/domain"
	"liveclass-backend/pkg/config"
	"liveclass-backend/pkg/logger"
)

// roomService is the subset of the LiveKit room API the adapter calls
type roomService interface {
	CreateRoom(ctx context.Context, req *lkproto.CreateRoomRequest) (*lkproto.Room, error)
	ListRooms(ctx context.Context, req *lkproto.ListRoomsRequest) (*lkproto.ListRoomsResponse, error)
	DeleteRoom(ctx context.Context, req *lkproto.DeleteRoomRequest) (*lkproto.DeleteRoomResponse, error)
	ListParticipants(ctx context.Context, req *lkproto.ListParticipantsRequest) (*lkproto.ListParticipantsResponse, error)
}

// RoomProvider creates, checks and deletes classroom rooms on LiveKit
type RoomProvider struct {
	client          roomService
	emptyTimeout    uint32
	maxParticipants uint32
	newCode         func() string
}

// NewRoomProvider connects a room service client to cfg.Endpoint
func NewRoomProvider(cfg config.LiveKitConfig) *RoomProvider {
	client := lksdk.NewRoomServiceClient(HostURL(cfg.Endpoint), cfg.APIKey, cfg.APISecret)
	return newRoomProvider(client, cfg)
}

func newRoomProvider(client roomService, cfg config.LiveKitConfig) *RoomProvider {
	return &RoomProvider{
		client:          client,
		emptyTimeout:    cfg.EmptyTimeout,
		maxParticipants: cfg.MaxParticipants,
		newCode:         RoomCode,
	}
}

// HostURL adds an http scheme to a bare host:port endpoint
func HostURL(endpoint string) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "http://" + endpoint
}

// RoomCode returns a fresh ten character meeting code
func RoomCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

// CreateRoom creates a room under a new meeting code and returns the code
func (p *RoomProvider) CreateRoom(ctx context.Context) (string, error) {
	name := p.newCode()
	room, err := p.client.CreateRoom(ctx, &lkproto.CreateRoomRequest{
		Name:            name,
		EmptyTimeout:    p.emptyTimeout,
		MaxParticipants: p.maxParticipants,
	})
	if err != nil {
		return "", fmt.Errorf("remote livekit error: %w", err)
	}

	logger.Debug("LiveKit room created",
		zap.String("room_id", room.GetName()),
		zap.String("sid", room.GetSid()))
	return room.GetName(), nil
}

// ValidateRoom reports whether a room named roomID is currently open
func (p *RoomProvider) ValidateRoom(ctx context.Context, roomID string) (bool, error) {
	if roomID == "" {
		return false, nil
	}

	res, err := p.client.ListRooms(ctx, &lkproto.ListRoomsRequest{Names: []string{roomID}})
	if err != nil {
		return false, fmt.Errorf("remote livekit error: %w", err)
	}
	for _, room := range res.GetRooms() {
		if room.GetName() == roomID {
			return true, nil
		}
	}
	return false, nil
}

// DeleteRoom closes roomID, disconnecting every participant
func (p *RoomProvider) DeleteRoom(ctx context.Context, roomID string) error {
	if _, err := p.client.DeleteRoom(ctx, &lkproto.DeleteRoomRequest{Room: roomID}); err != nil {
		return fmt.Errorf("failed to delete room %s: %w", roomID, err)
	}
	return nil
}

// ListParticipants returns everyone currently connected to roomID
func (p *RoomProvider) ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	res, err := p.client.ListParticipants(ctx, &lkproto.ListParticipantsRequest{Room: roomID})
	if err != nil {
		return nil, fmt.Errorf("failed to list participants of %s: %w", roomID, err)
	}

	participants := make([]domain.Participant, 0, len(res.GetParticipants()))
	for _, info := range res.GetParticipants() {
		participants = append(participants, participantFromInfo(info))
	}
	return participants, nil
}
