package meeting

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"liveclass-backend/internal/domain"
	"liveclass-backend/internal/middleware"
	"liveclass-backend/internal/service/meeting"
	"liveclass-backend/internal/service/monitor"
	"liveclass-backend/pkg/response"
)

// Service is the part of meeting.Service the handler uses
type Service interface {
	CreateMeeting(ctx context.Context, input *meeting.CreateMeetingInput) (*domain.MeetingSession, error)
	ValidateRoom(ctx context.Context, roomID string) (bool, error)
	IssueToken(ctx context.Context, roomID string, p domain.Participant) (*meeting.JoinOutput, error)
	EndMeeting(ctx context.Context, roomID, userID string) (*domain.MeetingSession, error)
	GetMeeting(ctx context.Context, roomID string) (*domain.MeetingSession, error)
}

// RoomViews reads the live projection of a room
type RoomViews interface {
	View(roomID string) (monitor.RoomView, bool)
}

// Handler handles meeting HTTP requests
type Handler struct {
	meetingService Service
	views          RoomViews
}

// NewHandler creates a new meeting handler
func NewHandler(meetingService Service, views RoomViews) *Handler {
	return &Handler{
		meetingService: meetingService,
		views:          views,
	}
}

// CreateMeeting opens a live class
// POST /v1/classes/:classId/meetings
func (h *Handler) CreateMeeting(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	session, err := h.meetingService.CreateMeeting(c.Request.Context(), &meeting.CreateMeetingInput{
		ClassID: c.Param("classId"),
		HostID:  userID,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, session)
}

// ValidateRoom reports whether a room code is live
// GET /v1/meetings/:roomId/validate
func (h *Handler) ValidateRoom(c *gin.Context) {
	roomID := c.Param("roomId")

	live, err := h.meetingService.ValidateRoom(c.Request.Context(), roomID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"room_id": roomID,
		"live":    live,
	})
}

// IssueTokenRequest carries optional profile details for the join token
type IssueTokenRequest struct {
	ProfileImage string `json:"profile_image" binding:"omitempty,url"`
}

// IssueToken returns a media server token for the caller
// POST /v1/meetings/:roomId/token
func (h *Handler) IssueToken(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req IssueTokenRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationError(c, err.Error())
			return
		}
	}

	out, err := h.meetingService.IssueToken(c.Request.Context(), c.Param("roomId"), domain.Participant{
		ID:           userID,
		Name:         c.GetString(middleware.ContextName),
		ProfileImage: req.ProfileImage,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, out)
}

// EndMeeting closes a live class; host only
// POST /v1/meetings/:roomId/end
func (h *Handler) EndMeeting(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	session, err := h.meetingService.EndMeeting(c.Request.Context(), c.Param("roomId"), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, session)
}

// GetState returns the display slots of an open meeting
// GET /v1/meetings/:roomId/state
func (h *Handler) GetState(c *gin.Context) {
	roomID := c.Param("roomId")

	if _, err := h.meetingService.GetMeeting(c.Request.Context(), roomID); err != nil {
		response.FromError(c, err)
		return
	}

	view, ok := h.views.View(roomID)
	if !ok {
		// no webhook seen yet
		view = monitor.RoomView{RoomID: roomID}
	}

	response.Success(c, http.StatusOK, view)
}
