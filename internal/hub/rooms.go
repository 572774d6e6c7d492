package hub

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/auctionroom/internal/domain"
	"github.com/jensholdgaard/auctionroom/internal/protocol"
	"github.com/jensholdgaard/auctionroom/internal/session"
)

// CreateRoom allocates a room and joins the creator atomically. The name
// must be unique among rooms that have not ended.
func (h *Hub) CreateRoom(ctx context.Context, s *session.Session, name, desc string, maxParticipants, durationMin int) (string, error) {
	ctx, span := h.tracer.Start(ctx, "Hub.CreateRoom",
		trace.WithAttributes(attribute.String("name", name)))
	defer span.End()

	if name == "" || maxParticipants <= 0 || durationMin <= 0 {
		return "", ErrBadRequest
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.attachedLocked(s) {
		return "", ErrNotLoggedIn
	}
	if s.RoomID != 0 {
		return "", ErrAlreadyInRoom
	}
	for i := range h.rooms {
		if h.rooms[i].Status != domain.RoomEnded && h.rooms[i].Name == name {
			return "", ErrRoomNameTaken
		}
	}
	if len(h.rooms) >= h.limits.MaxRooms {
		return "", ErrDatabaseFull
	}

	now := h.clock.Now()
	r := domain.Room{
		ID:              int64(len(h.rooms) + 1),
		Name:            name,
		Description:     desc,
		MaxParticipants: maxParticipants,
		Status:          domain.RoomWaiting,
		StartTime:       now,
		EndTime:         now.Add(time.Duration(durationMin) * time.Minute),
		CreatorID:       s.UID,
	}
	h.rooms = append(h.rooms, r)
	h.roomIdx[r.ID] = len(h.rooms) - 1

	room := &h.rooms[len(h.rooms)-1]
	h.joinLocked(room, s)

	h.broadcastAllLocked(protocol.Frame("NEW_ROOM",
		strconv.FormatInt(room.ID, 10),
		room.Name,
		s.Username,
		strconv.Itoa(room.MaxParticipants),
	), s)

	if err := h.persistLocked(ctx); err != nil {
		return "", err
	}

	h.logger.InfoContext(ctx, "room created",
		slog.Int64("room_id", room.ID),
		slog.String("name", room.Name),
		slog.Int64("creator", s.UID),
	)
	return protocol.Frame("CREATE_ROOM_SUCCESS", strconv.FormatInt(room.ID, 10), room.Name), nil
}

// JoinRoom adds the session to a room. A session holds at most one room.
func (h *Hub) JoinRoom(ctx context.Context, s *session.Session, roomID int64) (string, error) {
	ctx, span := h.tracer.Start(ctx, "Hub.JoinRoom",
		trace.WithAttributes(attribute.Int64("room_id", roomID)))
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.attachedLocked(s) {
		return "", ErrNotLoggedIn
	}
	if s.RoomID != 0 {
		return "", ErrAlreadyInRoom
	}
	room := h.roomByID(roomID)
	if room == nil {
		return "", ErrRoomNotFound
	}
	if room.Status == domain.RoomEnded {
		return "", ErrRoomEnded
	}
	if room.CurrentParticipants >= room.MaxParticipants {
		return "", ErrRoomFull
	}

	h.joinLocked(room, s)

	h.broadcastRoomLocked(room.ID, protocol.Frame("USER_JOINED",
		s.Username,
		strconv.FormatInt(room.ID, 10),
	), s)

	if err := h.persistLocked(ctx); err != nil {
		return "", err
	}

	h.logger.InfoContext(ctx, "user joined room",
		slog.Int64("room_id", room.ID),
		slog.Int64("uid", s.UID),
	)
	return protocol.Frame("JOIN_ROOM_SUCCESS", strconv.FormatInt(room.ID, 10), room.Name), nil
}

// joinLocked applies the membership mutation shared by create and join.
func (h *Hub) joinLocked(room *domain.Room, s *session.Session) {
	room.CurrentParticipants++
	if room.Status == domain.RoomWaiting {
		room.Status = domain.RoomActive
	}
	s.RoomID = room.ID
}

// LeaveRoom removes the session from its current room.
func (h *Hub) LeaveRoom(ctx context.Context, s *session.Session) (string, error) {
	ctx, span := h.tracer.Start(ctx, "Hub.LeaveRoom")
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.attachedLocked(s) {
		return "", ErrNotLoggedIn
	}
	if s.RoomID == 0 {
		return "", ErrNotInRoom
	}
	h.leaveRoomLocked(ctx, s)

	if err := h.persistLocked(ctx); err != nil {
		return "", err
	}
	return protocol.Frame("LEAVE_ROOM_SUCCESS", ""), nil
}

// leaveRoomLocked detaches the session from its room and tells the
// remaining members. Also run on disconnect and force-logout.
func (h *Hub) leaveRoomLocked(ctx context.Context, s *session.Session) {
	room := h.roomByID(s.RoomID)
	if room == nil {
		s.RoomID = 0
		return
	}
	if room.CurrentParticipants > 0 {
		room.CurrentParticipants--
	}
	s.RoomID = 0

	h.broadcastRoomLocked(room.ID, protocol.Frame("USER_LEFT",
		s.Username,
		strconv.FormatInt(room.ID, 10),
	), s)

	h.logger.InfoContext(ctx, "user left room",
		slog.Int64("room_id", room.ID),
		slog.Int64("uid", s.UID),
	)
}

// ListRooms renders every room that has not ended.
func (h *Hub) ListRooms(ctx context.Context, s *session.Session) (string, error) {
	_, span := h.tracer.Start(ctx, "Hub.ListRooms")
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now()
	var recs []string
	for i := range h.rooms {
		r := &h.rooms[i]
		if r.Status == domain.RoomEnded {
			continue
		}
		recs = append(recs, protocol.Rec(
			strconv.FormatInt(r.ID, 10),
			r.Name,
			r.Description,
			strconv.Itoa(r.CurrentParticipants),
			strconv.Itoa(r.MaxParticipants),
			string(r.Status),
			strconv.FormatInt(secondsLeft(now, r.EndTime), 10),
			strconv.Itoa(r.TotalAuctions),
		))
	}
	return protocol.List("ROOM_LIST", recs), nil
}

// RoomDetail renders one room, ended or not.
func (h *Hub) RoomDetail(ctx context.Context, s *session.Session, roomID int64) (string, error) {
	_, span := h.tracer.Start(ctx, "Hub.RoomDetail",
		trace.WithAttributes(attribute.Int64("room_id", roomID)))
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.roomByID(roomID)
	if room == nil {
		return "", ErrRoomNotFound
	}
	return protocol.Frame("ROOM_DETAIL",
		strconv.FormatInt(room.ID, 10),
		room.Name,
		room.Description,
		h.username(room.CreatorID),
		strconv.Itoa(room.CurrentParticipants),
		strconv.Itoa(room.MaxParticipants),
		string(room.Status),
		strconv.FormatInt(secondsLeft(h.clock.Now(), room.EndTime), 10),
		strconv.Itoa(room.TotalAuctions),
	), nil
}

// MyRoom renders the session's current room, or the none sentinel.
func (h *Hub) MyRoom(ctx context.Context, s *session.Session) (string, error) {
	_, span := h.tracer.Start(ctx, "Hub.MyRoom")
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()

	if s.RoomID == 0 {
		return protocol.Frame("MY_ROOM", "0", "Not in any room", "0", "0"), nil
	}
	room := h.roomByID(s.RoomID)
	if room == nil {
		return protocol.Frame("MY_ROOM", "0", "Not in any room", "0", "0"), nil
	}
	return protocol.Frame("MY_ROOM",
		strconv.FormatInt(room.ID, 10),
		room.Name,
		strconv.Itoa(room.CurrentParticipants),
		strconv.Itoa(room.TotalAuctions),
	), nil
}
