// Package hub is the server core: the domain collections, the session
// registry, the room and auction engines, the broadcaster and the lifecycle
// sweeper, all guarded by one coarse mutex. Handlers return complete
// response frames; push notifications are enqueued to session queues inside
// the critical section so room observers see bids in acceptance order.
package hub

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/auctionroom/internal/auth"
	"github.com/jensholdgaard/auctionroom/internal/clock"
	"github.com/jensholdgaard/auctionroom/internal/domain"
	"github.com/jensholdgaard/auctionroom/internal/session"
	"github.com/jensholdgaard/auctionroom/internal/store"
)

// Options carries the tunables the hub does not own.
type Options struct {
	Limits        domain.Limits
	SnipeWindow   time.Duration
	SweepInterval time.Duration
}

// Hub owns all mutable server state. Every exported operation takes the lock
// for its whole duration; per-recipient delivery is a non-blocking channel
// send, so holding the lock across a broadcast cannot stall on a slow peer.
type Hub struct {
	mu sync.Mutex

	users    []domain.User
	rooms    []domain.Room
	auctions []domain.Auction
	bids     []domain.Bid

	userIdx    map[int64]int
	userByName map[string]int64
	roomIdx    map[int64]int
	auctionIdx map[int64]int

	sessions map[*session.Session]struct{}
	byUID    map[int64]*session.Session

	backend  *store.Backend
	verifier auth.Verifier
	clock    clock.Clock
	logger   *slog.Logger
	tracer   trace.Tracer

	limits        domain.Limits
	snipeWindow   time.Duration
	sweepInterval time.Duration
}

// New creates an empty hub. Call Restore before serving to pick up the
// persisted snapshot.
func New(backend *store.Backend, verifier auth.Verifier, clk clock.Clock, logger *slog.Logger, tp trace.TracerProvider, opts Options) *Hub {
	return &Hub{
		userIdx:       make(map[int64]int),
		userByName:    make(map[string]int64),
		roomIdx:       make(map[int64]int),
		auctionIdx:    make(map[int64]int),
		sessions:      make(map[*session.Session]struct{}),
		byUID:         make(map[int64]*session.Session),
		backend:       backend,
		verifier:      verifier,
		clock:         clk,
		logger:        logger,
		tracer:        tp.Tracer("github.com/jensholdgaard/auctionroom/internal/hub"),
		limits:        opts.Limits,
		snipeWindow:   opts.SnipeWindow,
		sweepInterval: opts.SweepInterval,
	}
}

// Restore loads the persisted snapshot and rebuilds the lookup maps.
func (h *Hub) Restore(ctx context.Context) error {
	snap, err := h.backend.Load(ctx)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.users = snap.Users
	h.rooms = snap.Rooms
	h.auctions = snap.Auctions
	h.bids = snap.Bids

	clear(h.userIdx)
	clear(h.userByName)
	clear(h.roomIdx)
	clear(h.auctionIdx)
	for i := range h.users {
		h.userIdx[h.users[i].ID] = i
		h.userByName[h.users[i].Username] = h.users[i].ID
	}
	for i := range h.rooms {
		h.roomIdx[h.rooms[i].ID] = i
		// No session survives a restart, so occupancy restarts at zero
		// for rooms that have not ended; members re-join.
		if h.rooms[i].Status != domain.RoomEnded {
			h.rooms[i].CurrentParticipants = 0
		}
	}
	for i := range h.auctions {
		h.auctionIdx[h.auctions[i].ID] = i
	}

	h.logger.InfoContext(ctx, "state restored",
		slog.Int("users", len(h.users)),
		slog.Int("rooms", len(h.rooms)),
		slog.Int("auctions", len(h.auctions)),
		slog.Int("bids", len(h.bids)),
	)
	return nil
}

// CloseAll force-closes every live session. Used at shutdown; each
// connection worker then detaches through Disconnect.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		s.Close()
	}
}

// Snapshot flushes current state, taking the lock. Used at shutdown.
func (h *Hub) Snapshot(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.persistLocked(ctx)
}

// persistLocked writes the snapshot after a mutation. A failed save is
// logged and surfaced as ErrInternal; the in-memory mutation stands and the
// server keeps running with degraded durability.
func (h *Hub) persistLocked(ctx context.Context) error {
	snap := &domain.Snapshot{
		Users:    slices.Clone(h.users),
		Rooms:    slices.Clone(h.rooms),
		Auctions: slices.Clone(h.auctions),
		Bids:     slices.Clone(h.bids),
	}
	if err := h.backend.Save(ctx, snap); err != nil {
		h.logger.ErrorContext(ctx, "snapshot save failed", slog.Any("error", err))
		return ErrInternal
	}
	return nil
}

// attachedLocked reports whether the session is still in the registry. A
// connection worker can race its own force-logout: the worker may hold a
// parsed request while another login detaches its session, so operations
// that mutate membership re-check under the lock.
func (h *Hub) attachedLocked(s *session.Session) bool {
	_, ok := h.sessions[s]
	return ok
}

func (h *Hub) userByID(uid int64) *domain.User {
	if i, ok := h.userIdx[uid]; ok {
		return &h.users[i]
	}
	return nil
}

func (h *Hub) roomByID(id int64) *domain.Room {
	if i, ok := h.roomIdx[id]; ok {
		return &h.rooms[i]
	}
	return nil
}

func (h *Hub) auctionByID(id int64) *domain.Auction {
	if i, ok := h.auctionIdx[id]; ok {
		return &h.auctions[i]
	}
	return nil
}

func (h *Hub) username(uid int64) string {
	if u := h.userByID(uid); u != nil {
		return u.Username
	}
	return ""
}

// broadcastRoomLocked fans a frame out to the room's live sessions. Delivery
// is best effort; a full queue drops the frame for that recipient only.
func (h *Hub) broadcastRoomLocked(roomID int64, frame string, exclude *session.Session) {
	for s := range h.sessions {
		if s == exclude || s.RoomID != roomID {
			continue
		}
		if !s.Send(frame) {
			h.logger.Warn("notification dropped",
				slog.Int64("uid", s.UID),
				slog.String("addr", s.RemoteAddr()),
			)
		}
	}
}

// broadcastAllLocked fans a frame out to every live session.
func (h *Hub) broadcastAllLocked(frame string, exclude *session.Session) {
	for s := range h.sessions {
		if s == exclude {
			continue
		}
		if !s.Send(frame) {
			h.logger.Warn("notification dropped",
				slog.Int64("uid", s.UID),
				slog.String("addr", s.RemoteAddr()),
			)
		}
	}
}

// Disconnect detaches a session: auto-leaves its room, removes it from the
// registry and closes the connection. Idempotent; safe on never-logged-in
// sessions.
func (h *Hub) Disconnect(ctx context.Context, s *session.Session) {
	h.mu.Lock()
	if h.detachLocked(ctx, s) {
		_ = h.persistLocked(ctx)
	}
	h.mu.Unlock()
	s.Close()
}

// detachLocked reports whether the session was attached.
func (h *Hub) detachLocked(ctx context.Context, s *session.Session) bool {
	if _, ok := h.sessions[s]; !ok {
		return false
	}
	if s.RoomID != 0 {
		h.leaveRoomLocked(ctx, s)
	}
	delete(h.sessions, s)
	if h.byUID[s.UID] == s {
		delete(h.byUID, s.UID)
	}
	h.logger.InfoContext(ctx, "session detached",
		slog.Int64("uid", s.UID),
		slog.String("username", s.Username),
	)
	return true
}

// secondsLeft renders the remaining lifetime of a deadline in whole seconds,
// clamped at zero.
func secondsLeft(now, end time.Time) int64 {
	d := end.Sub(now)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}
