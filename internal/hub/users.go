package hub

import (
	"context"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/auctionroom/internal/domain"
	"github.com/jensholdgaard/auctionroom/internal/protocol"
	"github.com/jensholdgaard/auctionroom/internal/session"
)

// Register creates an account with the starting balance. Usernames are
// unique and case-sensitive.
func (h *Hub) Register(ctx context.Context, username, password, email string) (string, error) {
	ctx, span := h.tracer.Start(ctx, "Hub.Register",
		trace.WithAttributes(attribute.String("username", username)))
	defer span.End()

	if username == "" || len(username) > domain.MaxUsernameLen || password == "" {
		return "", ErrBadRequest
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, taken := h.userByName[username]; taken {
		return "", ErrUsernameTaken
	}
	if len(h.users) >= h.limits.MaxUsers {
		return "", ErrDatabaseFull
	}

	cred, err := h.verifier.Derive(password)
	if err != nil {
		h.logger.ErrorContext(ctx, "deriving credential", slog.Any("error", err))
		return "", ErrInternal
	}

	u := domain.User{
		ID:         int64(len(h.users) + 1),
		Username:   username,
		Credential: cred,
		Email:      email,
		Balance:    domain.StartingBalance,
		Status:     domain.UserActive,
		CreatedAt:  h.clock.Now(),
	}
	h.users = append(h.users, u)
	h.userIdx[u.ID] = len(h.users) - 1
	h.userByName[u.Username] = u.ID

	if err := h.persistLocked(ctx); err != nil {
		return "", err
	}

	h.logger.InfoContext(ctx, "user registered",
		slog.Int64("uid", u.ID),
		slog.String("username", u.Username),
	)
	return protocol.Frame("REGISTER_SUCCESS", strconv.FormatInt(u.ID, 10), u.Username), nil
}

// Login authenticates the session. A prior session for the same user is
// force-logged-out and fully detached before this one is attached, so at
// most one session per user is ever observable.
func (h *Hub) Login(ctx context.Context, s *session.Session, username, password string) (string, error) {
	ctx, span := h.tracer.Start(ctx, "Hub.Login",
		trace.WithAttributes(attribute.String("username", username)))
	defer span.End()

	if username == "" || password == "" {
		return "", ErrBadRequest
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	uid, ok := h.userByName[username]
	if !ok {
		return "", ErrUserNotFound
	}
	u := h.userByID(uid)
	if u.Status != domain.UserActive {
		return "", ErrUserDisabled
	}
	if err := h.verifier.Verify(u.Credential, password); err != nil {
		return "", ErrWrongPassword
	}

	// A re-login on an authenticated connection replaces its identity: the
	// old one leaves its room and releases its registry slot first, so
	// occupancy counts and byUID never track a superseded identity.
	if s.UID != 0 {
		if s.RoomID != 0 {
			h.leaveRoomLocked(ctx, s)
		}
		if h.byUID[s.UID] == s {
			delete(h.byUID, s.UID)
		}
	}

	if old := h.byUID[uid]; old != nil && old != s {
		old.Send(protocol.Frame("FORCE_LOGOUT", "Another login detected"))
		h.detachLocked(ctx, old)
		old.Close()
		h.logger.InfoContext(ctx, "forced logout of prior session",
			slog.Int64("uid", uid),
			slog.String("username", username),
		)
	}

	s.UID = uid
	s.Username = u.Username
	s.LoginTime = h.clock.Now()
	s.RoomID = 0
	h.sessions[s] = struct{}{}
	h.byUID[uid] = s

	h.logger.InfoContext(ctx, "user logged in",
		slog.Int64("uid", uid),
		slog.String("username", username),
		slog.String("addr", s.RemoteAddr()),
	)
	return protocol.Frame("LOGIN_SUCCESS", strconv.FormatInt(uid, 10), u.Username, u.Balance.String()), nil
}
