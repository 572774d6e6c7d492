package server

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/auctionroom/internal/domain"
	"github.com/jensholdgaard/auctionroom/internal/hub"
	"github.com/jensholdgaard/auctionroom/internal/protocol"
	"github.com/jensholdgaard/auctionroom/internal/session"
)

type handlerFunc func(ctx context.Context, s *Server, sess *session.Session, args []string) (string, error)

// command describes one wire command: its preconditions and handler. uidArg
// is the position of the client-asserted uid in the argument list, -1 when
// the command carries none; the dispatcher requires it to match the session.
type command struct {
	needsAuth  bool
	minArgs    int
	uidArg     int
	failPrefix string
	handle     handlerFunc
}

var commands = map[string]command{
	"REGISTER": {minArgs: 2, uidArg: -1, handle: handleRegister},
	"LOGIN":    {minArgs: 2, uidArg: -1, handle: handleLogin},

	"CREATE_ROOM": {needsAuth: true, minArgs: 5, uidArg: 0, handle: handleCreateRoom},
	"LIST_ROOMS":  {needsAuth: true, uidArg: -1, handle: handleListRooms},
	"JOIN_ROOM":   {needsAuth: true, minArgs: 2, uidArg: 0, handle: handleJoinRoom},
	"LEAVE_ROOM":  {needsAuth: true, minArgs: 1, uidArg: 0, handle: handleLeaveRoom},
	"ROOM_DETAIL": {needsAuth: true, minArgs: 1, uidArg: -1, handle: handleRoomDetail},
	"MY_ROOM":     {needsAuth: true, minArgs: 1, uidArg: 0, handle: handleMyRoom},

	"CREATE_AUCTION":  {needsAuth: true, minArgs: 8, uidArg: 0, handle: handleCreateAuction},
	"LIST_AUCTIONS":   {needsAuth: true, minArgs: 1, uidArg: 0, handle: handleListAuctions},
	"MY_AUCTIONS":     {needsAuth: true, minArgs: 1, uidArg: 0, handle: handleMyAuctions},
	"AUCTION_DETAIL":  {needsAuth: true, minArgs: 2, uidArg: 1, handle: handleAuctionDetail},
	"PLACE_BID":       {needsAuth: true, minArgs: 3, uidArg: 1, failPrefix: "BID", handle: handlePlaceBid},
	"BUY_NOW":         {needsAuth: true, minArgs: 2, uidArg: 1, handle: handleBuyNow},
	"BID_HISTORY":     {needsAuth: true, minArgs: 2, uidArg: 1, handle: handleBidHistory},
	"AUCTION_HISTORY": {needsAuth: true, minArgs: 1, uidArg: 0, handle: handleAuctionHistory},
}

// dispatch checks a command's preconditions and runs its handler. Validation
// failures produce a typed failure frame and never tear the connection down.
func (s *Server) dispatch(ctx context.Context, sess *session.Session, req protocol.Request) string {
	cmd, ok := commands[req.Command]
	if !ok {
		return protocol.Error("Unknown command: " + req.Command)
	}

	prefix := cmd.failPrefix
	if prefix == "" {
		prefix = req.Command
	}

	ctx, span := s.tracer.Start(ctx, "Server.dispatch",
		trace.WithAttributes(attribute.String("command", req.Command)))
	defer span.End()

	if cmd.needsAuth && sess.UID == 0 {
		return protocol.Fail(prefix, "Not logged in")
	}
	if len(req.Args) < cmd.minArgs {
		return protocol.Fail(prefix, "Invalid arguments")
	}
	if cmd.uidArg >= 0 {
		uid, err := strconv.ParseInt(req.Args[cmd.uidArg], 10, 64)
		if err != nil {
			return protocol.Fail(prefix, "Invalid arguments")
		}
		if uid != sess.UID {
			return protocol.Fail(prefix, "Session mismatch")
		}
	}

	resp, err := cmd.handle(ctx, s, sess, req.Args)
	if err != nil {
		return protocol.Fail(prefix, err.Error())
	}
	return resp
}

func handleRegister(ctx context.Context, s *Server, sess *session.Session, args []string) (string, error) {
	email := ""
	if len(args) > 2 {
		email = args[2]
	}
	return s.hub.Register(ctx, args[0], args[1], email)
}

func handleLogin(ctx context.Context, s *Server, sess *session.Session, args []string) (string, error) {
	return s.hub.Login(ctx, sess, args[0], args[1])
}

func handleCreateRoom(ctx context.Context, s *Server, sess *session.Session, args []string) (string, error) {
	maxPart, err1 := strconv.Atoi(args[3])
	durMin, err2 := strconv.Atoi(args[4])
	if err1 != nil || err2 != nil {
		return "", hub.ErrBadRequest
	}
	return s.hub.CreateRoom(ctx, sess, args[1], args[2], maxPart, durMin)
}

func handleListRooms(ctx context.Context, s *Server, sess *session.Session, args []string) (string, error) {
	return s.hub.ListRooms(ctx, sess)
}

func handleJoinRoom(ctx context.Context, s *Server, sess *session.Session, args []string) (string, error) {
	roomID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return "", hub.ErrBadRequest
	}
	return s.hub.JoinRoom(ctx, sess, roomID)
}

func handleLeaveRoom(ctx context.Context, s *Server, sess *session.Session, args []string) (string, error) {
	return s.hub.LeaveRoom(ctx, sess)
}

func handleRoomDetail(ctx context.Context, s *Server, sess *session.Session, args []string) (string, error) {
	roomID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "", hub.ErrBadRequest
	}
	return s.hub.RoomDetail(ctx, sess, roomID)
}

func handleMyRoom(ctx context.Context, s *Server, sess *session.Session, args []string) (string, error) {
	return s.hub.MyRoom(ctx, sess)
}

func handleCreateAuction(ctx context.Context, s *Server, sess *session.Session, args []string) (string, error) {
	roomID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return "", hub.ErrBadRequest
	}
	start, err1 := domain.ParseMoney(args[4])
	buyNow, err2 := domain.ParseMoney(args[5])
	incr, err3 := domain.ParseMoney(args[6])
	durMin, err4 := strconv.Atoi(args[7])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return "", hub.ErrBadRequest
	}
	return s.hub.CreateAuction(ctx, sess, roomID, args[2], args[3], start, buyNow, incr, durMin)
}

func handleListAuctions(ctx context.Context, s *Server, sess *session.Session, args []string) (string, error) {
	return s.hub.ListAuctions(ctx, sess)
}

func handleMyAuctions(ctx context.Context, s *Server, sess *session.Session, args []string) (string, error) {
	return s.hub.MyAuctions(ctx, sess)
}

func handleAuctionDetail(ctx context.Context, s *Server, sess *session.Session, args []string) (string, error) {
	auctionID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "", hub.ErrBadRequest
	}
	return s.hub.AuctionDetail(ctx, sess, auctionID)
}

func handlePlaceBid(ctx context.Context, s *Server, sess *session.Session, args []string) (string, error) {
	auctionID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "", hub.ErrBadRequest
	}
	amount, err := domain.ParseMoney(args[2])
	if err != nil {
		return "", hub.ErrBadRequest
	}
	return s.hub.PlaceBid(ctx, sess, auctionID, amount)
}

func handleBuyNow(ctx context.Context, s *Server, sess *session.Session, args []string) (string, error) {
	auctionID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "", hub.ErrBadRequest
	}
	return s.hub.BuyNow(ctx, sess, auctionID)
}

func handleBidHistory(ctx context.Context, s *Server, sess *session.Session, args []string) (string, error) {
	auctionID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "", hub.ErrBadRequest
	}
	return s.hub.BidHistory(ctx, sess, auctionID)
}

func handleAuctionHistory(ctx context.Context, s *Server, sess *session.Session, args []string) (string, error) {
	return s.hub.AuctionHistory(ctx, sess)
}
