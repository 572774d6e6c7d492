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

// CreateAuction opens an auction in the caller's room. Only the room's
// creator may list auctions there.
func (h *Hub) CreateAuction(ctx context.Context, s *session.Session, roomID int64, title, desc string, startPrice, buyNowPrice, minIncrement domain.Money, durationMin int) (string, error) {
	ctx, span := h.tracer.Start(ctx, "Hub.CreateAuction",
		trace.WithAttributes(
			attribute.Int64("room_id", roomID),
			attribute.String("title", title),
		))
	defer span.End()

	if title == "" || startPrice <= 0 || minIncrement <= 0 || buyNowPrice < 0 || durationMin <= 0 {
		return "", ErrBadRequest
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if s.RoomID != roomID {
		return "", ErrNotSameRoom
	}
	room := h.roomByID(roomID)
	if room == nil {
		return "", ErrRoomNotFound
	}
	if room.Status == domain.RoomEnded {
		return "", ErrRoomEnded
	}
	if room.CreatorID != s.UID {
		return "", ErrNotRoomCreator
	}
	if len(h.auctions) >= h.limits.MaxAuctions {
		return "", ErrDatabaseFull
	}

	now := h.clock.Now()
	a := domain.Auction{
		ID:           int64(len(h.auctions) + 1),
		SellerID:     s.UID,
		RoomID:       roomID,
		Title:        title,
		Description:  desc,
		StartPrice:   startPrice,
		CurrentPrice: startPrice,
		BuyNowPrice:  buyNowPrice,
		MinIncrement: minIncrement,
		StartTime:    now,
		EndTime:      now.Add(time.Duration(durationMin) * time.Minute),
		Status:       domain.AuctionActive,
	}
	h.auctions = append(h.auctions, a)
	h.auctionIdx[a.ID] = len(h.auctions) - 1
	room.TotalAuctions++

	h.broadcastRoomLocked(roomID, protocol.Frame("NEW_AUCTION",
		strconv.FormatInt(a.ID, 10),
		a.Title,
		a.StartPrice.String(),
		a.BuyNowPrice.String(),
		a.MinIncrement.String(),
		strconv.FormatInt(secondsLeft(now, a.EndTime), 10),
	), s)

	if err := h.persistLocked(ctx); err != nil {
		return "", err
	}

	h.logger.InfoContext(ctx, "auction created",
		slog.Int64("auction_id", a.ID),
		slog.Int64("room_id", roomID),
		slog.Int64("seller", s.UID),
	)
	return protocol.Frame("CREATE_AUCTION_SUCCESS", strconv.FormatInt(a.ID, 10), a.Title), nil
}

// ListAuctions renders the active auctions in the caller's room.
func (h *Hub) ListAuctions(ctx context.Context, s *session.Session) (string, error) {
	_, span := h.tracer.Start(ctx, "Hub.ListAuctions")
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()

	if s.RoomID == 0 {
		return "", ErrNotInRoom
	}

	now := h.clock.Now()
	var recs []string
	for i := range h.auctions {
		a := &h.auctions[i]
		if a.RoomID != s.RoomID || a.Status != domain.AuctionActive {
			continue
		}
		recs = append(recs, protocol.Rec(
			strconv.FormatInt(a.ID, 10),
			a.Title,
			a.CurrentPrice.String(),
			a.BuyNowPrice.String(),
			strconv.FormatInt(secondsLeft(now, a.EndTime), 10),
			strconv.Itoa(a.TotalBids),
		))
	}
	return protocol.List("AUCTION_LIST", recs), nil
}

// MyAuctions renders every auction the caller is selling, any room, any
// status.
func (h *Hub) MyAuctions(ctx context.Context, s *session.Session) (string, error) {
	_, span := h.tracer.Start(ctx, "Hub.MyAuctions")
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now()
	var recs []string
	for i := range h.auctions {
		a := &h.auctions[i]
		if a.SellerID != s.UID {
			continue
		}
		left := int64(0)
		if a.Status == domain.AuctionActive {
			left = secondsLeft(now, a.EndTime)
		}
		recs = append(recs, protocol.Rec(
			strconv.FormatInt(a.ID, 10),
			a.Title,
			a.CurrentPrice.String(),
			a.BuyNowPrice.String(),
			strconv.FormatInt(left, 10),
			string(a.Status),
			strconv.Itoa(a.TotalBids),
		))
	}
	return protocol.List("MY_AUCTIONS", recs), nil
}

// AuctionDetail renders one auction. The caller must be in the auction's
// room.
func (h *Hub) AuctionDetail(ctx context.Context, s *session.Session, auctionID int64) (string, error) {
	_, span := h.tracer.Start(ctx, "Hub.AuctionDetail",
		trace.WithAttributes(attribute.Int64("auction_id", auctionID)))
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()

	a := h.auctionByID(auctionID)
	if a == nil {
		return "", ErrAuctionNotFound
	}
	if s.RoomID != a.RoomID {
		return "", ErrNotSameRoom
	}

	left := int64(0)
	if a.Status == domain.AuctionActive {
		left = secondsLeft(h.clock.Now(), a.EndTime)
	}
	return protocol.Frame("AUCTION_DETAIL",
		strconv.FormatInt(a.ID, 10),
		a.Title,
		a.Description,
		h.username(a.SellerID),
		a.StartPrice.String(),
		a.CurrentPrice.String(),
		a.BuyNowPrice.String(),
		a.MinIncrement.String(),
		strconv.FormatInt(left, 10),
		string(a.Status),
		strconv.Itoa(a.TotalBids),
	), nil
}

// AuctionHistory renders ended auctions, newest first.
func (h *Hub) AuctionHistory(ctx context.Context, s *session.Session) (string, error) {
	_, span := h.tracer.Start(ctx, "Hub.AuctionHistory")
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()

	var recs []string
	for i := len(h.auctions) - 1; i >= 0; i-- {
		a := &h.auctions[i]
		if a.Status != domain.AuctionEnded {
			continue
		}
		recs = append(recs, protocol.Rec(
			strconv.FormatInt(a.ID, 10),
			a.Title,
			a.CurrentPrice.String(),
			h.winnerName(a),
			settleMethod(a),
		))
	}
	return protocol.List("AUCTION_HISTORY", recs), nil
}

// winnerName renders an auction's winner, or the no-bids sentinel.
func (h *Hub) winnerName(a *domain.Auction) string {
	if a.WinnerID == 0 {
		return "No bids"
	}
	return h.username(a.WinnerID)
}

// settleMethod classifies how an ended auction concluded. Buy-now leaves the
// final price pinned to the buy-now price without a recorded bid at that
// amount, which is what this derivation keys on.
func settleMethod(a *domain.Auction) string {
	switch {
	case a.WinnerID == 0:
		return "no_bids"
	case a.BuyNowPrice > 0 && a.CurrentPrice == a.BuyNowPrice:
		return "buy_now"
	default:
		return "bid"
	}
}
