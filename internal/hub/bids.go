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

// PlaceBid validates and records a bid. The bid amount is escrowed: the
// bidder is debited on acceptance and the previous highest bidder refunded
// in the same critical section, so money is conserved at every instant.
func (h *Hub) PlaceBid(ctx context.Context, s *session.Session, auctionID int64, amount domain.Money) (string, error) {
	ctx, span := h.tracer.Start(ctx, "Hub.PlaceBid",
		trace.WithAttributes(
			attribute.Int64("auction_id", auctionID),
			attribute.String("amount", amount.String()),
		))
	defer span.End()

	if amount <= 0 {
		return "", ErrBadRequest
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	a := h.auctionByID(auctionID)
	if a == nil {
		return "", ErrAuctionNotFound
	}
	if s.RoomID != a.RoomID {
		return "", ErrNotSameRoom
	}
	now := h.clock.Now()
	if a.Status != domain.AuctionActive || now.After(a.EndTime) {
		return "", ErrAuctionNotActive
	}
	if s.UID == a.SellerID {
		return "", ErrSelfBid
	}
	if amount < a.CurrentPrice+a.MinIncrement {
		return "", ErrBidTooLow
	}
	if len(h.bids) >= h.limits.MaxBids {
		return "", ErrDatabaseFull
	}

	bidder := h.userByID(s.UID)
	available := bidder.Balance
	if a.TotalBids > 0 && a.WinnerID == s.UID {
		// Raising one's own winning bid releases the escrowed amount.
		available += a.CurrentPrice
	}
	if available < amount {
		return "", ErrInsufficientBalance
	}

	if a.TotalBids > 0 {
		if prev := h.userByID(a.WinnerID); prev != nil {
			prev.Balance += a.CurrentPrice
		}
	}
	bidder.Balance -= amount

	b := domain.Bid{
		ID:        int64(len(h.bids) + 1),
		AuctionID: a.ID,
		BidderID:  s.UID,
		Amount:    amount,
		Time:      now,
	}
	h.bids = append(h.bids, b)

	extended := false
	if a.EndTime.Sub(now) < h.snipeWindow {
		a.EndTime = now.Add(h.snipeWindow)
		extended = true
	}
	a.CurrentPrice = amount
	a.WinnerID = s.UID
	a.TotalBids++

	left := secondsLeft(now, a.EndTime)
	if extended {
		h.broadcastRoomLocked(a.RoomID, protocol.Frame("NEW_BID_WARNING",
			strconv.FormatInt(a.ID, 10),
			s.Username,
			amount.String(),
			strconv.Itoa(a.TotalBids),
			strconv.FormatInt(left, 10),
		), s)
	} else {
		h.broadcastRoomLocked(a.RoomID, protocol.Frame("NEW_BID",
			strconv.FormatInt(a.ID, 10),
			s.Username,
			amount.String(),
			strconv.Itoa(a.TotalBids),
		), s)
	}

	if err := h.persistLocked(ctx); err != nil {
		return "", err
	}

	h.logger.InfoContext(ctx, "bid accepted",
		slog.Int64("auction_id", a.ID),
		slog.Int64("bidder", s.UID),
		slog.String("amount", amount.String()),
		slog.Bool("extended", extended),
	)
	return protocol.Frame("BID_SUCCESS",
		strconv.FormatInt(a.ID, 10),
		amount.String(),
		strconv.Itoa(a.TotalBids),
		strconv.FormatInt(left, 10),
	), nil
}

// BuyNow settles an auction immediately at its buy-now price.
func (h *Hub) BuyNow(ctx context.Context, s *session.Session, auctionID int64) (string, error) {
	ctx, span := h.tracer.Start(ctx, "Hub.BuyNow",
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
	now := h.clock.Now()
	if a.Status != domain.AuctionActive || now.After(a.EndTime) {
		return "", ErrAuctionNotActive
	}
	if s.UID == a.SellerID {
		return "", ErrSelfBid
	}
	if a.BuyNowPrice <= 0 {
		return "", ErrBuyNowDisabled
	}

	buyer := h.userByID(s.UID)
	available := buyer.Balance
	if a.TotalBids > 0 && a.WinnerID == s.UID {
		available += a.CurrentPrice
	}
	if available < a.BuyNowPrice {
		return "", ErrInsufficientBalance
	}

	if a.TotalBids > 0 {
		if prev := h.userByID(a.WinnerID); prev != nil {
			prev.Balance += a.CurrentPrice
		}
	}
	buyer.Balance -= a.BuyNowPrice
	if seller := h.userByID(a.SellerID); seller != nil {
		seller.Balance += a.BuyNowPrice
	}

	a.CurrentPrice = a.BuyNowPrice
	a.WinnerID = s.UID
	a.Status = domain.AuctionEnded
	a.EndTime = now

	h.broadcastRoomLocked(a.RoomID, protocol.Frame("AUCTION_ENDED",
		strconv.FormatInt(a.ID, 10),
		a.Title,
		s.Username,
		a.CurrentPrice.String(),
		strconv.Itoa(a.TotalBids),
	), s)

	if err := h.persistLocked(ctx); err != nil {
		return "", err
	}

	h.logger.InfoContext(ctx, "auction bought out",
		slog.Int64("auction_id", a.ID),
		slog.Int64("buyer", s.UID),
		slog.String("price", a.CurrentPrice.String()),
	)
	return protocol.Frame("BUY_NOW_SUCCESS", strconv.FormatInt(a.ID, 10)), nil
}

// BidHistory renders the auction's last 20 bids, newest first.
func (h *Hub) BidHistory(ctx context.Context, s *session.Session, auctionID int64) (string, error) {
	_, span := h.tracer.Start(ctx, "Hub.BidHistory",
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

	var recs []string
	for i := len(h.bids) - 1; i >= 0 && len(recs) < 20; i-- {
		b := &h.bids[i]
		if b.AuctionID != auctionID {
			continue
		}
		recs = append(recs, protocol.Rec(
			h.username(b.BidderID),
			b.Amount.String(),
			b.Time.Format(protocol.TimeLayout),
		))
	}
	return protocol.List("BID_HISTORY", recs), nil
}
