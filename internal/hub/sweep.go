package hub

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/jensholdgaard/auctionroom/internal/domain"
	"github.com/jensholdgaard/auctionroom/internal/protocol"
)

// Run drives the lifecycle sweeper until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.sweepInterval)
	defer ticker.Stop()

	h.logger.InfoContext(ctx, "lifecycle sweeper started",
		slog.Duration("interval", h.sweepInterval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sweep(ctx)
		}
	}
}

// Sweep performs one lifecycle pass: auction warnings, auction closure and
// room closure. Exported so tests can drive it against a mock clock.
func (h *Hub) Sweep(ctx context.Context) {
	ctx, span := h.tracer.Start(ctx, "Hub.Sweep")
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now()
	changed := false

	for i := range h.auctions {
		a := &h.auctions[i]
		if a.Status != domain.AuctionActive {
			continue
		}
		if !now.Before(a.EndTime) {
			h.endAuctionLocked(ctx, a)
			changed = true
			continue
		}
		if !a.WarningSent && a.EndTime.Sub(now) <= h.snipeWindow {
			a.WarningSent = true
			h.broadcastRoomLocked(a.RoomID, protocol.Frame("AUCTION_WARNING",
				strconv.FormatInt(a.ID, 10),
				a.Title,
				a.CurrentPrice.String(),
				strconv.FormatInt(secondsLeft(now, a.EndTime), 10),
			), nil)
			changed = true
		}
	}

	for i := range h.rooms {
		r := &h.rooms[i]
		if r.Status == domain.RoomEnded {
			continue
		}
		if !now.Before(r.EndTime) {
			h.endRoomLocked(ctx, r)
			changed = true
		}
	}

	if changed {
		_ = h.persistLocked(ctx)
	}
}

// endAuctionLocked settles and closes an auction. The winner was debited on
// bid acceptance, so closure only credits the seller. Terminal fields are
// never touched again.
func (h *Hub) endAuctionLocked(ctx context.Context, a *domain.Auction) {
	a.Status = domain.AuctionEnded
	if a.WinnerID != 0 {
		if seller := h.userByID(a.SellerID); seller != nil {
			seller.Balance += a.CurrentPrice
		}
	}

	h.broadcastRoomLocked(a.RoomID, protocol.Frame("AUCTION_ENDED",
		strconv.FormatInt(a.ID, 10),
		a.Title,
		h.winnerName(a),
		a.CurrentPrice.String(),
		strconv.Itoa(a.TotalBids),
	), nil)

	h.logger.InfoContext(ctx, "auction ended",
		slog.Int64("auction_id", a.ID),
		slog.String("winner", h.winnerName(a)),
		slog.String("final_price", a.CurrentPrice.String()),
		slog.Int("total_bids", a.TotalBids),
	)
}

// endRoomLocked closes a room whose time is up: every still-active auction
// in it is settled, every member is ejected and told, and the room is
// marked ended for good.
func (h *Hub) endRoomLocked(ctx context.Context, r *domain.Room) {
	for i := range h.auctions {
		a := &h.auctions[i]
		if a.RoomID == r.ID && a.Status == domain.AuctionActive {
			h.endAuctionLocked(ctx, a)
		}
	}

	frame := protocol.Frame("ROOM_ENDED", strconv.FormatInt(r.ID, 10), r.Name)
	for s := range h.sessions {
		if s.RoomID != r.ID {
			continue
		}
		s.RoomID = 0
		s.Send(frame)
	}

	r.CurrentParticipants = 0
	r.Status = domain.RoomEnded

	h.logger.InfoContext(ctx, "room ended",
		slog.Int64("room_id", r.ID),
		slog.String("name", r.Name),
	)
}
