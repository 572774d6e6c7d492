// Package domain holds the auction service entities and the snapshot value
// that persistence drivers store and load. Entities carry no locking; the
// hub owns all mutation.
package domain

import "time"

// UserStatus is the lifecycle state of a user account.
type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserDisabled UserStatus = "disabled"
)

// RoomStatus is the lifecycle state of an auction room.
type RoomStatus string

const (
	RoomWaiting RoomStatus = "waiting"
	RoomActive  RoomStatus = "active"
	RoomEnded   RoomStatus = "ended"
)

// AuctionStatus is the lifecycle state of an auction.
type AuctionStatus string

const (
	AuctionActive AuctionStatus = "active"
	AuctionEnded  AuctionStatus = "ended"
)

// MaxUsernameLen bounds usernames on registration.
const MaxUsernameLen = 49

// StartingBalance is granted to every new account.
var StartingBalance = Units(1_000_000)

// User is a registered account. Credential is an opaque verifier string
// produced by the auth package; the hub never inspects it.
type User struct {
	ID         int64      `json:"id" db:"id"`
	Username   string     `json:"username" db:"username"`
	Credential string     `json:"credential" db:"credential"`
	Email      string     `json:"email" db:"email"`
	Balance    Money      `json:"balance" db:"balance"`
	Status     UserStatus `json:"status" db:"status"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// Room is a time-bounded container scoping auction visibility and
// broadcast. A room once ended never reopens.
type Room struct {
	ID                  int64      `json:"id" db:"id"`
	Name                string     `json:"name" db:"name"`
	Description         string     `json:"description" db:"description"`
	MaxParticipants     int        `json:"max_participants" db:"max_participants"`
	CurrentParticipants int        `json:"current_participants" db:"current_participants"`
	Status              RoomStatus `json:"status" db:"status"`
	StartTime           time.Time  `json:"start_time" db:"start_time"`
	EndTime             time.Time  `json:"end_time" db:"end_time"`
	CreatorID           int64      `json:"creator_id" db:"creator_id"`
	TotalAuctions       int        `json:"total_auctions" db:"total_auctions"`
}

// Auction is a single English ascending auction inside a room.
// WinnerID 0 means no bids yet; BuyNowPrice 0 means buy-now disabled.
type Auction struct {
	ID           int64         `json:"id" db:"id"`
	SellerID     int64         `json:"seller_id" db:"seller_id"`
	RoomID       int64         `json:"room_id" db:"room_id"`
	Title        string        `json:"title" db:"title"`
	Description  string        `json:"description" db:"description"`
	StartPrice   Money         `json:"start_price" db:"start_price"`
	CurrentPrice Money         `json:"current_price" db:"current_price"`
	BuyNowPrice  Money         `json:"buy_now_price" db:"buy_now_price"`
	MinIncrement Money         `json:"min_increment" db:"min_increment"`
	StartTime    time.Time     `json:"start_time" db:"start_time"`
	EndTime      time.Time     `json:"end_time" db:"end_time"`
	Status       AuctionStatus `json:"status" db:"status"`
	WinnerID     int64         `json:"winner_id" db:"winner_id"`
	TotalBids    int           `json:"total_bids" db:"total_bids"`
	WarningSent  bool          `json:"warning_sent" db:"warning_sent"`
}

// Bid is an accepted bid. Bids are append-only and never mutated.
type Bid struct {
	ID        int64     `json:"id" db:"id"`
	AuctionID int64     `json:"auction_id" db:"auction_id"`
	BidderID  int64     `json:"bidder_id" db:"bidder_id"`
	Amount    Money     `json:"amount" db:"amount"`
	Time      time.Time `json:"time" db:"bid_time"`
}

// Snapshot is a point-in-time copy of all four collections, each ordered
// by its dense monotonic id starting at 1.
type Snapshot struct {
	Users    []User
	Rooms    []Room
	Auctions []Auction
	Bids     []Bid
}

// Limits bounds the four collections. Appends beyond a limit are rejected.
type Limits struct {
	MaxUsers    int `yaml:"max_users"`
	MaxRooms    int `yaml:"max_rooms"`
	MaxAuctions int `yaml:"max_auctions"`
	MaxBids     int `yaml:"max_bids"`
}

// DefaultLimits mirrors the historical capacities of the service.
func DefaultLimits() Limits {
	return Limits{
		MaxUsers:    1000,
		MaxRooms:    100,
		MaxAuctions: 1000,
		MaxBids:     5000,
	}
}
