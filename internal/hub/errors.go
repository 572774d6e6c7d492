package hub

import "errors"

// Operation failures form a closed taxonomy. The error text is the reason
// carried in the failure frame, so these strings are part of the wire
// contract.
var (
	ErrNotLoggedIn         = errors.New("Not logged in")
	ErrUsernameTaken       = errors.New("Username already exists")
	ErrUserNotFound        = errors.New("User not found")
	ErrWrongPassword       = errors.New("Wrong password")
	ErrUserDisabled        = errors.New("Account disabled")
	ErrBadRequest          = errors.New("Invalid arguments")
	ErrDatabaseFull        = errors.New("Database full")
	ErrRoomNotFound        = errors.New("Room not found")
	ErrRoomEnded           = errors.New("Room ended")
	ErrRoomFull            = errors.New("Room full")
	ErrAlreadyInRoom       = errors.New("Already in a room")
	ErrNotInRoom           = errors.New("Not in any room")
	ErrRoomNameTaken       = errors.New("Room name already exists")
	ErrNotRoomCreator      = errors.New("Not room creator")
	ErrAuctionNotFound     = errors.New("Auction not found")
	ErrAuctionNotActive    = errors.New("Auction not active")
	ErrBidTooLow           = errors.New("Bid too low")
	ErrSelfBid             = errors.New("Cannot bid on own auction")
	ErrInsufficientBalance = errors.New("Insufficient balance")
	ErrBuyNowDisabled      = errors.New("Buy now not available")
	ErrNotSameRoom         = errors.New("Not in auction room")
	ErrInternal            = errors.New("Internal")
)
