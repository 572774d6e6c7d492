package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/auctionroom/internal/domain"
)

// SnapshotStore implements store.Persister backed by Postgres.
type SnapshotStore struct {
	db *sqlx.DB
}

// NewSnapshotStore returns a new SnapshotStore.
func NewSnapshotStore(db *sqlx.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save replaces all four tables with the snapshot contents in one
// transaction.
func (s *SnapshotStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Children first to satisfy foreign keys.
	for _, table := range []string{"bids", "auctions", "rooms", "users"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for i := range snap.Users {
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO users (id, username, credential, email, balance, status, created_at)
			 VALUES (:id, :username, :credential, :email, :balance, :status, :created_at)`,
			&snap.Users[i],
		); err != nil {
			return fmt.Errorf("inserting user %d: %w", snap.Users[i].ID, err)
		}
	}

	for i := range snap.Rooms {
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO rooms (id, name, description, max_participants, current_participants,
			                    status, start_time, end_time, creator_id, total_auctions)
			 VALUES (:id, :name, :description, :max_participants, :current_participants,
			         :status, :start_time, :end_time, :creator_id, :total_auctions)`,
			&snap.Rooms[i],
		); err != nil {
			return fmt.Errorf("inserting room %d: %w", snap.Rooms[i].ID, err)
		}
	}

	for i := range snap.Auctions {
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO auctions (id, seller_id, room_id, title, description, start_price,
			                       current_price, buy_now_price, min_increment, start_time,
			                       end_time, status, winner_id, total_bids, warning_sent)
			 VALUES (:id, :seller_id, :room_id, :title, :description, :start_price,
			         :current_price, :buy_now_price, :min_increment, :start_time,
			         :end_time, :status, :winner_id, :total_bids, :warning_sent)`,
			&snap.Auctions[i],
		); err != nil {
			return fmt.Errorf("inserting auction %d: %w", snap.Auctions[i].ID, err)
		}
	}

	for i := range snap.Bids {
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO bids (id, auction_id, bidder_id, amount, bid_time)
			 VALUES (:id, :auction_id, :bidder_id, :amount, :bid_time)`,
			&snap.Bids[i],
		); err != nil {
			return fmt.Errorf("inserting bid %d: %w", snap.Bids[i].ID, err)
		}
	}

	return tx.Commit()
}

// Load reads all four collections ordered by id.
func (s *SnapshotStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{}

	if err := s.db.SelectContext(ctx, &snap.Users,
		`SELECT id, username, credential, email, balance, status, created_at
		 FROM users ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("loading users: %w", err)
	}
	if err := s.db.SelectContext(ctx, &snap.Rooms,
		`SELECT id, name, description, max_participants, current_participants,
		        status, start_time, end_time, creator_id, total_auctions
		 FROM rooms ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("loading rooms: %w", err)
	}
	if err := s.db.SelectContext(ctx, &snap.Auctions,
		`SELECT id, seller_id, room_id, title, description, start_price,
		        current_price, buy_now_price, min_increment, start_time,
		        end_time, status, winner_id, total_bids, warning_sent
		 FROM auctions ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("loading auctions: %w", err)
	}
	if err := s.db.SelectContext(ctx, &snap.Bids,
		`SELECT id, auction_id, bidder_id, amount, bid_time
		 FROM bids ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("loading bids: %w", err)
	}

	return snap, nil
}
