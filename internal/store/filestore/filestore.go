// Package filestore persists snapshots as four flat files under a data
// directory: users.dat, rooms.dat, auctions.dat, bids.dat. Each file opens
// with an 8-byte format header followed by a packed sequence of uint32
// big-endian length-prefixed JSON records in id order.
//
// Format v1 is not migration-compatible with the packed C structs the
// original service wrote; a v1 store starts fresh. The header is checked on
// load so a future format bump can branch instead of misparsing.
package filestore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jensholdgaard/auctionroom/internal/config"
	"github.com/jensholdgaard/auctionroom/internal/domain"
	"github.com/jensholdgaard/auctionroom/internal/store"
)

const fileMagic = "ARSNAP01"

const (
	usersFile    = "users.dat"
	roomsFile    = "rooms.dat"
	auctionsFile = "auctions.dat"
	bidsFile     = "bids.dat"
)

func init() {
	store.Register("file", openFile)
}

// openFile is the store.Driver for the "file" backend.
func openFile(_ context.Context, cfg config.DatabaseConfig) (*store.Backend, error) {
	s := New(cfg.Dir)
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", s.dir, err)
	}
	return &store.Backend{
		Persister: s,
		Closer:    store.NopCloser,
		Ping:      s.ping,
	}, nil
}

// Store writes snapshots to flat files under dir.
type Store struct {
	dir string
}

// New returns a Store rooted at dir. The directory is created on first Save.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Save writes all four collections. Each file is written to a sibling temp
// path and renamed into place, so a concurrent loader sees either the old
// or the new contents.
func (s *Store) Save(_ context.Context, snap *domain.Snapshot) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", s.dir, err)
	}

	if err := writeRecords(filepath.Join(s.dir, usersFile), snap.Users); err != nil {
		return fmt.Errorf("saving users: %w", err)
	}
	if err := writeRecords(filepath.Join(s.dir, roomsFile), snap.Rooms); err != nil {
		return fmt.Errorf("saving rooms: %w", err)
	}
	if err := writeRecords(filepath.Join(s.dir, auctionsFile), snap.Auctions); err != nil {
		return fmt.Errorf("saving auctions: %w", err)
	}
	if err := writeRecords(filepath.Join(s.dir, bidsFile), snap.Bids); err != nil {
		return fmt.Errorf("saving bids: %w", err)
	}
	return nil
}

// Load reads all four collections. Missing files yield empty collections so
// a fresh directory starts a fresh state.
func (s *Store) Load(_ context.Context) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{}

	if err := readRecords(filepath.Join(s.dir, usersFile), &snap.Users); err != nil {
		return nil, fmt.Errorf("loading users: %w", err)
	}
	if err := readRecords(filepath.Join(s.dir, roomsFile), &snap.Rooms); err != nil {
		return nil, fmt.Errorf("loading rooms: %w", err)
	}
	if err := readRecords(filepath.Join(s.dir, auctionsFile), &snap.Auctions); err != nil {
		return nil, fmt.Errorf("loading auctions: %w", err)
	}
	if err := readRecords(filepath.Join(s.dir, bidsFile), &snap.Bids); err != nil {
		return nil, fmt.Errorf("loading bids: %w", err)
	}
	return snap, nil
}

func (s *Store) ping(_ context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("data directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data path %s is not a directory", s.dir)
	}
	return nil
}

// writeRecords marshals items into the length-prefixed file format and
// renames the finished temp file over path.
func writeRecords[T any](path string, items []T) error {
	var buf bytes.Buffer
	buf.WriteString(fileMagic)

	for i := range items {
		data, err := json.Marshal(items[i])
		if err != nil {
			return fmt.Errorf("marshalling record %d: %w", i, err)
		}
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(data)))
		buf.Write(n[:])
		buf.Write(data)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}

func readRecords[T any](path string, out *[]T) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if len(data) < len(fileMagic) || string(data[:len(fileMagic)]) != fileMagic {
		return fmt.Errorf("%s: unrecognised snapshot format", path)
	}
	data = data[len(fileMagic):]

	for len(data) > 0 {
		if len(data) < 4 {
			return fmt.Errorf("%s: truncated record header", path)
		}
		n := binary.BigEndian.Uint32(data[:4])
		data = data[4:]
		if uint32(len(data)) < n {
			return fmt.Errorf("%s: truncated record body: %w", path, io.ErrUnexpectedEOF)
		}

		var item T
		if err := json.Unmarshal(data[:n], &item); err != nil {
			return fmt.Errorf("%s: unmarshalling record: %w", path, err)
		}
		*out = append(*out, item)
		data = data[n:]
	}
	return nil
}
