package server_test

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/auctionroom/internal/auth"
	"github.com/jensholdgaard/auctionroom/internal/clock"
	"github.com/jensholdgaard/auctionroom/internal/domain"
	"github.com/jensholdgaard/auctionroom/internal/hub"
	"github.com/jensholdgaard/auctionroom/internal/server"
	"github.com/jensholdgaard/auctionroom/internal/store"
)

var baseTime = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type memStore struct {
	mu   sync.Mutex
	snap *domain.Snapshot
}

func (m *memStore) Save(_ context.Context, snap *domain.Snapshot) error {
	m.mu.Lock()
	m.snap = snap
	m.mu.Unlock()
	return nil
}

func (m *memStore) Load(context.Context) (*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return &domain.Snapshot{}, nil
	}
	return m.snap, nil
}

// startServer runs a full server on a loopback port with a frozen clock.
func startServer(t *testing.T) (addr string, mock *clock.Mock, h *hub.Hub) {
	t.Helper()

	backend := &store.Backend{
		Persister: &memStore{},
		Closer:    store.NopCloser,
		Ping:      func(context.Context) error { return nil },
	}
	mock = clock.NewMock(baseTime)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h = hub.New(backend, auth.Plaintext{}, mock, logger, noop.NewTracerProvider(), hub.Options{
		Limits:        domain.DefaultLimits(),
		SnipeWindow:   30 * time.Second,
		SweepInterval: 5 * time.Second,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := server.New(h, logger, noop.NewTracerProvider())
	go srv.Serve(ctx, ln)

	return ln.Addr().String(), mock, h
}

// client is a line-oriented test peer.
type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) send(line string) {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Fatalf("send %q: %v", line, err)
	}
}

func (c *client) readLine() (string, error) {
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.r.ReadString('\n')
	return strings.TrimSuffix(line, "\n"), err
}

// expect reads exactly one frame and requires an exact match.
func (c *client) expect(want string) {
	c.t.Helper()
	got, err := c.readLine()
	if err != nil {
		c.t.Fatalf("expecting %q: %v", want, err)
	}
	if got != want {
		c.t.Fatalf("got frame %q, want %q", got, want)
	}
}

// waitFor skips frames until the wanted one arrives. Use when pushes from
// other sessions may interleave.
func (c *client) waitFor(want string) {
	c.t.Helper()
	for {
		got, err := c.readLine()
		if err != nil {
			c.t.Fatalf("waiting for %q: %v", want, err)
		}
		if got == want {
			return
		}
	}
}

func (c *client) expectClosed() {
	c.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		if _, err := c.r.ReadString('\n'); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
	}
	c.t.Fatal("connection still open, want closed")
}

func TestRegisterLoginDuplicate(t *testing.T) {
	addr, _, _ := startServer(t)
	c := dial(t, addr)

	c.send("REGISTER|alice pw a@x")
	c.expect("REGISTER_SUCCESS|1|alice")

	c.send("REGISTER|alice pw2 b@x")
	c.expect("REGISTER_FAIL|Username already exists")

	c.send("LOGIN|alice pw")
	c.expect("LOGIN_SUCCESS|1|alice|1000000.00")
}

func TestSingleSession(t *testing.T) {
	addr, _, _ := startServer(t)

	a := dial(t, addr)
	a.send("REGISTER|alice pw a@x")
	a.expect("REGISTER_SUCCESS|1|alice")
	a.send("LOGIN|alice pw")
	a.expect("LOGIN_SUCCESS|1|alice|1000000.00")

	b := dial(t, addr)
	b.send("LOGIN|alice pw")
	b.expect("LOGIN_SUCCESS|1|alice|1000000.00")

	a.waitFor("FORCE_LOGOUT|Another login detected")
	a.expectClosed()

	// The surviving session still works.
	b.send("MY_ROOM|1")
	b.expect("MY_ROOM|0|Not in any room|0|0")
}

func TestRoomCreateJoin(t *testing.T) {
	addr, _, _ := startServer(t)

	a := dial(t, addr)
	a.send("REGISTER|alice pw a@x")
	a.expect("REGISTER_SUCCESS|1|alice")
	a.send("LOGIN|alice pw")
	a.expect("LOGIN_SUCCESS|1|alice|1000000.00")

	b := dial(t, addr)
	b.send("REGISTER|bob pw b@x")
	b.expect("REGISTER_SUCCESS|2|bob")
	b.send("LOGIN|bob pw")
	b.expect("LOGIN_SUCCESS|2|bob|1000000.00")

	a.send("CREATE_ROOM|1|Vintage|Old stuff|5|60")
	a.expect("CREATE_ROOM_SUCCESS|1|Vintage")

	b.waitFor("NEW_ROOM|1|Vintage|alice|5")
	b.send("JOIN_ROOM|2|1")
	b.expect("JOIN_ROOM_SUCCESS|1|Vintage")

	a.waitFor("USER_JOINED|bob|1")

	b.send("MY_ROOM|2")
	b.expect("MY_ROOM|1|Vintage|2|0")
}

// setupBidders returns alice (room creator and seller) and bob joined in
// room 1 with auction 1: start 100, buy-now 500, increment 10, one minute.
func setupBidders(t *testing.T, addr string) (a, b *client) {
	t.Helper()

	a = dial(t, addr)
	a.send("REGISTER|alice pw a@x")
	a.expect("REGISTER_SUCCESS|1|alice")
	a.send("LOGIN|alice pw")
	a.expect("LOGIN_SUCCESS|1|alice|1000000.00")

	b = dial(t, addr)
	b.send("REGISTER|bob pw b@x")
	b.expect("REGISTER_SUCCESS|2|bob")
	b.send("LOGIN|bob pw")
	b.expect("LOGIN_SUCCESS|2|bob|1000000.00")

	a.send("CREATE_ROOM|1|Vintage|Old stuff|5|60")
	a.expect("CREATE_ROOM_SUCCESS|1|Vintage")
	b.send("JOIN_ROOM|2|1")
	b.waitFor("JOIN_ROOM_SUCCESS|1|Vintage")

	a.send("CREATE_AUCTION|1|1|Clock|Ticks|100|500|10|1")
	a.waitFor("CREATE_AUCTION_SUCCESS|1|Clock")
	b.waitFor("NEW_AUCTION|1|Clock|100.00|500.00|10.00|60")
	return a, b
}

func TestBidFloorAndAntiSnipe(t *testing.T) {
	addr, mock, _ := startServer(t)
	a, b := setupBidders(t, addr)

	b.send("PLACE_BID|1|2|105")
	b.expect("BID_FAIL|Bid too low")

	b.send("PLACE_BID|1|2|110")
	b.expect("BID_SUCCESS|1|110.00|1|60")
	a.waitFor("NEW_BID|1|bob|110.00|1")

	mock.Advance(55 * time.Second)
	b.send("PLACE_BID|1|2|120")
	b.expect("BID_SUCCESS|1|120.00|2|30")
	a.waitFor("NEW_BID_WARNING|1|bob|120.00|2|30")
}

func TestBuyNowTerminal(t *testing.T) {
	addr, _, _ := startServer(t)
	a, b := setupBidders(t, addr)

	b.send("BUY_NOW|1|2")
	b.expect("BUY_NOW_SUCCESS|1")
	a.waitFor("AUCTION_ENDED|1|Clock|bob|500.00|0")

	b.send("PLACE_BID|1|2|600")
	b.expect("BID_FAIL|Auction not active")
}

func TestDisconnectAutoLeave(t *testing.T) {
	addr, _, _ := startServer(t)
	a, b := setupBidders(t, addr)

	b.conn.Close()
	a.waitFor("USER_LEFT|bob|1")

	a.send("ROOM_DETAIL|1")
	a.expect("ROOM_DETAIL|1|Vintage|Old stuff|alice|1|5|active|3600|1")

	// Reconnected bob starts roomless.
	b2 := dial(t, addr)
	b2.send("LOGIN|bob pw")
	b2.expect("LOGIN_SUCCESS|2|bob|1000000.00")
	b2.send("MY_ROOM|2")
	b2.expect("MY_ROOM|0|Not in any room|0|0")
}

func TestSweepNotifiesClients(t *testing.T) {
	addr, mock, h := startServer(t)
	a, b := setupBidders(t, addr)

	b.send("PLACE_BID|1|2|110")
	b.expect("BID_SUCCESS|1|110.00|1|60")
	a.waitFor("NEW_BID|1|bob|110.00|1")

	mock.Advance(35 * time.Second)
	h.Sweep(context.Background())
	a.waitFor("AUCTION_WARNING|1|Clock|110.00|25")
	b.waitFor("AUCTION_WARNING|1|Clock|110.00|25")

	mock.Advance(30 * time.Second)
	h.Sweep(context.Background())
	a.waitFor("AUCTION_ENDED|1|Clock|bob|110.00|1")
	b.waitFor("AUCTION_ENDED|1|Clock|bob|110.00|1")
}

func TestPreconditions(t *testing.T) {
	addr, _, _ := startServer(t)
	c := dial(t, addr)

	c.send("LIST_ROOMS|")
	c.expect("LIST_ROOMS_FAIL|Not logged in")

	c.send("FOO|bar")
	c.expect("ERROR|Unknown command: FOO")

	c.send("REGISTER|alice pw a@x")
	c.expect("REGISTER_SUCCESS|1|alice")
	c.send("LOGIN|alice pw")
	c.expect("LOGIN_SUCCESS|1|alice|1000000.00")

	// A payload uid that disagrees with the session is rejected.
	c.send("MY_ROOM|7")
	c.expect("MY_ROOM_FAIL|Session mismatch")

	c.send("JOIN_ROOM|1")
	c.expect("JOIN_ROOM_FAIL|Invalid arguments")

	c.send("LIST_AUCTIONS|1")
	c.expect("LIST_AUCTIONS_FAIL|Not in any room")
}

func TestFrameTooLarge(t *testing.T) {
	addr, _, _ := startServer(t)
	c := dial(t, addr)

	c.send("REGISTER|" + strings.Repeat("x", 5000))
	c.waitFor("ERROR|Frame too large")
	c.expectClosed()
}

func TestQuit(t *testing.T) {
	addr, _, _ := startServer(t)
	c := dial(t, addr)

	c.send("QUIT|")
	c.expectClosed()
}
