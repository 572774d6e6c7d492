package session_test

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/jensholdgaard/auctionroom/internal/session"
)

func TestSend_DeliversInOrder(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	s := session.New(server)
	defer s.Close()

	frames := []string{"LOGIN_OK|1|alice\n", "NEW_BID|3|110.00|bob\n", "ROOM_ENDED|1|Vintage\n"}
	for _, f := range frames {
		if !s.Send(f) {
			t.Fatalf("Send(%q) = false, want true", f)
		}
	}

	r := bufio.NewReader(client)
	for _, want := range frames {
		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		got, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading frame: %v", err)
		}
		if got != want {
			t.Errorf("frame = %q, want %q", got, want)
		}
	}
}

func TestSend_DropsWhenQueueFull(t *testing.T) {
	// The client side never reads, so the pump blocks on the first write and
	// the queue eventually fills.
	client, server := net.Pipe()
	defer client.Close()

	s := session.New(server)
	defer s.Close()

	dropped := false
	for i := 0; i < 200; i++ {
		if !s.Send("NEW_BID|1|110.00|bob\n") {
			dropped = true
			break
		}
	}
	if !dropped {
		t.Error("expected Send to report a drop once the queue filled")
	}
}

func TestSend_AfterClose(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	s := session.New(server)
	s.Close()

	if s.Send("PING\n") {
		t.Error("Send after Close = true, want false")
	}
	if !s.Closed() {
		t.Error("Closed() = false after Close")
	}
}

func TestClose_Idempotent(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	s := session.New(server)
	s.Close()
	s.Close()
}

func TestClose_UnblocksPeerRead(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	s := session.New(server)

	errCh := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := client.Read(buf)
		errCh <- err
	}()

	s.Close()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected read error after Close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("peer read did not unblock after Close")
	}
}
