// Package server accepts TCP connections and runs one read loop per
// connection: scan a line, parse it, dispatch it, queue the response on the
// session's outbound stream. Push notifications ride the same stream, so a
// client sees its responses and the room's events in one total order.
package server

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"

	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/auctionroom/internal/hub"
	"github.com/jensholdgaard/auctionroom/internal/protocol"
	"github.com/jensholdgaard/auctionroom/internal/session"
)

// Server wires the acceptor to the hub.
type Server struct {
	hub    *hub.Hub
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates a Server.
func New(h *hub.Hub, logger *slog.Logger, tp trace.TracerProvider) *Server {
	return &Server{
		hub:    h,
		logger: logger,
		tracer: tp.Tracer("github.com/jensholdgaard/auctionroom/internal/server"),
	}
}

// Serve accepts connections until ctx is cancelled, then closes the
// listener. Live connections are torn down through the hub.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.logger.InfoContext(ctx, "accepting connections", slog.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

// handleConn runs the per-connection read loop. Any exit path detaches the
// session, which auto-leaves its room.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	sess := session.New(conn)
	defer s.hub.Disconnect(ctx, sess)

	s.logger.InfoContext(ctx, "connection opened", slog.String("addr", sess.RemoteAddr()))

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 1024), protocol.MaxFrameSize)

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}

		req := protocol.Parse(line)
		if req.Command == "QUIT" {
			return
		}

		if resp := s.dispatch(ctx, sess, req); resp != "" {
			sess.Send(resp)
		}
	}

	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			// The line reader cannot resynchronise past an oversized
			// frame, so the connection is dropped.
			sess.Send(protocol.Error("Frame too large"))
			return
		}
		if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
			s.logger.WarnContext(ctx, "connection read failed",
				slog.String("addr", sess.RemoteAddr()),
				slog.Any("error", err),
			)
		}
	}
}
