// ABOUTME: TCP consumer server handing raw items to remote worker clients
// ABOUTME: One session goroutine per connection, close-and-requeue on errors

package consumer

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"geneva/broker"
	"geneva/candidate"
)

// TCPServer accepts remote client connections and serves them raw items
// over the fixed-width text protocol. Framing or deserialization failures
// close the offending session and requeue its in-flight item; other
// sessions are unaffected.
type TCPServer struct {
	broker      *broker.Broker
	addr        string
	mode        candidate.SerializationMode
	idleTimeout time.Duration
	logger      *zap.Logger

	listener net.Listener
	ready    chan struct{}
}

// NewTCPServer builds a server bound to addr once Run starts. idleTimeout
// bounds how long a ready client waits for work before receiving empty.
func NewTCPServer(b *broker.Broker, addr string, mode candidate.SerializationMode, idleTimeout time.Duration, logger *zap.Logger) *TCPServer {
	if idleTimeout <= 0 {
		idleTimeout = 500 * time.Millisecond
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &TCPServer{
		broker:      b,
		addr:        addr,
		mode:        mode,
		idleTimeout: idleTimeout,
		logger:      logger,
		ready:       make(chan struct{}),
	}
}

// Tag implements Consumer.
func (s *TCPServer) Tag() string { return "tcp" }

// Addr returns the bound listen address. Valid after WaitReady.
func (s *TCPServer) Addr() string {
	if s.listener == nil {
		return s.addr
	}

	return s.listener.Addr().String()
}

// WaitReady blocks until the listener is bound or ctx expires.
func (s *TCPServer) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run binds the listener and serves sessions until ctx is cancelled.
func (s *TCPServer) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Join(ErrTransport, err)
	}

	s.listener = listener
	close(s.ready)
	s.logger.Info("tcp consumer listening", zap.String("addr", listener.Addr().String()), zap.String("mode", s.mode.String()))

	g, gCtx := errgroup.WithContext(ctx)

	// Closing the listener unblocks Accept when the run context ends.
	g.Go(func() error {
		<-gCtx.Done()

		return listener.Close()
	})

	g.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if gCtx.Err() != nil {
					return nil
				}

				return errors.Join(ErrTransport, err)
			}

			g.Go(func() error {
				s.serveSession(gCtx, conn)

				return nil
			})
		}
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}

// serveSession speaks the protocol with one client. The session tracks
// every item it has handed out and not yet received back; if the session
// dies, those items return to the raw queue for re-submission.
func (s *TCPServer) serveSession(ctx context.Context, conn net.Conn) {
	inFlight := make(map[candidate.CourtierID]*candidate.Candidate)

	defer func() {
		_ = conn.Close()

		for _, item := range inFlight {
			if err := s.broker.Requeue(context.Background(), item, putTimeout); err != nil {
				s.logger.Warn("failed to requeue in-flight item",
					zap.Uint64("port", item.Courtier.PortID),
					zap.Int("position", item.Courtier.Position),
					zap.Error(err))
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		cmd, err := readCommand(conn)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("session read failed", zap.Error(err))
			}

			return
		}

		switch cmd {
		case CmdReady:
			item, ok, err := s.broker.GetRaw(ctx, s.idleTimeout)
			if err != nil || !ok {
				if werr := writeCommand(conn, CmdEmpty); werr != nil {
					return
				}

				continue
			}

			payload, err := item.Marshal(s.mode)
			if err != nil {
				// Undeliverable item; push it back rather than lose it.
				s.logger.Error("marshal failed", zap.Error(err))
				_ = s.broker.Requeue(ctx, item, putTimeout)

				if werr := writeCommand(conn, CmdEmpty); werr != nil {
					return
				}

				continue
			}

			inFlight[item.Courtier] = item
			if err := writeFrame(conn, CmdCompute, payload); err != nil {
				return
			}

		case CmdResult:
			payload, err := readPayload(conn)
			if err != nil {
				s.logger.Warn("bad result frame, closing session", zap.Error(err))

				return
			}

			returned, err := candidate.Unmarshal(s.mode, payload)
			if err != nil {
				s.logger.Warn("result deserialization failed, closing session", zap.Error(err))

				return
			}

			// The returned copy supersedes the handed-out item.
			delete(inFlight, returned.Courtier)
			if err := s.broker.PutProcessed(ctx, returned, putTimeout); err != nil {
				s.logger.Warn("failed to return processed item",
					zap.Uint64("port", returned.Courtier.PortID),
					zap.Error(err))
			}

		default:
			s.logger.Warn("unknown command, closing session", zap.String("command", cmd))

			return
		}
	}
}
