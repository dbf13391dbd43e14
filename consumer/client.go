// ABOUTME: Remote TCP worker client: ready -> compute -> process -> result
// ABOUTME: Halts on a configured deadline, stint count or stop signal

package consumer

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"geneva/candidate"
)

// ClientOptions configure a remote worker.
type ClientOptions struct {
	Addr string
	Mode candidate.SerializationMode

	// MaxStints bounds how many items the client processes; 0 means
	// unlimited.
	MaxStints int

	// MaxDuration bounds the client's total lifetime; 0 means unlimited.
	MaxDuration time.Duration

	// EmptyBackoff is the pause after an empty reply before the next
	// ready.
	EmptyBackoff time.Duration
}

// Client is the remote dual of the TCP server: it asks for work, processes
// it locally and returns the result with precomputed fitness.
type Client struct {
	opts   ClientOptions
	logger *zap.Logger

	processed int
}

// NewClient builds a remote worker client. The logger may be nil.
func NewClient(opts ClientOptions, logger *zap.Logger) *Client {
	if opts.EmptyBackoff <= 0 {
		opts.EmptyBackoff = 200 * time.Millisecond
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{opts: opts, logger: logger}
}

// Processed returns how many items this client completed.
func (c *Client) Processed() int { return c.processed }

// Run dials the server and works until a halt condition is reached. A
// broken connection surfaces as a transport error so supervisors can
// restart the client.
func (c *Client) Run(ctx context.Context) error {
	dialer := net.Dialer{}

	conn, err := dialer.DialContext(ctx, "tcp", c.opts.Addr)
	if err != nil {
		return fmt.Errorf("%w: dialing %s: %v", ErrTransport, c.opts.Addr, err)
	}
	defer func() { _ = conn.Close() }()

	// Unblock socket reads when the run context ends.
	stopGuard := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stopGuard()

	var deadline time.Time
	if c.opts.MaxDuration > 0 {
		deadline = time.Now().Add(c.opts.MaxDuration)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			c.logger.Info("client deadline reached", zap.Int("processed", c.processed))

			return nil
		}

		if c.opts.MaxStints > 0 && c.processed >= c.opts.MaxStints {
			c.logger.Info("client stint budget exhausted", zap.Int("processed", c.processed))

			return nil
		}

		if err := c.stint(conn); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return err
		}
	}
}

// stint performs one ready/compute/result exchange.
func (c *Client) stint(conn net.Conn) error {
	if err := writeCommand(conn, CmdReady); err != nil {
		return err
	}

	cmd, err := readCommand(conn)
	if err != nil {
		return err
	}

	switch cmd {
	case CmdEmpty:
		time.Sleep(c.opts.EmptyBackoff)

		return nil

	case CmdCompute:
		payload, err := readPayload(conn)
		if err != nil {
			return err
		}

		item, err := candidate.Unmarshal(c.opts.Mode, payload)
		if err != nil {
			return fmt.Errorf("%w: decoding compute payload: %v", ErrWireProtocol, err)
		}

		// Evaluation errors travel back inside the item's state.
		if perr := safeProcess(item); perr != nil {
			c.logger.Warn("processing failed",
				zap.Uint64("port", item.Courtier.PortID),
				zap.Int("position", item.Courtier.Position),
				zap.Error(perr))
		}

		result, err := item.Marshal(c.opts.Mode)
		if err != nil {
			return fmt.Errorf("%w: encoding result payload: %v", ErrWireProtocol, err)
		}

		if err := writeFrame(conn, CmdResult, result); err != nil {
			return err
		}

		c.processed++

		return nil

	default:
		return fmt.Errorf("%w: unexpected server command %q", ErrWireProtocol, cmd)
	}
}
