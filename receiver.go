package doorpanel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.tigermatt.uk/doorpanel/zusi"
)

// ErrConsumerGone is returned by Receiver.Consume when nobody is left to
// take the messages it read.
var ErrConsumerGone = errors.New("consumer gone")

// Source yields messages from the simulator.
type Source interface {
	Receive() (*zusi.Node, error)
}

// Receiver moves messages from a Source onto a channel.
type Receiver struct {
	Source    Source
	OnReceive func(*zusi.Node)
	Metrics   *Metrics
	Logger    *slog.Logger
}

// Consume forwards every message from the source to out, in order, until
// the source fails or ends. It closes out when it returns and never retries.
// Once ctx is done every failure is reported as ErrConsumerGone.
func (r *Receiver) Consume(ctx context.Context, out chan<- *zusi.Node) error {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrConsumerGone, context.Cause(ctx))
		default:
		}

		msg, err := r.Source.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.logger().Info("simulator closed the connection")
				return nil
			}

			if ctx.Err() != nil {
				// the connection was closed under us on shutdown
				r.logger().Debug("receive stopped", "error", err)
				return fmt.Errorf("%w: %w", ErrConsumerGone, context.Cause(ctx))
			}
			return fmt.Errorf("receiving from simulator: %w", err)
		}

		r.Metrics.received()
		if r.OnReceive != nil {
			r.OnReceive(msg)
		}

		select {
		case out <- msg:
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrConsumerGone, context.Cause(ctx))
		}
	}
}

func (r *Receiver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
