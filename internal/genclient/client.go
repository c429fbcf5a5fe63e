package genclient

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/23skdu/longbow-amreval/internal/config"
	"github.com/23skdu/longbow-amreval/internal/evaluation"
	"github.com/23skdu/longbow-amreval/internal/logger"
)

// DefaultTimeout bounds a single batch round trip.
const DefaultTimeout = 10 * time.Minute

// Client generates through a remote Flight generation server.
type Client struct {
	addr    string
	client  flight.Client
	mem     memory.Allocator
	timeout time.Duration
}

var _ evaluation.Model = (*Client)(nil)

// Dial creates a client for addr (host:port). The connection is established
// lazily on the first call.
func Dial(addr string) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("generation server address is empty")
	}
	client, err := flight.NewClientWithMiddleware(addr, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create Flight client: %w", err)
	}
	return &Client{
		addr:    addr,
		client:  client,
		mem:     memory.NewGoAllocator(),
		timeout: DefaultTimeout,
	}, nil
}

// SetTimeout changes the per-batch deadline; zero disables it.
func (c *Client) SetTimeout(d time.Duration) { c.timeout = d }

func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Generate sends one batch and waits for its candidates.
func (c *Client) Generate(ctx context.Context, in evaluation.Encoding, params config.GenerationParams) ([][]int, error) {
	if c.client == nil {
		return nil, fmt.Errorf("client not connected")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()

	cmd, err := encodeCommand(params)
	if err != nil {
		return nil, err
	}
	rec, err := requestRecord(c.mem, in)
	if err != nil {
		return nil, err
	}
	defer rec.Release()

	stream, err := c.client.DoExchange(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open exchange with %s: %w", c.addr, err)
	}

	w := flight.NewRecordWriter(stream, ipc.WithSchema(requestSchema), ipc.WithAllocator(c.mem))
	w.SetFlightDescriptor(&flight.FlightDescriptor{Type: flight.DescriptorCMD, Cmd: cmd})
	if err := w.Write(rec); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to write request: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close request writer: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("failed to close send: %w", err)
	}

	rdr, err := flight.NewRecordReader(stream, ipc.WithAllocator(c.mem))
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}
	defer rdr.Release()

	var out [][]int
	for rdr.Next() {
		seqs, err := readReply(rdr)
		if err != nil {
			return nil, err
		}
		out = append(out, seqs...)
	}
	if err := rdr.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reply: %w", err)
	}

	logger.Log.Debug("remote generation", "addr", c.addr, "rows", len(in.InputIDs),
		"sequences", len(out), "duration", time.Since(start))
	return out, nil
}

func readReply(rdr *flight.Reader) ([][]int, error) {
	rec := rdr.Record()
	if rec.NumCols() != 1 {
		return nil, fmt.Errorf("unexpected reply schema %s", rec.Schema())
	}
	return readSequences(rec)
}
