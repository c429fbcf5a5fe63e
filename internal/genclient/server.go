package genclient

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/23skdu/longbow-amreval/internal/evaluation"
	"github.com/23skdu/longbow-amreval/internal/logger"
	"github.com/23skdu/longbow-amreval/internal/metrics"
)

// Server answers generation exchanges with a local model.
type Server struct {
	flight.BaseFlightServer

	model evaluation.Model
	mem   memory.Allocator
	srv   flight.Server
}

func NewServer(model evaluation.Model) *Server {
	return &Server{model: model, mem: memory.NewGoAllocator()}
}

// Start listens on addr and serves in the background. Use "localhost:0"
// for an ephemeral port.
func (s *Server) Start(addr string) error {
	s.srv = flight.NewServerWithMiddleware(nil)
	if err := s.srv.Init(addr); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.srv.RegisterFlightService(s)
	go func() {
		if err := s.srv.Serve(); err != nil {
			logger.Log.Error("generation server stopped", "error", err)
		}
	}()
	logger.Log.Info("generation server listening", "addr", s.Addr())
	return nil
}

func (s *Server) Addr() string {
	if s.srv == nil {
		return ""
	}
	return s.srv.Addr().String()
}

func (s *Server) Stop() {
	if s.srv != nil {
		s.srv.Shutdown()
	}
}

func (s *Server) DoExchange(stream flight.FlightService_DoExchangeServer) error {
	ctx := stream.Context()
	rdr, err := flight.NewRecordReader(stream, ipc.WithAllocator(s.mem))
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "read request: %v", err)
	}
	defer rdr.Release()

	desc := rdr.LatestFlightDescriptor()
	if desc == nil {
		return status.Error(codes.InvalidArgument, "missing flight descriptor")
	}
	params, err := decodeCommand(desc.Cmd)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	var in evaluation.Encoding
	for rdr.Next() {
		enc, err := readRequest(rdr.Record())
		if err != nil {
			return status.Errorf(codes.InvalidArgument, "decode request: %v", err)
		}
		in.InputIDs = append(in.InputIDs, enc.InputIDs...)
		in.AttentionMask = append(in.AttentionMask, enc.AttentionMask...)
	}
	if err := rdr.Err(); err != nil {
		return status.Errorf(codes.InvalidArgument, "read request: %v", err)
	}

	start := time.Now()
	seqs, err := s.model.Generate(ctx, in, params)
	if err != nil {
		metrics.RecordValidationError("serve_generate", "model")
		return status.Errorf(codes.Internal, "generate: %v", err)
	}

	rec, err := replyRecord(s.mem, seqs)
	if err != nil {
		return status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	defer rec.Release()

	w := flight.NewRecordWriter(stream, ipc.WithSchema(replySchema), ipc.WithAllocator(s.mem))
	if err := w.Write(rec); err != nil {
		w.Close()
		return err
	}
	logger.Log.Debug("served generation", "rows", len(in.InputIDs), "sequences", len(seqs), "duration", time.Since(start))
	return w.Close()
}
