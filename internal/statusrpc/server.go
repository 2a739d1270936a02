package statusrpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"google.golang.org/grpc"
)

// StatusProvider is queried for the current pipeline status. The
// pipeline orchestrator implements this by updating a StatusBoard as
// stages run.
type StatusProvider interface {
	Status(epoch uint64) StatusResponse
}

// StatusBoard is a StatusProvider the pipeline mutates in place as it
// runs; it is safe for concurrent reads from the gRPC server goroutine.
type StatusBoard struct {
	mu    sync.RWMutex
	state StatusResponse
}

func NewStatusBoard() *StatusBoard {
	return &StatusBoard{}
}

// SetStage records stage's current state and timestamp.
func (b *StatusBoard) SetStage(epoch uint64, name, state, detail string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Epoch = epoch
	b.state.CurrentStage = name
	for i := range b.state.Stages {
		if b.state.Stages[i].Name == name {
			b.state.Stages[i].State = state
			b.state.Stages[i].Detail = detail
			b.state.Stages[i].UpdatedAt = time.Now().Unix()
			return
		}
	}
	b.state.Stages = append(b.state.Stages, StageStatus{Name: name, State: state, Detail: detail, UpdatedAt: time.Now().Unix()})
}

// SetError records the pipeline's terminal error, if any.
func (b *StatusBoard) SetError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.state.LastError = err.Error()
	}
}

// SetResult records the final distribution's headline numbers.
func (b *StatusBoard) SetResult(recipientCount int, totalRewards string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.RecipientCount = recipientCount
	b.state.TotalRewards = totalRewards
}

func (b *StatusBoard) Status(epoch uint64) StatusResponse {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if epoch != 0 && epoch != b.state.Epoch {
		return StatusResponse{Epoch: epoch, CurrentStage: "unknown"}
	}
	return b.state
}

// Server is the read-only pipeline status gRPC service.
type Server struct {
	provider StatusProvider
	log      lgr.L
}

func NewServer(provider StatusProvider, log lgr.L) *Server {
	return &Server{provider: provider, log: log}
}

func (s *Server) getPipelineStatus(ctx context.Context, req *StatusRequest) (*StatusResponse, error) {
	resp := s.provider.Status(req.Epoch)
	return &resp, nil
}

func (s *Server) streamPipelineStatus(req *StatusRequest, stream grpc.ServerStream) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		resp := s.provider.Status(req.Epoch)
		if err := stream.SendMsg(&resp); err != nil {
			return err
		}
		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		case <-ticker.C:
		}
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "erde.statusrpc.PipelineStatus",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetPipelineStatus",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				req := new(StatusRequest)
				if err := dec(req); err != nil {
					return nil, err
				}
				s := srv.(*Server)
				if interceptor == nil {
					return s.getPipelineStatus(ctx, req)
				}
				info := &grpc.UnaryServerInfo{Server: s, FullMethod: "/erde.statusrpc.PipelineStatus/GetPipelineStatus"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return s.getPipelineStatus(ctx, req.(*StatusRequest))
				}
				return interceptor(ctx, req, info, handler)
			},
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "StreamPipelineStatus",
			Handler: func(srv interface{}, stream grpc.ServerStream) error {
				req := new(StatusRequest)
				if err := stream.RecvMsg(req); err != nil {
					return err
				}
				return srv.(*Server).streamPipelineStatus(req, stream)
			},
			ServerStreams: true,
		},
	},
	Metadata: "internal/statusrpc/service.proto",
}

// Serve starts the status gRPC server on cfg.Address and blocks until
// the listener errors or is closed.
func Serve(cfg ServerConfig, provider StatusProvider, log lgr.L) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid status server config: %w", err)
	}
	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Address, err)
	}

	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(cfg.MaxSendMsgSize),
	)
	grpcServer.RegisterService(&serviceDesc, NewServer(provider, log))

	log.Logf("INFO statusrpc: listening on %s", cfg.Address)
	return grpcServer.Serve(lis)
}
