package rpc

import (
	"net"

	"google.golang.org/grpc"

	"github.com/shardset/shardset/pkg/log"
)

// Server wraps a grpc.Server registered with ServiceDesc.
type Server struct {
	grpcServer *grpc.Server
}

// NewServer builds a Server whose RPCs are served by handler.
func NewServer(handler Handler) *Server {
	s := grpc.NewServer()
	s.RegisterService(&ServiceDesc, handler)
	return &Server{grpcServer: s}
}

// Serve blocks, accepting connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	log.Info("rpc: serving on " + lis.Addr().String())
	return s.grpcServer.Serve(lis)
}

// Stop gracefully drains in-flight RPCs and shuts the server down.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}
