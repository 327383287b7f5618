package grpc

import (
	"net"

	"fraud-risk-engine/internal/riskcontrol"
	"fraud-risk-engine/pkg/logger"

	"google.golang.org/grpc"
)

// Server gRPC服务器
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port string
}

// Services 服务集合
type Services struct {
	Risk riskcontrol.Service
}

// NewGRPCServer 创建带拦截器的 grpc.Server 并注册服务
func NewGRPCServer(services *Services) *grpc.Server {
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor,
			LoggingInterceptor,
			AuthInterceptor,
		),
	)
	RegisterRiskServiceServer(grpcServer, NewRiskServer(services.Risk))
	return grpcServer
}

// NewServer 创建gRPC服务器
func NewServer(cfg *ServerConfig, services *Services) (*Server, error) {
	lis, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return nil, err
	}

	return &Server{
		grpcServer: NewGRPCServer(services),
		listener:   lis,
	}, nil
}

// Start 启动服务器
func (s *Server) Start() error {
	logger.Infof("gRPC server listening on %s", s.listener.Addr().String())
	return s.grpcServer.Serve(s.listener)
}

// Stop 停止服务器
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}
