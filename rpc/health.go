package rpc

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/wfunc/walkerserver/logger"
)

// ServiceName is reported by the health service alongside the overall status.
const ServiceName = "walkerserver"

// HealthServer 提供 gRPC 健康检查和反射，供负载均衡和运维工具探测
type HealthServer struct {
	grpc     *grpc.Server
	health   *health.Server
	listener net.Listener
	address  string
}

func NewHealthServer(addr string) (*HealthServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := grpc.NewServer()
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	reflection.Register(s)

	h.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &HealthServer{
		grpc:     s,
		health:   h,
		listener: listener,
		address:  addr,
	}, nil
}

func (s *HealthServer) Addr() net.Addr {
	return s.listener.Addr()
}

// Start serves until Stop is called.
func (s *HealthServer) Start() {
	logger.Log.Infof("Health server listening on %s", s.address)
	if err := s.grpc.Serve(s.listener); err != nil {
		logger.Log.Errorf("Health server error: %v", err)
	}
}

// Stop reports NOT_SERVING, then drains in-flight calls.
func (s *HealthServer) Stop() {
	logger.Log.Info("Stopping health server.")
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
