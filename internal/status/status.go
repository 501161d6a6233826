// Package status publishes the adapter mode over the standard gRPC health
// protocol. The overall service is SERVING while the controller runs;
// "monitor" is SERVING while the adapter is in monitor mode (Monitoring or
// Capturing) and "capture" only while Capturing.
package status

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"EnigmaNetz/Enigma-Wifi-Sensor/internal/logger"
	"EnigmaNetz/Enigma-Wifi-Sensor/internal/wifi"
)

// Health service names
const (
	ServiceOverall = ""
	ServiceMonitor = "monitor"
	ServiceCapture = "capture"
)

// Server serves grpc.health.v1.Health for one controller
type Server struct {
	addr   string
	log    *logger.Logger
	health *health.Server

	mu       sync.Mutex
	server   *grpc.Server
	listener net.Listener
}

// New creates a Server reporting a Dormant adapter
func New(addr string, log *logger.Logger) *Server {
	if log == nil {
		log = logger.GetLogger()
	}
	s := &Server{addr: addr, log: log, health: health.NewServer()}
	s.SetMode(wifi.Dormant)
	return s
}

// Health exposes the underlying health service
func (s *Server) Health() healthpb.HealthServer {
	return s.health
}

// Observe is a wifi.Controller observer
func (s *Server) Observe(ev wifi.Event) {
	if ev.Kind == wifi.EventModeChanged {
		s.SetMode(ev.Mode)
	}
}

// SetMode updates every service for mode m
func (s *Server) SetMode(m wifi.Mode) {
	s.health.SetServingStatus(ServiceOverall, healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceMonitor, servingIf(m == wifi.Monitoring || m == wifi.Capturing))
	s.health.SetServingStatus(ServiceCapture, servingIf(m == wifi.Capturing))
	s.log.Debug("[status] Health updated for %s", m)
}

func servingIf(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return errors.New("status server already started")
	}

	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = lis
	s.server = grpc.NewServer()
	healthpb.RegisterHealthServer(s.server, s.health)

	go func(srv *grpc.Server) {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.log.Error("[status] Health server stopped: %v", err)
		}
	}(s.server)
	s.log.Info("[status] Health endpoint listening on %s", lis.Addr())
	return nil
}

// Addr returns the bound address, or the configured one before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop marks every service NOT_SERVING and stops the gRPC server
func (s *Server) Stop() {
	s.health.Shutdown()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		s.server.GracefulStop()
		s.server = nil
		s.listener = nil
	}
}
