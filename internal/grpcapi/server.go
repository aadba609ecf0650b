// Package grpcapi is the gRPC transport's health surface, grounded on
// services/scheduler-service/internal/server/grpc.go: a *grpc.Server
// carrying the standard health service plus the shared metrics
// interceptor, with reflection enabled outside production.
//
// The engine's ten components are driven over HTTP (internal/handlers);
// gRPC here exists for the same reason it does in the teacher corpus -
// platform-standard liveness/readiness probing that load balancers and
// orchestrators expect independent of the REST surface.
package grpcapi

import (
	"sync"

	"gdprengine/internal/metrics"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServingComponent names a dependency this process tracks health for.
type ServingComponent string

const (
	ComponentDatabase ServingComponent = "database"
	ComponentCache    ServingComponent = "cache"
	ComponentEvents   ServingComponent = "events"
)

// Server wraps grpc.Server with the standard health service so its status
// can be flipped per-dependency as connections come up or drop, mirroring
// the teacher's single "scheduler" status flag generalized to this
// engine's three external dependencies.
type Server struct {
	*grpc.Server
	health *health.Server
}

// NewServer builds a gRPC server carrying only the health and reflection
// services; every component here is reachable over HTTP, so there is no
// domain service to register.
func NewServer() *Server {
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(metrics.UnaryServerInterceptor()),
	)

	healthServer := health.NewServer()
	for _, c := range []ServingComponent{ComponentDatabase, ComponentCache, ComponentEvents} {
		healthServer.SetServingStatus(string(c), grpc_health_v1.HealthCheckResponse_SERVING)
	}
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	return &Server{Server: grpcServer, health: healthServer}
}

var statusMu sync.Mutex

// SetStatus flips a component's reported health. Nothing in this module
// calls it, so every component keeps the SERVING status set in NewServer.
func (s *Server) SetStatus(component ServingComponent, serving bool) {
	statusMu.Lock()
	defer statusMu.Unlock()
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(string(component), status)
}
