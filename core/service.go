package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Interface is a long-running component started and stopped with the process
type Interface interface {
	Start(ctx context.Context) error
	Stop()
}

// Registry starts services in registration order and stops them in reverse
type Registry struct {
	services []Interface
	started  int
	logger   *zap.Logger
}

// NewRegistry creates an empty registry. logger may be nil.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		services: make([]Interface, 0),
		logger:   logger,
	}
}

// Register adds a service to the registry
func (sr *Registry) Register(service Interface) {
	sr.services = append(sr.services, service)
}

// StartAll starts the services in order. When one fails, the services
// already started are stopped again and the error is returned.
func (sr *Registry) StartAll(ctx context.Context) error {
	for i, service := range sr.services {
		if err := service.Start(ctx); err != nil {
			sr.logger.Error("Registry: service failed to start",
				zap.String("service", fmt.Sprintf("%T", service)),
				zap.Error(err))
			sr.started = i
			sr.StopAll()
			return err
		}
	}
	sr.started = len(sr.services)
	return nil
}

// StopAll stops the started services in reverse order. Safe to call twice.
func (sr *Registry) StopAll() {
	for i := sr.started - 1; i >= 0; i-- {
		sr.services[i].Stop()
	}
	sr.started = 0
}
