package core

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/stephenolajire/stumart-query/api"
	"github.com/stephenolajire/stumart-query/config"
	"github.com/stephenolajire/stumart-query/realtime"
	"github.com/stephenolajire/stumart-query/session"
)

// Setup validates cfg, creates the session and registers every service
// around it. Nothing is started; see Registry.StartAll.
func Setup(cfg *config.Config, logger *zap.Logger, opts ...session.Option) (*Registry, *session.Session, error) {
	if cfg == nil {
		return nil, nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := NewRegistry(logger.Named("registry"))

	// Session owns the store, the coordinators and the resource queries
	sess := session.New(cfg.Session(), append([]session.Option{session.WithLogger(logger)}, opts...)...)
	registry.Register(&sessionService{session: sess})

	// Realtime listener turns backend change events into namespace refetches
	listener := realtime.NewListener(cfg.Realtime, sess.Coordinator(), sess.Token, logger.Named("realtime"))
	registry.Register(listener)

	// Ops HTTP server
	server := api.New(cfg.Ops.Port, sess.Store(), sess.Coordinator(), logger.Named("api"))
	server.AddHealthCheck("realtime", listener.Healthy)
	registry.Register(server)

	return registry, sess, nil
}

// sessionService lets the registry drain pending mutation refetches on stop
type sessionService struct {
	session *session.Session
}

func (s *sessionService) Start(ctx context.Context) error {
	return nil
}

func (s *sessionService) Stop() {
	s.session.Close()
}
