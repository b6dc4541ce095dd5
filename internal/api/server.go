package api

import (
	"context"
	"os"
	"strings"

	"wastedispatch/internal/auth"
	"wastedispatch/internal/config"
	"wastedispatch/internal/notify"
	"wastedispatch/internal/store"
)

type Server struct {
	Store   store.Store
	Pub     *notify.Publisher
	Auth    *auth.Verifier
	Broker  EventBroker
	Tracker LocationTracker
	Planner config.Planner
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store.
func NewServer() (*Server, error) {
	dsn := os.Getenv("DATABASE_URL")
	var s store.Store
	if strings.TrimSpace(dsn) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		// Run migrations (dev helper)
		if os.Getenv("DB_MIGRATE") != "false" {
			_ = sp.Migrate(context.Background())
		}
		s = sp
	}
	var broker EventBroker
	var tracker LocationTracker
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
		if rt, err := NewRedisTracker(); err == nil {
			tracker = rt
		} else {
			tracker = NewMemoryTracker()
		}
	} else {
		broker = NewBroker()
		tracker = NewMemoryTracker()
	}
	planner, err := config.PlannerFromEnv()
	if err != nil {
		return nil, err
	}
	return &Server{
		Store:   s,
		Pub:     notify.NewPublisher(s),
		Auth:    auth.NewVerifierFromEnv(),
		Broker:  broker,
		Tracker: tracker,
		Planner: planner,
	}, nil
}

// NewNotifyWorker creates a background worker for notification deliveries.
func (s *Server) NewNotifyWorker() *notify.Worker {
	return notify.NewWorker(s.Store)
}
