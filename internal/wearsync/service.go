package wearsync

import (
	"context"

	"go.uber.org/zap"

	"github.com/kjstillabower/sunshine-wear/internal/datalayer"
)

// Service owns the phone's data layer session and wires the update listener.
type Service struct {
	client    datalayer.Client
	publisher *Publisher
	listener  *UpdateListener
	logger    *zap.Logger
}

// Dialer builds a data layer client reporting to callbacks.
type Dialer func(callbacks datalayer.ConnectionCallbacks) datalayer.Client

// NewService dials a client and builds the publisher around it. newPublisher
// receives the dialed client.
func NewService(ctx context.Context, dial Dialer, newPublisher func(datalayer.Client) *Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{logger: logger}
	s.client = dial(datalayer.LogCallbacks(logger, "phone"))
	s.publisher = newPublisher(s.client)
	s.listener = NewUpdateListener(ctx, s.publisher, logger)
	return s
}

// Start connects the session and begins answering update requests.
func (s *Service) Start() {
	s.client.AddListener(s.listener)
	s.client.Connect()
}

// Stop removes the listener and disconnects.
func (s *Service) Stop() {
	s.client.RemoveListener(s.listener)
	s.client.Disconnect()
}

func (s *Service) Publisher() *Publisher { return s.publisher }

func (s *Service) Client() datalayer.Client { return s.client }
