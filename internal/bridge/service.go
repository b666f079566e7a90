package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Service runs the bridge: it reads fixes from the receiver and answers bus calls with them.
type Service struct {
	open      Opener
	responder *Responder
	tracker   *FixTracker
	logger    zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	stream io.ReadCloser
	done   chan struct{}
	err    error
}

// NewService creates a bridge service reading from open and answering through responder.
func NewService(open Opener, responder *Responder, tracker *FixTracker, logger zerolog.Logger) *Service {
	return &Service{
		open:      open,
		responder: responder,
		tracker:   tracker,
		logger:    logger,
	}
}

// Start opens the receiver, registers the bus methods and starts reading.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		s.logger.Warn().Msg("Bridge is already running")
		return errors.New("bridge service is already running")
	}

	stream, err := s.open()
	if err != nil {
		return fmt.Errorf("failed to open NMEA source: %w", err)
	}
	if err := s.responder.Register(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to register bridge methods: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.stream = stream
	s.done = make(chan struct{})
	s.err = nil

	done := s.done
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		err := ReadFixes(s.ctx, stream, s.tracker, s.responder.Publish, s.logger)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("NMEA reader stopped")
		}
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}()

	s.logger.Info().Msg("Bridge started")
	return nil
}

// Stop closes the receiver and answers waiting callers.
func (s *Service) Stop() error {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		s.logger.Warn().Msg("Bridge is not running")
		return errors.New("bridge service is not running")
	}
	s.cancel()
	closeErr := s.stream.Close()
	s.mu.Unlock()

	s.wg.Wait()
	s.responder.Close()

	s.mu.Lock()
	s.ctx, s.cancel, s.stream = nil, nil, nil
	s.mu.Unlock()

	s.logger.Info().Msg("Bridge stopped")
	return closeErr
}

// Done is closed when the reader of the current run stops. It is nil before the first Start.
func (s *Service) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Err returns the error that ended the reader, if any.
func (s *Service) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
