package rdthemis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/serious-company/rd-themis/audit"
	"github.com/serious-company/rd-themis/blocking"
	"github.com/serious-company/rd-themis/internal/crypto"
	"github.com/serious-company/rd-themis/internal/debug"
	"github.com/serious-company/rd-themis/internal/mem"
	"github.com/serious-company/rd-themis/persist"
)

// Initialize memguard so locked buffers are wiped on interrupt
func init() {
	memguard.CatchInterrupt()
}

// Service runs the secure cell and secure message commands against a store.
//
// Commands submitted through Execute are processed one at a time on the
// service's command loop. Synchronous commands do their cryptography on the
// loop; asynchronous commands hand it to a worker goroutine and answer when
// the worker posts its result back, or with the timeout reply.
//
// The handler methods (CellEncrypt, CellDecrypt, MessageEncrypt,
// MessageDecrypt) may also be called directly from any goroutine.
type Service struct {
	options Options
	store   persist.Store
	audit   audit.Logger
	log     zerolog.Logger
	userID  string

	cell    *crypto.Cell
	wrapper crypto.MessageWrapper
	engine  *blocking.Engine

	memoryProtectionLevel mem.ProtectionLevel
	closeOnce             sync.Once
	closeErr              error
}

// New creates a Service on an in-memory store with auditing disabled.
func New(options Options) (*Service, error) {
	return NewWithStore(options, persist.NewMemoryStore(), nil)
}

// NewWithStore creates a Service on store. A nil auditLogger disables auditing.
func NewWithStore(options Options, store persist.Store, auditLogger audit.Logger) (*Service, error) {
	if err := options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	if store == nil {
		return nil, fmt.Errorf("store is required")
	}

	if err := store.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to storage backend: %w", err)
	}

	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}

	userID := options.UserID
	if userID == "" {
		userID = "system"
	}

	cell, err := crypto.NewCell(options.KDF)
	if err != nil {
		return nil, fmt.Errorf("failed to create secure cell: %w", err)
	}

	logger := options.Logger.With().Str("store", store.GetType()).Logger()

	engine, err := blocking.New(blocking.Config{
		Timeout:    options.Timeout,
		MaxWorkers: options.MaxWorkers,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start command loop: %w", err)
	}

	s := &Service{
		options:               options,
		store:                 store,
		audit:                 auditLogger,
		log:                   logger,
		userID:                userID,
		cell:                  cell,
		engine:                engine,
		memoryProtectionLevel: mem.ProtectionNone,
	}

	if options.EnableMemoryLock {
		level, err := mem.Lock()
		if err != nil {
			s.log.Warn().Err(err).Msg("cannot fully protect memory; memguard still protects key buffers")
		}
		s.memoryProtectionLevel = level
	}
	s.log.Debug().Stringer("memory_protection", s.memoryProtectionLevel).Msg("service started")

	return s, nil
}

// Execute runs one command. argv holds the command name followed by its
// arguments. Protocol outcomes, errors included, are returned as a Reply;
// the error return is reserved for a cancelled context or a closed service.
func (s *Service) Execute(ctx context.Context, argv [][]byte) (Reply, error) {
	cmd, err := resolveCommand(argv)
	if err != nil {
		return errorReply("%s", err.Error()), nil
	}

	replies := make(chan Reply, 1)
	respond := func(r Reply) { replies <- r }

	if err = s.engine.Post(func() { s.dispatch(ctx, cmd, argv, respond) }); err != nil {
		return Reply{}, ErrClosed
	}

	select {
	case r := <-replies:
		return r, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	case <-s.engine.Stopped():
		select {
		case r := <-replies:
			return r, nil
		default:
			return Reply{}, ErrClosed
		}
	}
}

// dispatch runs on the command loop.
func (s *Service) dispatch(ctx context.Context, cmd *command, argv [][]byte, respond func(Reply)) {
	var message []byte
	if cmd.write {
		message = argv[3]
	}
	in := blocking.NewInputs(string(argv[1]), argv[2], message)
	started := time.Now()

	rec := record{
		cmd:       cmd,
		key:       in.Key,
		inputSize: len(message),
		started:   started,
	}

	if !cmd.Async {
		rec.requestID = uuid.NewString()
		res := cmd.run(s, ctx, in)
		in.Release()
		r := cmd.reply(&res)
		s.logAudit(rec, &res, nil)
		res.Release()
		respond(r)
		return
	}

	handle, err := s.engine.Submit(
		func(ctx context.Context, in *blocking.Inputs) blocking.Result {
			return cmd.run(s, ctx, in)
		},
		in,
		blocking.Callbacks{
			OnComplete: func(res *blocking.Result) {
				r := cmd.reply(res)
				s.logAudit(rec, res, nil)
				respond(r)
			},
			OnTimeout: func() {
				s.logAudit(rec, nil, ErrTimeout)
				respond(timeoutReply())
			},
		},
	)
	if err != nil {
		s.log.Error().Err(err).Str("command", cmd.Name).Msg("failed to start worker")
		s.logAudit(rec, nil, err)
		respond(Reply{Kind: ReplyError, Str: spawnMessage})
		return
	}

	// callbacks run on the loop after dispatch returns
	rec.requestID = handle.ID.String()
	debug.Print("submitted %s as %s\n", cmd.Name, rec.requestID)
}

type record struct {
	cmd       *command
	key       string
	requestID string
	inputSize int
	started   time.Time
}

// logAudit records the outcome of a command. Either res or failure is set.
func (s *Service) logAudit(rec record, res *blocking.Result, failure error) {
	event := audit.Event{
		RequestID: rec.requestID,
		Action:    rec.cmd.action,
		Command:   rec.cmd.Name,
		Key:       rec.key,
		Async:     rec.cmd.Async,
		InputSize: rec.inputSize,
		UserID:    s.userID,
		Duration:  time.Since(rec.started).Milliseconds(),
	}

	switch {
	case failure != nil:
		event.Status = "failed"
		if errors.Is(failure, ErrTimeout) {
			event.Status = "timed_out"
		}
		event.Error = failure.Error()
	case res != nil:
		event.Status = res.Status.String()
		event.Success = res.Status == blocking.StatusOK || res.Status == blocking.StatusNotFound
		event.OutputSize = len(res.Payload)
		if res.Err != nil {
			event.Error = res.Err.Error()
		}
	}

	if err := s.audit.Log(event); err != nil {
		s.log.Error().Err(err).Str("action", event.Action).Msg("audit logging failed")
	}
}

// MemoryProtection describes the memory protection achieved at start up.
func (s *Service) MemoryProtection() string {
	switch s.memoryProtectionLevel {
	case mem.ProtectionPartial:
		return "Partial - basic memory protection applied"
	case mem.ProtectionFull:
		return "Full - memory locked and protected from swapping"
	default:
		return "None - sensitive data may be swapped to disk"
	}
}

// Store returns the backing store.
func (s *Service) Store() persist.Store {
	return s.store
}

// Audit returns the audit logger.
func (s *Service) Audit() audit.Logger {
	return s.audit
}

// Close stops the command loop, waits up to the command timeout for running
// workers, and closes the audit logger and the store.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		var errs []error

		if err := s.engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop command loop: %w", err))
		}

		drained := make(chan struct{})
		go func() {
			s.engine.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(s.options.Timeout):
			s.log.Warn().Msg("closing with workers still running")
		}

		if err := s.audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close audit logger: %w", err))
		}
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close store: %w", err))
		}
		if s.memoryProtectionLevel != mem.ProtectionNone {
			if err := mem.Unlock(); err != nil {
				errs = append(errs, fmt.Errorf("failed to unlock memory: %w", err))
			}
		}

		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
