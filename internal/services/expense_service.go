package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"expensemcp/internal/amqp"
	"expensemcp/internal/core"
	"expensemcp/internal/log"
)

// Repository is the expense store used by the service.
type Repository interface {
	Insert(ctx context.Context, e core.NewExpense) (int64, error)
	ListInRange(ctx context.Context, rng core.DateRange) ([]core.Expense, error)
	SummarizeByCategory(ctx context.Context, rng core.DateRange, category string) ([]core.CategorySummary, error)
	Close() error
}

// EventPublisher announces stored expenses. Optional.
type EventPublisher interface {
	PublishExpenseCreated(ctx context.Context, event *amqp.ExpenseCreatedEvent) error
	Close() error
}

// eventQueueSize bounds the created events waiting for the publisher.
// Events beyond it are dropped and logged.
const eventQueueSize = 256

type createdEvent struct {
	ctx     context.Context
	expense core.Expense
}

// ExpenseService is the boundary between remote callers and the store.
// Storage failures never escape as panics or raw errors from AddExpense:
// they come back as error results.
type ExpenseService struct {
	storage   Repository
	publisher EventPublisher
	logger    *log.Logger

	// Created events are published by one background goroutine so a slow or
	// unreachable broker never delays a request.
	mu     sync.RWMutex
	closed bool
	events chan createdEvent
	done   chan struct{}
}

// NewExpenseService wires the service. publisher may be nil.
func NewExpenseService(storage Repository, publisher EventPublisher, logger *log.Logger) *ExpenseService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	s := &ExpenseService{
		storage:   storage,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentExpense),
	}

	if publisher != nil {
		s.events = make(chan createdEvent, eventQueueSize)
		s.done = make(chan struct{})
		go s.runPublisher()
	}

	return s
}

// AddExpense stores the expense and publishes a created event.
func (s *ExpenseService) AddExpense(ctx context.Context, e core.NewExpense) core.Result {
	id, err := s.storage.Insert(ctx, e)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to add expense",
			log.FieldOperation, log.OpInsert,
			log.FieldDate, e.Date,
			log.FieldCategory, e.Category,
			log.FieldError, err)
		return core.Failure(err)
	}

	s.logger.InfoContext(ctx, "Expense added",
		log.FieldExpenseID, id,
		log.FieldDate, e.Date,
		log.FieldAmount, e.Amount,
		log.FieldCategory, e.Category)

	// The row is committed; publishing happens off the request path
	s.enqueueCreated(ctx, core.Expense{
		ID:          id,
		Date:        e.Date,
		Amount:      e.Amount,
		Category:    e.Category,
		Subcategory: e.Subcategory,
		Note:        e.Note,
	})

	return core.Created(id)
}

// ListExpenses returns the expenses of the inclusive range, newest first.
func (s *ExpenseService) ListExpenses(ctx context.Context, rng core.DateRange) ([]core.Expense, error) {
	expenses, err := s.storage.ListInRange(ctx, rng)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list expenses",
			log.FieldOperation, log.OpList,
			log.FieldStartDate, rng.Start,
			log.FieldEndDate, rng.End,
			log.FieldError, err)
		return nil, err
	}

	s.logger.DebugContext(ctx, "Listed expenses",
		log.FieldStartDate, rng.Start,
		log.FieldEndDate, rng.End,
		log.FieldResultCount, len(expenses))
	return expenses, nil
}

// SummarizeExpenses totals the range per category. An empty category means all.
func (s *ExpenseService) SummarizeExpenses(ctx context.Context, rng core.DateRange, category string) ([]core.CategorySummary, error) {
	summaries, err := s.storage.SummarizeByCategory(ctx, rng, category)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to summarize expenses",
			log.FieldOperation, log.OpSummarize,
			log.FieldStartDate, rng.Start,
			log.FieldEndDate, rng.End,
			log.FieldCategory, category,
			log.FieldError, err)
		return nil, err
	}

	s.logger.DebugContext(ctx, "Summarized expenses",
		log.FieldStartDate, rng.Start,
		log.FieldEndDate, rng.End,
		log.FieldCategory, category,
		log.FieldResultCount, len(summaries))
	return summaries, nil
}

// enqueueCreated hands the event to the publisher goroutine without blocking.
func (s *ExpenseService) enqueueCreated(ctx context.Context, e core.Expense) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "Event publisher not configured, skipping created event", log.FieldExpenseID, e.ID)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.WarnContext(ctx, "Expense service closed, dropping created event", log.FieldExpenseID, e.ID)
		return
	}

	select {
	case s.events <- createdEvent{ctx: context.WithoutCancel(ctx), expense: e}:
	default:
		s.logger.WarnContext(ctx, "Event queue full, dropping created event",
			log.FieldOperation, log.OpPublish,
			log.FieldExpenseID, e.ID)
	}
}

func (s *ExpenseService) runPublisher() {
	defer close(s.done)

	for ev := range s.events {
		err := s.publisher.PublishExpenseCreated(ev.ctx, amqp.NewExpenseCreatedEvent(ev.expense))
		if err != nil {
			s.logger.ErrorContext(ev.ctx, "Failed to publish expense created event",
				log.FieldOperation, log.OpPublish,
				log.FieldExpenseID, ev.expense.ID,
				log.FieldError, err)
		}
	}
}

// Close drains queued events, then closes both storage and publisher connections.
func (s *ExpenseService) Close() error {
	s.mu.Lock()
	alreadyClosed := s.closed
	s.closed = true
	if !alreadyClosed && s.events != nil {
		close(s.events)
	}
	s.mu.Unlock()

	if alreadyClosed {
		return nil
	}
	if s.done != nil {
		<-s.done
	}

	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close expense service: %w", err)
	}

	return nil
}
