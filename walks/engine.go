package walks

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Options configures an Engine. Zero values fall back to defaults.
type Options struct {
	// CapacityPerSlot is the slot capacity of a walker stored without one,
	// and the ceiling for every walker.
	CapacityPerSlot int

	// RefundOnMidWalkCancellation returns the credit when a walk is cancelled
	// after it started. Default false: a started walk's credit is spent.
	RefundOnMidWalkCancellation bool

	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

// Engine exposes every core operation. It is safe for concurrent use.
type Engine struct {
	store    Store
	opts     Options
	logger   *slog.Logger
	locks    *keyedMutex
	ledger   *CreditLedger
	resolver AvailabilityResolver
}

func NewEngine(store Store, opts Options) *Engine {
	if opts.CapacityPerSlot <= 0 {
		opts.CapacityPerSlot = DefaultCapacityPerSlot
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		store:    store,
		opts:     opts,
		logger:   logger,
		locks:    newKeyedMutex(),
		ledger:   NewCreditLedger(store, opts.Now, opts.NewID),
		resolver: AvailabilityResolver{DefaultCapacity: opts.CapacityPerSlot},
	}
}

// Store returns the underlying store for read-only listings.
func (e *Engine) Store() Store { return e.store }

// Ledger returns the credit ledger bound to the engine's store.
func (e *Engine) Ledger() *CreditLedger { return e.ledger }

// Options returns the effective configuration.
func (e *Engine) Options() Options { return e.opts }

// withSlot serializes fn on key: in process through the keyed mutex, and in
// the database through the store transaction plus its key lock if any.
func (e *Engine) withSlot(ctx context.Context, key SlotKey, fn func(Store) error) error {
	return e.withLock(ctx, "slot:"+key.String(), fn)
}

// withDog serializes the dog aggregate: the dog row and its assessments.
func (e *Engine) withDog(ctx context.Context, dogID DogID, fn func(Store) error) error {
	return e.withLock(ctx, "dog:"+string(dogID), fn)
}

func (e *Engine) withLock(ctx context.Context, key string, fn func(Store) error) error {
	unlock := e.locks.Lock(key)
	defer unlock()

	return inTx(ctx, e.store, func(s Store) error {
		if locker, ok := s.(KeyLocker); ok {
			if err := locker.LockKey(ctx, key); err != nil {
				return err
			}
		}
		return fn(s)
	})
}
