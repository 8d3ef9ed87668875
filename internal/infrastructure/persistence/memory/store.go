// Package memory provides an in-process implementation of the stock ledger
// repositories. Transactions work on a copy of the state that replaces the
// live state only on commit, so a failed step leaves nothing behind.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	appinventory "github.com/meatco/stockledger/internal/application/inventory"
	"github.com/meatco/stockledger/internal/domain/inventory"
)

// state holds every table of the store
type state struct {
	lots        map[uuid.UUID]inventory.StockLot
	lotByNumber map[string]uuid.UUID
	movements   map[string][]inventory.StockMovement
	inventories map[string]inventory.ProductInventory
}

func newState() *state {
	return &state{
		lots:        make(map[uuid.UUID]inventory.StockLot),
		lotByNumber: make(map[string]uuid.UUID),
		movements:   make(map[string][]inventory.StockMovement),
		inventories: make(map[string]inventory.ProductInventory),
	}
}

// clone copies the maps. Values are stored by value and movement slices are
// append-only, so copying slice headers with their length is enough.
func (s *state) clone() *state {
	c := &state{
		lots:        make(map[uuid.UUID]inventory.StockLot, len(s.lots)),
		lotByNumber: make(map[string]uuid.UUID, len(s.lotByNumber)),
		movements:   make(map[string][]inventory.StockMovement, len(s.movements)),
		inventories: make(map[string]inventory.ProductInventory, len(s.inventories)),
	}
	for k, v := range s.lots {
		c.lots[k] = v
	}
	for k, v := range s.lotByNumber {
		c.lotByNumber[k] = v
	}
	for k, v := range s.movements {
		c.movements[k] = v[:len(v):len(v)]
	}
	for k, v := range s.inventories {
		c.inventories[k] = v
	}
	return c
}

// Store is an in-memory TransactionScope
type Store struct {
	mu    sync.RWMutex
	state *state

	faults *faultInjector
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		state:  newState(),
		faults: &faultInjector{},
	}
}

// Execute runs fn against a private copy of the state and publishes the copy
// only when fn succeeds. Transactions are serialized.
func (s *Store) Execute(ctx context.Context, fn func(repos appinventory.TransactionalRepositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&repositories{state: work, faults: s.faults}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Repositories returns repositories reading and writing the live state
func (s *Store) Repositories() appinventory.TransactionalRepositories {
	return &liveRepositories{store: s}
}

// FailOn makes the next write of the named operation return err
func (s *Store) FailOn(op string, err error) {
	s.faults.set(op, 0, err)
}

// FailAfter lets skip calls of the named operation succeed and fails the next one
func (s *Store) FailAfter(op string, skip int, err error) {
	s.faults.set(op, skip, err)
}

// repositories bind the three repositories to one working state
type repositories struct {
	state  *state
	faults *faultInjector
}

func (r *repositories) LotRepo() inventory.StockLotRepository {
	return &lotRepository{state: r.state, faults: r.faults}
}

func (r *repositories) MovementRepo() inventory.StockMovementRepository {
	return &movementRepository{state: r.state, faults: r.faults}
}

func (r *repositories) InventoryRepo() inventory.ProductInventoryRepository {
	return &inventoryRepository{state: r.state, faults: r.faults}
}

// liveRepositories run each call as its own short transaction
type liveRepositories struct {
	store *Store
}

func (r *liveRepositories) LotRepo() inventory.StockLotRepository {
	return &liveLotRepository{store: r.store}
}

func (r *liveRepositories) MovementRepo() inventory.StockMovementRepository {
	return &liveMovementRepository{store: r.store}
}

func (r *liveRepositories) InventoryRepo() inventory.ProductInventoryRepository {
	return &liveInventoryRepository{store: r.store}
}

func (s *Store) read(fn func(st *state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

func (s *Store) write(ctx context.Context, fn func(repos *repositories) error) error {
	return s.Execute(ctx, func(repos appinventory.TransactionalRepositories) error {
		return fn(repos.(*repositories))
	})
}

// faultInjector holds one pending failure per operation name
type faultInjector struct {
	mu      sync.Mutex
	pending map[string]*fault
}

type fault struct {
	skip int
	err  error
}

func (f *faultInjector) set(op string, skip int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		f.pending = make(map[string]*fault)
	}
	f.pending[op] = &fault{skip: skip, err: err}
}

func (f *faultInjector) take(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pending[op]
	if !ok {
		return nil
	}
	if p.skip > 0 {
		p.skip--
		return nil
	}
	delete(f.pending, op)
	return p.err
}

var (
	_ appinventory.TransactionScope          = (*Store)(nil)
	_ appinventory.TransactionalRepositories = (*repositories)(nil)
	_ appinventory.TransactionalRepositories = (*liveRepositories)(nil)
)
