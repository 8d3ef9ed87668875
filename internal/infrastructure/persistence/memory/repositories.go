package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/meatco/stockledger/internal/domain/inventory"
	"github.com/meatco/stockledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Operation names accepted by Store.FailOn
const (
	OpLotCreate       = "lot.create"
	OpLotSave         = "lot.save"
	OpMovementAppend  = "movement.append"
	OpInventorySave   = "inventory.save"
	OpLotFindActive   = "lot.find_active"
	OpMovementFindRef = "movement.find_by_reference"
)

type lotRepository struct {
	state  *state
	faults *faultInjector
}

func (r *lotRepository) Create(_ context.Context, lot *inventory.StockLot) error {
	if err := r.faults.take(OpLotCreate); err != nil {
		return shared.NewStorageError(OpLotCreate, err)
	}
	if _, exists := r.state.lotByNumber[lot.LotNumber]; exists {
		return shared.NewDomainError(shared.CodeAlreadyExists, fmt.Sprintf("Lot number %s already exists", lot.LotNumber))
	}
	r.state.lots[lot.ID] = *lot
	r.state.lotByNumber[lot.LotNumber] = lot.ID
	return nil
}

func (r *lotRepository) Save(_ context.Context, lot *inventory.StockLot) error {
	if err := r.faults.take(OpLotSave); err != nil {
		return shared.NewStorageError(OpLotSave, err)
	}
	if _, exists := r.state.lots[lot.ID]; !exists {
		return shared.ErrNotFound
	}
	r.state.lots[lot.ID] = *lot
	return nil
}

func (r *lotRepository) FindByID(_ context.Context, id uuid.UUID) (*inventory.StockLot, error) {
	lot, ok := r.state.lots[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &lot, nil
}

// FindByIDForUpdate needs no row lock; transactions already run one at a time
func (r *lotRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*inventory.StockLot, error) {
	return r.FindByID(ctx, id)
}

func (r *lotRepository) FindByLotNumber(_ context.Context, lotNumber string) (*inventory.StockLot, error) {
	id, ok := r.state.lotByNumber[lotNumber]
	if !ok {
		return nil, shared.ErrNotFound
	}
	lot := r.state.lots[id]
	return &lot, nil
}

func (r *lotRepository) FindActiveByProduct(_ context.Context, productID string) ([]inventory.StockLot, error) {
	if err := r.faults.take(OpLotFindActive); err != nil {
		return nil, shared.NewStorageError(OpLotFindActive, err)
	}
	lots := r.filter(func(l *inventory.StockLot) bool {
		return l.ProductID == productID && l.IsActive()
	})
	sort.Slice(lots, func(i, j int) bool { return lots[i].Sequence < lots[j].Sequence })
	return lots, nil
}

func (r *lotRepository) FindActivePastExpiry(_ context.Context, today time.Time) ([]inventory.StockLot, error) {
	lots := r.filter(func(l *inventory.StockLot) bool {
		return l.IsActive() && l.IsPastExpiry(today)
	})
	sort.Slice(lots, func(i, j int) bool {
		if lots[i].ProductID != lots[j].ProductID {
			return lots[i].ProductID < lots[j].ProductID
		}
		return lots[i].Sequence < lots[j].Sequence
	})
	return lots, nil
}

func (r *lotRepository) FindActiveExpiringBetween(_ context.Context, from, to time.Time) ([]inventory.StockLot, error) {
	from, to = inventory.NormalizeDate(from), inventory.NormalizeDate(to)
	lots := r.filter(func(l *inventory.StockLot) bool {
		return l.IsActive() && l.HasStock() && !l.ExpiryDate.Before(from) && !l.ExpiryDate.After(to)
	})
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].ExpiryDate.Equal(lots[j].ExpiryDate) {
			return lots[i].ExpiryDate.Before(lots[j].ExpiryDate)
		}
		return lots[i].Sequence < lots[j].Sequence
	})
	return lots, nil
}

func (r *lotRepository) NextSequence(_ context.Context, productID string) (int64, error) {
	var maxSeq int64
	for _, l := range r.state.lots {
		if l.ProductID == productID && l.Sequence > maxSeq {
			maxSeq = l.Sequence
		}
	}
	return maxSeq + 1, nil
}

func (r *lotRepository) filter(keep func(l *inventory.StockLot) bool) []inventory.StockLot {
	lots := make([]inventory.StockLot, 0)
	for _, l := range r.state.lots {
		if keep(&l) {
			lots = append(lots, l)
		}
	}
	return lots
}

type movementRepository struct {
	state  *state
	faults *faultInjector
}

func (r *movementRepository) Append(_ context.Context, movement *inventory.StockMovement) error {
	if err := r.faults.take(OpMovementAppend); err != nil {
		return shared.NewStorageError(OpMovementAppend, err)
	}
	r.state.movements[movement.ProductID] = append(r.state.movements[movement.ProductID], *movement)
	return nil
}

func (r *movementRepository) FindByProduct(_ context.Context, productID string, query inventory.MovementQuery) ([]inventory.StockMovement, error) {
	all := r.state.movements[productID]
	result := make([]inventory.StockMovement, 0, len(all))
	for _, m := range all {
		if query.Since != nil && m.CreatedAt.Before(*query.Since) {
			continue
		}
		result = append(result, m)
	}
	if query.Limit > 0 && len(result) > query.Limit {
		result = result[len(result)-query.Limit:]
	}
	return result, nil
}

func (r *movementRepository) FindByReference(_ context.Context, productID string, ref inventory.Reference) ([]inventory.StockMovement, error) {
	if err := r.faults.take(OpMovementFindRef); err != nil {
		return nil, shared.NewStorageError(OpMovementFindRef, err)
	}
	result := make([]inventory.StockMovement, 0)
	if ref.Key() == "" {
		return result, nil
	}
	for _, m := range r.state.movements[productID] {
		if m.Reference.Type == ref.Type && m.Reference.ID == ref.ID {
			result = append(result, m)
		}
	}
	return result, nil
}

func (r *movementRepository) NextSequence(_ context.Context, productID string) (int64, error) {
	all := r.state.movements[productID]
	if len(all) == 0 {
		return 1, nil
	}
	return all[len(all)-1].Sequence + 1, nil
}

func (r *movementRepository) SumDeltas(_ context.Context, productID string) (decimal.Decimal, int64, error) {
	all := r.state.movements[productID]
	return inventory.SumDeltas(all), int64(len(all)), nil
}

type inventoryRepository struct {
	state  *state
	faults *faultInjector
}

func (r *inventoryRepository) FindByProduct(_ context.Context, productID string) (*inventory.ProductInventory, error) {
	inv, ok := r.state.inventories[productID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &inv, nil
}

func (r *inventoryRepository) FindByProductForUpdate(ctx context.Context, productID string) (*inventory.ProductInventory, error) {
	return r.FindByProduct(ctx, productID)
}

func (r *inventoryRepository) Save(_ context.Context, inv *inventory.ProductInventory) error {
	if err := r.faults.take(OpInventorySave); err != nil {
		return shared.NewStorageError(OpInventorySave, err)
	}
	if existing, ok := r.state.inventories[inv.ProductID]; ok {
		if existing.Version != inv.Version {
			return shared.ErrConcurrencyConflict
		}
		inv.IncrementVersion()
	}
	stored := *inv
	stored.ClearDomainEvents()
	r.state.inventories[inv.ProductID] = stored
	return nil
}

func (r *inventoryRepository) FindAll(_ context.Context) ([]inventory.ProductInventory, error) {
	result := make([]inventory.ProductInventory, 0, len(r.state.inventories))
	for _, inv := range r.state.inventories {
		result = append(result, inv)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ProductID < result[j].ProductID })
	return result, nil
}

type liveLotRepository struct {
	store *Store
}

func (r *liveLotRepository) Create(ctx context.Context, lot *inventory.StockLot) error {
	return r.store.write(ctx, func(repos *repositories) error {
		return repos.LotRepo().Create(ctx, lot)
	})
}

func (r *liveLotRepository) Save(ctx context.Context, lot *inventory.StockLot) error {
	return r.store.write(ctx, func(repos *repositories) error {
		return repos.LotRepo().Save(ctx, lot)
	})
}

func (r *liveLotRepository) FindByID(ctx context.Context, id uuid.UUID) (lot *inventory.StockLot, err error) {
	err = r.store.read(func(st *state) error {
		lot, err = r.repo(st).FindByID(ctx, id)
		return err
	})
	return lot, err
}

func (r *liveLotRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*inventory.StockLot, error) {
	return r.FindByID(ctx, id)
}

func (r *liveLotRepository) FindByLotNumber(ctx context.Context, lotNumber string) (lot *inventory.StockLot, err error) {
	err = r.store.read(func(st *state) error {
		lot, err = r.repo(st).FindByLotNumber(ctx, lotNumber)
		return err
	})
	return lot, err
}

func (r *liveLotRepository) FindActiveByProduct(ctx context.Context, productID string) (lots []inventory.StockLot, err error) {
	err = r.store.read(func(st *state) error {
		lots, err = r.repo(st).FindActiveByProduct(ctx, productID)
		return err
	})
	return lots, err
}

func (r *liveLotRepository) FindActivePastExpiry(ctx context.Context, today time.Time) (lots []inventory.StockLot, err error) {
	err = r.store.read(func(st *state) error {
		lots, err = r.repo(st).FindActivePastExpiry(ctx, today)
		return err
	})
	return lots, err
}

func (r *liveLotRepository) FindActiveExpiringBetween(ctx context.Context, from, to time.Time) (lots []inventory.StockLot, err error) {
	err = r.store.read(func(st *state) error {
		lots, err = r.repo(st).FindActiveExpiringBetween(ctx, from, to)
		return err
	})
	return lots, err
}

func (r *liveLotRepository) NextSequence(ctx context.Context, productID string) (seq int64, err error) {
	err = r.store.read(func(st *state) error {
		seq, err = r.repo(st).NextSequence(ctx, productID)
		return err
	})
	return seq, err
}

func (r *liveLotRepository) repo(st *state) *lotRepository {
	return &lotRepository{state: st, faults: r.store.faults}
}

type liveMovementRepository struct {
	store *Store
}

func (r *liveMovementRepository) Append(ctx context.Context, movement *inventory.StockMovement) error {
	return r.store.write(ctx, func(repos *repositories) error {
		return repos.MovementRepo().Append(ctx, movement)
	})
}

func (r *liveMovementRepository) FindByProduct(ctx context.Context, productID string, query inventory.MovementQuery) (movements []inventory.StockMovement, err error) {
	err = r.store.read(func(st *state) error {
		movements, err = r.repo(st).FindByProduct(ctx, productID, query)
		return err
	})
	return movements, err
}

func (r *liveMovementRepository) FindByReference(ctx context.Context, productID string, ref inventory.Reference) (movements []inventory.StockMovement, err error) {
	err = r.store.read(func(st *state) error {
		movements, err = r.repo(st).FindByReference(ctx, productID, ref)
		return err
	})
	return movements, err
}

func (r *liveMovementRepository) NextSequence(ctx context.Context, productID string) (seq int64, err error) {
	err = r.store.read(func(st *state) error {
		seq, err = r.repo(st).NextSequence(ctx, productID)
		return err
	})
	return seq, err
}

func (r *liveMovementRepository) SumDeltas(ctx context.Context, productID string) (sum decimal.Decimal, count int64, err error) {
	err = r.store.read(func(st *state) error {
		sum, count, err = r.repo(st).SumDeltas(ctx, productID)
		return err
	})
	return sum, count, err
}

func (r *liveMovementRepository) repo(st *state) *movementRepository {
	return &movementRepository{state: st, faults: r.store.faults}
}

type liveInventoryRepository struct {
	store *Store
}

func (r *liveInventoryRepository) FindByProduct(ctx context.Context, productID string) (inv *inventory.ProductInventory, err error) {
	err = r.store.read(func(st *state) error {
		inv, err = r.repo(st).FindByProduct(ctx, productID)
		return err
	})
	return inv, err
}

func (r *liveInventoryRepository) FindByProductForUpdate(ctx context.Context, productID string) (*inventory.ProductInventory, error) {
	return r.FindByProduct(ctx, productID)
}

func (r *liveInventoryRepository) Save(ctx context.Context, inv *inventory.ProductInventory) error {
	return r.store.write(ctx, func(repos *repositories) error {
		return repos.InventoryRepo().Save(ctx, inv)
	})
}

func (r *liveInventoryRepository) FindAll(ctx context.Context) (all []inventory.ProductInventory, err error) {
	err = r.store.read(func(st *state) error {
		all, err = r.repo(st).FindAll(ctx)
		return err
	})
	return all, err
}

func (r *liveInventoryRepository) repo(st *state) *inventoryRepository {
	return &inventoryRepository{state: st, faults: r.store.faults}
}

var (
	_ inventory.StockLotRepository         = (*lotRepository)(nil)
	_ inventory.StockMovementRepository    = (*movementRepository)(nil)
	_ inventory.ProductInventoryRepository = (*inventoryRepository)(nil)
	_ inventory.StockLotRepository         = (*liveLotRepository)(nil)
	_ inventory.StockMovementRepository    = (*liveMovementRepository)(nil)
	_ inventory.ProductInventoryRepository = (*liveInventoryRepository)(nil)
)
