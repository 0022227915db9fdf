package store

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ferrylabs/ferry/pkg/model"
)

// ErrOrderNotFound is returned when an order id is unknown to the store.
var ErrOrderNotFound = errors.New("order not found")

// ErrStatusMismatch is returned when a conditional write finds the order in a
// different status than the caller read. The caller re-reads and decides.
var ErrStatusMismatch = errors.New("order status changed")

// ErrResolverTaken is returned when the order is already assigned to a
// different resolver.
var ErrResolverTaken = errors.New("order already assigned")

// OrderFilter narrows down a listing query. Zero values mean no filtering on
// that field, Limit defaults to 100.
type OrderFilter struct {
	Status   model.OrderStatus
	Chain    model.Chain
	Resolver string
	Limit    int
	Offset   int
}

// Store is the single source of truth for orders. Only the relayer mutates
// it, every other component goes through the relayer's API.
type Store interface {
	// CreateOrder persists a new order.
	CreateOrder(order *model.Order) error

	// Order returns the order with the given id.
	Order(id string) (model.Order, error)

	// Orders lists orders matching the filter, newest first.
	Orders(filter OrderFilter) ([]model.Order, error)

	// TransitionStatus moves the order from an expected status to the next
	// one in a single conditional write, recording the error message when the
	// order failed. Two writers racing the same order cannot both win, the
	// loser gets ErrStatusMismatch.
	TransitionStatus(id string, from, to model.OrderStatus, errMsg string) error

	// PutSecret stores the revealed secret and moves the order to the given
	// status in the same write. The write only lands while the order is still
	// awaiting a secret, otherwise ErrStatusMismatch.
	PutSecret(id, secret string, status model.OrderStatus) error

	// AssignResolver records which resolver owns the order's deployment. The
	// first caller wins, repeats by the same resolver are no-ops and any other
	// resolver gets ErrResolverTaken. The assignment does not count as an
	// order mutation, updatedAt is untouched.
	AssignResolver(id, resolver string) error
}

type store struct {
	db *gorm.DB
}

// New wraps a gorm connection into a Store and migrates the orders table. The
// connection can be backed by sqlite or postgres, the store does not care.
func New(db *gorm.DB) (Store, error) {
	if err := db.AutoMigrate(&model.Order{}); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	return &store{db: db}, nil
}

func (store *store) CreateOrder(order *model.Order) error {
	return store.db.Create(order).Error
}

func (store *store) Order(id string) (model.Order, error) {
	var order model.Order
	if err := store.db.Where("id = ?", id).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Order{}, ErrOrderNotFound
		}
		return model.Order{}, err
	}
	return order, nil
}

func (store *store) Orders(filter OrderFilter) ([]model.Order, error) {
	query := store.db.Model(&model.Order{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Chain != "" {
		query = query.Where("origin_chain = ?", filter.Chain)
	}
	if filter.Resolver != "" {
		query = query.Where("resolver = ?", filter.Resolver)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query = query.Order("created_at desc").Limit(limit).Offset(filter.Offset)

	var orders []model.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (store *store) TransitionStatus(id string, from, to model.OrderStatus, errMsg string) error {
	updates := map[string]interface{}{"status": to}
	if errMsg != "" {
		updates["error"] = errMsg
	}
	result := store.db.Model(&model.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.missed(id, ErrStatusMismatch)
	}
	return nil
}

func (store *store) PutSecret(id, secret string, status model.OrderStatus) error {
	result := store.db.Model(&model.Order{}).
		Where("id = ? AND (status = ? OR status = ?) AND secret = ''",
			id, model.OrderPending, model.OrderVerified).
		Updates(map[string]interface{}{
			"secret": secret,
			"status": status,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.missed(id, ErrStatusMismatch)
	}
	return nil
}

func (store *store) AssignResolver(id, resolver string) error {
	result := store.db.Model(&model.Order{}).
		Where("id = ? AND (resolver = '' OR resolver = ?)", id, resolver).
		UpdateColumn("resolver", resolver)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.missed(id, ErrResolverTaken)
	}
	return nil
}

// missed tells apart a conditional write that found no order from one whose
// guard no longer held.
func (store *store) missed(id string, guardErr error) error {
	if _, err := store.Order(id); err != nil {
		return err
	}
	return guardErr
}
