package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ferrylabs/ferry/pkg/swap"
)

// Store remembers which chain actions have been performed per order, so a
// pipeline re-entered after a restart never deploys or withdraws twice. The
// transaction hash is kept with each action so a resumed order can still
// report where its legs landed.
type Store interface {
	// RecordAction keeps track of an action done on the order with the given
	// id, together with the transaction that performed it.
	RecordAction(action swap.Action, orderID, txHash string) error

	// CheckAction returns whether an action has been done on the order
	// previously and the transaction hash recorded with it.
	CheckAction(action swap.Action, orderID string) (string, bool, error)
}

type redisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the redis at the given url. Redis survives
// resolver restarts, which is the whole point of the action store.
func NewRedisStore(redisURL string) (Store, error) {
	parsedURL, err := url.Parse(redisURL)
	if err != nil {
		return nil, err
	}
	redisPassword, _ := parsedURL.User.Password()
	client := redis.NewClient(&redis.Options{
		Addr:     parsedURL.Host,
		Password: redisPassword,
		DB:       0, // Use default DB.
	})
	return redisStore{client: client}, nil
}

func (rs redisStore) RecordAction(action swap.Action, orderID, txHash string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return rs.client.Set(ctx, actionKey(action, orderID), txHash, 0).Err()
}

func (rs redisStore) CheckAction(action swap.Action, orderID string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	txHash, err := rs.client.Get(ctx, actionKey(action, orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return txHash, true, nil
}

func actionKey(action swap.Action, orderID string) string {
	return fmt.Sprintf("%v-%v", action, orderID)
}

type inMemStore struct {
	mu      *sync.Mutex
	actions map[string]string
}

// NewInMemStore keeps the actions in memory. Meant for tests and local runs,
// it forgets everything on restart.
func NewInMemStore() Store {
	return inMemStore{
		mu:      new(sync.Mutex),
		actions: map[string]string{},
	}
}

func (ims inMemStore) RecordAction(action swap.Action, orderID, txHash string) error {
	ims.mu.Lock()
	defer ims.mu.Unlock()

	ims.actions[actionKey(action, orderID)] = txHash
	return nil
}

func (ims inMemStore) CheckAction(action swap.Action, orderID string) (string, bool, error) {
	ims.mu.Lock()
	defer ims.mu.Unlock()

	txHash, ok := ims.actions[actionKey(action, orderID)]
	return txHash, ok, nil
}
