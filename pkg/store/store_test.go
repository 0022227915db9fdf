package store_test

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ferrylabs/ferry/pkg/model"
	"github.com/ferrylabs/ferry/pkg/store"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func newTestStore() store.Store {
	path := filepath.Join(GinkgoT().TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	Expect(err).Should(BeNil())
	str, err := store.New(db)
	Expect(err).Should(BeNil())
	return str
}

func newOrder(status model.OrderStatus) model.Order {
	return model.Order{
		ID:          uuid.NewString(),
		OriginChain: model.EthereumSepolia,
		TargetChain: model.BitcoinTestnet,
		Payload:     []byte(`{}`),
		Proof:       "0xproof",
		SecretHash:  "aa",
		Status:      status,
	}
}

var _ = Describe("Store", func() {
	Context("when creating and fetching orders", func() {
		It("should return the stored order by id", func() {
			str := newTestStore()
			order := newOrder(model.OrderPending)
			Expect(str.CreateOrder(&order)).Should(Succeed())

			stored, err := str.Order(order.ID)
			Expect(err).Should(BeNil())
			Expect(stored.ID).Should(Equal(order.ID))
			Expect(stored.Status).Should(Equal(model.OrderPending))
			Expect(stored.Payload).Should(Equal(order.Payload))
		})

		It("should report a missing order", func() {
			str := newTestStore()
			_, err := str.Order(uuid.NewString())
			Expect(err).Should(MatchError(store.ErrOrderNotFound))
		})
	})

	Context("when listing orders", func() {
		It("should filter by status and resolver", func() {
			str := newTestStore()

			pending := newOrder(model.OrderPending)
			Expect(str.CreateOrder(&pending)).Should(Succeed())

			assigned := newOrder(model.OrderVerified)
			Expect(str.CreateOrder(&assigned)).Should(Succeed())
			Expect(str.AssignResolver(assigned.ID, "resolver-1")).Should(Succeed())

			orders, err := str.Orders(store.OrderFilter{Status: model.OrderPending})
			Expect(err).Should(BeNil())
			Expect(orders).Should(HaveLen(1))
			Expect(orders[0].ID).Should(Equal(pending.ID))

			orders, err = str.Orders(store.OrderFilter{Status: model.OrderVerified, Resolver: "resolver-1"})
			Expect(err).Should(BeNil())
			Expect(orders).Should(HaveLen(1))
			Expect(orders[0].ID).Should(Equal(assigned.ID))

			orders, err = str.Orders(store.OrderFilter{Status: model.OrderVerified, Resolver: "resolver-2"})
			Expect(err).Should(BeNil())
			Expect(orders).Should(BeEmpty())
		})

		It("should respect the limit", func() {
			str := newTestStore()
			for i := 0; i < 5; i++ {
				order := newOrder(model.OrderPending)
				Expect(str.CreateOrder(&order)).Should(Succeed())
			}

			orders, err := str.Orders(store.OrderFilter{Limit: 3})
			Expect(err).Should(BeNil())
			Expect(orders).Should(HaveLen(3))
		})
	})

	Context("when updating an order", func() {
		It("should move the status and keep the error message", func() {
			str := newTestStore()
			order := newOrder(model.OrderProcessing)
			Expect(str.CreateOrder(&order)).Should(Succeed())

			Expect(str.TransitionStatus(order.ID, model.OrderProcessing, model.OrderFailed, "deploy failed")).Should(Succeed())

			stored, err := str.Order(order.ID)
			Expect(err).Should(BeNil())
			Expect(stored.Status).Should(Equal(model.OrderFailed))
			Expect(stored.Error).Should(Equal("deploy failed"))
		})

		It("should refuse a transition whose expected status no longer holds", func() {
			str := newTestStore()
			order := newOrder(model.OrderProcessing)
			Expect(str.CreateOrder(&order)).Should(Succeed())

			Expect(str.TransitionStatus(order.ID, model.OrderProcessing, model.OrderCompleted, "")).Should(Succeed())
			err := str.TransitionStatus(order.ID, model.OrderProcessing, model.OrderCancelled, "")
			Expect(err).Should(MatchError(store.ErrStatusMismatch))

			stored, err := str.Order(order.ID)
			Expect(err).Should(BeNil())
			Expect(stored.Status).Should(Equal(model.OrderCompleted))
		})

		It("should refuse a secret once the order left the awaiting states", func() {
			str := newTestStore()
			order := newOrder(model.OrderProcessing)
			Expect(str.CreateOrder(&order)).Should(Succeed())

			err := str.PutSecret(order.ID, "deadbeef", model.OrderProcessing)
			Expect(err).Should(MatchError(store.ErrStatusMismatch))
		})

		It("should store the secret and the status in one write", func() {
			str := newTestStore()
			order := newOrder(model.OrderVerified)
			Expect(str.CreateOrder(&order)).Should(Succeed())

			Expect(str.PutSecret(order.ID, "deadbeef", model.OrderProcessing)).Should(Succeed())

			stored, err := str.Order(order.ID)
			Expect(err).Should(BeNil())
			Expect(stored.Secret).Should(Equal("deadbeef"))
			Expect(stored.Status).Should(Equal(model.OrderProcessing))
		})

		It("should report a missing order on update", func() {
			str := newTestStore()
			Expect(str.TransitionStatus(uuid.NewString(), model.OrderProcessing, model.OrderFailed, "")).Should(MatchError(store.ErrOrderNotFound))
			Expect(str.PutSecret(uuid.NewString(), "aa", model.OrderProcessing)).Should(MatchError(store.ErrOrderNotFound))
			Expect(str.AssignResolver(uuid.NewString(), "r")).Should(MatchError(store.ErrOrderNotFound))
		})
	})

	Context("when assigning a resolver", func() {
		It("should let only the first resolver claim the order", func() {
			str := newTestStore()
			order := newOrder(model.OrderPending)
			Expect(str.CreateOrder(&order)).Should(Succeed())

			Expect(str.AssignResolver(order.ID, "resolver-1")).Should(Succeed())
			Expect(str.AssignResolver(order.ID, "resolver-1")).Should(Succeed())
			Expect(str.AssignResolver(order.ID, "resolver-2")).Should(MatchError(store.ErrResolverTaken))

			stored, err := str.Order(order.ID)
			Expect(err).Should(BeNil())
			Expect(stored.Resolver).Should(Equal("resolver-1"))
		})

		It("should not touch the order's updatedAt", func() {
			str := newTestStore()
			order := newOrder(model.OrderPending)
			Expect(str.CreateOrder(&order)).Should(Succeed())

			before, err := str.Order(order.ID)
			Expect(err).Should(BeNil())

			Expect(str.AssignResolver(order.ID, "resolver-1")).Should(Succeed())

			after, err := str.Order(order.ID)
			Expect(err).Should(BeNil())
			Expect(after.Resolver).Should(Equal("resolver-1"))
			Expect(after.UpdatedAt).Should(Equal(before.UpdatedAt))
		})
	})
})
