package store_test

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	"github.com/hashbridge/relay/pkg/store"
)

var _ = Describe("Order store", func() {
	var str store.Store

	BeforeEach(func() {
		db, err := gorm.Open(sqlite.Open(filepath.Join(GinkgoT().TempDir(), "relay.db")), &gorm.Config{
			NowFunc: func() time.Time { return time.Now().UTC() },
			Logger:  glogger.Default.LogMode(glogger.Silent),
		})
		Expect(err).To(BeNil())
		str, err = store.NewStore(db)
		Expect(err).To(BeNil())
	})

	Context("Orders", func() {
		It("should insert and fetch an order by either key", func() {
			Expect(str.PutOrder("0x01", "0xaa", "{}")).To(BeNil())

			byHash, err := str.OrderBySecretHash("0xaa")
			Expect(err).To(BeNil())
			Expect(byHash.OrderID).To(Equal("0x01"))
			Expect(byHash.Status).To(Equal(store.Pending))

			byID, err := str.OrderByOrderID("0x01")
			Expect(err).To(BeNil())
			Expect(byID.SecretHash).To(Equal("0xaa"))
		})

		It("should enforce unique order rows", func() {
			Expect(str.PutOrder("0x01", "0xaa", "{}")).To(BeNil())
			Expect(str.PutOrder("0x01", "0xaa", "{}")).To(HaveOccurred())
		})

		It("should keep the creation parameters", func() {
			Expect(str.PutOrder("0x01", "0xaa", `{"makingAmount":1000}`)).To(BeNil())

			order, err := str.OrderBySecretHash("0xaa")
			Expect(err).To(BeNil())
			Expect(order.Params).To(Equal(`{"makingAmount":1000}`))
		})

		It("should update the status and error message", func() {
			Expect(str.PutOrder("0x01", "0xaa", "{}")).To(BeNil())
			Expect(str.UpdateOrderStatus("0xaa", store.Failed, errors.New("deploy failed"))).To(BeNil())

			status, err := str.Status("0xaa")
			Expect(err).To(BeNil())
			Expect(status).To(Equal(store.Failed))

			order, err := str.OrderBySecretHash("0xaa")
			Expect(err).To(BeNil())
			Expect(order.Error).To(Equal("deploy failed"))

			Expect(str.UpdateOrderStatus("0xaa", store.Funded, nil)).To(BeNil())
			status, err = str.Status("0xaa")
			Expect(err).To(BeNil())
			Expect(status).To(Equal(store.Funded))
		})

		It("should store the secret once disclosed", func() {
			Expect(str.PutOrder("0x01", "0xaa", "{}")).To(BeNil())
			Expect(str.PutSecret("0xaa", "deadbeef")).To(BeNil())

			secret, err := str.Secret("0xaa")
			Expect(err).To(BeNil())
			Expect(secret).To(Equal("deadbeef"))
		})

		It("should miss the status of unknown hashlocks", func() {
			_, err := str.Status("0xdoesnotexist")
			Expect(err).To(HaveOccurred())
		})

		It("should list orders", func() {
			Expect(str.PutOrder("0x01", "0xaa", "{}")).To(BeNil())
			Expect(str.PutOrder("0x02", "0xbb", "{}")).To(BeNil())

			orders, err := str.Orders()
			Expect(err).To(BeNil())
			Expect(orders).To(HaveLen(2))
		})
	})

	Context("Tokens", func() {
		It("should round-trip a token", func() {
			addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
			Expect(str.PutToken(addr, "jwt-token")).To(BeNil())

			token, err := str.Token(addr)
			Expect(err).To(BeNil())
			Expect(token).To(Equal("jwt-token"))
		})

		It("should replace the stored token for an address", func() {
			addr := common.HexToAddress("0x3333333333333333333333333333333333333333")
			Expect(str.PutToken(addr, "first")).To(BeNil())
			Expect(str.PutToken(addr, "second")).To(BeNil())

			token, err := str.Token(addr)
			Expect(err).To(BeNil())
			Expect(token).To(Equal("second"))
		})

		It("should miss unknown addresses", func() {
			_, err := str.Token(common.HexToAddress("0x42"))
			Expect(err).To(HaveOccurred())
		})
	})

	Context("Status semantics", func() {
		It("should treat only executed and cancelled as terminal", func() {
			Expect(store.Executed.Terminal()).To(BeTrue())
			Expect(store.Cancelled.Terminal()).To(BeTrue())
			Expect(store.Failed.Terminal()).To(BeFalse())
			Expect(store.Funded.Terminal()).To(BeFalse())
		})
	})
})
