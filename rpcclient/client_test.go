package rpcclient_test

import (
	"encoding/json"
	"math/big"
	"net/http"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	"github.com/hashbridge/relay/pkg/escrow"
	"github.com/hashbridge/relay/pkg/monitor"
	"github.com/hashbridge/relay/pkg/orchestrator"
	"github.com/hashbridge/relay/pkg/store"
	"github.com/hashbridge/relay/pkg/swap"
	"github.com/hashbridge/relay/pkg/timelock"
	"github.com/hashbridge/relay/rpc"
	"github.com/hashbridge/relay/rpc/methods"
	"github.com/hashbridge/relay/rpcclient"
	"github.com/hashbridge/relay/utils"
)

const serverAddr = "localhost:18042"

var (
	client  rpcclient.Client
	storage store.Store
	maker   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	taker   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

var _ = BeforeSuite(func() {
	logger := zap.NewNop()

	db, err := gorm.Open(sqlite.Open(filepath.Join(GinkgoT().TempDir(), "relay.db")), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  glogger.Default.LogMode(glogger.Silent),
	})
	Expect(err).To(BeNil())
	storage, err = store.NewStore(db)
	Expect(err).To(BeNil())

	srcFunds := escrow.NewBalances()
	dstFunds := escrow.NewBalances()
	srcFunds.Credit(maker, big.NewInt(1_000_000))
	dstFunds.Credit(taker, big.NewInt(1_000_000))
	srcLedger := escrow.NewEscrowLedger(escrow.Source, srcFunds, logger)
	dstLedger := escrow.NewEscrowLedger(escrow.Destination, dstFunds, logger)

	checkpoints := monitor.NewMemoryCheckpoints()
	watchers := map[escrow.Side]*monitor.Watcher{
		escrow.Source:      monitor.NewWatcher("137", orchestrator.NewLedgerSource(dstLedger), checkpoints, logger),
		escrow.Destination: monitor.NewWatcher("1", orchestrator.NewLedgerSource(srcLedger), checkpoints, logger),
	}

	envConfig := utils.Config{
		RpcUserName: "admin",
		RpcPassword: "admin",
		RPCServer:   serverAddr,
	}
	orch := orchestrator.New(srcLedger, dstLedger, watchers, monitor.DefaultBudget(), storage, nil, logger)
	coreConfig := &methods.CoreConfig{
		Orchestrator: orch,
		Storage:      storage,
		EnvConfig:    envConfig,
		Logger:       logger,
	}
	server := rpc.NewRpcServer(coreConfig, envConfig, storage, logger)
	go func() {
		_ = server.Run(serverAddr)
	}()

	client = rpcclient.NewClient("admin", "admin", "http", serverAddr)
	Eventually(func() error {
		_, err := http.Get("http://" + serverAddr + "/nonce")
		return err
	}, 5*time.Second, 100*time.Millisecond).Should(BeNil())
})

func createRequest(orderID common.Hash, lock swap.HashLock) methods.RequestCreate {
	return methods.RequestCreate{
		OrderID:            orderID.Hex(),
		Maker:              maker.Hex(),
		Taker:              taker.Hex(),
		MakingAmount:       "1000",
		TakingAmount:       "2000",
		SafetyDeposit:      "50",
		SourceChainID:      1,
		DestinationChainID: 137,
		HashLock:           lock.Hex(),
		Timelocks: timelock.Offsets{
			SrcWithdrawal:         10,
			SrcPublicWithdrawal:   120,
			SrcCancellation:       3600,
			SrcPublicCancellation: 7200,
			DstWithdrawal:         10,
			DstPublicWithdrawal:   100,
			DstCancellation:       1800,
		},
	}
}

var _ = Describe("JSON-RPC client", func() {
	It("should create and fetch an order", func() {
		secret, err := swap.RandomSecret()
		Expect(err).To(BeNil())
		orderID := common.HexToHash("0x01")

		resp, err := client.CreateOrder(createRequest(orderID, secret.Hash()))
		Expect(err).To(BeNil())

		var created methods.OrderView
		Expect(json.Unmarshal(resp, &created)).To(BeNil())
		Expect(created.OrderID).To(Equal(orderID.Hex()))
		Expect(created.Status).To(Equal("pending"))

		resp, err = client.GetOrder(methods.RequestOrder{OrderID: orderID.Hex()})
		Expect(err).To(BeNil())
		var fetched methods.OrderView
		Expect(json.Unmarshal(resp, &fetched)).To(BeNil())
		Expect(fetched.HashLock).To(Equal(secret.Hash().Hex()))
	})

	It("should deploy both sides and report the order funded", func() {
		secret, err := swap.RandomSecret()
		Expect(err).To(BeNil())
		orderID := common.HexToHash("0x02")

		_, err = client.CreateOrder(createRequest(orderID, secret.Hash()))
		Expect(err).To(BeNil())

		_, err = client.Deploy(methods.RequestDeploy{OrderID: orderID.Hex(), Side: "source"})
		Expect(err).To(BeNil())

		resp, err := client.Deploy(methods.RequestDeploy{OrderID: orderID.Hex(), Side: "destination"})
		Expect(err).To(BeNil())

		var view methods.OrderView
		Expect(json.Unmarshal(resp, &view)).To(BeNil())
		Expect(view.Status).To(Equal("funded"))
		Expect(view.SourceEscrow).To(Equal("created"))
		Expect(view.DestinationEscrow).To(Equal("created"))
	})

	It("should list every registered order", func() {
		resp, err := client.ListOrders()
		Expect(err).To(BeNil())

		var views []methods.OrderView
		Expect(json.Unmarshal(resp, &views)).To(BeNil())
		Expect(len(views)).To(BeNumerically(">=", 2))
	})

	It("should expose the timelock schedule of a deployed order", func() {
		resp, err := client.Timelocks(methods.RequestOrder{OrderID: common.HexToHash("0x02").Hex()})
		Expect(err).To(BeNil())

		var info []orchestrator.StageInfo
		Expect(json.Unmarshal(resp, &info)).To(BeNil())
		Expect(info).To(HaveLen(len(timelock.Stages())))
	})

	It("should serve orders persisted by an earlier run", func() {
		orderID := common.HexToHash("0x77")
		lock := common.HexToHash("0x78")
		Expect(storage.PutOrder(orderID.Hex(), lock.Hex(), "{}")).To(BeNil())

		resp, err := client.GetOrder(methods.RequestOrder{OrderID: orderID.Hex()})
		Expect(err).To(BeNil())

		var view methods.OrderView
		Expect(json.Unmarshal(resp, &view)).To(BeNil())
		Expect(view.Status).To(Equal("pending"))
		Expect(view.HashLock).To(Equal(lock.Hex()))
	})

	It("should surface server side errors", func() {
		_, err := client.GetOrder(methods.RequestOrder{OrderID: common.HexToHash("0xff").Hex()})
		Expect(err).To(HaveOccurred())
	})

	It("should reject bad credentials", func() {
		bad := rpcclient.NewClient("admin", "wrong", "http", serverAddr)
		_, err := bad.ListOrders()
		Expect(err).To(HaveOccurred())
	})

	It("should toggle auto-withdraw over the wire", func() {
		resp, err := client.SetAutoWithdraw(methods.RequestAutoWithdraw{
			OrderID: common.HexToHash("0x02").Hex(),
			Enabled: true,
		})
		Expect(err).To(BeNil())

		var result map[string]interface{}
		Expect(json.Unmarshal(resp, &result)).To(BeNil())
		Expect(result["autoWithdraw"]).To(Equal(true))
	})
})
