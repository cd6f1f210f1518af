package commands

import (
	"strconv"
	"time"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	"github.com/hashbridge/relay/pkg/alert"
	"github.com/hashbridge/relay/pkg/escrow"
	"github.com/hashbridge/relay/pkg/monitor"
	"github.com/hashbridge/relay/pkg/orchestrator"
	"github.com/hashbridge/relay/pkg/store"
	"github.com/hashbridge/relay/rpc"
	"github.com/hashbridge/relay/rpc/methods"
	"github.com/hashbridge/relay/utils"
)

func Start(envConfig utils.Config, logger *zap.Logger) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "start",
		Short: "Start the escrow relayer daemon",
		Run: func(c *cobra.Command, args []string) {
			if err := startDaemon(envConfig, logger); err != nil {
				cobra.CheckErr(err)
			}
		},
		DisableAutoGenTag: true,
	}
	return cmd
}

func startDaemon(envConfig utils.Config, logger *zap.Logger) error {
	gormConfig := &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  glogger.Default.LogMode(glogger.Silent),
	}
	var db *gorm.DB
	var err error
	if envConfig.DB != "" {
		db, err = gorm.Open(postgres.Open(envConfig.DB), gormConfig)
	} else {
		db, err = gorm.Open(sqlite.Open(utils.DefaultStorePath()), gormConfig)
	}
	if err != nil {
		return err
	}
	storage, err := store.NewStore(db)
	if err != nil {
		return err
	}

	checkpoints := monitor.NewMemoryCheckpoints()
	if envConfig.RedisURL != "" {
		checkpoints, err = monitor.NewRedisCheckpoints(envConfig.RedisURL)
		if err != nil {
			return err
		}
	}

	alerts := alert.NewNoop()
	if envConfig.DiscordToken != "" {
		alerts, err = alert.NewDiscord(envConfig.DiscordToken, envConfig.DiscordChannel)
		if err != nil {
			return err
		}
	}

	sourceLedger := escrow.NewEscrowLedger(escrow.Source, escrow.NewBalances(), logger)
	destinationLedger := escrow.NewEscrowLedger(escrow.Destination, escrow.NewBalances(), logger)

	sourceFeed := orchestrator.NewLedgerSource(sourceLedger)
	if envConfig.EthereumRPC != "" {
		client, err := ethclient.Dial(envConfig.EthereumRPC)
		if err != nil {
			return err
		}
		sourceFeed = monitor.NewEthereumSource(client, common.HexToAddress(envConfig.EscrowContract))
	}
	destinationFeed := orchestrator.NewLedgerSource(destinationLedger)
	if envConfig.BitcoinRPC != "" {
		client, err := rpcclient.New(&rpcclient.ConnConfig{
			Host:         envConfig.BitcoinRPC,
			HTTPPostMode: true,
			DisableTLS:   true,
		}, nil)
		if err != nil {
			return err
		}
		destinationFeed = monitor.NewBitcoinSource(client)
	}

	// A side's escrows are unlocked by the withdrawal on the counter chain,
	// so each side's watcher polls the other side's feed. Checkpoints are
	// scoped to the polled chain: its positions mean nothing on the other
	// feed.
	srcChain := strconv.FormatUint(envConfig.SourceChainID, 10)
	dstChain := strconv.FormatUint(envConfig.DestinationChainID, 10)
	watchers := map[escrow.Side]*monitor.Watcher{
		escrow.Source:      monitor.NewWatcher(dstChain, destinationFeed, checkpoints, logger),
		escrow.Destination: monitor.NewWatcher(srcChain, sourceFeed, checkpoints, logger),
	}

	orch := orchestrator.New(sourceLedger, destinationLedger, watchers, monitor.DefaultBudget(), storage, alerts, logger)
	if err := orch.Recover(); err != nil {
		return err
	}
	if err := orch.Start(); err != nil {
		return err
	}
	defer orch.Stop()

	coreConfig := &methods.CoreConfig{
		Orchestrator: orch,
		Storage:      storage,
		EnvConfig:    envConfig,
		Logger:       logger,
	}
	server := rpc.NewRpcServer(coreConfig, envConfig, storage, logger)
	return server.Run(envConfig.RPCServer)
}
