package escrow_test

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/hashbridge/relay/pkg/escrow"
	"github.com/hashbridge/relay/pkg/swap"
	"github.com/hashbridge/relay/pkg/timelock"
)

var (
	maker    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	taker    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	stranger = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func testOffsets() timelock.Offsets {
	return timelock.Offsets{
		SrcWithdrawal:         10,
		SrcPublicWithdrawal:   120,
		SrcCancellation:       3600,
		SrcPublicCancellation: 7200,
		DstWithdrawal:         10,
		DstPublicWithdrawal:   100,
		DstCancellation:       1800,
	}
}

func testImmutables(lock swap.HashLock) escrow.Immutables {
	schedule, err := timelock.New(testOffsets())
	Expect(err).To(BeNil())
	return escrow.Immutables{
		OrderID:       common.HexToHash("0x01"),
		HashLock:      lock,
		Maker:         maker,
		Taker:         taker,
		Asset:         common.Address{},
		Amount:        big.NewInt(1000),
		SafetyDeposit: big.NewInt(50),
		Timelocks:     schedule,
	}
}

var _ = Describe("Escrow ledger", func() {
	var (
		ctx    context.Context
		clock  *fakeClock
		funds  *escrow.Balances
		ledger *escrow.EscrowLedger
		secret swap.Secret
		im     escrow.Immutables
	)

	newLedger := func(side escrow.Side) *escrow.EscrowLedger {
		return escrow.NewEscrowLedger(side, funds, zap.NewNop()).WithClock(clock.Now)
	}

	BeforeEach(func() {
		ctx = context.Background()
		clock = newFakeClock(time.Unix(1_700_000_000, 0))
		funds = escrow.NewBalances()
		funds.Credit(maker, big.NewInt(10_000))
		funds.Credit(taker, big.NewInt(10_000))

		var err error
		secret, err = swap.RandomSecret()
		Expect(err).To(BeNil())
		im = testImmutables(secret.Hash())
		ledger = newLedger(escrow.Source)
	})

	Context("Creating an escrow", func() {
		It("should lock amount plus safety deposit from the depositor", func() {
			record, err := ledger.Create(ctx, im)
			Expect(err).To(BeNil())
			Expect(record.Status).To(Equal(escrow.Created))
			Expect(funds.Balance(maker)).To(Equal(big.NewInt(10_000 - 1050)))
			Expect(funds.Locked()).To(Equal(big.NewInt(1050)))
		})

		It("should stamp the deployment time into the schedule", func() {
			record, err := ledger.Create(ctx, im)
			Expect(err).To(BeNil())
			Expect(record.Timelocks.DeployedAt()).To(Equal(uint32(clock.Now().Unix())))
		})

		It("should create at most one escrow per order id", func() {
			_, err := ledger.Create(ctx, im)
			Expect(err).To(BeNil())
			_, err = ledger.Create(ctx, im)
			Expect(err).To(MatchError(escrow.ErrAlreadyExists))
		})

		It("should reject invalid parameters before touching funds", func() {
			bad := im
			bad.Amount = big.NewInt(0)
			_, err := ledger.Create(ctx, bad)
			Expect(err).To(MatchError(escrow.ErrValidation))
			Expect(funds.Locked().Sign()).To(BeZero())
		})

		It("should refuse when the depositor cannot cover the deposit", func() {
			im.Amount = big.NewInt(1_000_000)
			_, err := ledger.Create(ctx, im)
			Expect(err).To(HaveOccurred())
			_, ok := ledger.Record(im.OrderID)
			Expect(ok).To(BeFalse())
		})
	})

	Context("Withdrawing", func() {
		BeforeEach(func() {
			_, err := ledger.Create(ctx, im)
			Expect(err).To(BeNil())
		})

		It("should refuse before the withdrawal gate opens", func() {
			clock.Advance(2 * time.Second)
			_, err := ledger.Withdraw(ctx, im.OrderID, secret, taker)
			Expect(err).To(MatchError(escrow.ErrTimelockNotMet))
		})

		It("should release to the recipient once the gate is open", func() {
			clock.Advance(11 * time.Second)
			record, err := ledger.Withdraw(ctx, im.OrderID, secret, taker)
			Expect(err).To(BeNil())
			Expect(record.Status).To(Equal(escrow.Withdrawn))
			Expect(funds.Balance(taker)).To(Equal(big.NewInt(10_000 + 1050)))
			Expect(funds.Locked().Sign()).To(BeZero())
		})

		It("should reject a secret that does not match the hashlock", func() {
			clock.Advance(11 * time.Second)
			wrong, err := swap.RandomSecret()
			Expect(err).To(BeNil())
			_, err = ledger.Withdraw(ctx, im.OrderID, wrong, taker)
			Expect(err).To(MatchError(escrow.ErrInvalidSecret))

			record, ok := ledger.Record(im.OrderID)
			Expect(ok).To(BeTrue())
			Expect(record.Status).To(Equal(escrow.Created))
		})

		It("should only let the recipient withdraw before the public stage", func() {
			clock.Advance(11 * time.Second)
			_, err := ledger.Withdraw(ctx, im.OrderID, secret, stranger)
			Expect(err).To(MatchError(escrow.ErrUnauthorized))
		})

		It("should pay the safety deposit to whoever relays a public withdrawal", func() {
			clock.Advance(121 * time.Second)
			_, err := ledger.Withdraw(ctx, im.OrderID, secret, stranger)
			Expect(err).To(BeNil())
			Expect(funds.Balance(taker)).To(Equal(big.NewInt(10_000 + 1000)))
			Expect(funds.Balance(stranger)).To(Equal(big.NewInt(50)))
		})

		It("should refuse a second withdrawal", func() {
			clock.Advance(11 * time.Second)
			_, err := ledger.Withdraw(ctx, im.OrderID, secret, taker)
			Expect(err).To(BeNil())
			_, err = ledger.Withdraw(ctx, im.OrderID, secret, taker)
			Expect(err).To(MatchError(escrow.ErrAlreadyFinalized))
		})

		It("should record the disclosure", func() {
			clock.Advance(11 * time.Second)
			_, err := ledger.Withdraw(ctx, im.OrderID, secret, taker)
			Expect(err).To(BeNil())

			disclosures := ledger.Disclosures(im.HashLock, 0)
			Expect(disclosures).To(HaveLen(1))
			Expect(disclosures[0].Secret).To(Equal(secret))
			Expect(ledger.Disclosures(im.HashLock, disclosures[0].Position)).To(BeEmpty())
		})

		It("should not find escrows that were never created", func() {
			_, err := ledger.Withdraw(ctx, common.HexToHash("0xff"), secret, taker)
			Expect(err).To(MatchError(escrow.ErrNotFound))
		})
	})

	Context("Cancelling", func() {
		BeforeEach(func() {
			_, err := ledger.Create(ctx, im)
			Expect(err).To(BeNil())
		})

		It("should refuse before the cancellation gate opens", func() {
			clock.Advance(time.Hour - time.Second)
			_, err := ledger.Cancel(ctx, im.OrderID, maker)
			Expect(err).To(MatchError(escrow.ErrTimelockNotMet))
		})

		It("should refund amount plus deposit to the depositor", func() {
			clock.Advance(time.Hour + time.Second)
			record, err := ledger.Cancel(ctx, im.OrderID, maker)
			Expect(err).To(BeNil())
			Expect(record.Status).To(Equal(escrow.Cancelled))
			Expect(funds.Balance(maker)).To(Equal(big.NewInt(10_000)))
			Expect(funds.Locked().Sign()).To(BeZero())
		})

		It("should only let the depositor cancel before the public stage", func() {
			clock.Advance(time.Hour + time.Second)
			_, err := ledger.Cancel(ctx, im.OrderID, stranger)
			Expect(err).To(MatchError(escrow.ErrUnauthorized))
		})

		It("should let anyone cancel the source side after the public stage", func() {
			clock.Advance(2*time.Hour + time.Second)
			_, err := ledger.Cancel(ctx, im.OrderID, stranger)
			Expect(err).To(BeNil())
			Expect(funds.Balance(maker)).To(Equal(big.NewInt(10_000)))
		})

		It("should never open destination cancellation to the public", func() {
			dst := newLedger(escrow.Destination)
			_, err := dst.Create(ctx, im)
			Expect(err).To(BeNil())

			clock.Advance(100 * time.Hour)
			_, err = dst.Cancel(ctx, im.OrderID, maker)
			Expect(err).To(MatchError(escrow.ErrUnauthorized))

			_, err = dst.Cancel(ctx, im.OrderID, taker)
			Expect(err).To(BeNil())
		})

		It("should refuse to cancel a withdrawn escrow", func() {
			clock.Advance(11 * time.Second)
			_, err := ledger.Withdraw(ctx, im.OrderID, secret, taker)
			Expect(err).To(BeNil())

			clock.Advance(100 * time.Hour)
			_, err = ledger.Cancel(ctx, im.OrderID, maker)
			Expect(err).To(MatchError(escrow.ErrAlreadyFinalized))
		})

		It("should let the first of two concurrent cancellations win", func() {
			clock.Advance(2 * time.Hour)

			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = ledger.Cancel(ctx, im.OrderID, maker)
				}(i)
			}
			wg.Wait()

			finalized := 0
			for _, err := range errs {
				if err == nil {
					finalized++
				} else {
					Expect(err).To(MatchError(escrow.ErrAlreadyFinalized))
				}
			}
			Expect(finalized).To(Equal(1))
			Expect(funds.Balance(maker)).To(Equal(big.NewInt(10_000)))
		})
	})

	Context("Record sides", func() {
		It("should release to the taker on the source side", func() {
			record, err := ledger.Create(ctx, im)
			Expect(err).To(BeNil())
			Expect(record.Recipient()).To(Equal(taker))
			Expect(record.Depositor()).To(Equal(maker))
		})

		It("should release to the maker on the destination side", func() {
			dst := newLedger(escrow.Destination)
			record, err := dst.Create(ctx, im)
			Expect(err).To(BeNil())
			Expect(record.Recipient()).To(Equal(maker))
			Expect(record.Depositor()).To(Equal(taker))
		})
	})
})
