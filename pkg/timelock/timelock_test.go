package timelock_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hashbridge/relay/pkg/timelock"
)

func validOffsets() timelock.Offsets {
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

var _ = Describe("Timelock schedules", func() {
	Context("Validating stage ordering", func() {
		It("should accept a strictly ordered schedule", func() {
			Expect(validOffsets().Validate()).To(BeNil())
		})

		It("should reject equal neighbouring stages", func() {
			o := validOffsets()
			o.SrcPublicWithdrawal = o.SrcWithdrawal
			err := o.Validate()
			Expect(err).To(MatchError(timelock.ErrInvalidSchedule))
		})

		It("should reject an inverted source side", func() {
			o := validOffsets()
			o.SrcCancellation = 1
			Expect(o.Validate()).To(MatchError(timelock.ErrInvalidSchedule))
		})

		It("should reject an inverted destination side", func() {
			o := validOffsets()
			o.DstCancellation = o.DstWithdrawal
			Expect(o.Validate()).To(MatchError(timelock.ErrInvalidSchedule))
		})
	})

	Context("Packing into the 32 byte word", func() {
		It("should place each stage at 4 byte big-endian offsets", func() {
			// Later source stages stay above SrcWithdrawal to keep the
			// ordering invariant intact.
			o := validOffsets()
			o.SrcWithdrawal = 0x01020304
			o.SrcPublicWithdrawal = 0x01020305
			o.SrcCancellation = 0x01020306
			o.SrcPublicCancellation = 0x01020307
			schedule, err := timelock.New(o)
			Expect(err).To(BeNil())

			packed := schedule.Bytes()
			Expect(packed[0:4]).To(Equal([]byte{0x01, 0x02, 0x03, 0x04}))
			Expect(packed[4:8]).To(Equal([]byte{0x01, 0x02, 0x03, 0x05}))
		})

		It("should round-trip offsets through the packed form", func() {
			o := validOffsets()
			schedule, err := timelock.New(o)
			Expect(err).To(BeNil())
			Expect(schedule.Offsets()).To(Equal(o))

			decoded, err := timelock.FromBytes(schedule.Bytes())
			Expect(err).To(BeNil())
			Expect(decoded.Offsets()).To(Equal(o))
		})

		It("should reject a packed word that violates the ordering", func() {
			schedule, err := timelock.New(validOffsets())
			Expect(err).To(BeNil())

			packed := schedule.Bytes()
			// Zero out SrcPublicWithdrawal so it collides with SrcWithdrawal.
			copy(packed[4:8], []byte{0, 0, 0, 0})
			_, err = timelock.FromBytes(packed)
			Expect(err).To(MatchError(timelock.ErrInvalidSchedule))
		})

		It("should keep the deployment timestamp in the last 4 bytes", func() {
			schedule, err := timelock.New(validOffsets())
			Expect(err).To(BeNil())

			stamped := schedule.WithDeployedAt(0x0a0b0c0d)
			packed := stamped.Bytes()
			Expect(packed[28:32]).To(Equal([]byte{0x0a, 0x0b, 0x0c, 0x0d}))
			Expect(stamped.DeployedAt()).To(Equal(uint32(0x0a0b0c0d)))
		})
	})

	Context("Stamping the deployment time", func() {
		It("should not mutate the original schedule", func() {
			schedule, err := timelock.New(validOffsets())
			Expect(err).To(BeNil())

			stamped := schedule.WithDeployedAt(1_700_000_000)
			Expect(schedule.DeployedAt()).To(Equal(uint32(0)))
			Expect(stamped.DeployedAt()).To(Equal(uint32(1_700_000_000)))
		})
	})

	Context("Resolving stages against the clock", func() {
		It("should open a stage exactly at deployedAt plus offset", func() {
			schedule, err := timelock.New(validOffsets())
			Expect(err).To(BeNil())

			deployedAt := uint32(1_700_000_000)
			stamped := schedule.WithDeployedAt(deployedAt)
			opensAt := stamped.Get(timelock.SrcWithdrawal)
			Expect(opensAt).To(Equal(uint64(deployedAt) + 10))

			Expect(stamped.Reached(timelock.SrcWithdrawal, time.Unix(int64(opensAt)-1, 0))).To(BeFalse())
			Expect(stamped.Reached(timelock.SrcWithdrawal, time.Unix(int64(opensAt), 0))).To(BeTrue())
			Expect(stamped.Reached(timelock.SrcWithdrawal, time.Unix(int64(opensAt)+1, 0))).To(BeTrue())
		})

		It("should resolve all seven stages", func() {
			schedule, err := timelock.New(validOffsets())
			Expect(err).To(BeNil())
			stamped := schedule.WithDeployedAt(1_700_000_000)

			for _, stage := range timelock.Stages() {
				Expect(stamped.Get(stage)).To(Equal(uint64(1_700_000_000) + uint64(stamped.Offset(stage))))
			}
		})
	})
})
