package timelock

import (
	"errors"
	"fmt"
	"time"
)

// Stage identifies one of the seven time gates of a swap. The order of the
// constants matches the packed layout and must not change.
type Stage int

const (
	SrcWithdrawal Stage = iota
	SrcPublicWithdrawal
	SrcCancellation
	SrcPublicCancellation
	DstWithdrawal
	DstPublicWithdrawal
	DstCancellation
)

var stageNames = map[Stage]string{
	SrcWithdrawal:         "SrcWithdrawal",
	SrcPublicWithdrawal:   "SrcPublicWithdrawal",
	SrcCancellation:       "SrcCancellation",
	SrcPublicCancellation: "SrcPublicCancellation",
	DstWithdrawal:         "DstWithdrawal",
	DstPublicWithdrawal:   "DstPublicWithdrawal",
	DstCancellation:       "DstCancellation",
}

func (s Stage) String() string {
	name, ok := stageNames[s]
	if !ok {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return name
}

// Stages lists all seven stages in packed order.
func Stages() []Stage {
	return []Stage{
		SrcWithdrawal,
		SrcPublicWithdrawal,
		SrcCancellation,
		SrcPublicCancellation,
		DstWithdrawal,
		DstPublicWithdrawal,
		DstCancellation,
	}
}

var ErrInvalidSchedule = errors.New("timelock stages out of order")

// Offsets holds the seven relative gates of a swap in seconds from deployment.
type Offsets struct {
	SrcWithdrawal         uint32 `json:"srcWithdrawal"`
	SrcPublicWithdrawal   uint32 `json:"srcPublicWithdrawal"`
	SrcCancellation       uint32 `json:"srcCancellation"`
	SrcPublicCancellation uint32 `json:"srcPublicCancellation"`
	DstWithdrawal         uint32 `json:"dstWithdrawal"`
	DstPublicWithdrawal   uint32 `json:"dstPublicWithdrawal"`
	DstCancellation       uint32 `json:"dstCancellation"`
}

// Validate enforces the strict stage ordering. On the source side
// Withdrawal < PublicWithdrawal < Cancellation < PublicCancellation, and on
// the destination side Withdrawal < PublicWithdrawal < Cancellation.
func (o Offsets) Validate() error {
	if !(o.SrcWithdrawal < o.SrcPublicWithdrawal &&
		o.SrcPublicWithdrawal < o.SrcCancellation &&
		o.SrcCancellation < o.SrcPublicCancellation) {
		return fmt.Errorf("%w: source side", ErrInvalidSchedule)
	}
	if !(o.DstWithdrawal < o.DstPublicWithdrawal &&
		o.DstPublicWithdrawal < o.DstCancellation) {
		return fmt.Errorf("%w: destination side", ErrInvalidSchedule)
	}
	return nil
}

// Schedule packs the seven stage offsets plus the deployment timestamp into a
// single 32-byte word. The layout is wire compatible with the EVM escrow
// contracts: stage i occupies the 4 big-endian bytes at offset 4*i, and the
// deployment timestamp sits in the last 4 bytes.
type Schedule struct {
	data [32]byte
}

// New validates the offsets and packs them into a Schedule. The deployment
// timestamp is zero until the owning escrow stamps it at creation.
func New(o Offsets) (Schedule, error) {
	if err := o.Validate(); err != nil {
		return Schedule{}, err
	}
	s := Schedule{}
	values := []uint32{
		o.SrcWithdrawal,
		o.SrcPublicWithdrawal,
		o.SrcCancellation,
		o.SrcPublicCancellation,
		o.DstWithdrawal,
		o.DstPublicWithdrawal,
		o.DstCancellation,
	}
	for i, v := range values {
		putUint32(s.data[4*i:], v)
	}
	return s, nil
}

// FromBytes decodes a packed schedule, re-validating the ordering invariant.
// Malformed words coming from a remote ledger are rejected, never defaulted.
func FromBytes(data [32]byte) (Schedule, error) {
	s := Schedule{data: data}
	if err := s.Offsets().Validate(); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

func (s Schedule) Bytes() [32]byte {
	return s.data
}

// Offsets unpacks the seven relative gates.
func (s Schedule) Offsets() Offsets {
	return Offsets{
		SrcWithdrawal:         s.Offset(SrcWithdrawal),
		SrcPublicWithdrawal:   s.Offset(SrcPublicWithdrawal),
		SrcCancellation:       s.Offset(SrcCancellation),
		SrcPublicCancellation: s.Offset(SrcPublicCancellation),
		DstWithdrawal:         s.Offset(DstWithdrawal),
		DstPublicWithdrawal:   s.Offset(DstPublicWithdrawal),
		DstCancellation:       s.Offset(DstCancellation),
	}
}

// Offset returns the relative gate of the stage in seconds.
func (s Schedule) Offset(stage Stage) uint32 {
	return getUint32(s.data[4*int(stage):])
}

// DeployedAt returns the unix timestamp stamped at escrow creation.
func (s Schedule) DeployedAt() uint32 {
	return getUint32(s.data[28:])
}

// WithDeployedAt returns a copy of the schedule stamped with the deployment
// timestamp. Value semantics keep already-published schedules immutable.
func (s Schedule) WithDeployedAt(deployedAt uint32) Schedule {
	putUint32(s.data[28:], deployedAt)
	return s
}

// Get resolves the absolute unix timestamp at which the stage opens.
func (s Schedule) Get(stage Stage) uint64 {
	return uint64(s.DeployedAt()) + uint64(s.Offset(stage))
}

// Reached reports whether the stage has opened at the given time.
func (s Schedule) Reached(stage Stage, now time.Time) bool {
	return uint64(now.Unix()) >= s.Get(stage)
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
