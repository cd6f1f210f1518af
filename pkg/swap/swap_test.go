package swap_test

import (
	"strings"
	"testing/quick"

	"github.com/ethereum/go-ethereum/crypto"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hashbridge/relay/pkg/swap"
)

var _ = Describe("Secrets and hashlocks", func() {
	Context("Committing to a secret", func() {
		It("should use keccak256 as the commitment", func() {
			secret, err := swap.RandomSecret()
			Expect(err).To(BeNil())
			Expect(secret.Hash()).To(Equal(crypto.Keccak256Hash(secret[:])))
		})

		It("should verify a secret only against its own commitment", func() {
			test := func(a, b [32]byte) bool {
				sa, sb := swap.Secret(a), swap.Secret(b)
				if !swap.Verify(sa, sa.Hash()) {
					return false
				}
				if a == b {
					return true
				}
				return !swap.Verify(sb, sa.Hash())
			}
			Expect(quick.Check(test, nil)).NotTo(HaveOccurred())
		})

		It("should generate distinct random secrets", func() {
			first, err := swap.RandomSecret()
			Expect(err).To(BeNil())
			second, err := swap.RandomSecret()
			Expect(err).To(BeNil())
			Expect(first).NotTo(Equal(second))
		})
	})

	Context("Parsing hex input", func() {
		It("should accept 64 hex characters with or without the 0x prefix", func() {
			secret, err := swap.RandomSecret()
			Expect(err).To(BeNil())

			parsed, err := swap.SecretFromHex(secret.Hex())
			Expect(err).To(BeNil())
			Expect(parsed).To(Equal(secret))

			parsed, err = swap.SecretFromHex("0x" + secret.Hex())
			Expect(err).To(BeNil())
			Expect(parsed).To(Equal(secret))
		})

		It("should reject strings that are not exactly 32 bytes", func() {
			_, err := swap.SecretFromHex("deadbeef")
			Expect(err).To(HaveOccurred())

			_, err = swap.SecretFromHex(strings.Repeat("ab", 33))
			Expect(err).To(HaveOccurred())

			_, err = swap.HashLockFromHex("")
			Expect(err).To(HaveOccurred())
		})

		It("should reject non-hex characters", func() {
			_, err := swap.SecretFromHex(strings.Repeat("zz", 32))
			Expect(err).To(HaveOccurred())
		})

		It("should round-trip a hashlock through hex", func() {
			secret, err := swap.RandomSecret()
			Expect(err).To(BeNil())
			lock := secret.Hash()

			parsed, err := swap.HashLockFromHex(lock.Hex())
			Expect(err).To(BeNil())
			Expect(parsed).To(Equal(lock))
		})
	})
})
