package utils

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fatih/color"
	"github.com/tyler-smith/go-bip39"
)

var HomeDir string

func init() {
	var err error
	HomeDir, err = os.UserHomeDir()
	if err != nil {
		log.Fatal("failed to get $HOME value")
	}
}

func DefaultRelayDirectory() string {
	return filepath.Join(HomeDir, ".relay")
}

func DefaultConfigPath() string {
	return filepath.Join(HomeDir, ".relay", "config.json")
}

func DefaultStorePath() string {
	return filepath.Join(HomeDir, ".relay", "data.db")
}

// Config is the daemon's environment configuration, stored as JSON at
// DefaultConfigPath.
type Config struct {
	Mnemonic           string
	DB                 string
	RedisURL           string
	Sentry             string
	RPCServer          string
	RpcUserName        string
	RpcPassword        string
	JwtSecret          string
	NoTLS              bool
	SourceChainID      uint64
	DestinationChainID uint64
	EthereumRPC        string
	EscrowContract     string
	BitcoinRPC         string
	DiscordToken       string
	DiscordChannel     string
}

// LoadConfig reads the config file and generates a fresh mnemonic on first
// run, writing it back so the operator key survives restarts.
func LoadConfig(path string) (Config, error) {
	config := Config{}
	configFile, err := os.ReadFile(path)
	if err == nil {
		json.Unmarshal(configFile, &config)
	}

	dirty := false
	if config.Mnemonic == "" {
		entropy := make([]byte, 32)
		if _, err := rand.Read(entropy[:]); err != nil {
			return config, err
		}
		mnemonic, err := bip39.NewMnemonic(entropy)
		if err != nil {
			return config, err
		}
		color.Green("Generating new mnemonic:\n[ %v ]", mnemonic)
		config.Mnemonic = mnemonic
		dirty = true
	}
	if config.JwtSecret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return config, err
		}
		config.JwtSecret = hex.EncodeToString(buf)
		dirty = true
	}

	if dirty {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return config, err
		}
		data, err := json.MarshalIndent(config, "", "  ")
		if err != nil {
			return config, err
		}
		if err := os.WriteFile(path, data, 0755); err != nil {
			return config, err
		}
	}
	return config, nil
}

// OperatorKey derives the relayer's signing key from the config mnemonic.
func OperatorKey(mnemonic string) (*ecdsa.PrivateKey, error) {
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}
	return crypto.ToECDSA(crypto.Keccak256(entropy))
}

// OperatorAddress derives the relayer's address from the config mnemonic.
func OperatorAddress(mnemonic string) (common.Address, error) {
	key, err := OperatorKey(mnemonic)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}
