package rpc

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/spruceid/siwe-go"
	"go.uber.org/zap"

	"github.com/hashbridge/relay/pkg/store"
)

type VerifySiwe struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

type Claims struct {
	UserWallet string `json:"userWallet"`
	jwt.StandardClaims
}

type auth struct {
	// jwtSecret signs session tokens issued after a successful SIWE login.
	// It comes from the deployment's config so instances never share a key.
	jwtSecret []byte
	storage   store.Store
	logger    *zap.Logger
}

func newAuth(jwtSecret []byte, storage store.Store, logger *zap.Logger) *auth {
	return &auth{
		jwtSecret: jwtSecret,
		storage:   storage,
		logger:    logger.With(zap.String("service", "auth")),
	}
}

func (a *auth) nonce() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"nonce": siwe.GenerateNonce(),
		})
	}
}

func (a *auth) verify() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		req := VerifySiwe{}
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		token, addr, err := a.verifyMessage(req)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		// Reuse a live session instead of minting a second token for the
		// same wallet.
		if existing, err := a.storage.Token(addr); err == nil && existing != "" {
			ctx.JSON(http.StatusOK, gin.H{"token": existing})
			return
		}
		tokenString, err := token.SignedString(a.jwtSecret)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := a.storage.PutToken(addr, tokenString); err != nil {
			a.logger.Error("failed storing session token", zap.Error(err))
		}

		ctx.JSON(http.StatusOK, gin.H{"token": tokenString})
	}
}

func (a *auth) verifyMessage(req VerifySiwe) (*jwt.Token, common.Address, error) {
	parsedMessage, err := siwe.ParseMessage(req.Message)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("error parsing message: %w", err)
	}

	valid, err := parsedMessage.ValidNow()
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("error validating message: %w", err)
	}
	if !valid {
		return nil, common.Address{}, fmt.Errorf("validating expired token")
	}

	fromAddress, err := verifySignature(parsedMessage.String(), req.Signature)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("error verifying message: %w", err)
	}

	claims := &Claims{
		UserWallet: strings.ToLower(fromAddress.String()),
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(time.Hour * 24).Unix(), // Token expires in 24 hours
			IssuedAt:  time.Now().Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims), *fromAddress, nil
}

func (a *auth) validBearer(header string) bool {
	tokenString := strings.TrimPrefix(header, "Bearer ")
	if tokenString == header {
		return false
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return a.jwtSecret, nil
	})
	return err == nil && token.Valid
}

func verifySignature(msg string, signature string) (*common.Address, error) {
	sigHash := eip191SigHash(msg)
	sigBytes, err := hexutil.Decode(signature)
	if err != nil {
		return nil, err
	}
	if len(sigBytes) != 65 {
		return nil, fmt.Errorf("invalid signature length")
	}
	if sigBytes[64] != 27 && sigBytes[64] != 28 {
		return nil, fmt.Errorf("invalid signature recovery byte")
	}
	sigBytes[64] -= 27
	pubkey, err := crypto.SigToPub(sigHash.Bytes(), sigBytes)
	if err != nil {
		return nil, err
	}
	addr := crypto.PubkeyToAddress(*pubkey)
	return &addr, nil
}

func eip191SigHash(msg string) common.Hash {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(msg), msg)))
}
