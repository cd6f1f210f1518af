package rpc

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hashbridge/relay/pkg/store"
	"github.com/hashbridge/relay/rpc/methods"
	"github.com/hashbridge/relay/utils"
)

type RPC interface {
	AddMethod(method methods.Method)
	HandleJSONRPC(ctx *gin.Context)
	Run(addr string) error
}

type rpc struct {
	methods    map[string]methods.Method
	coreConfig *methods.CoreConfig
	auth       *auth
	authsha    [sha256.Size]byte
}

// Request defines a JSON-RPC 2.0 request object.
type Request struct {
	Version string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response defines a JSON-RPC 2.0 response object.
type Response struct {
	Version string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error defines a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

// Error codes
const (
	ErrorCodeParseError        = -32700
	ErrorMessageParseError     = "Parse error"
	ErrorCodeInvalidRequest    = -32600
	ErrorMessageInvalidRequest = "Invalid Request"
	ErrorCodeMethodNotFound    = -32601
	ErrorMessageMethodNotFound = "Method not found"
	ErrorCodeInvalidParams     = -32602
	ErrorMessageInvalidParams  = "Invalid params"
	ErrorCodeInternalError     = -32603
	ErrorMessageInternalError  = "Internal error"
)

func NewResponse(id interface{}, result json.RawMessage, err *Error) Response {
	return Response{
		Version: "2.0",
		ID:      id,
		Result:  result,
		Error:   err,
	}
}

func NewError(code int, message string, data string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

func NewRpcServer(coreConfig *methods.CoreConfig, envConfig utils.Config, storage store.Store, logger *zap.Logger) RPC {
	if envConfig.RpcUserName == "" && envConfig.RpcPassword == "" {
		panic("RPC username and password must be specified")
	}

	login := envConfig.RpcUserName + ":" + envConfig.RpcPassword
	basic := "Basic " + base64.StdEncoding.EncodeToString([]byte(login))

	jwtSecret := []byte(envConfig.JwtSecret)
	if len(jwtSecret) == 0 {
		// Without a configured key, derive one from the RPC credentials so
		// deployments still never share a signing key.
		derived := sha256.Sum256([]byte("jwt|" + login))
		jwtSecret = derived[:]
	}

	return &rpc{
		methods:    make(map[string]methods.Method),
		coreConfig: coreConfig,
		auth:       newAuth(jwtSecret, storage, logger),
		authsha:    sha256.Sum256([]byte(basic)),
	}
}

func (r *rpc) AddMethod(method methods.Method) {
	r.methods[method.Name()] = method
}

func (r *rpc) HandleJSONRPC(ctx *gin.Context) {
	req := Request{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, NewResponse(req.ID, nil, NewError(ErrorCodeParseError, ErrorMessageParseError, err.Error())))
		return
	}

	method, ok := r.methods[req.Method]
	if !ok {
		ctx.JSON(http.StatusNotFound, NewResponse(req.ID, nil, NewError(ErrorCodeMethodNotFound, ErrorMessageMethodNotFound, "")))
		return
	}

	result, err := method.Query(r.coreConfig, req.Params)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, NewResponse(req.ID, nil, NewError(ErrorCodeInternalError, ErrorMessageInternalError, err.Error())))
		return
	}

	ctx.JSON(http.StatusOK, NewResponse(req.ID, result, nil))
}

func (r *rpc) authenticateUser(ctx *gin.Context) {
	authhdr := ctx.GetHeader("Authorization")
	if len(authhdr) == 0 {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized Invalid credentials"})
		return
	}

	// Either the configured basic credentials or a bearer token issued by
	// the SIWE verify route.
	authsha := sha256.Sum256([]byte(authhdr))
	if subtle.ConstantTimeCompare(authsha[:], r.authsha[:]) == 1 {
		return
	}
	if r.auth.validBearer(authhdr) {
		return
	}
	ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized Invalid credentials"})
}

func (r *rpc) Run(addr string) error {
	r.AddMethod(methods.CreateOrder())
	r.AddMethod(methods.DeployEscrow())
	r.AddMethod(methods.Withdraw())
	r.AddMethod(methods.Cancel())
	r.AddMethod(methods.RetryOrder())
	r.AddMethod(methods.GetOrder())
	r.AddMethod(methods.ListOrders())
	r.AddMethod(methods.Timelocks())
	r.AddMethod(methods.SetAutoWithdraw())
	r.AddMethod(methods.AccountInfo())

	s := gin.Default()
	s.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	s.GET("/nonce", r.auth.nonce())
	s.POST("/verify", r.auth.verify())

	authRoutes := s.Group("/")
	authRoutes.Use(r.authenticateUser)

	authRoutes.POST("/", r.HandleJSONRPC)
	return s.Run(addr)
}
