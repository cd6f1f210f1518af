package store

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
)

var ErrTokenExpired = errors.New("token expired")

type Status uint

// Status values are persisted by their integer value; only ever append new
// ones.
const (
	Unknown Status = iota
	Pending
	SourceDeployed
	DestinationDeployed
	Funded
	Executed
	Cancelled
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case SourceDeployed:
		return "source deployed"
	case DestinationDeployed:
		return "destination deployed"
	case Funded:
		return "funded"
	case Executed:
		return "executed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the order can make no further progress. Failed is
// not terminal: an operator may retry a failed deployment.
func (s Status) Terminal() bool {
	return s == Executed || s == Cancelled
}

type Order struct {
	gorm.Model

	OrderID    string `gorm:"index:,unique"`
	SecretHash string `gorm:"index:,unique"`
	Secret     string
	Status     Status
	Error      string

	// Params holds the JSON-serialized creation parameters so a restarted
	// daemon can rebuild the order book from its rows.
	Params string
}

type Token struct {
	gorm.Model

	Address string
	Token   string
}

type Store interface {
	// PutToken inserts the jwt token and associated address into the db.
	PutToken(addr common.Address, token string) error

	Token(addr common.Address) (string, error)

	// PutOrder registers a new order row keyed by its hashlock.
	PutOrder(orderID, secretHash, params string) error

	PutSecret(secretHash, secret string) error

	Status(secretHash string) (Status, error)

	Secret(secretHash string) (string, error)

	UpdateOrderStatus(secretHash string, status Status, err error) error

	OrderBySecretHash(secretHash string) (Order, error)

	OrderByOrderID(orderID string) (Order, error)

	Orders() ([]Order, error)
}

type store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) (Store, error) {
	if err := db.AutoMigrate(&Order{}, &Token{}); err != nil {
		return nil, err
	}

	// Set max connections
	sqlDb, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDb.SetMaxIdleConns(5)
	sqlDb.SetMaxOpenConns(5)
	sqlDb.SetConnMaxIdleTime(10 * time.Minute)
	return &store{db: db}, nil
}

func (store *store) PutToken(addr common.Address, token string) error {
	existing := Token{}
	err := store.db.Where("address = ?", addr.Hex()).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.db.Create(&Token{Address: addr.Hex(), Token: token}).Error
	}
	if err != nil {
		return err
	}
	existing.Token = token
	return store.db.Save(&existing).Error
}

func (store *store) Token(addr common.Address) (string, error) {
	var token Token
	if err := store.db.Where("address = ?", addr.Hex()).First(&token).Error; err != nil {
		return "", err
	}
	if time.Since(token.UpdatedAt) >= 12*time.Hour {
		return token.Token, ErrTokenExpired
	}
	return token.Token, nil
}

func (store *store) PutOrder(orderID, secretHash, params string) error {
	order := Order{
		OrderID:    orderID,
		SecretHash: secretHash,
		Status:     Pending,
		Params:     params,
	}
	return store.db.Create(&order).Error
}

func (store *store) PutSecret(secretHash, secret string) error {
	return store.db.Table("orders").Where("secret_hash = ?", secretHash).Update("secret", secret).Error
}

func (store *store) Status(secretHash string) (Status, error) {
	order, err := store.OrderBySecretHash(secretHash)
	if err != nil {
		return Unknown, err
	}
	return order.Status, nil
}

func (store *store) Secret(secretHash string) (string, error) {
	var order Order
	if err := store.db.Where("secret_hash = ?", secretHash).First(&order).Error; err != nil {
		return "", err
	}
	return order.Secret, nil
}

func (store *store) UpdateOrderStatus(secretHash string, status Status, err error) error {
	if err != nil {
		return store.db.Table("orders").Where("secret_hash = ?", secretHash).
			Update("status", status).
			Update("error", err.Error()).
			Error
	}
	return store.db.Table("orders").Where("secret_hash = ?", secretHash).Update("status", status).Error
}

func (store *store) OrderBySecretHash(secretHash string) (Order, error) {
	var order Order
	err := store.db.Where("secret_hash = ?", secretHash).First(&order).Error
	return order, err
}

func (store *store) OrderByOrderID(orderID string) (Order, error) {
	var order Order
	err := store.db.Where("order_id = ?", orderID).First(&order).Error
	return order, err
}

func (store *store) Orders() ([]Order, error) {
	var orders []Order
	err := store.db.Order("created_at desc").Find(&orders).Error
	return orders, err
}
