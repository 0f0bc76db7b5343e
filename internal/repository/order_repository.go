package repository

import (
	"context"
	"errors"
	"time"

	"orderflow/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status string
	UserID *int64
	From   *time.Time
	To     *time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID string) (model.Order, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) error
	// statusの更新のみ。ワークフローのタスク完了と同じトランザクションで呼ぶこと。
	UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus) error
	// 管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
}
