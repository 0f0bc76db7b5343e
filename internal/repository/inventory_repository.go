package repository

import (
	"context"
	"errors"

	"orderflow/internal/domain/model"
)

var ErrInsufficientStock = errors.New("insufficient stock")

type InventoryRepository interface {
	// 行ロック（FOR UPDATE）で在庫を読み、足りれば減算して新しい在庫を返す。
	// 足りなければErrInsufficientStock。ロックはトランザクション終了まで保持される。
	ReserveStock(ctx context.Context, productID int64, qty int64) (int64, error)

	// 在庫戻し（キャンセル・在庫却下の補償）
	ReleaseStock(ctx context.Context, productID int64, qty int64) error

	// 在庫の現在値を設定（管理者）
	SetStock(ctx context.Context, productID int64, newStock int64) error

	// 調整履歴作成
	CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error
}
