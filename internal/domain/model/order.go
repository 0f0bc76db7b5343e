package model

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
	OrderStatusDeleted   OrderStatus = "DELETED"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusFailed    OrderStatus = "FAILED"
)

// 注文。statusの変更はワークフローのタスク完了とセットでのみ行う。
// 物理削除はしない（DELETEDもステータスの1つ）。
type Order struct {
	ID          string      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      int64       `gorm:"not null;index" json:"user_id"`
	Status      OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	TotalAmount int64       `gorm:"not null" json:"total_amount"`
	CreatedAt   time.Time   `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
