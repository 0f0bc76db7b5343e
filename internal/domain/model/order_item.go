package model

import "time"

// 注文明細。作成後は変更しない（価格はスナップショットで保護）。
type OrderItem struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID             string    `gorm:"type:uuid;not null;index" json:"order_id"`
	ProductID           int64     `gorm:"not null;index" json:"product_id"`
	ProductNameSnapshot string    `gorm:"type:varchar(255);not null" json:"product_name_snapshot"`
	UnitPriceSnapshot   int64     `gorm:"not null" json:"unit_price_snapshot"`
	Quantity            int64     `gorm:"not null" json:"quantity"`
	Subtotal            int64     `gorm:"not null" json:"subtotal"`
	CreatedAt           time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
