package model

import "time"

type AuditAction string

const (
	AuditActionApproveOrder AuditAction = "APPROVE_ORDER"
	AuditActionApproveStock AuditAction = "APPROVE_STOCK"
	AuditActionRejectStock  AuditAction = "REJECT_STOCK"
	AuditActionSetStock     AuditAction = "SET_STOCK"
)

const AuditResourceOrder = "ORDER"
const AuditResourceProduct = "PRODUCT"

// 管理者操作の監査ログ
type AuditLog struct {
	ID           int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	ActorUserID  int64       `gorm:"not null;index" json:"actor_user_id"`
	Action       AuditAction `gorm:"type:varchar(40);not null" json:"action"`
	ResourceType string      `gorm:"type:varchar(20);not null" json:"resource_type"`
	ResourceID   string      `gorm:"type:varchar(64);not null;index" json:"resource_id"`
	BeforeJSON   string      `gorm:"type:text" json:"before_json"`
	AfterJSON    string      `gorm:"type:text" json:"after_json"`
	CreatedAt    time.Time   `gorm:"not null;autoCreateTime" json:"created_at"`
}
