package model

import "time"

type WorkflowInstanceStatus string

const (
	WorkflowInstanceActive    WorkflowInstanceStatus = "ACTIVE"
	WorkflowInstanceCompleted WorkflowInstanceStatus = "COMPLETED"
)

type WorkflowTaskStatus string

const (
	WorkflowTaskPending   WorkflowTaskStatus = "PENDING"
	WorkflowTaskCompleted WorkflowTaskStatus = "COMPLETED"
)

// プロセスインスタンス。business_key = 注文ID（注文ごとに1つだけ）。
// 変数はJSON文字列でまとめて持つ。
type WorkflowInstance struct {
	ID             string                 `gorm:"type:uuid;primaryKey" json:"id"`
	ProcessKey     string                 `gorm:"type:varchar(64);not null" json:"process_key"`
	BusinessKey    string                 `gorm:"type:varchar(64);not null;uniqueIndex" json:"business_key"`
	Status         WorkflowInstanceStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	CurrentTaskKey string                 `gorm:"type:varchar(64)" json:"current_task_key"`
	EndState       string                 `gorm:"type:varchar(64)" json:"end_state"`
	VariablesJSON  string                 `gorm:"type:text;not null" json:"-"`
	CreatedAt      time.Time              `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time              `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 保留中の判断ポイント。完了だけが状態を進める操作。
type WorkflowTask struct {
	ID          string             `gorm:"type:uuid;primaryKey" json:"id"`
	InstanceID  string             `gorm:"type:uuid;not null;index" json:"instance_id"`
	BusinessKey string             `gorm:"type:varchar(64);not null;index" json:"business_key"`
	TaskKey     string             `gorm:"type:varchar(64);not null;index" json:"task_key"`
	Status      WorkflowTaskStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	CreatedAt   time.Time          `gorm:"not null;autoCreateTime" json:"created_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}
