package repository

import (
	"context"
	"time"

	"orderflow/internal/domain/model"
)

// ワークフローエンジンの永続化。Engineからだけ使う。
type WorkflowRepository interface {
	CreateInstance(ctx context.Context, inst model.WorkflowInstance) error
	FindInstanceByBusinessKey(ctx context.Context, businessKey string) (model.WorkflowInstance, error)
	UpdateInstance(ctx context.Context, inst model.WorkflowInstance) error

	CreateTask(ctx context.Context, task model.WorkflowTask) error
	FindPendingTask(ctx context.Context, businessKey string, taskKey string) (model.WorkflowTask, error)
	FindTaskByID(ctx context.Context, taskID string) (model.WorkflowTask, error)
	// PENDINGのときだけCOMPLETEDに更新。0行更新なら既に完了済み（ErrNotFound）。
	CompleteTask(ctx context.Context, taskID string, completedAt time.Time) error
}
