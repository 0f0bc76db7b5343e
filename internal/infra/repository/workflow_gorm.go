package repository

import (
	"context"
	"errors"
	"time"

	"orderflow/internal/domain/model"
	repo "orderflow/internal/repository"

	"gorm.io/gorm"
)

type WorkflowGormRepository struct {
	db *gorm.DB
}

func NewWorkflowGormRepository(db *gorm.DB) *WorkflowGormRepository {
	return &WorkflowGormRepository{db: db}
}

func (r *WorkflowGormRepository) CreateInstance(ctx context.Context, inst model.WorkflowInstance) error {
	return r.db.WithContext(ctx).Create(&inst).Error
}

func (r *WorkflowGormRepository) FindInstanceByBusinessKey(ctx context.Context, businessKey string) (model.WorkflowInstance, error) {
	var inst model.WorkflowInstance
	err := r.db.WithContext(ctx).
		Where("business_key = ?", businessKey).
		First(&inst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.WorkflowInstance{}, repo.ErrNotFound
	}
	if err != nil {
		return model.WorkflowInstance{}, err
	}
	return inst, nil
}

func (r *WorkflowGormRepository) UpdateInstance(ctx context.Context, inst model.WorkflowInstance) error {
	res := r.db.WithContext(ctx).Model(&model.WorkflowInstance{}).
		Where("id = ?", inst.ID).
		Updates(map[string]interface{}{
			"status":           inst.Status,
			"current_task_key": inst.CurrentTaskKey,
			"end_state":        inst.EndState,
			"variables_json":   inst.VariablesJSON,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *WorkflowGormRepository) CreateTask(ctx context.Context, task model.WorkflowTask) error {
	return r.db.WithContext(ctx).Create(&task).Error
}

func (r *WorkflowGormRepository) FindPendingTask(ctx context.Context, businessKey string, taskKey string) (model.WorkflowTask, error) {
	var task model.WorkflowTask
	err := r.db.WithContext(ctx).
		Where("business_key = ? AND task_key = ? AND status = ?",
			businessKey, taskKey, model.WorkflowTaskPending).
		First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.WorkflowTask{}, repo.ErrNotFound
	}
	if err != nil {
		return model.WorkflowTask{}, err
	}
	return task, nil
}

func (r *WorkflowGormRepository) FindTaskByID(ctx context.Context, taskID string) (model.WorkflowTask, error) {
	var task model.WorkflowTask
	err := r.db.WithContext(ctx).Where("id = ?", taskID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.WorkflowTask{}, repo.ErrNotFound
	}
	if err != nil {
		return model.WorkflowTask{}, err
	}
	return task, nil
}

// PENDINGのときだけCOMPLETEDにする。0行なら別リクエストが先に完了させた。
func (r *WorkflowGormRepository) CompleteTask(ctx context.Context, taskID string, completedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.WorkflowTask{}).
		Where("id = ? AND status = ?", taskID, model.WorkflowTaskPending).
		Updates(map[string]interface{}{
			"status":       model.WorkflowTaskCompleted,
			"completed_at": completedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
