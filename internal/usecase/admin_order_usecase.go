package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"orderflow/internal/domain/model"
	repo "orderflow/internal/repository"
	"orderflow/internal/workflow"

	"go.uber.org/zap"
)

// AdminOrderUsecase は管理者側の判断（承認・在庫判定）のオーケストレータ。
type AdminOrderUsecase struct {
	tx     repo.TransactionManager
	engine WorkflowEngine
	log    *zap.Logger
}

func NewAdminOrderUsecase(tx repo.TransactionManager, engine WorkflowEngine, log *zap.Logger) *AdminOrderUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminOrderUsecase{tx: tx, engine: engine, log: log}
}

// 注文一覧（管理者）
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) ([]OrderOutput, error) {
	if f.Page < 1 {
		return []OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return []OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListAdmin(ctx, f)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			outs = append(outs, toOrderOutput(o, items))
		}
		return nil
	})

	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

// ApproveOrder は管理者による注文承認。
// cancel-decisionタスクをorderCanceled=falseで完了し、CONFIRMEDにする。新しいステータスを返す。
func (u *AdminOrderUsecase) ApproveOrder(ctx context.Context, actorAdminUserID int64, orderID string, taskID string) (string, error) {
	if actorAdminUserID <= 0 {
		return "", NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(orderID) == "" {
		return "", NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if err := completeOrderTask(ctx, r, u.engine, u.log, orderTaskInput{
			OrderID:   orderID,
			TaskID:    taskID,
			TaskKey:   workflow.TaskCancelDecision,
			NewStatus: model.OrderStatusConfirmed,
			Variables: workflow.Variables{workflow.VarOrderCanceled: false},
		}); err != nil {
			return err
		}

		return u.audit(ctx, r, actorAdminUserID, model.AuditActionApproveOrder, orderID,
			string(before.Status), string(model.OrderStatusConfirmed))
	})
	if err != nil {
		return "", err
	}
	return string(model.OrderStatusConfirmed), nil
}

// ApproveStock は管理者による在庫確認OK。
// ACTIVEなプロセスインスタンスが無ければエラー（stock-decisionはプロセス起点のタスク）。
func (u *AdminOrderUsecase) ApproveStock(ctx context.Context, actorAdminUserID int64, orderID string) error {
	if actorAdminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(orderID) == "" {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		// プロセスインスタンスの存在チェック
		if _, err := u.engine.FindInstanceByBusinessKey(ctx, r.Workflow(), orderID); err != nil {
			if errors.Is(err, workflow.ErrProcessNotFound) {
				return NewHTTPError(http.StatusNotFound, "process not found")
			}
			return NewHTTPError(http.StatusInternalServerError, "workflow error")
		}

		if err := completeOrderTask(ctx, r, u.engine, u.log, orderTaskInput{
			OrderID:   orderID,
			TaskKey:   workflow.TaskStockDecision,
			NewStatus: model.OrderStatusConfirmed,
			Variables: workflow.Variables{workflow.VarIsInStock: true},
		}); err != nil {
			return err
		}

		return u.audit(ctx, r, actorAdminUserID, model.AuditActionApproveStock, orderID,
			string(before.Status), string(model.OrderStatusConfirmed))
	})
}

// RejectStock は管理者による在庫確認NG。
// CANCELEDにし、チェックアウト時に予約した数量を在庫へ戻してから、
// stock-decisionタスクをisInStock=falseで完了する（補償リリース）。
func (u *AdminOrderUsecase) RejectStock(ctx context.Context, actorAdminUserID int64, orderID string) error {
	if actorAdminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(orderID) == "" {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		// 予約済み数量を戻す。注文は先に進まないので持ち続ける理由がない。
		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		for _, it := range items {
			if err := r.Inventory().ReleaseStock(ctx, it.ProductID, it.Quantity); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		}

		if err := completeOrderTask(ctx, r, u.engine, u.log, orderTaskInput{
			OrderID:   orderID,
			TaskKey:   workflow.TaskStockDecision,
			NewStatus: model.OrderStatusCanceled,
			Variables: workflow.Variables{workflow.VarIsInStock: false},
		}); err != nil {
			return err
		}

		return u.audit(ctx, r, actorAdminUserID, model.AuditActionRejectStock, orderID,
			string(before.Status), string(model.OrderStatusCanceled))
	})
}

// 監査ログ（管理者の判断はbefore/after付きで残す）
func (u *AdminOrderUsecase) audit(ctx context.Context, r repo.TxRepos, actorID int64, action model.AuditAction, orderID string, beforeStatus string, afterStatus string) error {
	beforeJSON := `{"status":"` + beforeStatus + `"}`
	afterJSON := `{"status":"` + afterStatus + `"}`
	if err := r.AuditLogs().Create(ctx, model.AuditLog{
		ActorUserID:  actorID,
		Action:       action,
		ResourceType: model.AuditResourceOrder,
		ResourceID:   orderID,
		BeforeJSON:   beforeJSON,
		AfterJSON:    afterJSON,
		CreatedAt:    time.Now(),
	}); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}
