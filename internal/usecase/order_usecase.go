package usecase

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"orderflow/internal/domain/model"
	repo "orderflow/internal/repository"
	"orderflow/internal/workflow"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// エンジンは注入されたコラボレータ。グローバルにはしない。
type WorkflowEngine interface {
	StartProcess(ctx context.Context, wr repo.WorkflowRepository, businessKey string, vars workflow.Variables) (model.WorkflowInstance, error)
	FindTask(ctx context.Context, wr repo.WorkflowRepository, businessKey string, taskKey string) (model.WorkflowTask, error)
	FindTaskByID(ctx context.Context, wr repo.WorkflowRepository, taskID string) (model.WorkflowTask, error)
	FindInstanceByBusinessKey(ctx context.Context, wr repo.WorkflowRepository, businessKey string) (model.WorkflowInstance, error)
	CompleteTask(ctx context.Context, wr repo.WorkflowRepository, taskID string, vars workflow.Variables) error
}

// OrderUsecase はユーザー側の注文操作のオーケストレータ。
// 注文ステータスの変更とワークフローのタスク完了は必ず同じWithinTxの中で対にする。
type OrderUsecase struct {
	tx     repo.TransactionManager
	engine WorkflowEngine
	log    *zap.Logger
}

func NewOrderUsecase(tx repo.TransactionManager, engine WorkflowEngine, log *zap.Logger) *OrderUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderUsecase{tx: tx, engine: engine, log: log}
}

type OrderItemOutput struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
}

type OrderOutput struct {
	ID          string            `json:"id"`
	UserID      int64             `json:"user_id"`
	Status      string            `json:"status"`
	TotalAmount int64             `json:"total_amount"`
	CreatedAt   time.Time         `json:"created_at"`
	Items       []OrderItemOutput `json:"items"`
}

// Checkout はカートから注文を作る。
// 在庫予約（行ロック＋減算）・注文作成・カートクリア・プロセス開始が1トランザクション。
// 途中で失敗したら予約済みの減算も含めて全部戻る。
func (u *OrderUsecase) Checkout(ctx context.Context, userID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// userの存在確認
		if _, err := r.Users().FindByID(ctx, userID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusNotFound, "user not found")
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		// ACTIVEカート取得
		cart, err := r.Carts().FindActiveByUserID(ctx, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusBadRequest, "cart empty")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		cartItems, err := r.CartItems().ListByCartID(ctx, cart.ID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if len(cartItems) == 0 {
			return NewHTTPError(http.StatusBadRequest, "cart empty")
		}

		// 明細順に予約。最初の在庫不足で全体を中断（ロールバックで部分予約は残らない）。
		orderItems := make([]model.OrderItem, 0, len(cartItems))
		var total int64 = 0

		for _, ci := range cartItems {
			p, err := r.Products().FindByID(ctx, ci.ProductID)
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusBadRequest, "invalid product")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !p.IsActive {
				return NewHTTPError(http.StatusBadRequest, "invalid product")
			}

			if _, err := r.Inventory().ReserveStock(ctx, ci.ProductID, ci.Quantity); err != nil {
				if errors.Is(err, repo.ErrInsufficientStock) {
					return NewHTTPError(http.StatusConflict, "insufficient stock")
				}
				if errors.Is(err, repo.ErrNotFound) {
					return NewHTTPError(http.StatusBadRequest, "invalid product")
				}
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}

			// 価格スナップショット（後のカタログ変更から保護）
			subtotal := p.Price * ci.Quantity
			orderItems = append(orderItems, model.OrderItem{
				ProductID:           ci.ProductID,
				ProductNameSnapshot: p.Name,
				UnitPriceSnapshot:   p.Price,
				Quantity:            ci.Quantity,
				Subtotal:            subtotal,
			})
			total += subtotal
		}

		order := model.Order{
			ID:          uuid.NewString(),
			UserID:      userID,
			Status:      model.OrderStatusPending,
			TotalAmount: total,
		}
		if err := r.Orders().Create(ctx, order); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err := r.OrderItems().CreateBulk(ctx, order.ID, orderItems); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		// カートをCHECKED_OUTにして明細をクリア（再注文防止）
		if err := r.Carts().UpdateStatus(ctx, cart.ID, model.CartStatusCheckedOut); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err := r.Carts().Clear(ctx, cart.ID); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		// プロセス開始。business key = 注文ID（注文ごとに1回だけ）。
		vars := workflow.Variables{
			workflow.VarOrderID:     order.ID,
			workflow.VarUserID:      strconv.FormatInt(userID, 10),
			workflow.VarTotalAmount: strconv.FormatInt(total, 10),
		}
		if _, err := u.engine.StartProcess(ctx, r.Workflow(), order.ID, vars); err != nil {
			if errors.Is(err, workflow.ErrDuplicateBusinessKey) {
				return NewHTTPError(http.StatusConflict, "process already started")
			}
			return NewHTTPError(http.StatusInternalServerError, "workflow error")
		}

		order.CreatedAt = time.Now()
		out = toOrderOutput(order, orderItems)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}

	u.log.Info("order checked out",
		zap.String("order_id", out.ID),
		zap.Int64("user_id", out.UserID),
		zap.Int64("total_amount", out.TotalAmount))
	return out, nil
}

// CancelOrder はユーザーによる注文キャンセル。
// CANCELEDへの更新とcancel-decisionタスクの完了（orderCanceled=true）が1単位。
func (u *OrderUsecase) CancelOrder(ctx context.Context, userID int64, orderID string, taskID string) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(orderID) == "" {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.UserID != userID {
			// 他人の注文は「存在しない扱い」
			return NewHTTPError(http.StatusNotFound, "order not found")
		}

		return completeOrderTask(ctx, r, u.engine, u.log, orderTaskInput{
			OrderID:   orderID,
			TaskID:    taskID,
			TaskKey:   workflow.TaskCancelDecision,
			NewStatus: model.OrderStatusCanceled,
			Variables: workflow.Variables{workflow.VarOrderCanceled: true},
		})
	})
}

// DeleteOrder はキャンセル確定後の削除確認。deleted=trueで終端へ進む。
// 物理削除はせず、ステータスDELETEDにするだけ。
func (u *OrderUsecase) DeleteOrder(ctx context.Context, userID int64, orderID string, taskID string) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(orderID) == "" {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.UserID != userID {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}

		return completeOrderTask(ctx, r, u.engine, u.log, orderTaskInput{
			OrderID:   orderID,
			TaskID:    taskID,
			TaskKey:   workflow.TaskDeleteConfirm,
			NewStatus: model.OrderStatusDeleted,
			Variables: workflow.Variables{workflow.VarDeleted: true},
		})
	})
}

// CompletePaymentSuccess は決済ゲートウェイのコールバック（成功）。
func (u *OrderUsecase) CompletePaymentSuccess(ctx context.Context, orderID string) error {
	return u.completePayment(ctx, orderID, true)
}

// CompletePaymentFailure は決済ゲートウェイのコールバック（失敗）。
func (u *OrderUsecase) CompletePaymentFailure(ctx context.Context, orderID string) error {
	return u.completePayment(ctx, orderID, false)
}

func (u *OrderUsecase) completePayment(ctx context.Context, orderID string, success bool) error {
	if strings.TrimSpace(orderID) == "" {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	status := model.OrderStatusPaid
	if !success {
		status = model.OrderStatusFailed
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if _, err := r.Orders().FindByID(ctx, orderID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusNotFound, "order not found")
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		return completeOrderTask(ctx, r, u.engine, u.log, orderTaskInput{
			OrderID:   orderID,
			TaskKey:   workflow.TaskPaymentDecision,
			NewStatus: status,
			Variables: workflow.Variables{workflow.VarIsPaymentSuccessful: success},
		})
	})
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64) ([]OrderOutput, error) {
	if userID <= 0 {
		return []OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListByUserID(ctx, userID, 1, 50)
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

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, userID int64, orderID string) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(orderID) == "" {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.UserID != userID {
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out = toOrderOutput(o, items)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

type orderTaskInput struct {
	OrderID   string
	TaskID    string // 空ならbusiness key + TaskKeyで探す
	TaskKey   string
	NewStatus model.OrderStatus
	Variables workflow.Variables
}

// completeOrderTask は注文ステータスの更新とタスク完了を同一トランザクション内で対にする。
// タスク側が失敗したらerrorを返してステータス更新ごとロールバックさせる。
func completeOrderTask(ctx context.Context, r repo.TxRepos, engine WorkflowEngine, log *zap.Logger, in orderTaskInput) error {
	if err := r.Orders().UpdateStatus(ctx, in.OrderID, in.NewStatus); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	var task model.WorkflowTask
	var err error
	if strings.TrimSpace(in.TaskID) == "" {
		task, err = engine.FindTask(ctx, r.Workflow(), in.OrderID, in.TaskKey)
	} else {
		task, err = engine.FindTaskByID(ctx, r.Workflow(), in.TaskID)
	}
	if err != nil {
		if errors.Is(err, workflow.ErrTaskNotFound) {
			// 二重送信のリトライでよく起きる。握りつぶさずログには残す。
			log.Warn("workflow task not found",
				zap.String("order_id", in.OrderID),
				zap.String("task_key", in.TaskKey))
			return NewHTTPError(http.StatusNotFound, "task not found")
		}
		return NewHTTPError(http.StatusInternalServerError, "workflow error")
	}

	if err := engine.CompleteTask(ctx, r.Workflow(), task.ID, in.Variables); err != nil {
		switch {
		case errors.Is(err, workflow.ErrTaskNotFound):
			log.Warn("workflow task already completed",
				zap.String("order_id", in.OrderID),
				zap.String("task_id", task.ID))
			return NewHTTPError(http.StatusNotFound, "task not found")
		case errors.Is(err, workflow.ErrNoTransition):
			return NewHTTPError(http.StatusConflict, "invalid decision")
		default:
			return NewHTTPError(http.StatusInternalServerError, "workflow error")
		}
	}

	return nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			Price:     it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal,
		})
	}

	return OrderOutput{
		ID:          o.ID,
		UserID:      o.UserID,
		Status:      string(o.Status),
		TotalAmount: o.TotalAmount,
		CreatedAt:   o.CreatedAt,
		Items:       outItems,
	}
}
