package usecase

import (
	"context"
	"net/http"
	"testing"

	"orderflow/internal/domain/model"
	repo "orderflow/internal/repository"
	"orderflow/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkout直後（在庫判定待ち）の注文を作る
func checkoutPendingOrder(t *testing.T, env *testEnv) string {
	t.Helper()
	env.seedUser(1, model.RoleUser)
	env.seedUser(2, model.RoleAdmin)
	env.seedProduct(10, "widget", 1000, 5)
	env.seedCart(1, 10, 2)

	out, err := env.orders.Checkout(context.Background(), 1)
	require.NoError(t, err)
	return out.ID
}

func TestApproveStock_ConfirmsAndAdvancesToCancelDecision(t *testing.T) {
	env := newTestEnv(t)
	orderID := checkoutPendingOrder(t, env)

	require.NoError(t, env.admin.ApproveStock(context.Background(), 2, orderID))

	assert.Equal(t, model.OrderStatusConfirmed, env.store.orders[orderID].Status)

	inst := env.store.instances[orderID]
	assert.Equal(t, model.WorkflowInstanceActive, inst.Status)
	assert.Equal(t, workflow.TaskCancelDecision, inst.CurrentTaskKey)
	assert.Equal(t, 1, env.pendingCount(orderID))

	// 監査ログが残る
	audits := env.store.audits
	require.Len(t, audits, 1)
	assert.Equal(t, model.AuditActionApproveStock, audits[0].Action)
	assert.Equal(t, orderID, audits[0].ResourceID)
	assert.Equal(t, int64(2), audits[0].ActorUserID)
}

func TestApproveStock_ProcessNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(2, model.RoleAdmin)

	// プロセスインスタンスの無い注文
	env.store.orders["orphan"] = model.Order{ID: "orphan", UserID: 1, Status: model.OrderStatusPending}

	err := env.admin.ApproveStock(context.Background(), 2, "orphan")
	assertHTTPStatus(t, err, http.StatusNotFound)
	assert.Equal(t, model.OrderStatusPending, env.store.orders["orphan"].Status)
}

func TestRejectStock_ReleasesReservedStock(t *testing.T) {
	env := newTestEnv(t)
	orderID := checkoutPendingOrder(t, env)

	// checkoutで5→3に減っている
	require.Equal(t, int64(3), env.store.products[10].Stock)

	require.NoError(t, env.admin.RejectStock(context.Background(), 2, orderID))

	// 予約分が在庫へ戻る
	assert.Equal(t, int64(5), env.store.products[10].Stock)
	assert.Equal(t, model.OrderStatusCanceled, env.store.orders[orderID].Status)

	inst := env.store.instances[orderID]
	assert.Equal(t, model.WorkflowInstanceCompleted, inst.Status)
	assert.Equal(t, workflow.EndCanceled, inst.EndState)
	assert.Equal(t, 0, env.pendingCount(orderID))

	audits := env.store.audits
	require.Len(t, audits, 1)
	assert.Equal(t, model.AuditActionRejectStock, audits[0].Action)
}

func TestRejectStock_Twice_RollsBackRelease(t *testing.T) {
	env := newTestEnv(t)
	orderID := checkoutPendingOrder(t, env)

	require.NoError(t, env.admin.RejectStock(context.Background(), 2, orderID))

	// 2回目はタスクが無いので404。在庫の二重戻しはロールバックで防がれる
	err := env.admin.RejectStock(context.Background(), 2, orderID)
	assertHTTPStatus(t, err, http.StatusNotFound)
	assert.Equal(t, int64(5), env.store.products[10].Stock)
}

func TestApproveOrder_SetsConfirmedAndReturnsStatus(t *testing.T) {
	env := newTestEnv(t)
	orderID := checkoutPendingOrder(t, env)
	require.NoError(t, env.admin.ApproveStock(context.Background(), 2, orderID))

	newStatus, err := env.admin.ApproveOrder(context.Background(), 2, orderID, "")
	require.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusConfirmed), newStatus)

	// 決済判定タスクへ進む
	inst := env.store.instances[orderID]
	assert.Equal(t, workflow.TaskPaymentDecision, inst.CurrentTaskKey)
}

func TestApproveOrder_OrderNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(2, model.RoleAdmin)

	_, err := env.admin.ApproveOrder(context.Background(), 2, "missing", "")
	assertHTTPStatus(t, err, http.StatusNotFound)
}

func TestAdminList_InvalidPaging(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.admin.List(context.Background(), repo.AdminOrderListFilter{Page: 0, Limit: 10})
	assertHTTPStatus(t, err, http.StatusBadRequest)

	_, err = env.admin.List(context.Background(), repo.AdminOrderListFilter{Page: 1, Limit: 1000})
	assertHTTPStatus(t, err, http.StatusBadRequest)
}

func TestAdminList_FiltersByStatus(t *testing.T) {
	env := newTestEnv(t)
	orderID := checkoutPendingOrder(t, env)
	require.NoError(t, env.admin.ApproveStock(context.Background(), 2, orderID))

	out, err := env.admin.List(context.Background(), repo.AdminOrderListFilter{
		Page:   1,
		Limit:  10,
		Status: string(model.OrderStatusConfirmed),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, orderID, out[0].ID)

	out, err = env.admin.List(context.Background(), repo.AdminOrderListFilter{
		Page:   1,
		Limit:  10,
		Status: string(model.OrderStatusPaid),
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}
