package workflow

import "fmt"

const ProcessKeyOrder = "order-process"

// タスク定義キー。プロセス定義とOrchestratorで共有する閉じた集合。
const (
	TaskStockDecision   = "stock-decision"
	TaskCancelDecision  = "cancel-decision"
	TaskDeleteConfirm   = "delete-confirm"
	TaskPaymentDecision = "payment-decision"
)

// 終端ノード
const (
	EndCanceled = "end-canceled"
	EndDeleted  = "end-deleted"
	EndPaid     = "end-paid"
	EndFailed   = "end-failed"
)

// プロセス変数名
const (
	VarOrderID             = "orderId"
	VarUserID              = "userId"
	VarTotalAmount         = "totalAmount"
	VarIsInStock           = "isInStock"
	VarOrderCanceled       = "orderCanceled"
	VarDeleted             = "deleted"
	VarIsPaymentSuccessful = "isPaymentSuccessful"
)

type NodeKind string

const (
	NodeUserTask NodeKind = "USER_TASK"
	NodeEnd      NodeKind = "END"
)

// 遷移条件。boolean変数との一致だけを見る。
type Condition struct {
	Variable string
	Expect   bool
}

type Transition struct {
	To string
	// nilなら無条件
	When *Condition
}

type Node struct {
	Key  string
	Kind NodeKind
	Out  []Transition
}

// 固定のプロセスグラフ。コードで組み立てて起動時にValidateする。
type Definition struct {
	Key     string
	Initial string
	Nodes   map[string]Node
}

func (d *Definition) Node(key string) (Node, bool) {
	n, ok := d.Nodes[key]
	return n, ok
}

// keyがユーザータスクとして定義されているか
func (d *Definition) HasUserTask(key string) bool {
	n, ok := d.Nodes[key]
	return ok && n.Kind == NodeUserTask
}

// 定義の整合性チェック。壊れた定義は設計バグなので起動時に落とす。
func (d *Definition) Validate() error {
	if d.Key == "" {
		return fmt.Errorf("workflow: definition key is empty")
	}
	if !d.HasUserTask(d.Initial) {
		return fmt.Errorf("workflow: initial node %q is not a user task", d.Initial)
	}
	for key, n := range d.Nodes {
		if key != n.Key {
			return fmt.Errorf("workflow: node %q registered under key %q", n.Key, key)
		}
		switch n.Kind {
		case NodeUserTask:
			if len(n.Out) == 0 {
				return fmt.Errorf("workflow: user task %q has no outgoing transition", key)
			}
		case NodeEnd:
			if len(n.Out) != 0 {
				return fmt.Errorf("workflow: end node %q has outgoing transitions", key)
			}
		default:
			return fmt.Errorf("workflow: node %q has unknown kind %q", key, n.Kind)
		}
		for _, t := range n.Out {
			if _, ok := d.Nodes[t.To]; !ok {
				return fmt.Errorf("workflow: node %q points to undefined node %q", key, t.To)
			}
		}
	}
	return nil
}

// OrderProcess は注文ライフサイクルのプロセス定義。
//
//	stock-decision   --isInStock=true-->  cancel-decision
//	stock-decision   --isInStock=false--> end-canceled
//	cancel-decision  --orderCanceled=false--> payment-decision
//	cancel-decision  --orderCanceled=true-->  delete-confirm
//	delete-confirm   --deleted=true-->        end-deleted
//	payment-decision --isPaymentSuccessful=true-->  end-paid
//	payment-decision --isPaymentSuccessful=false--> end-failed
func OrderProcess() *Definition {
	nodes := []Node{
		{
			Key:  TaskStockDecision,
			Kind: NodeUserTask,
			Out: []Transition{
				{To: TaskCancelDecision, When: &Condition{Variable: VarIsInStock, Expect: true}},
				{To: EndCanceled, When: &Condition{Variable: VarIsInStock, Expect: false}},
			},
		},
		{
			Key:  TaskCancelDecision,
			Kind: NodeUserTask,
			Out: []Transition{
				{To: TaskPaymentDecision, When: &Condition{Variable: VarOrderCanceled, Expect: false}},
				{To: TaskDeleteConfirm, When: &Condition{Variable: VarOrderCanceled, Expect: true}},
			},
		},
		{
			Key:  TaskDeleteConfirm,
			Kind: NodeUserTask,
			Out: []Transition{
				{To: EndDeleted, When: &Condition{Variable: VarDeleted, Expect: true}},
			},
		},
		{
			Key:  TaskPaymentDecision,
			Kind: NodeUserTask,
			Out: []Transition{
				{To: EndPaid, When: &Condition{Variable: VarIsPaymentSuccessful, Expect: true}},
				{To: EndFailed, When: &Condition{Variable: VarIsPaymentSuccessful, Expect: false}},
			},
		},
		{Key: EndCanceled, Kind: NodeEnd},
		{Key: EndDeleted, Kind: NodeEnd},
		{Key: EndPaid, Kind: NodeEnd},
		{Key: EndFailed, Kind: NodeEnd},
	}

	m := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		m[n.Key] = n
	}

	return &Definition{
		Key:     ProcessKeyOrder,
		Initial: TaskStockDecision,
		Nodes:   m,
	}
}
