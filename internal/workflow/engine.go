package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"orderflow/internal/domain/model"
	repo "orderflow/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// タスクが存在しない、または既に完了済み。二重送信はこれになる（致命ではない）。
	ErrTaskNotFound = errors.New("workflow: task not found")
	// business keyに対するACTIVEなインスタンスが無い
	ErrProcessNotFound = errors.New("workflow: process instance not found")
	// 同じbusiness keyで2回startした（呼び出し側のバグ）
	ErrDuplicateBusinessKey = errors.New("workflow: process already started for business key")
	// 渡された変数ではどの遷移条件も成立しない
	ErrNoTransition = errors.New("workflow: no matching transition")
)

// プロセス変数。boolean変数が遷移条件を決める。
type Variables map[string]any

func (v Variables) Bool(name string) (bool, bool) {
	b, ok := v[name].(bool)
	return b, ok
}

func decodeVariables(s string) (Variables, error) {
	vars := Variables{}
	if s == "" {
		return vars, nil
	}
	if err := json.Unmarshal([]byte(s), &vars); err != nil {
		return nil, fmt.Errorf("workflow: decode variables: %w", err)
	}
	// JSON nullはnil mapになるので空mapに戻す
	if vars == nil {
		vars = Variables{}
	}
	return vars, nil
}

func encodeVariables(vars Variables) (string, error) {
	if vars == nil {
		vars = Variables{}
	}
	b, err := json.Marshal(vars)
	if err != nil {
		return "", fmt.Errorf("workflow: encode variables: %w", err)
	}
	return string(b), nil
}

// Engine は固定のプロセス定義に沿ってインスタンスを進める。
// 永続化はWorkflowRepository越しに行うので、呼び出し側のトランザクションに同乗する。
type Engine struct {
	def *Definition
	log *zap.Logger
}

func NewEngine(def *Definition, log *zap.Logger) (*Engine, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{def: def, log: log}, nil
}

func (e *Engine) Definition() *Definition {
	return e.def
}

// StartProcess はbusiness keyごとに1回だけ呼べる。
// インスタンスと最初の保留タスクを作る。
func (e *Engine) StartProcess(ctx context.Context, wr repo.WorkflowRepository, businessKey string, vars Variables) (model.WorkflowInstance, error) {
	if _, err := wr.FindInstanceByBusinessKey(ctx, businessKey); err == nil {
		return model.WorkflowInstance{}, ErrDuplicateBusinessKey
	} else if !errors.Is(err, repo.ErrNotFound) {
		return model.WorkflowInstance{}, err
	}

	encoded, err := encodeVariables(vars)
	if err != nil {
		return model.WorkflowInstance{}, err
	}

	inst := model.WorkflowInstance{
		ID:             uuid.NewString(),
		ProcessKey:     e.def.Key,
		BusinessKey:    businessKey,
		Status:         model.WorkflowInstanceActive,
		CurrentTaskKey: e.def.Initial,
		VariablesJSON:  encoded,
	}
	if err := wr.CreateInstance(ctx, inst); err != nil {
		return model.WorkflowInstance{}, err
	}

	task := model.WorkflowTask{
		ID:          uuid.NewString(),
		InstanceID:  inst.ID,
		BusinessKey: businessKey,
		TaskKey:     e.def.Initial,
		Status:      model.WorkflowTaskPending,
	}
	if err := wr.CreateTask(ctx, task); err != nil {
		return model.WorkflowInstance{}, err
	}

	e.log.Info("workflow started",
		zap.String("process_key", e.def.Key),
		zap.String("business_key", businessKey),
		zap.String("task_key", task.TaskKey))

	return inst, nil
}

// FindTask は(business key, タスク定義キー)で保留タスクを1件探す。
// プロセスグラフの不変条件により同種タスクは同時に1つしか無い。
func (e *Engine) FindTask(ctx context.Context, wr repo.WorkflowRepository, businessKey string, taskKey string) (model.WorkflowTask, error) {
	if !e.def.HasUserTask(taskKey) {
		return model.WorkflowTask{}, fmt.Errorf("workflow: unknown task key %q", taskKey)
	}
	task, err := wr.FindPendingTask(ctx, businessKey, taskKey)
	if errors.Is(err, repo.ErrNotFound) {
		return model.WorkflowTask{}, ErrTaskNotFound
	}
	if err != nil {
		return model.WorkflowTask{}, err
	}
	return task, nil
}

// FindTaskByID はタスクIDで直接引く（クライアントがIDを控えている場合）。
func (e *Engine) FindTaskByID(ctx context.Context, wr repo.WorkflowRepository, taskID string) (model.WorkflowTask, error) {
	task, err := wr.FindTaskByID(ctx, taskID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.WorkflowTask{}, ErrTaskNotFound
	}
	if err != nil {
		return model.WorkflowTask{}, err
	}
	return task, nil
}

func (e *Engine) FindInstanceByBusinessKey(ctx context.Context, wr repo.WorkflowRepository, businessKey string) (model.WorkflowInstance, error) {
	inst, err := wr.FindInstanceByBusinessKey(ctx, businessKey)
	if errors.Is(err, repo.ErrNotFound) {
		return model.WorkflowInstance{}, ErrProcessNotFound
	}
	if err != nil {
		return model.WorkflowInstance{}, err
	}
	return inst, nil
}

// CompleteTask は保留タスクを変数付きで完了し、条件に合う遷移先へ進める。
// 遷移先がユーザータスクなら次の保留タスクを作り、終端ならインスタンスを完了させる。
// 既に完了済みのタスクはErrTaskNotFound（リトライ安全）。
func (e *Engine) CompleteTask(ctx context.Context, wr repo.WorkflowRepository, taskID string, vars Variables) error {
	task, err := wr.FindTaskByID(ctx, taskID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrTaskNotFound
	}
	if err != nil {
		return err
	}
	if task.Status != model.WorkflowTaskPending {
		return ErrTaskNotFound
	}

	inst, err := wr.FindInstanceByBusinessKey(ctx, task.BusinessKey)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrProcessNotFound
	}
	if err != nil {
		return err
	}
	if inst.Status != model.WorkflowInstanceActive {
		return ErrTaskNotFound
	}

	merged, err := decodeVariables(inst.VariablesJSON)
	if err != nil {
		return err
	}
	for k, v := range vars {
		merged[k] = v
	}

	node, ok := e.def.Node(task.TaskKey)
	if !ok || node.Kind != NodeUserTask {
		return fmt.Errorf("workflow: task %q has no node in definition %q", task.TaskKey, e.def.Key)
	}

	next, ok := pickTransition(node, merged)
	if !ok {
		return ErrNoTransition
	}

	// 保留→完了のガード付き更新。0行なら並行リクエストに先を越された。
	if err := wr.CompleteTask(ctx, task.ID, time.Now()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrTaskNotFound
		}
		return err
	}

	encoded, err := encodeVariables(merged)
	if err != nil {
		return err
	}
	inst.VariablesJSON = encoded

	nextNode := e.def.Nodes[next]
	if nextNode.Kind == NodeEnd {
		inst.Status = model.WorkflowInstanceCompleted
		inst.CurrentTaskKey = ""
		inst.EndState = next
	} else {
		inst.CurrentTaskKey = next
		if err := wr.CreateTask(ctx, model.WorkflowTask{
			ID:          uuid.NewString(),
			InstanceID:  inst.ID,
			BusinessKey: inst.BusinessKey,
			TaskKey:     next,
			Status:      model.WorkflowTaskPending,
		}); err != nil {
			return err
		}
	}

	if err := wr.UpdateInstance(ctx, inst); err != nil {
		return err
	}

	e.log.Info("workflow advanced",
		zap.String("business_key", inst.BusinessKey),
		zap.String("completed_task", task.TaskKey),
		zap.String("next", next))

	return nil
}

// 条件に一致する最初の遷移を返す。条件無しの遷移は常に一致。
func pickTransition(node Node, vars Variables) (string, bool) {
	for _, t := range node.Out {
		if t.When == nil {
			return t.To, true
		}
		if b, ok := vars.Bool(t.When.Variable); ok && b == t.When.Expect {
			return t.To, true
		}
	}
	return "", false
}
