package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderProcess_Validates(t *testing.T) {
	def := OrderProcess()
	require.NoError(t, def.Validate())

	assert.Equal(t, ProcessKeyOrder, def.Key)
	assert.Equal(t, TaskStockDecision, def.Initial)
}

func TestOrderProcess_UserTaskKeys(t *testing.T) {
	def := OrderProcess()

	for _, key := range []string{
		TaskStockDecision,
		TaskCancelDecision,
		TaskDeleteConfirm,
		TaskPaymentDecision,
	} {
		assert.True(t, def.HasUserTask(key), key)
	}

	// 終端はユーザータスクではない
	for _, key := range []string{EndCanceled, EndDeleted, EndPaid, EndFailed} {
		assert.False(t, def.HasUserTask(key), key)
	}
}

func TestValidate_InitialMustBeUserTask(t *testing.T) {
	def := &Definition{
		Key:     "p",
		Initial: "done",
		Nodes: map[string]Node{
			"done": {Key: "done", Kind: NodeEnd},
		},
	}
	assert.Error(t, def.Validate())
}

func TestValidate_DanglingTransition(t *testing.T) {
	def := &Definition{
		Key:     "p",
		Initial: "t1",
		Nodes: map[string]Node{
			"t1": {Key: "t1", Kind: NodeUserTask, Out: []Transition{{To: "nowhere"}}},
		},
	}
	assert.Error(t, def.Validate())
}

func TestValidate_UserTaskNeedsOutgoing(t *testing.T) {
	def := &Definition{
		Key:     "p",
		Initial: "t1",
		Nodes: map[string]Node{
			"t1": {Key: "t1", Kind: NodeUserTask},
		},
	}
	assert.Error(t, def.Validate())
}

func TestValidate_EndNodeHasNoOutgoing(t *testing.T) {
	def := &Definition{
		Key:     "p",
		Initial: "t1",
		Nodes: map[string]Node{
			"t1":   {Key: "t1", Kind: NodeUserTask, Out: []Transition{{To: "done"}}},
			"done": {Key: "done", Kind: NodeEnd, Out: []Transition{{To: "t1"}}},
		},
	}
	assert.Error(t, def.Validate())
}
