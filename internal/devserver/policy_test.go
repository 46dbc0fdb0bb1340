package devserver

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/negotiator/internal/protocol"
)

func newDefaultPolicy(t *testing.T) *MovePolicy {
	t.Helper()
	policy, err := NewMovePolicy(context.Background(), DefaultMovePolicy)
	require.NoError(t, err)
	return policy
}

func TestDefaultMovePolicy(t *testing.T) {
	policy := newDefaultPolicy(t)
	base := MoveInput{Agent: protocol.AgentRetailer, Round: 1, Standing: 7000, MaxPrice: 10000}

	tests := []struct {
		name   string
		mutate func(*MoveInput)
		want   []string
	}{
		{"counter in range", func(in *MoveInput) { in.Action, in.Price = protocol.ActionCounter, 6500 }, []string{}},
		{"accept", func(in *MoveInput) { in.Action = protocol.ActionAccept }, []string{}},
		{"zero counter", func(in *MoveInput) { in.Action = protocol.ActionCounter }, []string{"counter price must be positive"}},
		{"counter above max", func(in *MoveInput) { in.Action, in.Price = protocol.ActionCounter, 12000 }, []string{"counter price must not exceed 10000"}},
		{"long message", func(in *MoveInput) {
			in.Action, in.Price, in.Message = protocol.ActionCounter, -1, strings.Repeat("x", 281)
		}, []string{"counter price must be positive", "message longer than 280 characters"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			reasons, err := policy.Check(context.Background(), in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, reasons)
		})
	}
}

func TestMovePolicyRejectsBadModule(t *testing.T) {
	_, err := NewMovePolicy(context.Background(), "package negotiation\ndeny contains")
	assert.Error(t, err)
}
