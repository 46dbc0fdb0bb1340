package devserver

import (
	"context"
	"fmt"
	"slices"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/xiaot623/gogo/negotiator/internal/protocol"
)

// MoveInput is the document a move policy sees as input.
type MoveInput struct {
	Agent    protocol.Agent  `json:"agent"`
	Action   protocol.Action `json:"action"`
	Price    float64         `json:"price"`
	Message  string          `json:"message"`
	Round    int             `json:"round"`
	Standing float64         `json:"standing"`
	MaxPrice float64         `json:"max_price"`
}

// MovePolicy vets operator moves with a Rego module. The module defines
// data.negotiation.deny as a set of reason strings; an empty set allows the move.
type MovePolicy struct {
	query rego.PreparedEvalQuery
}

// NewMovePolicy compiles module.
func NewMovePolicy(ctx context.Context, module string) (*MovePolicy, error) {
	r := rego.New(
		rego.Query("data.negotiation.deny"),
		rego.Module("negotiation.rego", module),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}
	return &MovePolicy{query: query}, nil
}

// Check returns the sorted reasons the move is denied.
func (p *MovePolicy) Check(ctx context.Context, in MoveInput) ([]string, error) {
	results, err := p.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}

	set, ok := results[0].Expressions[0].Value.([]any)
	if !ok {
		return nil, fmt.Errorf("policy deny must be a set, got %T", results[0].Expressions[0].Value)
	}
	reasons := make([]string, 0, len(set))
	for _, v := range set {
		reasons = append(reasons, fmt.Sprint(v))
	}
	slices.Sort(reasons)
	return reasons, nil
}

// DefaultMovePolicy keeps counters inside the price range and notes short.
const DefaultMovePolicy = `
package negotiation

deny contains "counter price must be positive" if {
	input.action == "COUNTER"
	input.price <= 0
}

deny contains msg if {
	input.action == "COUNTER"
	input.price > input.max_price
	msg := sprintf("counter price must not exceed %v", [input.max_price])
}

deny contains "message longer than 280 characters" if {
	count(input.message) > 280
}
`
