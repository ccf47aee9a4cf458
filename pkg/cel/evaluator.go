package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"connector/pkg/models"
)

// Evaluator compiles processing-mode constraints. Every constraint sees the
// message header as plain string variables.
type Evaluator struct {
	env *cel.Env
}

// Program is a compiled constraint, safe for concurrent use.
type Program struct {
	expression string
	program    cel.Program
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("lane_id", cel.StringType),
		cel.Variable("direction", cel.StringType),
		cel.Variable("service", cel.StringType),
		cel.Variable("service_type", cel.StringType),
		cel.Variable("action", cel.StringType),
		cel.Variable("from_party", cel.StringType),
		cel.Variable("from_party_type", cel.StringType),
		cel.Variable("from_role", cel.StringType),
		cel.Variable("to_party", cel.StringType),
		cel.Variable("to_party_type", cel.StringType),
		cel.Variable("to_role", cel.StringType),
		cel.Variable("original_sender", cel.StringType),
		cel.Variable("final_recipient", cel.StringType),
		cel.Variable("conversation_id", cel.StringType),
		cel.Variable("attachment_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("constraint must return bool, got %v", ast.OutputType())
	}

	return nil
}

func (e *Evaluator) Compile(expression string) (*Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("constraint must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Program{expression: expression, program: program}, nil
}

func (p *Program) Expression() string {
	return p.expression
}

func (p *Program) Evaluate(ctx context.Context, msg *models.Message) (bool, error) {
	result, _, err := p.program.ContextEval(ctx, Variables(msg))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

func Variables(msg *models.Message) map[string]interface{} {
	d := msg.Details
	return map[string]interface{}{
		"lane_id":          msg.LaneID,
		"direction":        string(msg.Direction),
		"service":          d.Service.Name,
		"service_type":     d.Service.Type,
		"action":           d.Action,
		"from_party":       d.FromParty.ID,
		"from_party_type":  d.FromParty.IDType,
		"from_role":        d.FromParty.Role,
		"to_party":         d.ToParty.ID,
		"to_party_type":    d.ToParty.IDType,
		"to_role":          d.ToParty.Role,
		"original_sender":  d.OriginalSender,
		"final_recipient":  d.FinalRecipient,
		"conversation_id":  d.ConversationID,
		"attachment_count": int64(len(msg.Attachments)),
	}
}
