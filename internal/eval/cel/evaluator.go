package cel

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Evaluator evaluates CEL expressions over a single map variable
type Evaluator struct {
	variable string
	env      *cel.Env
	cache    map[string]cel.Program
	mu       sync.RWMutex
}

// NewEvaluator creates a new CEL evaluator whose expressions refer to a
// map(string, dyn) variable with the given name
func NewEvaluator(variable string) (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable(variable, cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{
		variable: variable,
		env:      env,
		cache:    make(map[string]cel.Program),
	}, nil
}

// Evaluate evaluates a CEL expression against the given fields
func (e *Evaluator) Evaluate(ctx context.Context, expression string, fields map[string]interface{}) (interface{}, error) {
	program, err := e.getProgram(expression)
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", err)
	}

	out, _, err := program.ContextEval(ctx, map[string]interface{}{e.variable: fields})
	if err != nil {
		return nil, fmt.Errorf("evaluation failed: %w", err)
	}

	return out.Value(), nil
}

// EvaluateBool evaluates an expression that must produce a boolean
func (e *Evaluator) EvaluateBool(ctx context.Context, expression string, fields map[string]interface{}) (bool, error) {
	result, err := e.Evaluate(ctx, expression, fields)
	if err != nil {
		return false, err
	}

	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, not bool", expression, result)
	}
	return matched, nil
}

// getProgram gets a compiled program from cache or compiles it
func (e *Evaluator) getProgram(expression string) (cel.Program, error) {
	e.mu.RLock()
	if program, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return program, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Check again in case another goroutine compiled it
	if program, ok := e.cache[expression]; ok {
		return program, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("parse error: %w", issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program generation error: %w", err)
	}

	e.cache[expression] = program

	return program, nil
}

// ValidateExpression compiles an expression and checks it can yield a boolean
func (e *Evaluator) ValidateExpression(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return issues.Err()
	}

	switch out := ast.OutputType().String(); out {
	case "bool", "dyn":
		return nil
	default:
		return fmt.Errorf("expression %q has type %s, expected bool", expression, out)
	}
}

// ClearCache clears the compiled program cache
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]cel.Program)
}
