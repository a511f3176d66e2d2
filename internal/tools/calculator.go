package tools

import (
	"context"
	"strings"

	"toolchat-backend/internal/mathexpr"
)

const invalidExpression = "Invalid mathematical expression"

// Calculator evaluates arithmetic expressions with mathexpr.
type Calculator struct{}

func NewCalculator() *Calculator { return &Calculator{} }

func (c *Calculator) Name() string { return "calculator" }

func (c *Calculator) Description() string {
	return "Perform mathematical calculations"
}

func (c *Calculator) Parameters() *Schema {
	return &Schema{
		Type: "object",
		Properties: map[string]Property{
			"expression": {Type: "string", Description: "The mathematical expression to evaluate"},
		},
		Required: []string{"expression"},
	}
}

func (c *Calculator) Execute(ctx context.Context, args map[string]any) map[string]any {
	expr, ok := args["expression"].(string)
	if !ok || strings.TrimSpace(expr) == "" {
		return map[string]any{"error": invalidExpression}
	}
	v, err := mathexpr.Eval(expr)
	if err != nil {
		return map[string]any{"error": invalidExpression}
	}
	return map[string]any{"result": v}
}
