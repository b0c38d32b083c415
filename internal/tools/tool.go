// Package tools exposes scheduling operations to the model as callable functions.
package tools

import (
	"context"

	"github.com/wolfman30/medassist/internal/llm"
)

// Result is the structured outcome of a tool plus a short natural-language summary.
type Result struct {
	Data     map[string]any
	Summary  string
	Warnings []string
}

// Tool is one callable function.
type Tool interface {
	Name() string
	Spec() llm.ToolSpec
	// Mutates reports whether Execute writes persisted state.
	Mutates() bool
	DoctorOnly() bool
	Execute(ctx context.Context, args Args) (Result, error)
}

// base carries the static parts of a Tool.
type base struct {
	spec       llm.ToolSpec
	mutates    bool
	doctorOnly bool
}

func (b base) Name() string       { return b.spec.Name }
func (b base) Spec() llm.ToolSpec { return b.spec }
func (b base) Mutates() bool      { return b.mutates }
func (b base) DoctorOnly() bool   { return b.doctorOnly }
