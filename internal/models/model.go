// Package models holds the ODE systems that can be fitted and evaluated.
// Models are stateless: every parameter arrives through dynamo.Params, so a
// single value can be shared by any number of concurrent solves.
package models

import (
	"fmt"

	"github.com/san-kum/bayesode/internal/dynamo"
)

// ModelInfo describes a model and its reference problem.
type ModelInfo struct {
	Name          string
	Description   string
	StateNames    []string
	ParamNames    []string
	DefaultParams dynamo.Params
	DefaultU0     dynamo.State
	DefaultSpan   dynamo.TimeSpan
}

// Model is a dynamo.System that can describe itself.
type Model interface {
	dynamo.System
	dynamo.Named
	Describe() ModelInfo
}

// DefaultProblem builds the reference problem of m.
func DefaultProblem(m Model) (*dynamo.Problem, error) {
	info := m.Describe()
	prob, err := dynamo.NewProblem(m, info.DefaultU0.Clone(), info.DefaultSpan, info.DefaultParams.Clone())
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", info.Name, err)
	}
	return prob, nil
}

// Index returns the position of name in names, or -1.
func Index(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
