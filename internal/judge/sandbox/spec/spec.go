// Package spec defines the evaluation specification and resource limits.
package spec

import (
	"time"

	"lessonjudge/internal/judge/compiler"
	"lessonjudge/internal/lesson/model"
)

// DefaultWallTimeMs bounds one evaluation when no limit is configured.
const DefaultWallTimeMs int64 = 5000

// ResourceLimit describes hard limits enforced by the sandbox. Zero means
// unlimited, except WallTimeMs which falls back to DefaultWallTimeMs.
type ResourceLimit struct {
	CPUTimeMs  int64 `json:"cpuTimeMs,omitempty" yaml:"cpuTimeMs"`
	WallTimeMs int64 `json:"wallTimeMs,omitempty" yaml:"wallTimeMs"`
	MemoryMB   int64 `json:"memoryMb,omitempty" yaml:"memoryMb"`
	StackMB    int64 `json:"stackMb,omitempty" yaml:"stackMb"`
	OutputMB   int64 `json:"outputMb,omitempty" yaml:"outputMb"`
	PIDs       int64 `json:"pids,omitempty" yaml:"pids"`
	OpenFiles  int64 `json:"openFiles,omitempty" yaml:"openFiles"`
}

// WallTime returns the wall clock budget of one evaluation.
func (l ResourceLimit) WallTime() time.Duration {
	ms := l.WallTimeMs
	if ms <= 0 {
		ms = DefaultWallTimeMs
	}
	return time.Duration(ms) * time.Millisecond
}

// Merge overlays the positive fields of override on l.
func (l ResourceLimit) Merge(override ResourceLimit) ResourceLimit {
	if override.CPUTimeMs > 0 {
		l.CPUTimeMs = override.CPUTimeMs
	}
	if override.WallTimeMs > 0 {
		l.WallTimeMs = override.WallTimeMs
	}
	if override.MemoryMB > 0 {
		l.MemoryMB = override.MemoryMB
	}
	if override.StackMB > 0 {
		l.StackMB = override.StackMB
	}
	if override.OutputMB > 0 {
		l.OutputMB = override.OutputMB
	}
	if override.PIDs > 0 {
		l.PIDs = override.PIDs
	}
	if override.OpenFiles > 0 {
		l.OpenFiles = override.OpenFiles
	}
	return l
}

// EvalSpec is the unified execution specification for one test case. It is
// serialized as-is to the sandbox helper process.
type EvalSpec struct {
	RunID       string                      `json:"runId"`
	TestCase    model.TestCase              `json:"testCase"`
	Compilation compiler.CompilationContext `json:"compilation"`
	Profile     string                      `json:"profile"`
	Limits      ResourceLimit               `json:"limits"`
}
