package profile

import (
	"fmt"

	"lessonjudge/internal/judge/sandbox/spec"
	"lessonjudge/internal/lesson/model"
)

// TaskType identifies the sandbox task category.
type TaskType string

const (
	TaskTypeCompile TaskType = "compile"
	TaskTypeEval    TaskType = "eval"
)

// LanguageSpec tunes limits per dialect.
type LanguageSpec struct {
	ID               model.Language `json:"id" yaml:"id"`
	TimeMultiplier   float64        `json:"timeMultiplier,optional" yaml:"timeMultiplier"`
	MemoryMultiplier float64        `json:"memoryMultiplier,optional" yaml:"memoryMultiplier"`
}

// TaskProfile defines sandbox resources and security settings for a task type.
type TaskProfile struct {
	Language       model.Language     `json:"language" yaml:"language"`
	TaskType       TaskType           `json:"taskType" yaml:"taskType"`
	SeccompProfile string             `json:"seccompProfile,optional" yaml:"seccompProfile"`
	DisableNetwork bool               `json:"disableNetwork,default=true" yaml:"disableNetwork"`
	DefaultLimits  spec.ResourceLimit `json:"defaultLimits,optional" yaml:"defaultLimits"`
}

// Name is the key a profile is registered and resolved under.
func Name(lang model.Language, taskType TaskType) string {
	return fmt.Sprintf("%s-%s", lang, taskType)
}

// Defaults returns the built-in language and profile tables.
func Defaults() ([]LanguageSpec, []TaskProfile) {
	base := spec.ResourceLimit{
		WallTimeMs: spec.DefaultWallTimeMs,
		CPUTimeMs:  spec.DefaultWallTimeMs,
		MemoryMB:   1024,
		StackMB:    64,
		OutputMB:   1,
		OpenFiles:  64,
	}
	langs := []model.Language{model.LanguageTypeScript, model.LanguageJavaScript, model.LanguageTSX, model.LanguageJSX}
	specs := make([]LanguageSpec, 0, len(langs))
	profiles := make([]TaskProfile, 0, len(langs))
	for _, lang := range langs {
		specs = append(specs, LanguageSpec{ID: lang, TimeMultiplier: 1, MemoryMultiplier: 1})
		profiles = append(profiles, TaskProfile{
			Language:       lang,
			TaskType:       TaskTypeEval,
			DisableNetwork: true,
			DefaultLimits:  base,
		})
	}
	return specs, profiles
}
