// Package config resolves dialect specs and task profiles for the sandbox.
package config

import (
	"context"

	"lessonjudge/internal/judge/sandbox/profile"
	"lessonjudge/internal/judge/sandbox/security"
	"lessonjudge/internal/lesson/model"
	appErr "lessonjudge/pkg/errors"
)

// LanguageSpecRepository returns per-dialect tuning.
type LanguageSpecRepository interface {
	GetLanguageSpec(ctx context.Context, lang model.Language) (profile.LanguageSpec, error)
}

// TaskProfileRepository returns task profiles.
type TaskProfileRepository interface {
	GetTaskProfile(ctx context.Context, taskType profile.TaskType, lang model.Language) (profile.TaskProfile, error)
}

// LocalRepository loads language specs and task profiles from memory.
type LocalRepository struct {
	languages map[model.Language]profile.LanguageSpec
	profiles  map[string]profile.TaskProfile
}

// NewLocalRepository creates a repository from config lists.
func NewLocalRepository(languages []profile.LanguageSpec, profiles []profile.TaskProfile) *LocalRepository {
	langMap := make(map[model.Language]profile.LanguageSpec)
	for _, lang := range languages {
		if lang.ID == "" {
			continue
		}
		langMap[lang.ID] = lang
	}
	profileMap := make(map[string]profile.TaskProfile)
	for _, prof := range profiles {
		if prof.TaskType == "" || prof.Language == "" {
			continue
		}
		profileMap[profile.Name(prof.Language, prof.TaskType)] = prof
	}
	return &LocalRepository{languages: langMap, profiles: profileMap}
}

// NewDefaultRepository creates a repository holding the built-in tables.
func NewDefaultRepository() *LocalRepository {
	return NewLocalRepository(profile.Defaults())
}

// GetLanguageSpec returns a language spec.
func (r *LocalRepository) GetLanguageSpec(ctx context.Context, lang model.Language) (profile.LanguageSpec, error) {
	if lang == "" {
		return profile.LanguageSpec{}, appErr.ValidationError("language", "required")
	}
	spec, ok := r.languages[lang]
	if !ok {
		return profile.LanguageSpec{}, appErr.New(appErr.LanguageNotSupported).WithMessagef("language %q not supported", lang)
	}
	return spec, nil
}

// GetTaskProfile returns a task profile by type and language.
func (r *LocalRepository) GetTaskProfile(ctx context.Context, taskType profile.TaskType, lang model.Language) (profile.TaskProfile, error) {
	if taskType == "" || lang == "" {
		return profile.TaskProfile{}, appErr.ValidationError("task_profile", "required")
	}
	prof, ok := r.profiles[profile.Name(lang, taskType)]
	if !ok {
		return profile.TaskProfile{}, appErr.New(appErr.NotFound).WithMessage("task profile not found")
	}
	return prof, nil
}

// Resolve maps a profile name to isolation settings.
func (r *LocalRepository) Resolve(profileName string) (security.IsolationProfile, error) {
	if profileName == "" {
		return security.IsolationProfile{}, appErr.ValidationError("profile", "required")
	}
	prof, ok := r.profiles[profileName]
	if !ok {
		return security.IsolationProfile{}, appErr.New(appErr.NotFound).WithMessage("profile not found")
	}
	return security.IsolationProfile{
		SeccompProfile: prof.SeccompProfile,
		DisableNetwork: prof.DisableNetwork,
	}, nil
}
