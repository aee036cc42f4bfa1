package engine

import "lessonjudge/internal/judge/sandbox/security"

// Mode selects where evaluations run.
type Mode string

const (
	// ModeInterp runs each evaluation in a fresh interpreter inside the host process.
	ModeInterp Mode = "interp"
	// ModeProcess runs each evaluation in a resource-limited helper process.
	ModeProcess Mode = "process"
)

// ProfileResolver resolves a profile name into an isolation profile.
type ProfileResolver interface {
	Resolve(profile string) (security.IsolationProfile, error)
}

// Config controls sandbox engine behavior.
type Config struct {
	Mode                 Mode     `json:",default=interp" yaml:"mode"`
	HelperPath           string   `json:",optional" yaml:"helperPath"`
	HelperArgs           []string `json:",optional" yaml:"helperArgs"`
	CgroupRoot           string   `json:",optional" yaml:"cgroupRoot"`
	SeccompDir           string   `json:",optional" yaml:"seccompDir"`
	StdoutStderrMaxBytes int64    `json:",optional" yaml:"stdoutStderrMaxBytes"`
	// KillGraceMs is added to the wall limit before the helper is killed.
	// The helper normally interrupts its own interpreter first.
	KillGraceMs      int64 `json:",default=500" yaml:"killGraceMs"`
	EnableSeccomp    bool  `json:",optional" yaml:"enableSeccomp"`
	EnableCgroup     bool  `json:",optional" yaml:"enableCgroup"`
	EnableNamespaces bool  `json:",optional" yaml:"enableNamespaces"`
}
