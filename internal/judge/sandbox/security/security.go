// Package security defines sandbox isolation and security profiles.
package security

// IsolationProfile describes namespace and seccomp settings.
type IsolationProfile struct {
	// SeccompProfile is a JSON syscall policy path. Empty selects the
	// built-in deny list.
	SeccompProfile string `json:"seccompProfile,omitempty"`
	DisableNetwork bool   `json:"disableNetwork"`
}
