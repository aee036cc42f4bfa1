package engine

import (
	"encoding/json"
	"fmt"
	"io"

	"lessonjudge/internal/judge/sandbox/result"
	"lessonjudge/internal/judge/sandbox/security"
	"lessonjudge/internal/judge/sandbox/spec"
)

// InitRequest is written to the helper process on stdin.
type InitRequest struct {
	Spec          spec.EvalSpec             `json:"spec"`
	Isolation     security.IsolationProfile `json:"isolation"`
	EnableSeccomp bool                      `json:"enableSeccomp"`
	EnableNs      bool                      `json:"enableNs"`
}

// ReadInitRequest decodes the request sent by the process engine.
func ReadInitRequest(r io.Reader) (InitRequest, error) {
	var req InitRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return InitRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

// WriteResult encodes the helper's evaluation outcome.
func WriteResult(w io.Writer, res result.RunResult) error {
	return json.NewEncoder(w).Encode(res)
}
