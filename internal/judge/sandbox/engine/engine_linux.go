//go:build linux

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"lessonjudge/internal/judge/sandbox/result"
	"lessonjudge/internal/judge/sandbox/security"
	"lessonjudge/internal/judge/sandbox/spec"
	appErr "lessonjudge/pkg/errors"
	"lessonjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultStdoutStderrMaxBytes int64 = 256 * 1024
	defaultKillGrace                  = 500 * time.Millisecond
)

type processEngine struct {
	cfg      Config
	resolver ProfileResolver
	cgroups  runRegistry[*evalCgroup]
	pids     runRegistry[int]
}

func newProcessEngine(cfg Config, resolver ProfileResolver) (Engine, error) {
	if resolver == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("profile resolver is required")
	}
	if cfg.StdoutStderrMaxBytes <= 0 {
		cfg.StdoutStderrMaxBytes = defaultStdoutStderrMaxBytes
	}
	if cfg.HelperPath == "" {
		cfg.HelperPath = "sandbox-init"
	}
	return &processEngine{cfg: cfg, resolver: resolver}, nil
}

func (e *processEngine) Run(ctx context.Context, evalSpec spec.EvalSpec) (result.RunResult, error) {
	if err := validateEvalSpec(evalSpec); err != nil {
		return result.RunResult{}, err
	}
	if evalSpec.Profile == "" {
		return result.RunResult{}, appErr.ValidationError("profile", "required")
	}

	isoProfile, err := e.resolver.Resolve(evalSpec.Profile)
	if err != nil {
		return result.RunResult{}, appErr.SandboxError(err, "resolve profile")
	}
	if e.cfg.SeccompDir != "" && isoProfile.SeccompProfile != "" && !filepath.IsAbs(isoProfile.SeccompProfile) {
		isoProfile.SeccompProfile = filepath.Join(e.cfg.SeccompDir, isoProfile.SeccompProfile)
	}

	var cg *evalCgroup
	if e.cfg.EnableCgroup {
		if cg, err = newEvalCgroup(e.cfg.CgroupRoot, evalSpec); err != nil {
			return result.RunResult{}, appErr.SandboxError(err, "cgroup")
		}
		e.cgroups.add(evalSpec.RunID, cg)
		defer func() {
			e.cgroups.remove(evalSpec.RunID, cg)
			cg.remove()
		}()
	}

	initReq := InitRequest{
		Spec:          evalSpec,
		Isolation:     isoProfile,
		EnableSeccomp: e.cfg.EnableSeccomp,
		EnableNs:      e.cfg.EnableNamespaces,
	}
	stdinPipe, err := jsonToPipe(initReq)
	if err != nil {
		return result.RunResult{}, appErr.SandboxError(err, "encode init request")
	}
	defer stdinPipe.Close()

	cmd := exec.Command(e.cfg.HelperPath, e.cfg.HelperArgs...)
	cmd.SysProcAttr = buildSysProcAttr(isoProfile, e.cfg.EnableNamespaces)
	cmd.Stdin = stdinPipe
	helperStdout := &limitedBuffer{max: e.cfg.StdoutStderrMaxBytes}
	helperStderr := &limitedBuffer{max: e.cfg.StdoutStderrMaxBytes}
	cmd.Stdout = helperStdout
	cmd.Stderr = helperStderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return result.RunResult{}, appErr.SandboxError(err, "start helper")
	}
	pid := cmd.Process.Pid
	e.pids.add(evalSpec.RunID, pid)
	defer e.pids.remove(evalSpec.RunID, pid)

	if err := cg.attach(pid); err != nil {
		logger.Warn(ctx, "attach helper to cgroup failed", zap.String("cgroup", cg.dir), zap.Error(err))
	}

	var timedOut atomic.Bool
	done := make(chan struct{})
	go func() {
		wallTimer := time.NewTimer(evalSpec.Limits.WallTime() + e.killGrace())
		defer wallTimer.Stop()
		select {
		case <-ctx.Done():
			killProcessGroup(pid)
		case <-wallTimer.C:
			timedOut.Store(true)
			killProcessGroup(pid)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	elapsed := time.Since(start).Milliseconds()
	memoryKB := cg.peakMemoryKB(cmd.ProcessState)

	switch {
	case timedOut.Load() || cpuLimitHit(cmd.ProcessState, evalSpec.Limits):
		return result.RunResult{
			TestID:      evalSpec.TestCase.ID,
			Description: evalSpec.TestCase.Description,
			Verdict:     result.VerdictTLE,
			Message:     "Test timeout",
			TimeMs:      elapsed,
			MemoryKB:    memoryKB,
		}, nil
	case cg.oomKilled():
		return result.RunResult{
			TestID:      evalSpec.TestCase.ID,
			Description: evalSpec.TestCase.Description,
			Verdict:     result.VerdictMLE,
			Message:     "Memory limit exceeded",
			TimeMs:      elapsed,
			MemoryKB:    memoryKB,
		}, nil
	case ctx.Err() != nil:
		return result.RunResult{TestID: evalSpec.TestCase.ID, Verdict: result.VerdictSE}, appErr.SandboxError(ctx.Err(), "run")
	}

	var runRes result.RunResult
	if decodeErr := json.Unmarshal(helperStdout.Bytes(), &runRes); decodeErr != nil || runRes.Verdict == "" {
		stderr := helperStderr.String()
		logger.Warn(ctx, "sandbox helper failed",
			zap.String("run_id", evalSpec.RunID),
			zap.String("test_id", evalSpec.TestCase.ID),
			zap.Int("exit_code", exitCodeFromErr(waitErr, cmd.ProcessState)),
			zap.String("stderr", stderr),
		)
		msg := "sandbox helper produced no result"
		if stderr != "" {
			msg = fmt.Sprintf("sandbox helper failed: %s", strings.TrimSpace(stderr))
		}
		return result.RunResult{
			TestID:      evalSpec.TestCase.ID,
			Description: evalSpec.TestCase.Description,
			Verdict:     result.VerdictSE,
			Message:     msg,
			TimeMs:      elapsed,
			MemoryKB:    memoryKB,
		}, nil
	}
	runRes.MemoryKB = memoryKB
	return runRes, nil
}

func (e *processEngine) killGrace() time.Duration {
	if e.cfg.KillGraceMs > 0 {
		return time.Duration(e.cfg.KillGraceMs) * time.Millisecond
	}
	return defaultKillGrace
}

// cpuLimitHit reports a helper stopped by RLIMIT_CPU.
func cpuLimitHit(state *os.ProcessState, limits spec.ResourceLimit) bool {
	if state == nil {
		return false
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return false
	}
	if ws.Signal() == syscall.SIGXCPU {
		return true
	}
	return ws.Signal() == syscall.SIGKILL && limits.CPUTimeMs > 0 &&
		(state.UserTime()+state.SystemTime()).Milliseconds() >= limits.CPUTimeMs
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	return -1
}

func (e *processEngine) KillRun(ctx context.Context, runID string) error {
	if runID == "" {
		return appErr.ValidationError("run_id", "required")
	}
	for _, cg := range e.cgroups.snapshot(runID) {
		if err := cg.kill(); err != nil {
			logger.Warn(ctx, "kill cgroup failed", zap.String("cgroup", cg.dir), zap.Error(err))
		}
	}
	for _, pid := range e.pids.snapshot(runID) {
		killProcessGroup(pid)
	}
	return nil
}

// runRegistry tracks live resources per run id so KillRun can reach them.
type runRegistry[T comparable] struct {
	mu    sync.Mutex
	byRun map[string][]T
}

func (r *runRegistry[T]) add(runID string, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byRun == nil {
		r.byRun = make(map[string][]T)
	}
	r.byRun[runID] = append(r.byRun[runID], v)
}

func (r *runRegistry[T]) remove(runID string, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := r.byRun[runID]
	for i, item := range items {
		if item == v {
			items = append(items[:i], items[i+1:]...)
			break
		}
	}
	if len(items) == 0 {
		delete(r.byRun, runID)
		return
	}
	r.byRun[runID] = items
}

func (r *runRegistry[T]) snapshot(runID string) []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.byRun[runID]...)
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func jsonToPipe(req InitRequest) (io.ReadCloser, error) {
	reader, writer := io.Pipe()
	go func() {
		enc := json.NewEncoder(writer)
		err := enc.Encode(req)
		_ = writer.CloseWithError(err)
	}()
	return reader, nil
}

func buildSysProcAttr(profile security.IsolationProfile, enableNamespaces bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if !enableNamespaces {
		return attr
	}

	cloneFlags := uintptr(syscall.CLONE_NEWNS | syscall.CLONE_NEWPID | syscall.CLONE_NEWUTS | syscall.CLONE_NEWIPC)
	if profile.DisableNetwork {
		cloneFlags |= syscall.CLONE_NEWNET
	}
	cloneFlags |= syscall.CLONE_NEWUSER

	attr.Cloneflags = cloneFlags
	attr.GidMappingsEnableSetgroups = false
	attr.UidMappings = []syscall.SysProcIDMap{{
		ContainerID: 0,
		HostID:      os.Getuid(),
		Size:        1,
	}}
	attr.GidMappings = []syscall.SysProcIDMap{{
		ContainerID: 0,
		HostID:      os.Getgid(),
		Size:        1,
	}}
	return attr
}

// limitedBuffer keeps the first max bytes written and discards the rest.
type limitedBuffer struct {
	buf bytes.Buffer
	max int64
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - int64(b.buf.Len()); room > 0 {
		if int64(len(p)) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
