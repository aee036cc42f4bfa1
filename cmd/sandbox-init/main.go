//go:build linux

// Command sandbox-init evaluates one test case in a resource-limited process.
// It reads an engine.InitRequest on stdin and writes a result.RunResult to
// stdout.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"lessonjudge/internal/judge/sandbox/engine"
	"lessonjudge/internal/judge/sandbox/jsvm"
	"lessonjudge/internal/judge/sandbox/spec"

	"github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run() error {
	req, err := engine.ReadInitRequest(os.Stdin)
	if err != nil {
		return err
	}
	if req.Spec.TestCase.ID == "" {
		return fmt.Errorf("test id is required")
	}
	if err := applyRlimits(req.Spec.Limits); err != nil {
		return err
	}
	os.Clearenv()
	if req.EnableSeccomp {
		if err := applySeccomp(req.Isolation.SeccompProfile); err != nil {
			return err
		}
	}
	res := jsvm.Evaluate(context.Background(), req.Spec)
	if err := engine.WriteResult(os.Stdout, res); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

type rlimit struct {
	name     string
	resource int
	value    uint64
}

const mb = 1024 * 1024

func rlimitsFor(limits spec.ResourceLimit) []rlimit {
	var out []rlimit
	if limits.CPUTimeMs > 0 {
		out = append(out, rlimit{"cpu", unix.RLIMIT_CPU, uint64((limits.CPUTimeMs + 999) / 1000)})
	}
	if limits.MemoryMB > 0 {
		out = append(out, rlimit{"as", unix.RLIMIT_AS, uint64(limits.MemoryMB) * mb})
	}
	if limits.OutputMB > 0 {
		out = append(out, rlimit{"fsize", unix.RLIMIT_FSIZE, uint64(limits.OutputMB) * mb})
	}
	if limits.StackMB > 0 {
		out = append(out, rlimit{"stack", unix.RLIMIT_STACK, uint64(limits.StackMB) * mb})
	}
	if limits.PIDs > 0 {
		out = append(out, rlimit{"nproc", unix.RLIMIT_NPROC, uint64(limits.PIDs)})
	}
	if limits.OpenFiles > 0 {
		out = append(out, rlimit{"nofile", unix.RLIMIT_NOFILE, uint64(limits.OpenFiles)})
	}
	return out
}

func applyRlimits(limits spec.ResourceLimit) error {
	for _, l := range rlimitsFor(limits) {
		if err := unix.Setrlimit(l.resource, &unix.Rlimit{Cur: l.value, Max: l.value}); err != nil {
			return fmt.Errorf("set rlimit %s: %w", l.name, err)
		}
	}
	return nil
}

// defaultDenied is applied when no profile file is configured. The
// interpreter needs threads, memory and its already open pipes, nothing else.
var defaultDenied = []string{
	"execve", "execveat", "fork", "vfork",
	"socket", "socketpair", "connect", "bind", "listen", "accept", "accept4",
	"ptrace", "process_vm_readv", "process_vm_writev",
	"mount", "umount2", "pivot_root", "chroot", "unshare", "setns",
	"kexec_load", "init_module", "finit_module", "delete_module", "reboot",
}

func defaultSeccompConfig() seccompConfig {
	return seccompConfig{
		DefaultAction: "SCMP_ACT_ALLOW",
		Syscalls:      []seccompSyscall{{Names: defaultDenied, Action: "SCMP_ACT_ERRNO"}},
	}
}

func loadSeccompConfig(profilePath string) (seccompConfig, error) {
	if profilePath == "" {
		return defaultSeccompConfig(), nil
	}
	data, err := os.ReadFile(profilePath)
	if err != nil {
		return seccompConfig{}, fmt.Errorf("read seccomp profile: %w", err)
	}
	var cfg seccompConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return seccompConfig{}, fmt.Errorf("parse seccomp profile: %w", err)
	}
	return cfg, nil
}

func applySeccomp(profilePath string) error {
	cfg, err := loadSeccompConfig(profilePath)
	if err != nil {
		return err
	}
	defaultAction, err := parseSeccompAction(cfg.DefaultAction)
	if err != nil {
		return err
	}
	filter, err := seccomp.NewFilter(defaultAction)
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	defer filter.Release()
	for _, rule := range cfg.Syscalls {
		action, err := parseSeccompAction(rule.Action)
		if err != nil {
			return err
		}
		for _, name := range rule.Names {
			call, err := seccomp.GetSyscallFromName(name)
			if err != nil {
				// Not present on this architecture.
				continue
			}
			if err := filter.AddRule(call, action); err != nil {
				return fmt.Errorf("add seccomp rule %s: %w", name, err)
			}
		}
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no new privs: %w", err)
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}

type seccompConfig struct {
	DefaultAction string           `json:"defaultAction"`
	Syscalls      []seccompSyscall `json:"syscalls"`
}

type seccompSyscall struct {
	Names  []string `json:"names"`
	Action string   `json:"action"`
}

func parseSeccompAction(action string) (seccomp.ScmpAction, error) {
	switch strings.ToUpper(action) {
	case "SCMP_ACT_ALLOW":
		return seccomp.ActAllow, nil
	case "SCMP_ACT_ERRNO":
		return seccomp.ActErrno.SetReturnCode(int16(unix.EPERM)), nil
	case "SCMP_ACT_KILL", "SCMP_ACT_KILL_PROCESS":
		return seccomp.ActKillProcess, nil
	default:
		return seccomp.ActKillProcess, fmt.Errorf("unsupported seccomp action: %s", action)
	}
}
