//go:build linux

package engine

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"lessonjudge/internal/judge/sandbox/spec"
)

// evalCgroup is the cgroup v2 leaf holding one helper process. A nil
// *evalCgroup stands for "cgroups disabled" and every method is a no-op.
type evalCgroup struct {
	dir string
}

// newEvalCgroup creates <root>/<run>/<test>-<nanos> and writes the limits of es.
func newEvalCgroup(root string, es spec.EvalSpec) (*evalCgroup, error) {
	if root == "" {
		return nil, errors.New("cgroup root is required")
	}
	run := es.RunID
	if run == "" {
		run = "adhoc"
	}
	leaf := fmt.Sprintf("%s-%d", cgroupSegment(es.TestCase.ID), time.Now().UnixNano())
	cg := &evalCgroup{dir: filepath.Join(root, cgroupSegment(run), leaf)}
	if err := os.MkdirAll(cg.dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cgroup: %w", err)
	}
	if err := cg.limit(es.Limits); err != nil {
		cg.remove()
		return nil, err
	}
	return cg, nil
}

func (cg *evalCgroup) limit(limits spec.ResourceLimit) error {
	settings := [][2]string{
		{"pids.max", maxOrValue(limits.PIDs, 1)},
		// goja runs on one OS thread at a time
		{"cpu.max", "100000 100000"},
	}
	if limits.MemoryMB > 0 {
		settings = append(settings, [2]string{"memory.max", maxOrValue(limits.MemoryMB, 1<<20)})
		settings = append(settings, [2]string{"memory.swap.max", "0"})
	}
	for _, kv := range settings {
		if err := cg.write(kv[0], kv[1]); err != nil {
			// memory.swap.max is absent when swap accounting is off
			if kv[0] == "memory.swap.max" {
				continue
			}
			return fmt.Errorf("set %s: %w", kv[0], err)
		}
	}
	return nil
}

func (cg *evalCgroup) attach(pid int) error {
	if cg == nil {
		return nil
	}
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	return cg.write("cgroup.procs", strconv.Itoa(pid))
}

// kill uses cgroup.kill (Linux 5.14+) to stop every process in the leaf.
func (cg *evalCgroup) kill() error {
	if cg == nil {
		return nil
	}
	return cg.write("cgroup.kill", "1")
}

func (cg *evalCgroup) oomKilled() bool {
	if cg == nil {
		return false
	}
	return cg.event("memory.events", "oom_kill") > 0
}

// peakMemoryKB prefers memory.peak and falls back to the helper's rusage.
func (cg *evalCgroup) peakMemoryKB(state *os.ProcessState) int64 {
	if cg != nil {
		if data, err := os.ReadFile(filepath.Join(cg.dir, "memory.peak")); err == nil {
			if v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); err == nil && v > 0 {
				return v / 1024
			}
		}
	}
	if state == nil {
		return 0
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		return usage.Maxrss
	}
	return 0
}

func (cg *evalCgroup) remove() {
	if cg == nil {
		return
	}
	_ = os.Remove(cg.dir)
	// drop the per-run parent once its last leaf is gone
	_ = os.Remove(filepath.Dir(cg.dir))
}

func (cg *evalCgroup) event(file, key string) int64 {
	data, err := os.ReadFile(filepath.Join(cg.dir, file))
	if err != nil {
		return 0
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		name, value, ok := strings.Cut(sc.Text(), " ")
		if ok && name == key {
			n, _ := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			return n
		}
	}
	return 0
}

func (cg *evalCgroup) write(file, value string) error {
	return os.WriteFile(filepath.Join(cg.dir, file), []byte(value), 0o640)
}

func maxOrValue(v, scale int64) string {
	if v <= 0 {
		return "max"
	}
	return strconv.FormatInt(v*scale, 10)
}

// cgroupSegment keeps run and test ids from escaping the cgroup root.
func cgroupSegment(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '.', 0:
			return '_'
		}
		return r
	}, s)
}
