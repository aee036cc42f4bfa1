//go:build linux

package engine_test

import (
	"context"
	"os"
	"testing"
	"time"

	"lessonjudge/internal/judge/sandbox/config"
	"lessonjudge/internal/judge/sandbox/engine"
	"lessonjudge/internal/judge/sandbox/jsvm"
	"lessonjudge/internal/judge/sandbox/result"
)

const helperEnv = "LESSONJUDGE_SANDBOX_HELPER"

// TestMain lets the test binary act as the sandbox helper process.
func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "eval":
		req, err := engine.ReadInitRequest(os.Stdin)
		if err != nil {
			os.Stderr.WriteString(err.Error())
			os.Exit(1)
		}
		if err := engine.WriteResult(os.Stdout, jsvm.Evaluate(context.Background(), req.Spec)); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	case "hang":
		time.Sleep(time.Hour)
		os.Exit(0)
	case "crash":
		os.Stderr.WriteString("helper exploded")
		os.Exit(3)
	}
	os.Exit(m.Run())
}

func processEngine(t *testing.T, mode string) engine.Engine {
	t.Helper()
	t.Setenv(helperEnv, mode)
	eng, err := engine.NewEngine(engine.Config{
		Mode:        engine.ModeProcess,
		HelperPath:  os.Args[0],
		KillGraceMs: 100,
	}, config.NewDefaultRepository())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng
}

func TestProcessEngineRun(t *testing.T) {
	eng := processEngine(t, "eval")
	res, err := eng.Run(context.Background(), evalSpec(t, "const x = 2;", "x === 2", 2000))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Passed || res.TestID != "t1" {
		t.Fatalf("expected pass, got %+v", res)
	}

	res, err = eng.Run(context.Background(), evalSpec(t, "const x = 2;", "throw new Error('boom')", 2000))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Verdict != result.VerdictRE || res.Message != "boom" {
		t.Fatalf("expected runtime error boom, got %+v", res)
	}
}

func TestProcessEngineWallLimit(t *testing.T) {
	eng := processEngine(t, "hang")
	start := time.Now()
	res, err := eng.Run(context.Background(), evalSpec(t, "const x = 2;", "true", 200))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Verdict != result.VerdictTLE || res.Message != "Test timeout" {
		t.Fatalf("expected timeout, got %+v", res)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("helper was not killed promptly")
	}
}

func TestProcessEngineHelperCrash(t *testing.T) {
	eng := processEngine(t, "crash")
	res, err := eng.Run(context.Background(), evalSpec(t, "const x = 2;", "true", 1000))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Verdict != result.VerdictSE || res.Message != "sandbox helper failed: helper exploded" {
		t.Fatalf("expected sandbox error, got %+v", res)
	}
}

func TestProcessEngineRequiresProfile(t *testing.T) {
	eng := processEngine(t, "eval")
	es := evalSpec(t, "const x = 2;", "true", 1000)
	es.Profile = "cobol-eval"
	if _, err := eng.Run(context.Background(), es); err == nil {
		t.Fatalf("expected unknown profile to fail")
	}
}
