package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Acribbs/ONT-VC/internal/config"
	"github.com/Acribbs/ONT-VC/internal/ledger"
	"github.com/Acribbs/ONT-VC/internal/pipeline"
	"github.com/Acribbs/ONT-VC/internal/toolrun"
)

// workspace lays out a reference dir, annotation, and paired read files
// for the given samples inside a temp dir, and chdirs into it so the
// relative artifact paths the stage templates declare resolve there.
func workspace(t *testing.T, samples ...string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	chdir(t, dir)

	require.NoError(t, os.MkdirAll("ref", 0o755))
	require.NoError(t, os.MkdirAll("data", 0o755))
	require.NoError(t, os.WriteFile("ref/hg38.fa", []byte(">chr1\nACGT\n"), 0o644))
	require.NoError(t, os.WriteFile("ref/hg38.gtf.gz", []byte("gtf"), 0o644))
	for _, s := range samples {
		require.NoError(t, os.WriteFile(fmt.Sprintf("data/%s.fastq.1.gz", s), []byte("r1"), 0o644))
		require.NoError(t, os.WriteFile(fmt.Sprintf("data/%s.fastq.2.gz", s), []byte("r2"), 0o644))
	}

	return &config.Config{
		AlignerOptions:  "-k 2",
		ReferencePrefix: "ref/hg38",
		AnnotationPath:  "ref/hg38.gtf.gz",
		Paired:          true,
		DataDir:         "data",
		Threads:         2,
	}
}

func buildGraph(t *testing.T, cfg *config.Config) *pipeline.Graph {
	t.Helper()
	samples, err := config.DiscoverSamples(cfg)
	require.NoError(t, err)
	g, err := pipeline.Build(cfg, samples)
	require.NoError(t, err)
	return g
}

func openLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	led, err := ledger.Open("ledger.db")
	require.NoError(t, err)
	t.Cleanup(func() { led.Close() })
	return led
}

// scriptedRunner succeeds every invocation by creating the declared
// outputs of the task whose command it received. Tasks listed in fail
// exit with the given code instead.
func scriptedRunner(t *testing.T, g *pipeline.Graph, fail map[string]int) *toolrun.FakeRunner {
	t.Helper()
	byCommand := make(map[string]*pipeline.Task)
	for _, task := range g.Tasks() {
		byCommand[task.Command] = task
	}

	return &toolrun.FakeRunner{
		OnInvoke: func(ctx context.Context, inv toolrun.Invocation) (toolrun.Result, error) {
			task, ok := byCommand[inv.Command]
			if !ok {
				return toolrun.Result{ExitCode: 127, Stderr: "unknown command"}, nil
			}
			if code, bad := fail[task.ID]; bad {
				return toolrun.Result{ExitCode: code, Stderr: "simulated tool failure"}, nil
			}
			for _, out := range task.Outputs {
				if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
					return toolrun.Result{ExitCode: -1}, err
				}
				if err := os.WriteFile(out, []byte("artifact:"+out), 0o644); err != nil {
					return toolrun.Result{ExitCode: -1}, err
				}
			}
			return toolrun.Result{}, nil
		},
	}
}

func statuses(result *RunResult) map[string]pipeline.Status {
	got := make(map[string]pipeline.Status, len(result.Outcomes))
	for _, o := range result.Outcomes {
		got[o.ID] = o.Status
	}
	return got
}

func TestRun_FreshLedger_AllSucceed(t *testing.T) {
	cfg := workspace(t, "s1")
	g := buildGraph(t, cfg)
	led := openLedger(t)
	runner := scriptedRunner(t, g, nil)

	result, err := New(g, led, runner).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 11)
	for _, o := range result.Outcomes {
		assert.Equal(t, pipeline.StatusSucceeded, o.Status, o.ID)
	}
	assert.False(t, result.Failed())

	// Dispatch order respects the stage topology.
	seq := make(map[string]int64)
	for _, o := range result.Outcomes {
		seq[o.ID] = o.DispatchSeq
	}
	assert.Less(t, seq["index-reference"], seq["align/s1"])
	assert.Less(t, seq["align/s1"], seq["sort-index/s1"])
	assert.Less(t, seq["sort-index/s1"], seq["call-variants/s1"])
	assert.Less(t, seq["call-variants/s1"], seq["filter/s1"])
	assert.Less(t, seq["filter/s1"], seq["annotate/s1"])
	assert.Less(t, seq["sort-index/s1"], seq["coverage/s1"])
	assert.Less(t, seq["sort-index/s1"], seq["sv-call/s1"])
	assert.Less(t, seq["sv-call/s1"], seq["sv-filter/s1"])
	assert.Less(t, seq["sv-call/s1"], seq["sv-merge"])
}

func TestRun_SecondRun_AllSkipped(t *testing.T) {
	cfg := workspace(t, "s1")
	led := openLedger(t)

	g := buildGraph(t, cfg)
	_, err := New(g, led, scriptedRunner(t, g, nil)).Run(context.Background())
	require.NoError(t, err)

	// Fresh graph and engine, same ledger and artifacts.
	g = buildGraph(t, cfg)
	runner := scriptedRunner(t, g, nil)
	result, err := New(g, led, runner).Run(context.Background())
	require.NoError(t, err)

	for _, o := range result.Outcomes {
		assert.Equal(t, pipeline.StatusSkipped, o.Status, o.ID)
	}
	assert.Empty(t, runner.Invocations(), "no task re-ran")
}

func TestRun_DeletedOutput_RerunsOnlyStaleSubtree(t *testing.T) {
	cfg := workspace(t, "s1")
	led := openLedger(t)

	g := buildGraph(t, cfg)
	_, err := New(g, led, scriptedRunner(t, g, nil)).Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove("variants.dir/s1.vcf.gz"))

	g = buildGraph(t, cfg)
	runner := scriptedRunner(t, g, nil)
	result, err := New(g, led, runner).Run(context.Background())
	require.NoError(t, err)

	got := statuses(result)
	assert.Equal(t, pipeline.StatusSkipped, got["index-reference"])
	assert.Equal(t, pipeline.StatusSkipped, got["align/s1"])
	assert.Equal(t, pipeline.StatusSkipped, got["sort-index/s1"])
	assert.Equal(t, pipeline.StatusSkipped, got["coverage/s1"])
	assert.Equal(t, pipeline.StatusSkipped, got["sv-call/s1"])
	assert.Equal(t, pipeline.StatusSkipped, got["sv-merge"])
	assert.Equal(t, pipeline.StatusSucceeded, got["call-variants/s1"])
	assert.Equal(t, pipeline.StatusSucceeded, got["filter/s1"])
	assert.Equal(t, pipeline.StatusSucceeded, got["annotate/s1"])
	assert.Len(t, runner.Invocations(), 3)
}

func TestRun_ModifiedOutput_InvalidatesDownstream(t *testing.T) {
	cfg := workspace(t, "s1")
	led := openLedger(t)

	g := buildGraph(t, cfg)
	_, err := New(g, led, scriptedRunner(t, g, nil)).Run(context.Background())
	require.NoError(t, err)

	// Grow the alignment so size no longer matches the recorded
	// fingerprint.
	require.NoError(t, os.WriteFile("mapped.dir/s1.sam", []byte("tampered alignment records"), 0o644))

	g = buildGraph(t, cfg)
	result, err := New(g, led, scriptedRunner(t, g, nil)).Run(context.Background())
	require.NoError(t, err)

	got := statuses(result)
	assert.Equal(t, pipeline.StatusSkipped, got["index-reference"])
	assert.Equal(t, pipeline.StatusSucceeded, got["align/s1"])
	assert.Equal(t, pipeline.StatusSucceeded, got["sort-index/s1"])
	assert.Equal(t, pipeline.StatusSucceeded, got["call-variants/s1"])
	assert.Equal(t, pipeline.StatusSucceeded, got["filter/s1"])
	assert.Equal(t, pipeline.StatusSucceeded, got["annotate/s1"])
	assert.Equal(t, pipeline.StatusSucceeded, got["coverage/s1"])
	assert.Equal(t, pipeline.StatusSucceeded, got["sv-merge"])
}

func TestRun_FailureContainment(t *testing.T) {
	cfg := workspace(t, "s1")
	g := buildGraph(t, cfg)
	led := openLedger(t)
	runner := scriptedRunner(t, g, map[string]int{"align/s1": 1})

	result, err := New(g, led, runner).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Failed())

	got := statuses(result)
	assert.Equal(t, pipeline.StatusSucceeded, got["index-reference"])
	assert.Equal(t, pipeline.StatusFailed, got["align/s1"])
	assert.Equal(t, pipeline.StatusSkippedFailure, got["sort-index/s1"])
	assert.Equal(t, pipeline.StatusSkippedFailure, got["call-variants/s1"])
	assert.Equal(t, pipeline.StatusSkippedFailure, got["filter/s1"])
	assert.Equal(t, pipeline.StatusSkippedFailure, got["annotate/s1"])
	assert.Equal(t, pipeline.StatusSkippedFailure, got["coverage/s1"])
	assert.Equal(t, pipeline.StatusSkippedFailure, got["sv-call/s1"])
	assert.Equal(t, pipeline.StatusSkippedFailure, got["sv-merge"])

	o, ok := result.Outcome("align/s1")
	require.True(t, ok)
	assert.Equal(t, 1, o.ExitCode)
	assert.Contains(t, o.Stderr, "simulated tool failure")

	// Terminal statuses are visible in the ledger too.
	records, err := led.LoadRecords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusFailed, records["align/s1"].Status)
	assert.Equal(t, pipeline.StatusSkippedFailure, records["annotate/s1"].Status)
}

func TestRun_TaskTimeout_FailsAndCascades(t *testing.T) {
	cfg := workspace(t, "s1")
	g := buildGraph(t, cfg)
	led := openLedger(t)

	// The variant caller hangs until the per-task deadline fires; every
	// other stage completes normally.
	slow := g.Task("call-variants/s1").Command
	inner := scriptedRunner(t, g, nil)
	runner := &toolrun.FakeRunner{
		OnInvoke: func(ctx context.Context, inv toolrun.Invocation) (toolrun.Result, error) {
			if inv.Command != slow {
				return inner.OnInvoke(ctx, inv)
			}
			assert.Equal(t, 20*time.Millisecond, inv.Timeout)
			tctx, cancel := context.WithTimeout(ctx, inv.Timeout)
			defer cancel()
			<-tctx.Done()
			return toolrun.Result{ExitCode: -1, Stderr: "terminated"}, tctx.Err()
		},
	}

	result, err := New(g, led, runner, WithTaskTimeout(20*time.Millisecond)).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Failed())

	got := statuses(result)
	assert.Equal(t, pipeline.StatusFailed, got["call-variants/s1"])
	assert.Equal(t, pipeline.StatusSkippedFailure, got["filter/s1"])
	assert.Equal(t, pipeline.StatusSkippedFailure, got["annotate/s1"])

	// Branches independent of the timed-out caller still complete.
	assert.Equal(t, pipeline.StatusSucceeded, got["coverage/s1"])
	assert.Equal(t, pipeline.StatusSucceeded, got["sv-merge"])

	records, err := led.LoadRecords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusFailed, records["call-variants/s1"].Status)
}

func TestRun_IndependentSampleContinuesAfterFailure(t *testing.T) {
	cfg := workspace(t, "s1", "s2")
	g := buildGraph(t, cfg)
	led := openLedger(t)
	runner := scriptedRunner(t, g, map[string]int{"align/s1": 2})

	result, err := New(g, led, runner, WithMaxParallelism(2)).Run(context.Background())
	require.NoError(t, err)

	got := statuses(result)
	assert.Equal(t, pipeline.StatusFailed, got["align/s1"])
	assert.Equal(t, pipeline.StatusSkippedFailure, got["annotate/s1"])
	assert.Equal(t, pipeline.StatusSucceeded, got["align/s2"])
	assert.Equal(t, pipeline.StatusSucceeded, got["annotate/s2"])

	// The cross-sample merge needs every sample's SV calls, so one
	// failed branch blocks it even though the other completed.
	assert.Equal(t, pipeline.StatusSucceeded, got["sv-call/s2"])
	assert.Equal(t, pipeline.StatusSkippedFailure, got["sv-merge"])
}

func TestRun_FailedRun_ResumesFromFailurePoint(t *testing.T) {
	cfg := workspace(t, "s1")
	led := openLedger(t)

	g := buildGraph(t, cfg)
	_, err := New(g, led, scriptedRunner(t, g, map[string]int{"call-variants/s1": 1})).Run(context.Background())
	require.NoError(t, err)

	g = buildGraph(t, cfg)
	runner := scriptedRunner(t, g, nil)
	result, err := New(g, led, runner).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Failed())

	got := statuses(result)
	assert.Equal(t, pipeline.StatusSkipped, got["align/s1"])
	assert.Equal(t, pipeline.StatusSucceeded, got["call-variants/s1"])
	assert.Equal(t, pipeline.StatusSucceeded, got["filter/s1"])
	assert.Equal(t, pipeline.StatusSucceeded, got["annotate/s1"])
	assert.Len(t, runner.Invocations(), 3)
}

func TestRun_SucceededWithoutOutputs_Fails(t *testing.T) {
	cfg := workspace(t, "s1")
	g := buildGraph(t, cfg)
	led := openLedger(t)

	runner := &toolrun.FakeRunner{
		OnInvoke: func(ctx context.Context, inv toolrun.Invocation) (toolrun.Result, error) {
			return toolrun.Result{}, nil // exit 0, but no outputs created
		},
	}

	result, err := New(g, led, runner).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Failed())

	got := statuses(result)
	assert.Equal(t, pipeline.StatusFailed, got["index-reference"])
	assert.Equal(t, pipeline.StatusSkippedFailure, got["align/s1"])
}

func TestRun_PreexistingIndex_SkipsIndexing(t *testing.T) {
	cfg := workspace(t, "s1")
	for i := 1; i <= 8; i++ {
		require.NoError(t, os.WriteFile(fmt.Sprintf("ref/hg38.%d.ht2", i), []byte("index"), 0o644))
	}

	g := buildGraph(t, cfg)
	led := openLedger(t)
	runner := scriptedRunner(t, g, nil)

	result, err := New(g, led, runner).Run(context.Background())
	require.NoError(t, err)

	got := statuses(result)
	assert.Equal(t, pipeline.StatusSkipped, got["index-reference"])
	assert.Equal(t, pipeline.StatusSucceeded, got["align/s1"])

	for _, inv := range runner.Invocations() {
		assert.NotContains(t, inv.Command, "hisat2-build")
	}
}

func TestRun_Cancellation(t *testing.T) {
	cfg := workspace(t, "s1")
	g := buildGraph(t, cfg)
	led := openLedger(t)

	started := make(chan struct{})
	runner := &toolrun.FakeRunner{
		OnInvoke: func(ctx context.Context, inv toolrun.Invocation) (toolrun.Result, error) {
			close(started)
			<-ctx.Done()
			return toolrun.Result{ExitCode: -1}, ctx.Err()
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var result *RunResult
	var runErr error
	go func() {
		result, runErr = New(g, led, runner).Run(ctx)
		close(done)
	}()

	<-started
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not wind down after cancellation")
	}

	require.ErrorIs(t, runErr, context.Canceled)
	require.NotNil(t, result)

	// The interrupted task is not recorded as succeeded and nothing
	// downstream ran.
	got := statuses(result)
	assert.Equal(t, pipeline.StatusPending, got["index-reference"])
	assert.Equal(t, pipeline.StatusPending, got["align/s1"])

	records, err := led.LoadRecords(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRun_SerialDispatchIsReproducible(t *testing.T) {
	runOnce := func(t *testing.T) []int64 {
		cfg := workspace(t, "s1", "s2", "s3")
		g := buildGraph(t, cfg)
		led := openLedger(t)
		result, err := New(g, led, scriptedRunner(t, g, nil)).Run(context.Background())
		require.NoError(t, err)

		seqs := make([]int64, 0, len(result.Outcomes))
		for _, o := range result.Outcomes {
			seqs = append(seqs, o.DispatchSeq)
		}
		return seqs
	}

	first := runOnce(t)
	second := runOnce(t)
	assert.Equal(t, first, second)
}

func TestRun_RunTokenCorrelatesLedgerRecords(t *testing.T) {
	cfg := workspace(t, "s1")
	g := buildGraph(t, cfg)
	led := openLedger(t)

	eng := New(g, led, scriptedRunner(t, g, nil))
	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, eng.RunToken(), result.RunToken)

	records, err := led.LoadRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 11)
	for id, rec := range records {
		assert.Equal(t, eng.RunToken(), rec.RunToken, id)
	}
}

func TestWithMaxParallelism_FloorsAtOne(t *testing.T) {
	cfg := workspace(t, "s1")
	g := buildGraph(t, cfg)
	led := openLedger(t)

	result, err := New(g, led, scriptedRunner(t, g, nil), WithMaxParallelism(0)).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Failed())
}
