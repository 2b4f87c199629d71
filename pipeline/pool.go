package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// workBatch is one unit of dispatch: a contiguous slice of a single
// Map call's row stream, keyed by the row ids and completed-bitmap
// ordinals it covers.
type workBatch struct {
	rowIDs   []string
	ordinals []uint32
	values   []any
}

// workResult pairs a dispatched batch with its outcome. err is a
// per-batch function failure (every row in the batch counts toward the
// error policy); it is never an infrastructure error — those abort the
// whole call directly.
type workResult struct {
	batch   workBatch
	outputs []any
	err     error
}

// runThreads dispatches batches over a bounded pool of num_jobs
// cooperatively-scheduled goroutines, the spec section 4.D.2
// `execution='threads'` engine. It is grounded on the same
// errgroup+semaphore combination arrow pulls in transitively
// (golang.org/x/sync), used here directly as the bounded-queue thread
// pool instead of an incidental dependency.
func runThreads(ctx context.Context, numJobs int, fn MapFunc, batches []workBatch) []workResult {
	results := make([]workResult, len(batches))
	sem := semaphore.NewWeighted(int64(numJobs))
	g, gctx := errgroup.WithContext(context.Background())

	for i, b := range batches {
		i, b := i, b
		if err := sem.Acquire(context.Background(), 1); err != nil {
			results[i] = workResult{batch: b, err: err}
			continue
		}
		g.Go(func() error {
			defer sem.Release(1)
			select {
			case <-ctx.Done():
				results[i] = workResult{batch: b, err: ctx.Err()}
				return nil
			default:
			}
			out, err := fn(gctx, b.values)
			results[i] = workResult{batch: b, outputs: out, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runProcesses runs each batch in a fresh subprocess of command, at most
// num_jobs at a time, exchanging one newline-delimited JSON request and
// response per batch: the spec section 4.D.2 `execution='processes'`
// engine for CPU-bound or native-code work. No subprocess is reused
// across batches. No pack repo models an OS-process worker pool, so this is
// stdlib `os/exec` + `encoding/json` (DESIGN.md): a process boundary is
// a standard-library-owned concern, not a third-party one.
func runProcesses(ctx context.Context, numJobs int, command []string, batches []workBatch) []workResult {
	results := make([]workResult, len(batches))
	if len(command) == 0 {
		for i, b := range batches {
			results[i] = workResult{batch: b, err: fmt.Errorf("pipeline: processes execution requires a ProcessCommand")}
		}
		return results
	}

	jobs := make(chan int, len(batches))
	for i := range batches {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < numJobs; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = runOneProcessBatch(ctx, command, batches[i])
			}
		}()
	}
	wg.Wait()
	return results
}

type processRequest struct {
	Values []any `json:"values"`
}

type processResponse struct {
	Outputs []any  `json:"outputs"`
	Error   string `json:"error,omitempty"`
}

func runOneProcessBatch(ctx context.Context, command []string, b workBatch) workResult {
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return workResult{batch: b, err: err}
	}
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Start(); err != nil {
		return workResult{batch: b, err: err}
	}

	reqBytes, err := json.Marshal(processRequest{Values: b.values})
	if err != nil {
		_ = cmd.Process.Kill()
		return workResult{batch: b, err: err}
	}
	if _, err := stdin.Write(append(reqBytes, '\n')); err != nil {
		_ = cmd.Process.Kill()
		return workResult{batch: b, err: err}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return workResult{batch: b, err: fmt.Errorf("worker process: %w", err)}
	}

	scanner := bufio.NewScanner(&stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	if !scanner.Scan() {
		return workResult{batch: b, err: fmt.Errorf("worker process produced no output")}
	}
	var resp processResponse
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return workResult{batch: b, err: err}
	}
	if resp.Error != "" {
		return workResult{batch: b, err: fmt.Errorf("worker process: %s", resp.Error)}
	}
	return workResult{batch: b, outputs: resp.Outputs}
}
