package pipeline

import (
	"context"

	curatepath "github.com/aqua777/curator/path"
	"github.com/aqua777/curator/query"
)

// Execution selects the worker pool backing a Map call (spec section
// 4.D.2): a cooperatively-scheduled thread pool for I/O-bound
// functions, or an OS-process pool for CPU-bound or native-code work.
type Execution string

const (
	Threads   Execution = "threads"
	Processes Execution = "processes"
)

// MapFunc is a user (or signal-wrapping) batch transform: one input
// value in, one output value out, same order, same length.
type MapFunc func(ctx context.Context, batch []any) ([]any, error)

// MapOptions configures one Map / ComputeSignal / ComputeEmbedding call
// (spec section 4.D).
type MapOptions struct {
	// InputPath selects the value stream fn runs over; empty means the
	// whole row. A trailing "*" flattens a repeated field into its leaf
	// values (spec section 4.D.7).
	InputPath string

	OutputColumn string
	NestUnder    string

	// Descriptor is the lineage record written to the manifest
	// (spec section 4.D.8). ComputeSignal/ComputeEmbedding/ComputeConcept
	// set this from their signal; a bare Map call defaults to
	// {Name: OutputColumn}.
	Descriptor curatepath.SignalDescriptor

	// OutputSchema hints the dtype/shape of fn's return value; omit it
	// only when fn always returns a plain string (the scalar default).
	OutputSchema *curatepath.Field

	BatchSize int
	Execution Execution
	NumJobs   int

	Filters []query.Filter
	Limit   int

	Overwrite bool
	Resumable bool

	// MaxErrors aborts the job once more than this many per-row errors
	// have accumulated. Zero means unlimited (spec section 4.D.6 default ∞).
	MaxErrors int

	// ProcessCommand, when Execution == Processes, is the subprocess
	// started once per batch; it must read one JSON request line from
	// stdin and write one JSON response line to stdout, the protocol of
	// runOneProcessBatch.
	ProcessCommand []string
}

func (o MapOptions) batchSize() int {
	if o.BatchSize <= 0 {
		return 1
	}
	return o.BatchSize
}

func (o MapOptions) numJobs() int {
	if o.NumJobs <= 0 {
		return 1
	}
	return o.NumJobs
}

// Result summarizes a completed Map call: how many rows were written,
// how many errored, and which row ids failed (bounded by MaxErrors).
type Result struct {
	NumWritten int
	NumErrors  int
	ErrorRows  []string
}
