package cothread

import "io"

// runtimeOptions holds resolved configuration for a Runtime.
type runtimeOptions struct {
	logWriter      io.Writer
	metricsEnabled bool
	maxThreads     int
}

// RuntimeOption configures a Runtime at construction, following the same
// functional-options shape the teacher module uses for its own Loop.
type RuntimeOption interface {
	applyRuntime(*runtimeOptions)
}

type runtimeOptionFunc func(*runtimeOptions)

func (f runtimeOptionFunc) applyRuntime(o *runtimeOptions) { f(o) }

// WithLogWriter directs structured log output to w instead of the default
// (os.Stderr).
func WithLogWriter(w io.Writer) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) {
		o.logWriter = w
	})
}

// WithMetrics enables the runtime's atomic dispatch/lifecycle counters,
// readable via Runtime.Metrics.
func WithMetrics(enabled bool) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) {
		o.metricsEnabled = enabled
	})
}

// WithMaxThreads caps the number of threads Spawn will ever admit over the
// Runtime's lifetime, mirroring the fixed-size thread table the original
// program sized MAX_THREADS to. Spawn returns ErrAllocationFailed once the
// pool has registered this many threads, alive or terminated - the table
// never compacts, so a long-running Runtime with a cap is expected to
// eventually exhaust it. Zero (the default) means unlimited.
func WithMaxThreads(n int) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) {
		o.maxThreads = n
	})
}

func resolveRuntimeOptions(opts []RuntimeOption) *runtimeOptions {
	cfg := &runtimeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyRuntime(cfg)
	}
	return cfg
}
