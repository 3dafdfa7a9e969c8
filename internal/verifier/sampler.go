package verifier

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dbsmedya/gowipe/internal/device"
	"github.com/dbsmedya/gowipe/internal/logger"
	"github.com/dbsmedya/gowipe/internal/wipeerr"
)

const (
	// DefaultSampleBytes is the size of the post-wipe sample (100 MiB).
	DefaultSampleBytes = 100 << 20
	// DefaultTimeout bounds the sample read.
	DefaultTimeout = 60 * time.Second

	// directAlign satisfies O_DIRECT alignment on 512e and 4Kn devices.
	directAlign = 4096
)

// Options configures the sampler.
type Options struct {
	SampleBytes  int
	PreviewBytes int
	Timeout      time.Duration
	DirectIO     bool
}

// Sampler reads a bounded prefix of a device and classifies it.
type Sampler struct {
	opts   Options
	logger *logger.Logger
	open   func(path string, direct bool) (*os.File, error)
}

// NewSampler creates a Sampler, filling unset options with defaults.
func NewSampler(opts Options, log *logger.Logger) *Sampler {
	if opts.SampleBytes <= 0 {
		opts.SampleBytes = DefaultSampleBytes
	}
	if opts.PreviewBytes <= 0 {
		opts.PreviewBytes = DefaultPreviewBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Sampler{opts: opts, logger: log, open: openSample}
}

// Verify samples path and classifies the bytes against method. It never
// fails outright: read problems and timeouts come back as an unsuccessful
// Result so they stay separate from the erase outcome.
func (s *Sampler) Verify(ctx context.Context, path string, method device.Method) *Result {
	log := s.logger.WithFields(map[string]interface{}{"path": path, "method": method})
	log.Infow("Verifying wipe", "sample_bytes", s.opts.SampleBytes, "direct_io", s.opts.DirectIO)

	data, err := s.read(ctx, path)
	if err != nil {
		log.Warnw("Verification unavailable", "error", err)
		return failed(method, err.Error())
	}

	r := Classify(data, method, s.opts.PreviewBytes)
	if !r.Success {
		log.Warnw("Verification unavailable", "error", r.Error)
		return r
	}
	if r.WipeEffective {
		log.Infow("Verification passed",
			"zero_percentage", r.ZeroPercentage,
			"expected", r.ExpectedResult)
	} else {
		log.Warnw("Verification did not match expected signature",
			"zero_percentage", r.ZeroPercentage,
			"expected", r.ExpectedResult)
	}
	return r
}

type readResult struct {
	data []byte
	err  error
}

// read returns up to SampleBytes from the start of path within the timeout.
// The file is closed on every path, including a read abandoned on timeout.
// Closing a block device does not interrupt a read(2) already in the
// kernel, so an abandoned reader goroutine holds the descriptor until that
// read returns.
func (s *Sampler) read(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	f, err := s.open(path, s.opts.DirectIO)
	if err != nil {
		return nil, wipeerr.Wrap(err, wipeerr.VerificationUnavailable, "Failed to open %s for verification", path)
	}
	var once sync.Once
	closeFile := func() { once.Do(func() { _ = f.Close() }) }
	defer closeFile()

	done := make(chan readResult, 1)
	go func() {
		data, err := readPrefix(f, s.opts.SampleBytes, s.opts.DirectIO)
		done <- readResult{data: data, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, wipeerr.Wrap(r.err, wipeerr.VerificationUnavailable, "Failed to read %s for verification", path)
		}
		return r.data, nil
	case <-ctx.Done():
		// Stops further reads; an in-flight read still runs to completion and
		// its result is discarded.
		closeFile()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, wipeerr.New(wipeerr.VerificationUnavailable, "Verification timed out after %s", s.opts.Timeout)
		}
		return nil, wipeerr.Wrap(ctx.Err(), wipeerr.VerificationUnavailable, "Verification interrupted")
	}
}

// readPrefix reads until size bytes, EOF or an error.
func readPrefix(f *os.File, size int, direct bool) ([]byte, error) {
	var buf []byte
	if direct {
		buf = alignedBuffer(roundUp(size, directAlign), directAlign)
	} else {
		buf = make([]byte, size)
	}

	n := 0
	for n < size {
		m, err := f.Read(buf[n:])
		n += m
		if errors.Is(err, io.EOF) || (err == nil && m == 0) {
			break
		}
		if err != nil {
			return nil, err
		}
		// A short direct read means end of device; the next offset would
		// also be misaligned.
		if direct && m%directAlign != 0 {
			break
		}
	}
	if n > size {
		n = size
	}
	return buf[:n], nil
}

func roundUp(n, align int) int {
	return (n + align - 1) / align * align
}
