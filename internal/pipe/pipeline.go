// Package pipe implements the producer-consumer pipeline that loads event
// logs into trace builders.
package pipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/logflow/alphaflow/internal/model"
	"github.com/logflow/alphaflow/internal/pool"
	lferrors "github.com/logflow/alphaflow/pkg/errors"
	"github.com/logflow/alphaflow/pkg/eventlog"
	"github.com/logflow/alphaflow/pkg/parser"
)

// Pipeline orchestrates the Reader -> Parser -> Builder data flow.
type Pipeline struct {
	parserCfg parser.Config

	// Channel buffer size between stages
	eventBufferSize int

	// Statistics (atomic for lock-free access)
	eventsRead atomic.Int64
	bytesRead  atomic.Int64

	// Progress callback
	progressFn func(stats ProgressStats)
	path       string
}

// ProgressStats provides real-time pipeline statistics.
type ProgressStats struct {
	// Path is the file being loaded; empty for LoadFromReader.
	Path            string
	EventsProcessed int64
	BytesRead       int64
	Cases           int
	EventsPerSecond float64
	ElapsedTime     time.Duration
}

// Config holds pipeline configuration.
type Config struct {
	ParserConfig parser.Config

	// EventBufferSize is the channel buffer size between stages.
	EventBufferSize int

	// Progress, when set, receives periodic statistics. LoadAll calls it
	// from one goroutine per file.
	Progress func(stats ProgressStats)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ParserConfig:    parser.DefaultConfig(),
		EventBufferSize: 4096,
	}
}

// NewPipeline creates a new pipeline with the given configuration.
func NewPipeline(cfg Config) *Pipeline {
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = 4096
	}
	return &Pipeline{
		parserCfg:       cfg.ParserConfig,
		eventBufferSize: cfg.EventBufferSize,
		progressFn:      cfg.Progress,
	}
}

// LoadResult contains the results of a load.
type LoadResult struct {
	Log             *eventlog.Builder
	EventsProcessed int64
	BytesRead       int64
}

// SetProgressCallback sets a callback for progress updates.
func (p *Pipeline) SetProgressCallback(fn func(stats ProgressStats)) {
	p.progressFn = fn
}

// Load parses the file at path. FormatUnknown selects the format by
// extension.
func (p *Pipeline) Load(ctx context.Context, path string, format parser.Format) (*LoadResult, error) {
	if format == parser.FormatUnknown {
		f, err := parser.DetectFormat(path)
		if err != nil {
			return nil, lferrors.Wrap(err, lferrors.CodeInvalidFormat, "unsupported log file").
				WithContext("path", path)
		}
		format = f
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, lferrors.FileNotFound(path)
		}
		return nil, lferrors.Wrap(err, lferrors.CodeParseFailed, "failed to open log").WithContext("path", path)
	}
	defer f.Close()
	p.path = path

	if stat, err := f.Stat(); err == nil {
		p.bytesRead.Store(stat.Size())
	}

	res, err := p.LoadFromReader(ctx, f, format)
	if err != nil {
		return nil, classify(err).WithContext("path", path)
	}
	return res, nil
}

// LoadFromReader parses r in one goroutine and groups events into cases in
// another. Any error cancels both.
func (p *Pipeline) LoadFromReader(ctx context.Context, input io.Reader, format parser.Format) (*LoadResult, error) {
	inputParser, err := parser.NewParser(format, p.parserCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create parser: %w", err)
	}

	// Random-access readers (files) are handed over as is so Parquet and
	// XLSX can seek; Load records their size up front.
	src := input
	if _, ok := input.(io.ReaderAt); !ok {
		src = &countingReader{r: input, n: &p.bytesRead}
	}
	eventChan := make(chan *model.Event, p.eventBufferSize)
	log := eventlog.NewBuilder()

	g, ctx := errgroup.WithContext(ctx)
	startTime := time.Now()

	// Parser goroutine (Reader + Parser)
	g.Go(func() error {
		defer close(eventChan)
		if err := inputParser.Parse(ctx, src, eventChan); err != nil {
			return fmt.Errorf("parser error at byte %d: %w", p.bytesRead.Load(), err)
		}
		return nil
	})

	// Builder goroutine with progress tracking
	g.Go(func() error {
		var count int64
		lastReport := time.Now()

		for {
			select {
			case <-ctx.Done():
				// drain so the parser can exit
				for e := range eventChan {
					pool.Events.Put(e)
				}
				return ctx.Err()
			case event, ok := <-eventChan:
				if !ok {
					return nil
				}
				log.Add(event)
				pool.Events.Put(event)

				count++
				p.eventsRead.Store(count)

				if p.progressFn != nil && time.Since(lastReport) > 100*time.Millisecond {
					p.report(startTime, log.Cases())
					lastReport = time.Now()
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if p.progressFn != nil {
		p.report(startTime, log.Cases())
	}

	return &LoadResult{
		Log:             log,
		EventsProcessed: p.eventsRead.Load(),
		BytesRead:       p.bytesRead.Load(),
	}, nil
}

func (p *Pipeline) report(start time.Time, cases int) {
	elapsed := time.Since(start)
	events := p.eventsRead.Load()
	rate := 0.0
	if s := elapsed.Seconds(); s > 0 {
		rate = float64(events) / s
	}
	p.progressFn(ProgressStats{
		Path:            p.path,
		EventsProcessed: events,
		BytesRead:       p.bytesRead.Load(),
		Cases:           cases,
		EventsPerSecond: rate,
		ElapsedTime:     elapsed,
	})
}

// LoadAll loads several files concurrently and merges them in argument
// order. At most workers files are parsed at once; workers <= 0 means one
// per file.
func LoadAll(ctx context.Context, cfg Config, paths []string, format parser.Format, workers int) (*eventlog.Builder, error) {
	results := make([]*LoadResult, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			res, err := NewPipeline(cfg).Load(ctx, path, format)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := eventlog.NewBuilder()
	for _, res := range results {
		merged.Merge(res.Log)
	}
	return merged, nil
}

// classify maps parser sentinels to coded errors.
func classify(err error) *lferrors.LogFlowError {
	switch {
	case lferrors.GetCode(err) != lferrors.CodeUnknown:
		return lferrors.Wrap(err, lferrors.GetCode(err), "failed to load log")
	case errors.Is(err, parser.ErrMissingColumn):
		return lferrors.Wrap(err, lferrors.CodeMissingColumn, "required column missing")
	case errors.Is(err, parser.ErrInvalidTimestamp):
		return lferrors.Wrap(err, lferrors.CodeInvalidTimestamp, "invalid timestamp")
	case errors.Is(err, parser.ErrUnsupportedFormat), errors.Is(err, parser.ErrInvalidCSV),
		errors.Is(err, parser.ErrInvalidXES), errors.Is(err, parser.ErrInvalidSheet):
		return lferrors.Wrap(err, lferrors.CodeInvalidFormat, "invalid log file")
	case errors.Is(err, parser.ErrContextCanceled), errors.Is(err, context.Canceled):
		return lferrors.Wrap(err, lferrors.CodeContextCanceled, "load canceled")
	default:
		return lferrors.Wrap(err, lferrors.CodeParseFailed, "failed to parse log")
	}
}

type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
