package harvest

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Extractor fetches and parses one work item into a row. Expected failures are
// reported as *FetchError, *ParseError or *ExtractorError; any other error
// aborts the run.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, item WorkItem) (Row, error)
}

// RowSink persists a complete snapshot of rows under a tag. A failed Flush
// must not leave a partially written snapshot behind.
type RowSink interface {
	Flush(ctx context.Context, rows []Row, tag Tag) error
}

// ErrorSink durably appends one failure record per call. With Workers > 1 it
// is called from several goroutines.
type ErrorSink interface {
	Append(ctx context.Context, f Failure) error
}

// Options configures a run.
type Options struct {
	StartIndex int           // items before this index are skipped
	BatchSize  int           // items handled between flushes
	Delay      time.Duration // pause between consecutive items
	Workers    int           // concurrent extractions; 1 = strictly sequential
}

// Summary reports the outcome of a run.
type Summary struct {
	Processed   int // items that produced a row
	Failed      int // items written to the error sink
	Skipped     int // items before StartIndex
	Flushes     int
	LastTag     *Tag
	ResumeIndex int // absolute index a follow-up run should start from
	Elapsed     time.Duration
}

// Harvester runs the checkpointed fetch loop.
type Harvester struct {
	extractor Extractor
	rows      RowSink
	errs      ErrorSink
	opts      Options
}

// New validates opts and builds a Harvester.
func New(ext Extractor, rows RowSink, errs ErrorSink, opts Options) (*Harvester, error) {
	if ext == nil || rows == nil || errs == nil {
		return nil, eris.New("harvest: extractor, row sink and error sink are required")
	}
	if opts.StartIndex < 0 {
		return nil, eris.Errorf("harvest: start index must be >= 0, got %d", opts.StartIndex)
	}
	if opts.BatchSize <= 0 {
		return nil, eris.Errorf("harvest: batch size must be > 0, got %d", opts.BatchSize)
	}
	if opts.Delay < 0 {
		return nil, eris.Errorf("harvest: delay must be >= 0, got %s", opts.Delay)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Harvester{extractor: ext, rows: rows, errs: errs, opts: opts}, nil
}

// outcome is the result of extracting one item. failure is set for an
// expected item failure; fatal is set when the run must stop.
type outcome struct {
	row     Row
	failure *Failure
	fatal   error
}

// Run processes items[StartIndex:] in order. Per-item failures are logged and
// counted; flush errors, error-sink errors, unexpected extractor errors and
// context cancellation end the run. When a run ends early, the rows handled
// since the last flush are written as an interrupted snapshot so the returned
// Summary.ResumeIndex stays accurate.
func (h *Harvester) Run(ctx context.Context, items []WorkItem) (*Summary, error) {
	start := min(h.opts.StartIndex, len(items))
	pending := items[start:]

	s := &runState{
		h:    h,
		acc:  NewAccumulator(h.opts.BatchSize),
		sum:  &Summary{Skipped: start, ResumeIndex: start},
		next: start,
		log: zap.L().With(
			zap.String("component", "harvest.run"),
			zap.String("extractor", h.extractor.Name()),
		),
	}
	began := time.Now()
	defer func() { s.sum.Elapsed = time.Since(began) }()

	s.log.Info("starting run",
		zap.Int("items", len(items)),
		zap.Int("start_index", start),
		zap.Int("batch_size", h.opts.BatchSize),
		zap.Int("workers", h.opts.Workers),
		zap.Duration("delay", h.opts.Delay),
	)

	if len(pending) == 0 {
		s.log.Info("nothing to do, start index at or past end of input")
		return s.sum, nil
	}

	var err error
	if h.opts.Workers == 1 {
		err = h.runSequential(ctx, s, pending)
	} else {
		err = h.runPool(ctx, s, pending)
	}
	if err != nil {
		return s.sum, err
	}

	if err := s.finish(ctx); err != nil {
		return s.sum, err
	}
	s.log.Info("run complete",
		zap.Int("processed", s.sum.Processed),
		zap.Int("failed", s.sum.Failed),
		zap.Int("flushes", s.sum.Flushes),
		zap.Int("resume_index", s.sum.ResumeIndex),
	)
	return s.sum, nil
}

func (h *Harvester) runSequential(ctx context.Context, s *runState, pending []WorkItem) error {
	for i, item := range pending {
		if i > 0 && h.opts.Delay > 0 {
			if err := pause(ctx, h.opts.Delay); err != nil {
				return s.interrupt(ctx, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return s.interrupt(ctx, err)
		}

		out := h.handle(ctx, item)
		if out.fatal == nil {
			out.fatal = s.record(ctx, out)
		}
		if out.fatal != nil {
			return s.interrupt(ctx, out.fatal)
		}
		if err := s.consume(ctx, out); err != nil {
			return err
		}
	}
	return nil
}

// runPool extracts up to Workers items concurrently but consumes their
// outcomes strictly in input order, so flush boundaries match the sequential
// loop exactly. Failures are recorded by the consumer in the same order, so
// nothing past the stop point of an aborted run reaches the error sink.
func (h *Harvester) runPool(ctx context.Context, s *runState, pending []WorkItem) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(h.opts.Workers)
	order := make(chan chan outcome, h.opts.Workers)

	go func() {
		defer close(order)
		for i, item := range pending {
			if i > 0 && h.opts.Delay > 0 {
				if pause(runCtx, h.opts.Delay) != nil {
					return
				}
			}
			if runCtx.Err() != nil {
				return
			}
			slot := make(chan outcome, 1)
			select {
			case order <- slot:
			case <-runCtx.Done():
				return
			}
			g.Go(func() error {
				slot <- h.handle(runCtx, item)
				return nil
			})
		}
	}()

	var fatal, sinkErr error
	for slot := range order {
		if fatal != nil || sinkErr != nil {
			continue
		}
		out := <-slot
		if out.fatal == nil {
			out.fatal = s.record(ctx, out)
		}
		if out.fatal != nil {
			fatal = out.fatal
			cancel()
			continue
		}
		if err := s.consume(ctx, out); err != nil {
			sinkErr = err
			cancel()
		}
	}
	_ = g.Wait()

	if sinkErr != nil {
		return sinkErr
	}
	if fatal == nil && s.next < s.sum.Skipped+len(pending) {
		fatal = ctx.Err()
		if fatal == nil {
			fatal = eris.New("harvest: dispatch stopped before input was exhausted")
		}
	}
	if fatal != nil {
		return s.interrupt(ctx, fatal)
	}
	return nil
}

// handle extracts one item and classifies the result.
func (h *Harvester) handle(ctx context.Context, item WorkItem) outcome {
	row, err := h.extractor.Extract(ctx, item)
	if err == nil && row == nil {
		err = NewExtractorError(errors.New("extractor returned no row"))
	}
	if err == nil {
		return outcome{row: Flatten(row)}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return outcome{fatal: ctxErr}
	}
	if !IsItemFailure(err) {
		return outcome{fatal: eris.Wrapf(err, "harvest: unexpected error on item %d (%s)", item.Index, item.ID)}
	}

	f := FailureFor(item, err)
	return outcome{failure: &f}
}

// runState is the mutable state of one run, touched only by the consuming
// goroutine.
type runState struct {
	h          *Harvester
	acc        *Accumulator
	sum        *Summary
	next       int // absolute index of the next item to consume
	sinceFlush int
	log        *zap.Logger
}

// record durably appends an item failure to the error sink before the item
// is counted. It runs on the consuming goroutine, in input order.
func (s *runState) record(ctx context.Context, out outcome) error {
	if out.failure == nil {
		return nil
	}
	f := out.failure
	if err := s.h.errs.Append(context.WithoutCancel(ctx), *f); err != nil {
		return eris.Wrapf(err, "harvest: record failure for item %s", f.Item.ID)
	}
	s.log.Warn("item failed",
		zap.Int("index", f.Item.Index),
		zap.String("item", f.Item.ID),
		zap.String("kind", f.Kind),
		zap.Int("status", f.StatusCode),
		zap.String("reason", f.Reason),
	)
	return nil
}

func (s *runState) consume(ctx context.Context, out outcome) error {
	if out.failure != nil {
		s.sum.Failed++
	} else {
		s.acc.Add(out.row)
		s.sum.Processed++
	}
	s.next++
	s.sinceFlush++

	if s.sinceFlush >= s.h.opts.BatchSize {
		return s.flush(ctx, Tag{End: s.next, Kind: KindBatch})
	}
	return nil
}

func (s *runState) flush(ctx context.Context, tag Tag) error {
	rows := s.acc.Drain()
	began := time.Now()
	if err := s.h.rows.Flush(ctx, rows, tag); err != nil {
		return eris.Wrapf(err, "harvest: flush %s", tag)
	}
	s.sinceFlush = 0
	s.sum.Flushes++
	s.sum.LastTag = &tag
	s.sum.ResumeIndex = tag.End
	s.log.Info("flushed snapshot",
		zap.Stringer("tag", tag),
		zap.Int("rows", len(rows)),
		zap.Duration("elapsed", time.Since(began)),
	)
	return nil
}

// finish writes the tail snapshot if any items were handled since the last
// flush.
func (s *runState) finish(ctx context.Context) error {
	if s.sinceFlush == 0 {
		return nil
	}
	return s.flush(ctx, Tag{End: s.next, Kind: KindTail})
}

// interrupt persists the rows handled so far and returns cause.
func (s *runState) interrupt(ctx context.Context, cause error) error {
	s.log.Warn("run interrupted",
		zap.Int("next_index", s.next),
		zap.Int("unflushed_items", s.sinceFlush),
		zap.Error(cause),
	)
	if s.sinceFlush == 0 {
		return cause
	}
	if err := s.flush(context.WithoutCancel(ctx), Tag{End: s.next, Kind: KindInterrupted}); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
