package regrid

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/wdm0006/regrid/pkg/errs"
	"github.com/wdm0006/regrid/pkg/frames"
)

// Source is the chunk/subchunk pull contract shared by upstream readers and
// pipelines. A chunk groups buffers; Origin/More/Next walk the buffers of
// the current chunk.
type Source interface {
	OriginChunk() error
	MoreChunks() bool
	NextChunk() error
	Origin() error
	More() bool
	Next() error
	CurrentBuffer() (Buffer, error)
	// NativeFrame is the frame the source's frequencies are expressed in.
	NativeFrame() frames.Frame
	// FrequenciesFor returns the channel grid of a partition in frame f;
	// frames.Native means the source's own frame.
	FrequenciesFor(t time.Time, f frames.Frame, partition int) (frames.Grid, error)
}

// Sink consumes buffers, typically writing them out.
type Sink interface {
	Write(Buffer) error
	Close() error
}

// ChunkSink is a Sink told where each chunk begins.
type ChunkSink interface {
	Sink
	BeginChunk(n int) error
}

// DrainOption changes how Drain treats failures.
type DrainOption func(*drain)

// SkipFailedPartitions makes Drain carry on past errors attributed to a
// partition, dropping that partition's buffers. The skipped errors are
// joined into the error Drain returns once the source is exhausted.
func SkipFailedPartitions() DrainOption {
	return func(d *drain) { d.skip = true }
}

type drain struct {
	skip    bool
	failed  *multierror.Error
	pending bool
}

// tolerate records err and returns nil when it may be skipped.
func (d *drain) tolerate(err error) error {
	if err == nil || !d.skip || errs.Partition(err) == errs.NoPartition {
		return err
	}
	d.failed = multierror.Append(d.failed, err)
	d.pending = true
	return nil
}

// Drain walks every buffer of src into sink and closes the sink. By default
// it stops at the first error, partition failures included, or when ctx is
// done.
func Drain(ctx context.Context, src Source, sink Sink, opts ...DrainOption) (err error) {
	d := &drain{}
	for _, o := range opts {
		o(d)
	}
	defer func() {
		if cerr := sink.Close(); err == nil {
			err = cerr
		}
	}()
	if err := src.OriginChunk(); err != nil {
		return err
	}
	cs, chunked := sink.(ChunkSink)
	for n := 0; src.MoreChunks(); n++ {
		if chunked {
			if err := cs.BeginChunk(n); err != nil {
				return err
			}
		}
		if err := d.tolerate(src.Origin()); err != nil {
			return err
		}
		for src.More() {
			if err := ctx.Err(); err != nil {
				return err
			}
			buf, err := src.CurrentBuffer()
			if err != nil {
				if !d.skip || errs.Partition(err) == errs.NoPartition {
					return err
				}
				// record it unless positioning already did
				if !d.pending {
					d.failed = multierror.Append(d.failed, err)
				}
				d.pending = false
				if err := d.tolerate(src.Next()); err != nil {
					return err
				}
				continue
			}
			d.pending = false
			if err := sink.Write(buf); err != nil {
				return err
			}
			if err := d.tolerate(src.Next()); err != nil {
				return err
			}
		}
		if err := src.NextChunk(); err != nil {
			return err
		}
	}
	return d.failed.ErrorOrNil()
}
