// Package errs holds the typed failures raised while regridding.
//
// All three failure kinds are fatal: they are never retried and carry the
// partition or parameter that caused them. Use errors.As to inspect them.
package errs

import (
	"errors"
	"fmt"
)

// NoPartition marks an error that is not tied to a partition.
const NoPartition = -1

var (
	// ErrNotPositioned is returned when a buffer is requested before the
	// iterator has been positioned with Origin/Next.
	ErrNotPositioned = errors.New("iterator is not positioned on a buffer")
	// ErrQuantityMissing is returned by Buffer accessors for quantities the
	// source does not carry.
	ErrQuantityMissing = errors.New("quantity not present in buffer")
)

// ConfigurationError reports an unknown option value or a malformed grid
// specification.
type ConfigurationError struct {
	Parameter string
	Value     string
	Partition int
	Reason    string
	cause     error
}

// Configuration builds a ConfigurationError not tied to a partition.
func Configuration(param, value, reason string) *ConfigurationError {
	return &ConfigurationError{Parameter: param, Value: value, Partition: NoPartition, Reason: reason}
}

// WithCause attaches the underlying error.
func (e *ConfigurationError) WithCause(err error) *ConfigurationError {
	e.cause = err
	return e
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration error: %s=%q", e.Parameter, e.Value)
	if e.Partition != NoPartition {
		msg += fmt.Sprintf(" (partition %d)", e.Partition)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.cause }

// ComputationError reports a degenerate solver result, such as an empty or
// non-monotonic output grid.
type ComputationError struct {
	Partition int
	Reason    string
	cause     error
}

// Computation builds a ComputationError for a partition.
func Computation(partition int, reason string, cause error) *ComputationError {
	return &ComputationError{Partition: partition, Reason: reason, cause: cause}
}

func (e *ComputationError) Error() string {
	msg := "computation error"
	if e.Partition != NoPartition {
		msg += fmt.Sprintf(" (partition %d)", e.Partition)
	}
	msg += ": " + e.Reason
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *ComputationError) Unwrap() error { return e.cause }

// FrameConversionError reports an unsupported frame or an incompatible
// radial-velocity measure.
type FrameConversionError struct {
	Partition int
	Field     int
	Frame     string
	Reason    string
	cause     error
}

// FrameConversion builds a FrameConversionError for a frame name.
func FrameConversion(frame, reason string) *FrameConversionError {
	return &FrameConversionError{Partition: NoPartition, Field: NoPartition, Frame: frame, Reason: reason}
}

// At records where the conversion failed.
func (e *FrameConversionError) At(partition, field int) *FrameConversionError {
	e.Partition = partition
	e.Field = field
	return e
}

// WithCause attaches the underlying error.
func (e *FrameConversionError) WithCause(err error) *FrameConversionError {
	e.cause = err
	return e
}

func (e *FrameConversionError) Error() string {
	msg := fmt.Sprintf("frame conversion error: frame %q", e.Frame)
	if e.Partition != NoPartition {
		msg += fmt.Sprintf(" (partition %d", e.Partition)
		if e.Field != NoPartition {
			msg += fmt.Sprintf(", field %d", e.Field)
		}
		msg += ")"
	} else if e.Field != NoPartition {
		msg += fmt.Sprintf(" (field %d)", e.Field)
	}
	msg += ": " + e.Reason
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *FrameConversionError) Unwrap() error { return e.cause }

// Partition returns the partition an error is attributed to, or NoPartition.
func Partition(err error) int {
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return ce.Partition
	}
	var cpe *ComputationError
	if errors.As(err, &cpe) {
		return cpe.Partition
	}
	var fe *FrameConversionError
	if errors.As(err, &fe) {
		return fe.Partition
	}
	return NoPartition
}

// InPartition returns err attributed to partition when err carries one of
// the typed failures without a partition. The typed failure is copied, so
// err itself is never modified and may be shared between partitions.
func InPartition(err error, partition int) error {
	var ce *ConfigurationError
	if errors.As(err, &ce) && ce.Partition == NoPartition {
		c := *ce
		c.Partition = partition
		return replace(err, ce, &c)
	}
	var cpe *ComputationError
	if errors.As(err, &cpe) && cpe.Partition == NoPartition {
		c := *cpe
		c.Partition = partition
		return replace(err, cpe, &c)
	}
	var fe *FrameConversionError
	if errors.As(err, &fe) && fe.Partition == NoPartition {
		c := *fe
		c.Partition = partition
		return replace(err, fe, &c)
	}
	return err
}

// InField is InPartition for frame conversion failures, also setting the
// field.
func InField(err error, partition, field int) error {
	var fe *FrameConversionError
	if errors.As(err, &fe) && fe.Partition == NoPartition {
		c := *fe
		c.Partition, c.Field = partition, field
		return replace(err, fe, &c)
	}
	return err
}

func replace(err, orig, typed error) error {
	if err == orig {
		return typed
	}
	return &attributed{typed: typed, chain: err}
}

// attributed puts an attributed copy in front of the chain it came from.
type attributed struct {
	typed error
	chain error
}

func (a *attributed) Error() string   { return a.typed.Error() }
func (a *attributed) Unwrap() []error { return []error{a.typed, a.chain} }
