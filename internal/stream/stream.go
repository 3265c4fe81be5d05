// Package stream turns process output into the single byte stream the
// dashboard reads: stdout verbatim, stderr prefixed, then one terminal
// marker.
package stream

import (
	"fmt"

	"Pattas/internal/domain/models"
)

// StderrPrefix is prepended to every stderr chunk.
const StderrPrefix = "ERROR: "

// Sink receives encoded chunks. Send must deliver p to the client before
// returning (write and flush).
type Sink interface {
	Send(p []byte) error
}

// Opener is implemented by sinks that must commit their response before
// the first chunk, e.g. HTTP status and headers. Open is called once the
// run is admitted and before the process is spawned.
type Opener interface {
	Open() error
}

// Source is a running process as seen by Copy.
type Source interface {
	Chunks() <-chan models.OutputChunk
	Wait() (int, error)
	Canceled() bool
}

// Encode renders one chunk for the wire.
func Encode(c models.OutputChunk) []byte {
	if c.Channel == models.Stderr {
		out := make([]byte, 0, len(StderrPrefix)+len(c.Data))
		out = append(out, StderrPrefix...)
		return append(out, c.Data...)
	}
	return c.Data
}

// CompletionMarker terminates the stream of a process that ran.
func CompletionMarker(code int) []byte {
	return []byte(fmt.Sprintf("\n[Process completed with code %d]", code))
}

// FatalMarker terminates the stream of a process that never started.
func FatalMarker(err error) []byte {
	return []byte("\nFATAL ERROR: " + err.Error())
}

// Result summarizes one Copy.
type Result struct {
	StdoutBytes  int64
	StderrBytes  int64
	StdoutChunks int
	StderrChunks int
	ExitCode     int
	Canceled     bool
	WaitErr      error
	// SinkErr is the first delivery failure. Nothing is sent after it.
	SinkErr error
}

// Chunks is the total number of chunks read.
func (r Result) Chunks() int {
	return r.StdoutChunks + r.StderrChunks
}

// Copy forwards every chunk of src to sink as it arrives and finishes with
// exactly one completion marker. Once the sink fails the remaining output
// is still drained, so the process never blocks on a full pipe.
func Copy(sink Sink, src Source) Result {
	var res Result

	for chunk := range src.Chunks() {
		switch chunk.Channel {
		case models.Stderr:
			res.StderrBytes += int64(len(chunk.Data))
			res.StderrChunks++
		default:
			res.StdoutBytes += int64(len(chunk.Data))
			res.StdoutChunks++
		}

		if res.SinkErr != nil {
			continue
		}
		if err := sink.Send(Encode(chunk)); err != nil {
			res.SinkErr = err
		}
	}

	res.ExitCode, res.WaitErr = src.Wait()
	res.Canceled = src.Canceled()

	if res.SinkErr == nil {
		res.SinkErr = sink.Send(CompletionMarker(res.ExitCode))
	}
	return res
}

// Fatal sends the spawn failure marker.
func Fatal(sink Sink, err error) error {
	return sink.Send(FatalMarker(err))
}
