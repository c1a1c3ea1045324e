package llm

import (
	"context"
	"strings"

	"robo-chat-go/internal/model"
)

// Chunk is one fragment of a streamed reply. A chunk with a non-nil Err is the
// last one the stream yields.
type Chunk struct {
	Text string
	Err  *model.Failure
}

// Stream is a cancellable producer of ordered chunks. C is closed when the
// producer finishes, fails, or the stream is closed.
type Stream struct {
	C      <-chan Chunk
	cancel context.CancelFunc
}

// Emit delivers a chunk to the consumer. It reports false once the stream has
// been cancelled, after which the producer should return.
type Emit func(Chunk) bool

// NewStream runs produce in its own goroutine and returns the consuming side.
func NewStream(ctx context.Context, produce func(ctx context.Context, emit Emit)) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		produce(ctx, func(c Chunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()
	return &Stream{C: ch, cancel: cancel}
}

// Close cancels the producer and closes the underlying connection.
// It is safe to call more than once.
func (s *Stream) Close() {
	s.cancel()
}

// TextStream yields the given fragments in order.
func TextStream(ctx context.Context, parts ...string) *Stream {
	return NewStream(ctx, func(ctx context.Context, emit Emit) {
		for _, p := range parts {
			if !emit(Chunk{Text: p}) {
				return
			}
		}
	})
}

// FailedStream yields a single failure chunk.
func FailedStream(ctx context.Context, f *model.Failure) *Stream {
	return NewStream(ctx, func(ctx context.Context, emit Emit) {
		emit(Chunk{Err: f})
	})
}

// Collect drains the stream and returns the concatenated text together with
// the failure that ended it, if any.
func Collect(s *Stream) (string, *model.Failure) {
	defer s.Close()
	var b strings.Builder
	var failure *model.Failure
	for c := range s.C {
		if c.Err != nil {
			failure = c.Err
			continue
		}
		b.WriteString(c.Text)
	}
	return b.String(), failure
}
