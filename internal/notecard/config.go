package notecard

import (
	"errors"
	"fmt"
	"time"
)

// Device framing limits. A segment is written as one transport call; its
// length is derived once from the chunk unit and the segment budget.
const (
	ChunkLen      = 30
	SegmentBudget = 250
	MaxChunkSize  = 250
)

// SegmentLen is the number of bytes the transmitter hands to the transport per write.
var SegmentLen = SegmentLength(ChunkLen, SegmentBudget, MaxChunkSize)

const (
	// ResetDrainDelay bounds each wait for a byte during resynchronization.
	ResetDrainDelay = 500 * time.Millisecond
	// ReceiveScratchLen is the largest single read performed by the receiver.
	ReceiveScratchLen = 256
	// ReceiveIdleDelay is the pause after a read that returned no bytes.
	ReceiveIdleDelay = 10 * time.Millisecond
	// DiagnosticLen caps the payload excerpt carried by errors.
	DiagnosticLen = 256
	// DefaultBufferSize is the working buffer capacity.
	DefaultBufferSize = 18 * 1024
)

// SegmentLength returns the largest multiple of chunk that does not exceed
// budget nor hardMax. It returns 0 when chunk itself does not fit.
func SegmentLength(chunk, budget, hardMax int) int {
	if chunk <= 0 {
		return 0
	}
	limit := budget
	if hardMax < limit {
		limit = hardMax
	}
	if limit < chunk {
		return 0
	}
	return limit / chunk * chunk
}

// Config is fixed for the life of a driver instance and survives Suspend/Resume.
type Config struct {
	// ResponseTimeout bounds the receive phase of a transaction. Zero disables it.
	ResponseTimeout time.Duration

	// TransactionRetry is the number of resynchronization attempts.
	TransactionRetry int

	// ChunkDelay is reserved for chunk-paced links and currently unused: the
	// transmitter paces per segment only. It is still validated.
	ChunkDelay time.Duration

	// SegmentDelay is the quiet time after each segment written.
	SegmentDelay time.Duration

	// StrictFraming completes a response only when the accumulated bytes end
	// with "\r\n" instead of when both bytes have been seen anywhere.
	StrictFraming bool

	// BufferSize is the working buffer capacity in bytes.
	BufferSize int
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		ResponseTimeout:  5 * time.Second,
		TransactionRetry: 5,
		ChunkDelay:       20 * time.Millisecond,
		SegmentDelay:     250 * time.Millisecond,
		BufferSize:       DefaultBufferSize,
	}
}

// Validate checks ranges only.
func (c Config) Validate() error {
	switch {
	case c.ResponseTimeout < 0:
		return errors.New("response timeout must be >= 0")
	case c.ChunkDelay < 0:
		return errors.New("chunk delay must be >= 0")
	case c.SegmentDelay < 0:
		return errors.New("segment delay must be >= 0")
	case c.TransactionRetry < 0:
		return fmt.Errorf("transaction retry must be >= 0 (got %d)", c.TransactionRetry)
	case c.BufferSize <= 0:
		return fmt.Errorf("buffer size must be > 0 (got %d)", c.BufferSize)
	}
	return nil
}
