package file

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/jingle/limits"
)

// ErrEmptyFile indicates an attempt to offer a zero-byte file.
var ErrEmptyFile = errors.New("cannot transfer an empty file")

// Direction indicates whether a transfer sends or receives bytes.
type Direction uint8

const (
	// DirectionReceive represents a file being received.
	DirectionReceive Direction = iota
	// DirectionSend represents a file being sent.
	DirectionSend
)

// String returns a short name for the direction, used in registry keys
// and log fields.
func (d Direction) String() string {
	if d == DirectionSend {
		return "send"
	}
	return "receive"
}

// Status is the derived, consumer-facing state of a transfer. It is
// computed from the record's flags by priority, never stored.
type Status uint8

const (
	// StatusStopped indicates the transfer lost its connection or was cancelled.
	StatusStopped Status = iota
	// StatusPaused indicates the transfer was paused by the user.
	StatusPaused
	// StatusWaiting indicates the transfer stalled without being paused.
	StatusWaiting
	// StatusDownload indicates an actively receiving transfer.
	StatusDownload
	// StatusUpload indicates an actively sending transfer.
	StatusUpload
	// StatusVerifying indicates a finished receive awaiting hash verification.
	StatusVerifying
	// StatusComplete indicates a successfully finished transfer.
	StatusComplete
	// StatusError indicates a terminal transfer failure.
	StatusError
)

// String returns the display name of the status.
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusPaused:
		return "paused"
	case StatusWaiting:
		return "waiting"
	case StatusDownload:
		return "download"
	case StatusUpload:
		return "upload"
	case StatusVerifying:
		return "verifying"
	case StatusComplete:
		return "complete"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// Since returns the duration since t.
func (DefaultTimeProvider) Since(t time.Time) time.Duration { return time.Since(t) }

// defaultTimeProvider is the package-level default time provider.
var defaultTimeProvider TimeProvider = DefaultTimeProvider{}

// Transfer is the mutable record of one file transfer: its metadata, its
// byte-progress samples and its lifecycle flags. All mutation is
// serialized through a single progress-callback stream plus user-triggered
// pause/resume/cancel, guarded by one mutex.
type Transfer struct {
	SID       string
	Direction Direction
	Name      string
	FilePath  string
	Size      uint64
	Desc      string
	Date      string // file modification time, ISO 8601 UTC

	mu        sync.Mutex
	hash      []byte
	algorithm Algorithm
	offset    uint64

	transferred uint64
	estimator   rateEstimator
	elapsed     time.Duration
	lastTime    time.Time
	startTime   time.Time

	started   bool
	paused    bool
	stalled   bool
	connected bool
	stopped   bool
	completed bool
	verified  bool
	failure   error

	handle       *os.File
	timeProvider TimeProvider

	progressCallback func(uint64)
	completeCallback func(error)
}

// NewTransfer creates a transfer record. The record starts connected and
// not yet started; Start opens the file handle.
func NewTransfer(sid, name, path string, size uint64, direction Direction) *Transfer {
	logrus.WithFields(logrus.Fields{
		"function":  "NewTransfer",
		"sid":       sid,
		"name":      name,
		"size":      size,
		"direction": direction.String(),
	}).Info("Creating file transfer record")

	return &Transfer{
		SID:          sid,
		Direction:    direction,
		Name:         name,
		FilePath:     path,
		Size:         size,
		connected:    true,
		algorithm:    SHA256,
		timeProvider: defaultTimeProvider,
	}
}

// SetTimeProvider sets a custom time provider for deterministic testing.
func (t *Transfer) SetTimeProvider(tp TimeProvider) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeProvider = tp
}

// SetHash records the expected (receive) or computed (send) digest.
func (t *Transfer) SetHash(digest []byte, algo Algorithm) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hash = digest
	t.algorithm = algo
}

// Hash returns the digest and its algorithm. The digest is nil when no
// hash is known yet.
func (t *Transfer) Hash() ([]byte, Algorithm) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hash, t.algorithm
}

// HashExpected reports whether a digest is attached to this transfer.
func (t *Transfer) HashExpected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.hash) > 0
}

// SetOffset sets the resume start point. Must be called before Start.
func (t *Transfer) SetOffset(offset uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offset = offset
	if t.transferred < offset {
		t.transferred = offset
	}
}

// Offset returns the resume start point.
func (t *Transfer) Offset() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offset
}

// Start validates the record and opens the file handle: reading for a
// send, writing for a receive. A non-zero offset seeks the handle to the
// resume point instead of truncating.
func (t *Transfer) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		if t.paused {
			return errors.New("transfer is paused; use Resume")
		}
		return errors.New("transfer already started")
	}
	if t.stopped || t.completed {
		return errors.New("transfer already finished")
	}
	if err := limits.ValidateFileName(t.Name); err != nil {
		return err
	}

	if t.handle == nil {
		if err := t.openFile(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "Start",
				"sid":       t.SID,
				"file_path": t.FilePath,
				"direction": t.Direction.String(),
				"error":     err.Error(),
			}).Error("Failed to open file for transfer")
			t.failure = err
			return err
		}
	}

	now := t.timeProvider.Now()
	t.started = true
	t.startTime = now
	t.lastTime = now

	logrus.WithFields(logrus.Fields{
		"function":  "Start",
		"sid":       t.SID,
		"name":      t.Name,
		"direction": t.Direction.String(),
		"offset":    t.offset,
	}).Info("File transfer started")

	return nil
}

// openFile opens the record's file handle according to direction and
// offset. Caller holds the lock.
func (t *Transfer) openFile() error {
	switch t.Direction {
	case DirectionSend:
		f, err := os.Open(t.FilePath)
		if err != nil {
			return err
		}
		if t.offset > 0 {
			if _, err := f.Seek(int64(t.offset), 0); err != nil {
				f.Close()
				return fmt.Errorf("seeking to resume offset %d: %w", t.offset, err)
			}
		}
		t.handle = f
	default:
		flags := os.O_WRONLY | os.O_CREATE
		if t.offset == 0 {
			flags |= os.O_TRUNC
		}
		f, err := os.OpenFile(t.FilePath, flags, 0o644)
		if err != nil {
			return err
		}
		if t.offset > 0 {
			if _, err := f.Seek(int64(t.offset), 0); err != nil {
				f.Close()
				return fmt.Errorf("seeking to resume offset %d: %w", t.offset, err)
			}
		}
		t.handle = f
	}
	return nil
}

// Pause temporarily halts the transfer and discards the retained
// throughput samples, so the estimator cold-starts on resume instead of
// blending a zero-throughput interval into the moving rate.
func (t *Transfer) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started || t.stopped || t.completed {
		return errors.New("transfer is not running")
	}
	if t.paused {
		return errors.New("transfer is already paused")
	}

	t.paused = true
	t.estimator.reset()

	logrus.WithFields(logrus.Fields{
		"function": "Pause",
		"sid":      t.SID,
		"name":     t.Name,
	}).Info("File transfer paused")

	return nil
}

// Resume continues a paused transfer. The progress clock is restamped so
// the paused interval does not count toward elapsed time.
func (t *Transfer) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.paused {
		return errors.New("transfer is not paused")
	}

	t.paused = false
	t.lastTime = t.timeProvider.Now()

	logrus.WithFields(logrus.Fields{
		"function": "Resume",
		"sid":      t.SID,
		"name":     t.Name,
	}).Info("File transfer resumed")

	return nil
}

// Cancel aborts the transfer and releases the file handle. Safe to call at
// any point in the lifecycle; cancelling a finished transfer is an error.
func (t *Transfer) Cancel() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || t.completed {
		return errors.New("transfer already finished")
	}

	t.closeHandle("Cancel")
	t.stopped = true
	t.connected = false
	t.estimator.reset()

	logrus.WithFields(logrus.Fields{
		"function": "Cancel",
		"sid":      t.SID,
		"name":     t.Name,
	}).Info("File transfer cancelled")

	if t.completeCallback != nil {
		t.completeCallback(errors.New("transfer cancelled"))
	}

	return nil
}

// Fail marks the transfer as terminally failed (candidate exhaustion,
// write error) and releases the file handle. The status becomes error and
// the transfer is not retried automatically.
func (t *Transfer) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failure != nil {
		return
	}

	t.closeHandle("Fail")
	t.failure = err
	t.connected = false

	logrus.WithFields(logrus.Fields{
		"function": "Fail",
		"sid":      t.SID,
		"name":     t.Name,
		"error":    err.Error(),
	}).Error("File transfer failed")

	if t.completeCallback != nil {
		t.completeCallback(err)
	}
}

// closeHandle closes the file handle if open. Caller holds the lock.
func (t *Transfer) closeHandle(caller string) {
	if t.handle == nil {
		return
	}
	if err := t.handle.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  caller,
			"sid":       t.SID,
			"file_path": t.FilePath,
			"error":     err.Error(),
		}).Warn("Failed to close file handle")
	}
	t.handle = nil
}

// SetConnected records whether the underlying data channel is up.
// Connectivity loss dominates every other non-terminal status.
func (t *Transfer) SetConnected(connected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = connected
}

// SetStalled flags a transfer that stopped progressing without being
// paused. Cleared automatically on the next progress update.
func (t *Transfer) SetStalled(stalled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stalled = stalled
}

// MarkVerified records a successful post-transfer hash verification,
// moving the derived status from verifying to complete.
func (t *Transfer) MarkVerified() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.verified = true
}

// Handle returns the open file handle, or nil outside the started window.
// The bytestream layer writes through it; ownership stays with the record.
func (t *Transfer) Handle() *os.File {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handle
}

// UpdateProgress records the absolute byte count reported by the
// bytestream layer. transferred includes any resume offset. Callbacks may
// arrive many times per second; the derived status and estimate are pure
// functions of the record, so redelivery is harmless.
func (t *Transfer) UpdateProgress(transferred uint64, now time.Time) {
	t.mu.Lock()

	if t.stopped || t.completed || t.failure != nil {
		t.mu.Unlock()
		return
	}

	if t.started && !t.paused && !t.lastTime.IsZero() && now.After(t.lastTime) {
		t.elapsed += now.Sub(t.lastTime)
	}
	t.lastTime = now
	t.transferred = transferred
	t.stalled = false

	if t.elapsed > 0 {
		t.estimator.add(now, transferred-t.offset)
	}

	finished := t.Size > 0 && t.transferred >= t.Size
	if finished {
		t.completed = true
		t.closeHandle("UpdateProgress")
	}

	progressCb := t.progressCallback
	completeCb := t.completeCallback
	t.mu.Unlock()

	if progressCb != nil {
		progressCb(transferred)
	}
	if finished && completeCb != nil {
		completeCb(nil)
	}
}

// Transferred returns the absolute byte count, including any resume offset.
func (t *Transfer) Transferred() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transferred
}

// IsActive reports whether the transfer is neither finished, cancelled nor
// failed. The registry uses this to enforce one active transfer per key.
func (t *Transfer) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped && !t.completed && t.failure == nil
}

// Err returns the terminal failure, or nil.
func (t *Transfer) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failure
}

// Status derives the consumer-facing state from the record's flags.
// Priority, highest first: terminal failure, completion (verifying until a
// pending hash check passes), connectivity loss, pause, stall, then the
// direction's active state.
func (t *Transfer) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.failure != nil:
		return StatusError
	case t.completed:
		if t.Direction == DirectionReceive && len(t.hash) > 0 && !t.verified {
			return StatusVerifying
		}
		return StatusComplete
	case !t.connected:
		return StatusStopped
	case t.paused:
		return StatusPaused
	case t.stalled:
		return StatusWaiting
	case t.Direction == DirectionReceive:
		return StatusDownload
	default:
		return StatusUpload
	}
}

// Estimate returns the estimated seconds to completion and the current
// speed in bytes per second. Both are zero when no estimate is available;
// callers never divide by the returned speed. A resume offset is excluded
// from both the remaining size and the progress before estimating.
func (t *Transfer) Estimate() (eta float64, speed float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	effTransferred := t.transferred - t.offset
	effSize := t.Size - t.offset

	speed = t.estimator.speed(effTransferred, t.elapsed)
	if speed == 0 {
		return 0, 0
	}
	if effTransferred >= effSize {
		return 0, speed
	}
	eta = float64(effSize-effTransferred) / speed
	return eta, speed
}

// OnProgress sets a callback invoked with the absolute byte count after
// each progress update.
func (t *Transfer) OnProgress(callback func(uint64)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progressCallback = callback
}

// OnComplete sets a callback invoked once when the transfer finishes,
// fails or is cancelled. A nil error means all bytes arrived; hash
// verification, if expected, happens afterwards.
func (t *Transfer) OnComplete(callback func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completeCallback = callback
}
