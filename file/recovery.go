package file

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrHashMismatch indicates a fully received file whose digest does not
// match the sender's. The file is corrupt and must not be kept.
var ErrHashMismatch = errors.New("received file failed hash verification")

// RequestFunc re-requests a file from the sender using the fresh transfer
// record built by recovery.
type RequestFunc func(*Transfer) error

// Recovery implements the hash-mismatch recovery flow: verify a completed
// receive against its expected digest and, on mismatch, discard the
// corrupted file and restart the transfer from scratch. Partial resume is
// never attempted for a corrupted file; recovery is a full restart.
type Recovery struct {
	manager *Manager
	request RequestFunc
}

// NewRecovery creates a recovery flow over the given registry. request may
// be nil when the embedder drives the re-request itself.
func NewRecovery(m *Manager, request RequestFunc) *Recovery {
	return &Recovery{manager: m, request: request}
}

// Verify computes the digest of the received file and compares it with the
// expected one. On a match the record is marked verified and its status
// becomes complete. Transfers without an expected hash verify trivially.
// File-system errors are returned as-is, distinct from ErrHashMismatch.
func (r *Recovery) Verify(t *Transfer) error {
	expected, algo := t.Hash()
	if len(expected) == 0 {
		t.MarkVerified()
		return nil
	}

	computed, err := DigestFile(t.FilePath, algo)
	if err != nil {
		return err
	}

	if !bytes.Equal(computed, expected) {
		logrus.WithFields(logrus.Fields{
			"function":  "Verify",
			"sid":       t.SID,
			"name":      t.Name,
			"algorithm": string(algo),
		}).Warn("Received file failed hash verification")
		return ErrHashMismatch
	}

	t.MarkVerified()

	logrus.WithFields(logrus.Fields{
		"function": "Verify",
		"sid":      t.SID,
		"name":     t.Name,
	}).Info("Received file verified")

	return nil
}

// Recover discards a corrupted receive and builds its replacement: the
// local file is deleted, the old record is dropped from the registry, and
// a fresh record copying the original metadata is registered under a new
// session id with direction forced to receive and offset zero. The
// re-request callback, when set, is handed the fresh record.
func (r *Recovery) Recover(t *Transfer) (*Transfer, error) {
	if err := os.Remove(t.FilePath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing corrupted file: %w", err)
	}

	digest, algo := t.Hash()

	fresh := NewTransfer(uuid.NewString(), t.Name, t.FilePath, t.Size, DirectionReceive)
	fresh.Desc = t.Desc
	fresh.Date = t.Date
	if len(digest) > 0 {
		fresh.SetHash(digest, algo)
	}

	r.manager.Remove(t.Direction, t.SID)
	if err := r.manager.Add(fresh); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Recover",
		"old_sid":  t.SID,
		"new_sid":  fresh.SID,
		"name":     t.Name,
		"size":     t.Size,
	}).Info("Corrupted transfer replaced for full re-download")

	if r.request != nil {
		if err := r.request(fresh); err != nil {
			return fresh, fmt.Errorf("re-requesting file: %w", err)
		}
	}
	return fresh, nil
}

// VerifyAndRecover verifies a completed receive and, on hash mismatch,
// runs the recovery flow. It returns the fresh record when recovery
// happened, nil when the file verified clean.
func (r *Recovery) VerifyAndRecover(t *Transfer) (*Transfer, error) {
	err := r.Verify(t)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, ErrHashMismatch) {
		return nil, err
	}
	return r.Recover(t)
}
