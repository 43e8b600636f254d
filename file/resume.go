package file

import (
	"os"

	"github.com/sirupsen/logrus"
)

// ResumeDecision is the outcome of probing the destination path before a
// receive starts.
type ResumeDecision uint8

const (
	// ResumeFresh means no file exists; start from byte zero.
	ResumeFresh ResumeDecision = iota
	// ResumeComplete means the existing file already covers the full
	// size; the caller decides whether to treat the transfer as finished
	// or overwrite.
	ResumeComplete
	// ResumeRanged means a partial file exists and the transport supports
	// ranged resumption; receive from the returned offset.
	ResumeRanged
	// ResumeOverwrite means a partial file exists but the transport
	// cannot resume from an offset; a full overwrite is required.
	ResumeOverwrite
)

// String returns the display name of the decision.
func (d ResumeDecision) String() string {
	switch d {
	case ResumeFresh:
		return "fresh"
	case ResumeComplete:
		return "complete"
	case ResumeRanged:
		return "ranged"
	case ResumeOverwrite:
		return "overwrite"
	default:
		return "unknown"
	}
}

// ProbeResume inspects the destination path before a receive begins.
// ranged is the transport's capability flag for offset-based resumption.
// The returned offset is non-zero only for ResumeRanged. File-system
// errors other than absence are returned as-is.
func ProbeResume(path string, expectedSize uint64, ranged bool) (ResumeDecision, uint64, error) {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ResumeFresh, 0, nil
	}
	if err != nil {
		return ResumeFresh, 0, err
	}

	existing := uint64(fi.Size())
	decision := ResumeOverwrite
	offset := uint64(0)

	switch {
	case existing >= expectedSize:
		decision = ResumeComplete
	case ranged:
		decision = ResumeRanged
		offset = existing
	}

	logrus.WithFields(logrus.Fields{
		"function":      "ProbeResume",
		"path":          path,
		"existing_size": existing,
		"expected_size": expectedSize,
		"ranged":        ranged,
		"decision":      decision.String(),
	}).Debug("Probed destination for resume")

	return decision, offset, nil
}
