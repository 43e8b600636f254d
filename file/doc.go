// Package file tracks the lifecycle, progress and integrity of Jingle
// file transfers.
//
// A Transfer is the mutable record of one transfer: its metadata (name,
// size, expected digest, resume offset), its byte-progress samples and its
// lifecycle flags. The consumer-facing Status is derived from the flags by
// priority, never stored, so redelivered progress callbacks are harmless.
//
// # Progress and estimation
//
// The bytestream layer feeds absolute byte counts into UpdateProgress,
// potentially many times per second. The record keeps a bounded window of
// the most recent samples (limits.SampleWindow); Estimate derives the
// current speed from a moving rate across that window, falls back to the
// average-since-start rate when fewer than two samples are retained, and
// reports zero instead of dividing by a zero rate:
//
//	transfer.OnProgress(func(transferred uint64) {
//	    eta, speed := transfer.Estimate()
//	    fmt.Printf("%s: %.0f B/s, done in %.0fs\n", transfer.Name, speed, eta)
//	})
//
// Pausing discards the retained samples so the estimator cold-starts on
// resume; a paused interval would otherwise read as a zero-throughput
// stretch and poison the moving rate.
//
// # Registry
//
// A Manager keys records by (direction, session id) and enforces at most
// one active record per key. NewSend stats the local file and rejects
// empty ones; NewReceive registers an approved incoming offer.
//
// # Integrity and resume
//
// When a receive finishes and the sender attached a digest, the transfer
// reports StatusVerifying until Recovery.Verify compares the file's digest
// against the expected one. A mismatch discards the corrupted file and
// restarts the transfer from scratch under a fresh session id; partial
// resume is never attempted for a corrupted file. ProbeResume inspects the
// destination before a receive starts and classifies it as fresh, already
// complete, resumable from an offset, or requiring a full overwrite,
// depending on the transport's ranged-resumption capability.
package file
