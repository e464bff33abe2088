package vfs

import (
	"github.com/wippyai/wasi-harness/errors"
)

const (
	// DefaultMaxFileSize caps a single file at 256 MiB.
	DefaultMaxFileSize int64 = 256 << 20
	// DefaultMaxGrowth caps the bytes all files together may grow by
	// between resets at 1 GiB.
	DefaultMaxGrowth int64 = 1 << 30
)

var ErrTooLarge = errors.New(errors.PhaseFS, errors.KindTooLarge).Detail("file too large").Build()

// Quota bounds how far files may grow. Growth is charged when a file gets
// longer and is never refunded by shrinking or removal; Reset starts a new
// allowance. A Quota is not safe for concurrent use.
type Quota struct {
	maxFileSize int64
	maxGrowth   int64
	grown       int64
}

// NewQuota creates a quota. Non-positive limits take the defaults.
func NewQuota(maxFileSize, maxGrowth int64) *Quota {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if maxGrowth <= 0 {
		maxGrowth = DefaultMaxGrowth
	}
	return &Quota{maxFileSize: maxFileSize, maxGrowth: maxGrowth}
}

// MaxFileSize returns the largest size a file may reach.
func (q *Quota) MaxFileSize() int64 { return q.maxFileSize }

// Grown returns the bytes charged since the last reset.
func (q *Quota) Grown() int64 { return q.grown }

// Reserve charges the growth needed for f to reach end bytes. It fails
// without charging anything when end exceeds the file limit or the
// remaining allowance.
func (q *Quota) Reserve(f *File, end int64) error {
	if end < 0 || end > q.maxFileSize {
		return ErrTooLarge
	}
	delta := end - f.Size()
	if delta <= 0 {
		return nil
	}
	if delta > q.maxGrowth-q.grown {
		return ErrTooLarge
	}
	q.grown += delta
	return nil
}

// Reset clears the charged growth.
func (q *Quota) Reset() {
	q.grown = 0
}
