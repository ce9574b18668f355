//go:build !windows

package narration

import (
	"context"
	"errors"
)

var errSAPIUnsupported = errors.New("sapi requires windows")

// SAPIDriver is unavailable outside Windows; Open always fails.
type SAPIDriver struct{}

// NewSAPIDriver returns a driver that cannot be opened on this platform.
func NewSAPIDriver() *SAPIDriver {
	return &SAPIDriver{}
}

// Open reports that SAPI is not present.
func (*SAPIDriver) Open() error { return errSAPIUnsupported }

// Voices reports that SAPI is not present.
func (*SAPIDriver) Voices() ([]string, error) { return nil, errSAPIUnsupported }

// Speak reports that SAPI is not present.
func (*SAPIDriver) Speak(context.Context, int, int, string) error { return errSAPIUnsupported }

// Close does nothing.
func (*SAPIDriver) Close() error { return nil }
