//go:build !linux

package gpio

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// NewCdevBank returns an error on non-Linux platforms.
func NewCdevBank(chipName string, pins []PinConfig, log zerolog.Logger) (*Bank, error) {
	return nil, errUnsupported
}

// NewSysfsBank returns an error on non-Linux platforms.
func NewSysfsBank(pins []PinConfig, log zerolog.Logger) (*Bank, error) {
	return nil, errUnsupported
}
