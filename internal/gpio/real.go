//go:build linux

package gpio

import (
	"github.com/ecc1/gpio"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/warthog618/go-gpiocdev"
)

// NewCdevBank requests pins from the Linux GPIO character device.
func NewCdevBank(chipName string, pins []PinConfig, log zerolog.Logger) (*Bank, error) {
	if chipName == "" {
		chipName = "gpiochip0"
	}
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, errors.Wrapf(err, "open gpio chip %s", chipName)
	}
	open := func(cfg PinConfig, onEdge func(on bool)) (Line, error) {
		var opts []gpiocdev.LineReqOption
		if cfg.ActiveLow {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		if cfg.Direction == Input {
			opts = append(opts,
				gpiocdev.AsInput,
				gpiocdev.WithPullDown,
				gpiocdev.WithBothEdges,
				gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
					onEdge(evt.Type == gpiocdev.LineEventRisingEdge)
				}))
		} else {
			opts = append(opts, gpiocdev.AsOutput(0))
		}
		l, err := chip.RequestLine(cfg.Line, opts...)
		if err != nil {
			return nil, err
		}
		return &cdevLine{line: l}, nil
	}
	return NewBank(pins, open, true, chip, log)
}

type cdevLine struct {
	line *gpiocdev.Line
}

func (l *cdevLine) Value() (bool, error) {
	v, err := l.line.Value()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (l *cdevLine) SetValue(on bool) error {
	v := 0
	if on {
		v = 1
	}
	return l.line.SetValue(v)
}

// Close returns the line to input with pull-down (Pi boot default) before
// releasing it.
func (l *cdevLine) Close() error {
	var errs []error
	if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, errors.Wrap(err, "reconfigure"))
	}
	if err := l.line.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Errorf("%v", errs)
	}
	return nil
}

// NewSysfsBank requests pins through /sys/class/gpio. Input edges are not
// reported by this backend.
func NewSysfsBank(pins []PinConfig, log zerolog.Logger) (*Bank, error) {
	open := func(cfg PinConfig, onEdge func(on bool)) (Line, error) {
		if cfg.Direction == Input {
			p, err := gpio.Input(cfg.Line, cfg.ActiveLow)
			if err != nil {
				return nil, err
			}
			return &sysfsInput{pin: p}, nil
		}
		p, err := gpio.Output(cfg.Line, cfg.ActiveLow, false)
		if err != nil {
			return nil, err
		}
		return &sysfsOutput{pin: p}, nil
	}
	return NewBank(pins, open, true, nil, log)
}

type sysfsInput struct {
	pin gpio.InputPin
}

func (l *sysfsInput) Value() (bool, error) { return l.pin.Read() }
func (l *sysfsInput) SetValue(bool) error  { return ErrInputPin }
func (l *sysfsInput) Close() error         { return nil }

// sysfsOutput remembers the last written level; output pins are not read back.
type sysfsOutput struct {
	pin   gpio.OutputPin
	value bool
}

func (l *sysfsOutput) Value() (bool, error) { return l.value, nil }

func (l *sysfsOutput) SetValue(on bool) error {
	if err := l.pin.Write(on); err != nil {
		return err
	}
	l.value = on
	return nil
}

func (l *sysfsOutput) Close() error { return nil }
