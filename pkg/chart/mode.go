package chart

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMode is returned for any value outside the Mode enumeration.
var ErrUnknownMode = errors.New("unknown analysis mode")

// Mode selects what a run extracts from the report document.
type Mode int

const (
	ModeRisk Mode = iota
	ModeOverpressure
	ModeImpulse
	ModeThermal
)

// Modes lists every supported mode in menu order.
var Modes = []Mode{ModeRisk, ModeOverpressure, ModeImpulse, ModeThermal}

// ParseMode accepts either the display name ("Thermal Exceedance") or a
// short key ("thermal").
func ParseMode(s string) (Mode, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.TrimSuffix(key, " exceedance")
	switch key {
	case "risk":
		return ModeRisk, nil
	case "overpressure":
		return ModeOverpressure, nil
	case "impulse":
		return ModeImpulse, nil
	case "thermal":
		return ModeThermal, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

func (m Mode) String() string {
	switch m {
	case ModeRisk:
		return "Risk"
	case ModeOverpressure:
		return "Overpressure Exceedance"
	case ModeImpulse:
		return "Impulse Exceedance"
	case ModeThermal:
		return "Thermal Exceedance"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Key is the short lowercase identifier used in flags, URLs and the database.
func (m Mode) Key() string {
	switch m {
	case ModeRisk:
		return "risk"
	case ModeOverpressure:
		return "overpressure"
	case ModeImpulse:
		return "impulse"
	case ModeThermal:
		return "thermal"
	}
	return ""
}

// Unit returns the physical unit of the exceedance values. Risk has none.
func (m Mode) Unit() (string, error) {
	switch m {
	case ModeRisk:
		return "", nil
	case ModeOverpressure:
		return "psi", nil
	case ModeImpulse:
		return "psi-ms", nil
	case ModeThermal:
		return "kW/m2", nil
	}
	return "", fmt.Errorf("%w: %d", ErrUnknownMode, int(m))
}

// IsExceedance reports whether the mode digitizes chart images.
func (m Mode) IsExceedance() bool {
	switch m {
	case ModeOverpressure, ModeImpulse, ModeThermal:
		return true
	}
	return false
}

// Valid reports whether m is one of the declared modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeRisk, ModeOverpressure, ModeImpulse, ModeThermal:
		return true
	}
	return false
}
