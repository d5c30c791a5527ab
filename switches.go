package doorpanel

import (
	"errors"
	"fmt"
)

// Switch identifies one of the panel's named combined switches.
type Switch int

const (
	SwitchUnknown Switch = iota
	SwitchDoorRelease
	SwitchAutoClose
	SwitchPreselectLeft
	SwitchPreselectRight
	SwitchPreselectBoth
)

func (s Switch) String() string {
	switch s {
	case SwitchDoorRelease:
		return "door-release"
	case SwitchAutoClose:
		return "auto/all-close"
	case SwitchPreselectLeft:
		return "side-preselect-left"
	case SwitchPreselectRight:
		return "side-preselect-right"
	case SwitchPreselectBoth:
		return "side-preselect-both"
	default:
		return "unknown"
	}
}

// SwitchNames are the names the cab definition gives the panel's switches.
type SwitchNames struct {
	DoorRelease    string `yaml:"door_release"`
	AutoClose      string `yaml:"auto_close"`
	PreselectLeft  string `yaml:"preselect_left"`
	PreselectRight string `yaml:"preselect_right"`
	PreselectBoth  string `yaml:"preselect_both"`
}

func DefaultSwitchNames() SwitchNames {
	return SwitchNames{
		DoorRelease:    "Tuerfreigabe",
		AutoClose:      "Tueren Automatik/Alle zu",
		PreselectLeft:  "Tuerseitenvorwahl links",
		PreselectRight: "Tuerseitenvorwahl rechts",
		PreselectBoth:  "Tuerseitenvorwahl links+rechts",
	}
}

func (n SwitchNames) table() map[Switch]string {
	return map[Switch]string{
		SwitchDoorRelease:    n.DoorRelease,
		SwitchAutoClose:      n.AutoClose,
		SwitchPreselectLeft:  n.PreselectLeft,
		SwitchPreselectRight: n.PreselectRight,
		SwitchPreselectBoth:  n.PreselectBoth,
	}
}

// Lookup maps a reported switch name onto its variant. Names the panel does
// not know map to SwitchUnknown.
func (n SwitchNames) Lookup(name string) Switch {
	switch name {
	case "":
		return SwitchUnknown
	case n.DoorRelease:
		return SwitchDoorRelease
	case n.AutoClose:
		return SwitchAutoClose
	case n.PreselectLeft:
		return SwitchPreselectLeft
	case n.PreselectRight:
		return SwitchPreselectRight
	case n.PreselectBoth:
		return SwitchPreselectBoth
	default:
		return SwitchUnknown
	}
}

var ErrSwitchNames = errors.New("invalid switch names")

// Validate rejects empty or duplicate names, which would make Lookup ambiguous.
func (n SwitchNames) Validate() error {
	names := n.table()
	seen := make(map[string]Switch)
	for _, s := range []Switch{SwitchDoorRelease, SwitchAutoClose, SwitchPreselectLeft, SwitchPreselectRight, SwitchPreselectBoth} {
		name := names[s]
		if name == "" {
			return fmt.Errorf("%w: %s has no name", ErrSwitchNames, s)
		}
		if other, dup := seen[name]; dup {
			return fmt.Errorf("%w: %q used for both %s and %s", ErrSwitchNames, name, other, s)
		}
		seen[name] = s
	}

	return nil
}
