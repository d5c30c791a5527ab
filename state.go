package doorpanel

// Side is a door side selection. Bit 0 is the left side, bit 1 the right.
type Side uint8

const (
	SideNone  Side = 0
	SideLeft  Side = 1
	SideRight Side = 2
	SideBoth  Side = 3
)

func (s Side) Left() bool  { return s&SideLeft != 0 }
func (s Side) Right() bool { return s&SideRight != 0 }

func (s Side) String() string {
	switch s {
	case SideNone:
		return "none"
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	case SideBoth:
		return "both"
	default:
		return "invalid"
	}
}

// RotateLeft advances the panel selector for a press of the left door key:
// right -> left -> both -> right.
func RotateLeft(s Side) Side {
	switch s {
	case SideRight:
		return SideLeft
	case SideLeft:
		return SideBoth
	case SideBoth:
		return SideRight
	default:
		return s
	}
}

// RotateRight advances the panel selector for a press of the right door key:
// left -> right -> both -> left.
func RotateRight(s Side) Side {
	switch s {
	case SideLeft:
		return SideRight
	case SideRight:
		return SideBoth
	case SideBoth:
		return SideLeft
	default:
		return s
	}
}

// Notches of the release and auto/all-close toggle switches.
const (
	NotchRelease int16 = 0
	NotchNeutral int16 = 1
	NotchLock    int16 = 2

	NotchAllClosed int16 = 0
)

// State is everything the translator remembers between messages.
type State struct {
	// HardwareSide mirrors the simulator's own selector. It is only ever
	// copied from telemetry, never computed.
	HardwareSide Side

	// DoorStatus is max(left, right) of the reported door levels; 0 is closed.
	DoorStatus uint8

	// ReleaseNotch is the position of the release toggle switch.
	ReleaseNotch int16

	// PanelSide is the emulated panel's selector, always left, right or both.
	PanelSide Side

	// ManualOverride is set once the panel selector was chosen explicitly (or
	// reset after departure) and cleared when the doors are fully closed.
	ManualOverride bool
}

func InitialState() State {
	return State{
		HardwareSide: SideNone,
		ReleaseNotch: NotchNeutral,
		PanelSide:    SideRight,
	}
}

// WantHardwareSide is the simulator selector position the panel asks for:
// nothing while the release switch is neutral, the panel side otherwise.
func (s State) WantHardwareSide() Side {
	if s.ReleaseNotch == NotchNeutral {
		return SideNone
	}
	return s.PanelSide
}
