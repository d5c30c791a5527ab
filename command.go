package doorpanel

import (
	"fmt"

	"go.tigermatt.uk/doorpanel/zusi"
)

// Keyboard commands of the simulator's "doors" assignment. Each Up command
// is the matching Down command plus one.
const (
	CommandToggleDown uint16 = 59
	CommandLeftDown   uint16 = 61
	CommandRightDown  uint16 = 63
	CommandCloseDown  uint16 = 65
	CommandCloseUp           = CommandCloseDown + 1
)

// Assignments are the keyboard assignment ids the cab definition wires to
// the panel's lamps, switches and command channels.
type Assignments struct {
	DoorLamps     [4]uint16 `yaml:"door_lamps"`
	GreenLoopLamp uint16    `yaml:"green_loop_lamp"`
	PramLamp      uint16    `yaml:"pram_lamp"`

	SideLampLeft  uint16 `yaml:"side_lamp_left"`
	SideLampRight uint16 `yaml:"side_lamp_right"`
	SideLampBoth  uint16 `yaml:"side_lamp_both"`

	ReleaseSwitch   uint16 `yaml:"release_switch"`
	AutoCloseSwitch uint16 `yaml:"auto_close_switch"`

	// Internal is only ever pressed by the translator itself.
	Internal uint16 `yaml:"internal"`
	// External is the simulator's native door key assignment.
	External uint16 `yaml:"external"`
}

func DefaultAssignments() Assignments {
	return Assignments{
		DoorLamps:       [4]uint16{22, 23, 24, 25},
		GreenLoopLamp:   26,
		PramLamp:        27,
		SideLampLeft:    31,
		SideLampRight:   32,
		SideLampBoth:    33,
		ReleaseSwitch:   34,
		AutoCloseSwitch: 35,
		Internal:        36,
		External:        10,
	}
}

// Panel describes the emulated panel.
type Panel struct {
	Assignments Assignments `yaml:"assignments"`
	Switches    SwitchNames `yaml:"switches"`
}

func DefaultPanel() Panel {
	return Panel{
		Assignments: DefaultAssignments(),
		Switches:    DefaultSwitchNames(),
	}
}

// Node and attribute ids of the INPUT command.
const (
	idInputKey      uint16 = 0x0001
	attrAssignment  uint16 = 0x0001
	attrCommand     uint16 = 0x0002
	attrAction      uint16 = 0x0003
	attrSwitchNotch uint16 = 0x0004
	actionAbsolute  uint16 = 7
)

// Keypress builds an input that presses command on assignment.
func Keypress(assignment, command uint16) *zusi.Node {
	return zusi.NewNode(idInputKey).With(
		zusi.Uint16Attr(attrAssignment, assignment),
		zusi.Uint16Attr(attrCommand, command),
	)
}

// SwitchNotch builds an input that moves the switch on assignment to an
// absolute notch.
func SwitchNotch(assignment uint16, notch uint16) *zusi.Node {
	return zusi.NewNode(idInputKey).With(
		zusi.Uint16Attr(attrAssignment, assignment),
		zusi.Uint16Attr(attrAction, actionAbsolute),
		zusi.Uint16Attr(attrSwitchNotch, notch),
	)
}

// InputBatch wraps inputs into one message.
func InputBatch(inputs ...*zusi.Node) *zusi.Node {
	return zusi.NewNode(zusi.IDClientApp, zusi.NewNode(zusi.IDInput, inputs...))
}

// lamp builds a SwitchNotch that turns a lamp on or off.
func lamp(assignment uint16, on bool) *zusi.Node {
	if on {
		return SwitchNotch(assignment, 1)
	}
	return SwitchNotch(assignment, 0)
}

// DescribeInput renders an input built by Keypress or SwitchNotch.
func DescribeInput(n *zusi.Node) string {
	assignment, _ := n.Uint16(attrAssignment)
	if notch, ok := n.Uint16(attrSwitchNotch); ok {
		return fmt.Sprintf("switch %d -> notch %d", assignment, notch)
	}
	command, _ := n.Uint16(attrCommand)
	return fmt.Sprintf("key %d/%d", assignment, command)
}
