package doorpanel

import (
	"context"
	"fmt"
	"log/slog"

	"go.tigermatt.uk/doorpanel/zusi"
)

// Attribute and node ids inside cab data and operation messages.
const (
	attrDoorsLeft  uint16 = 0x0002
	attrDoorsRight uint16 = 0x0003
	attrSelector   uint16 = 0x0005

	idKeyEvent        uint16 = 0x0001
	attrKeyAssignment uint16 = 0x0001
	attrKeyCommand    uint16 = 0x0002

	idSwitchEvent        uint16 = 0x0002
	attrEventSwitchName  uint16 = 0x0001
	attrEventSwitchNotch uint16 = 0x0003
)

// DepartureSpeed is the speed in m/s above which the train counts as
// departed and the panel selector returns to its default.
const DepartureSpeed = 5.0 / 3.6

// Sender delivers a message to the simulator.
type Sender interface {
	Send(*zusi.Node) error
}

// Translator maps simulator telemetry and key events onto the panel's
// semantics and computes the inputs that keep the simulator in line.
type Translator struct {
	Panel   Panel
	Metrics *Metrics
	Logger  *slog.Logger

	// Trace, if set, sees every batch once it was sent.
	Trace func(*zusi.Node)
}

func NewTranslator(p Panel) *Translator {
	return &Translator{Panel: p}
}

func (t *Translator) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

// Apply computes the state after msg and the inputs to send for it. prev is
// nil before the first message; every derived output then counts as changed
// so lamps and selector are pushed once on start-up.
func (t *Translator) Apply(prev *State, msg *zusi.Node) (State, []*zusi.Node) {
	s := InitialState()
	if prev != nil {
		s = *prev
	}

	var out []*zusi.Node
	if msg.ID == zusi.IDClientApp {
		for _, c := range msg.Children {
			switch c.ID {
			case zusi.IDCabData:
				t.applyCabData(&s, c)
			case zusi.IDOperation:
				out = t.applyOperation(&s, c, out)
			}
		}
	}

	out = t.react(prev, &s, out)
	return s, out
}

func (t *Translator) applyCabData(s *State, n *zusi.Node) {
	for _, doors := range n.ChildrenWithID(CabDataDoorStatus) {
		left, okLeft := doors.Uint8(attrDoorsLeft)
		right, okRight := doors.Uint8(attrDoorsRight)
		if okLeft && okRight {
			s.DoorStatus = max(left, right)
		}

		if side, ok := doors.Uint8(attrSelector); ok {
			s.HardwareSide = Side(side) & SideBoth
		}
	}

	if v, ok := n.Float32(CabDataSpeed); ok && v > DepartureSpeed && !s.ManualOverride {
		s.ManualOverride = true
		s.PanelSide = SideRight
		t.logger().Debug("departed, panel selector reset", "speed", v)
	}
}

func (t *Translator) applyOperation(s *State, n *zusi.Node, out []*zusi.Node) []*zusi.Node {
	a := t.Panel.Assignments

	for _, ev := range n.Children {
		switch ev.ID {
		case idKeyEvent:
			assignment, ok := ev.Uint16(attrKeyAssignment)
			if !ok {
				continue
			}
			command, ok := ev.Uint16(attrKeyCommand)
			if !ok {
				continue
			}

			switch assignment {
			case a.Internal:
				out = t.internalKey(command, out)
			case a.External:
				out = t.externalKey(s, command, out)
			}

		case idSwitchEvent:
			name, ok := ev.Text(attrEventSwitchName)
			if !ok {
				continue
			}
			notch, ok := ev.Int16(attrEventSwitchNotch)
			if !ok {
				continue
			}

			out = t.namedSwitch(s, t.Panel.Switches.Lookup(name), notch, out)
		}
	}

	return out
}

// internalKey releases keys the translator pressed itself, once the
// simulator has reported the press.
func (t *Translator) internalKey(command uint16, out []*zusi.Node) []*zusi.Node {
	switch command {
	case CommandLeftDown, CommandRightDown, CommandCloseDown:
		return append(out, Keypress(t.Panel.Assignments.Internal, command+1))
	}
	return out
}

// externalKey reinterprets the simulator's native door keys as operations
// on the panel's switches.
func (t *Translator) externalKey(s *State, command uint16, out []*zusi.Node) []*zusi.Node {
	a := t.Panel.Assignments

	switch command {
	case CommandToggleDown:
		notch := NotchRelease
		if s.ReleaseNotch == NotchRelease {
			notch = NotchNeutral
		}
		out = append(out, SwitchNotch(a.ReleaseSwitch, uint16(notch)))
	case CommandLeftDown:
		s.PanelSide = RotateLeft(s.PanelSide)
	case CommandRightDown:
		s.PanelSide = RotateRight(s.PanelSide)
	case CommandCloseDown:
		out = append(out, SwitchNotch(a.AutoCloseSwitch, uint16(NotchAllClosed)))
	case CommandCloseUp:
		out = append(out, SwitchNotch(a.AutoCloseSwitch, uint16(NotchNeutral)))
	}

	return out
}

func (t *Translator) namedSwitch(s *State, sw Switch, notch int16, out []*zusi.Node) []*zusi.Node {
	switch sw {
	case SwitchDoorRelease:
		s.ReleaseNotch = notch
	case SwitchAutoClose:
		if notch == NotchAllClosed {
			out = append(out, Keypress(t.Panel.Assignments.Internal, CommandCloseDown))
		}
	case SwitchPreselectLeft:
		s.preselect(SideLeft, notch)
	case SwitchPreselectRight:
		s.preselect(SideRight, notch)
	case SwitchPreselectBoth:
		s.preselect(SideBoth, notch)
	case SwitchUnknown:
	}

	return out
}

func (s *State) preselect(side Side, notch int16) {
	s.ManualOverride = true
	if notch == 1 {
		s.PanelSide = side
	}
}

// react derives lamp and selector inputs from the fields that changed
// since prev.
func (t *Translator) react(prev *State, s *State, out []*zusi.Node) []*zusi.Node {
	a := t.Panel.Assignments

	if prev == nil || prev.DoorStatus != s.DoorStatus {
		open := s.DoorStatus != 0
		for _, id := range a.DoorLamps {
			out = append(out, lamp(id, open))
		}
		out = append(out, lamp(a.PramLamp, open), lamp(a.GreenLoopLamp, !open))

		if !open {
			s.ManualOverride = false
		}
	}

	sideChanged := prev == nil || prev.PanelSide != s.PanelSide
	if sideChanged {
		out = append(out,
			lamp(a.SideLampLeft, s.PanelSide == SideLeft),
			lamp(a.SideLampRight, s.PanelSide == SideRight),
			lamp(a.SideLampBoth, s.PanelSide == SideBoth),
		)
	}

	if sideChanged || prev.ReleaseNotch != s.ReleaseNotch {
		// The simulator's selector cannot be set to an absolute position,
		// only toggled per side.
		want := s.WantHardwareSide()
		t.logger().Debug("side selector", "is", s.HardwareSide, "want", want)

		if s.HardwareSide.Left() != want.Left() {
			out = append(out, Keypress(a.Internal, CommandLeftDown))
		}
		if s.HardwareSide.Right() != want.Right() {
			out = append(out, Keypress(a.Internal, CommandRightDown))
		}
	}

	return out
}

// Run applies every message from in, in order, and sends the resulting
// inputs as one batch per message. It returns nil once in is closed and
// drained.
func (t *Translator) Run(ctx context.Context, in <-chan *zusi.Node, out Sender) error {
	var state *State

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil
			}

			next, inputs := t.Apply(state, msg)
			state = &next
			t.Metrics.observe(next)

			if len(inputs) == 0 {
				continue
			}

			batch := InputBatch(inputs...)
			if err := out.Send(batch); err != nil {
				return fmt.Errorf("sending %d inputs: %w", len(inputs), err)
			}
			if t.Trace != nil {
				t.Trace(batch)
			}
			t.Metrics.sent(inputs)
		}
	}
}
