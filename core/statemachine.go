package core

import "piobroker/hal"

// SMState is the lifecycle state of one state machine slot.
type SMState uint8

const (
	SMUninitialized SMState = iota
	SMStopped
	SMRunning
)

func (s SMState) String() string {
	switch s {
	case SMStopped:
		return "stopped"
	case SMRunning:
		return "running"
	}
	return "uninitialized"
}

// StateMachine is the controller's view of one slot. All transitions run
// inside a critical section so a FIFO user in interrupt context never sees a
// half-configured machine.
type StateMachine struct {
	id      ChannelID
	hw      hal.StateMachine
	state   SMState
	program *InstalledProgram

	// gen changes on every bind and uninstall so a channel from an earlier
	// install no longer matches the slot.
	gen uint32
}

func newStateMachine(id ChannelID, hw hal.StateMachine) *StateMachine {
	return &StateMachine{id: id, hw: hw}
}

func (sm *StateMachine) ID() ChannelID { return sm.id }

func (sm *StateMachine) State() SMState {
	var s SMState
	critical(func() {
		s = sm.state
	})
	return s
}

// Program is the installed program, or nil while uninitialized.
func (sm *StateMachine) Program() *InstalledProgram { return sm.program }

// bind attaches an installed program to the slot and hands out its channel.
func (sm *StateMachine) bind(img *InstalledProgram, pins hal.PinWindow, clock hal.ClockDivisor) (Channel, error) {
	var (
		ch  Channel
		err error
	)
	critical(func() {
		if sm.state != SMUninitialized {
			err = ErrProgrammingFailed
			return
		}
		sm.hw.Reset()
		sm.hw.Configure(img.config(pins, clock))
		sm.program = img.share()
		sm.state = SMStopped
		sm.gen++
		ch = newChannel(sm.id, sm.gen, sm.hw)
	})
	return ch, err
}

func (sm *StateMachine) start() error {
	var err error
	critical(func() {
		if sm.state != SMStopped {
			err = ErrFailedToStart
			return
		}
		sm.hw.SetEnabled(true)
		sm.state = SMRunning
	})
	if err == nil {
		RecordEvent(EvtStart, sm.eventID(), 0)
	}
	return err
}

func (sm *StateMachine) stop() error {
	var err error
	critical(func() {
		if sm.state != SMRunning {
			err = ErrFailedToStop
			return
		}
		sm.hw.SetEnabled(false)
		sm.state = SMStopped
	})
	if err == nil {
		RecordEvent(EvtStop, sm.eventID(), 0)
	}
	return err
}

// uninstall takes the channel back, stopping the machine first if it is
// running, and returns the program reference the caller must release. Only
// the channel handed out by the current bind is accepted.
func (sm *StateMachine) uninstall(ch Channel) (*InstalledProgram, error) {
	var (
		img *InstalledProgram
		err error
	)
	critical(func() {
		if sm.state == SMUninitialized || ch.ID() != sm.id || !ch.Attached() || ch.Generation() != sm.gen {
			err = ErrNoProgramToUninstall
			return
		}
		if sm.state == SMRunning {
			sm.hw.SetEnabled(false)
			sm.state = SMStopped
		}
		sm.hw.Reset()
		img = sm.program
		sm.program = nil
		sm.state = SMUninitialized
		sm.gen++
	})
	return img, err
}

func (sm *StateMachine) eventID() uint8 {
	return uint8(sm.id.Block)<<4 | sm.id.Slot
}
