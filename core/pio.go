package core

import (
	"errors"

	"piobroker/errcode"
	"piobroker/hal"
)

// PIO is a brokered PIO block and the lifecycle controller for its four
// state machines.
type PIO struct {
	id  BlockID
	hw  hal.PIOBlock
	sms [hal.SlotsPerBlock]*StateMachine
}

func newPIO(id BlockID, hw hal.PIOBlock) *PIO {
	p := &PIO{id: id, hw: hw}
	for i := range p.sms {
		slot := uint8(i)
		p.sms[i] = newStateMachine(ChannelID{Block: id, Slot: slot}, hw.StateMachine(slot))
	}
	return p
}

func (p *PIO) ResourceID() ResourceID { return PIOResource(p.id) }

// Index is the block number.
func (p *PIO) Index() BlockID { return p.id }

// InUse reports whether any slot has a program installed.
func (p *PIO) InUse() bool {
	for _, sm := range p.sms {
		if sm.State() != SMUninitialized {
			return true
		}
	}
	return false
}

// SlotState reports the lifecycle state of slot i.
func (p *PIO) SlotState(i uint8) SMState {
	if int(i) >= len(p.sms) {
		return SMUninitialized
	}
	return p.sms[i].State()
}

// StateMachine returns slot i, or nil when i is out of range.
func (p *PIO) StateMachine(i uint8) *StateMachine {
	if int(i) >= len(p.sms) {
		return nil
	}
	return p.sms[i]
}

// Install loads prog once and binds it to the first numSlots free slots,
// the i-th of them using pins[i] and clocks[i]. All bound slots are left
// Stopped and one Channel per slot is returned in slot order. Arguments are
// checked before any hardware is touched; if binding a later slot fails the
// slots already bound by this call are uninstalled again.
func (p *PIO) Install(prog Program, numSlots int, pins []hal.PinWindow, clocks []hal.ClockDivisor) ([]Channel, error) {
	slots, err := p.checkInstall(prog, numSlots, pins, clocks)
	if err != nil {
		return nil, err
	}

	offset, err := p.hw.AddProgram(prog.Instructions, prog.Origin)
	if err != nil {
		return nil, errcode.Wrap(ErrBadStateMachineProgramming, "install", err)
	}
	img := newInstalledProgram(p.id, offset, prog)

	channels, err := p.bindAll(img, slots, pins, clocks)
	if err != nil {
		return nil, errcode.Wrap(ErrBadStateMachineProgramming, "install", err)
	}

	RecordEvent(EvtInstall, uint8(p.id), uint32(offset)<<8|uint32(numSlots))
	LogInfo("pio" + utoa(uint32(p.id)) + ": installed " + itoa(prog.Len()) +
		" words at " + utoa(uint32(offset)) + " on " + itoa(numSlots) + " slots")
	return channels, nil
}

// checkInstall validates the request and picks the slots to bind.
func (p *PIO) checkInstall(prog Program, numSlots int, pins []hal.PinWindow, clocks []hal.ClockDivisor) ([]uint8, error) {
	if numSlots > hal.SlotsPerBlock {
		return nil, ErrTooManyStateMachinesRequested
	}
	if numSlots < 1 || len(pins) < numSlots || len(clocks) < numSlots {
		return nil, ErrBadStateMachineProgramming
	}
	if err := prog.Validate(); err != nil {
		return nil, err
	}
	for i := 0; i < numSlots; i++ {
		if !validWindow(pins[i]) || !validDivisor(clocks[i]) {
			return nil, ErrBadStateMachineProgramming
		}
	}
	slots := make([]uint8, 0, numSlots)
	for i, sm := range p.sms {
		if len(slots) < numSlots && sm.State() == SMUninitialized {
			slots = append(slots, uint8(i))
		}
	}
	if len(slots) < numSlots {
		return nil, ErrTooManyStateMachinesRequested
	}
	return slots, nil
}

// validWindow accepts 1..5 consecutive pins, the SET pin limit.
func validWindow(w hal.PinWindow) bool {
	return w.Count >= 1 && w.Count <= 5 && int(w.Base)+int(w.Count) <= hal.NumPins
}

// validDivisor rejects dividers below 1. An all-zero divider means 65536.
func validDivisor(d hal.ClockDivisor) bool {
	return d.Int != 0 || d.Frac == 0
}

// bindAll binds img to slots in order. On failure the slots bound so far are
// released again and img no longer occupies instruction memory.
func (p *PIO) bindAll(img *InstalledProgram, slots []uint8, pins []hal.PinWindow, clocks []hal.ClockDivisor) ([]Channel, error) {
	channels := make([]Channel, 0, len(slots))
	for i, slot := range slots {
		ch, err := p.sms[slot].bind(img, pins[i], clocks[i])
		if err != nil {
			if len(channels) == 0 {
				p.hw.ClearProgram(img.offset, img.length)
			} else {
				p.rollback(channels)
			}
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

func (p *PIO) rollback(channels []Channel) {
	for _, ch := range channels {
		if img, err := p.sms[ch.ID().Slot].uninstall(ch); err == nil {
			img.release(p.hw)
		}
	}
}

// Uninstall takes back channels from Install. Running slots are stopped
// first. Instruction memory is freed once every slot sharing the program is
// gone. Each channel is processed even if an earlier one fails.
func (p *PIO) Uninstall(channels []Channel) error {
	var errs []error
	for _, ch := range channels {
		id := ch.ID()
		if id.Block != p.id || int(id.Slot) >= len(p.sms) {
			errs = append(errs, errcode.Wrap(ErrNoProgramToUninstall, "uninstall "+id.String(), nil))
			continue
		}
		img, err := p.sms[id.Slot].uninstall(ch)
		if err != nil {
			errs = append(errs, errcode.Wrap(errcode.Of(err), "uninstall "+id.String(), nil))
			continue
		}
		freed := false
		critical(func() {
			freed = img.release(p.hw)
		})
		RecordEvent(EvtUninstall, uint8(p.id), uint32(id.Slot))
		if freed {
			LogInfo("pio" + utoa(uint32(p.id)) + ": freed " + utoa(uint32(img.length)) +
				" words at " + utoa(uint32(img.offset)))
		}
	}
	return errors.Join(errs...)
}

// Start enables every Stopped slot. Slots already Running are reported as
// ErrFailedToStart; the others still start. Empty slots are skipped.
func (p *PIO) Start() error {
	var errs []error
	for _, sm := range p.sms {
		if sm.State() == SMUninitialized {
			continue
		}
		if err := sm.start(); err != nil {
			errs = append(errs, errcode.Wrap(errcode.Of(err), "start "+sm.id.String(), nil))
		}
	}
	return errors.Join(errs...)
}

// Stop disables every Running slot, reporting slots that were not running.
func (p *PIO) Stop() error {
	var errs []error
	for _, sm := range p.sms {
		if sm.State() == SMUninitialized {
			continue
		}
		if err := sm.stop(); err != nil {
			errs = append(errs, errcode.Wrap(errcode.Of(err), "stop "+sm.id.String(), nil))
		}
	}
	return errors.Join(errs...)
}
