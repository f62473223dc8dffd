package core

import (
	"piobroker/errcode"
	"piobroker/hal"
	"piobroker/protocol"
)

// Responder is the outbound half of the transport.
type Responder interface {
	SendCommand(cmdID uint16, args func(out protocol.OutputBuffer))
}

// Console exposes the broker and the PIO controller to the host over the
// framed link. It holds the blocks the host has checked out and the
// channels of every program the host installed.
type Console struct {
	broker   *Broker
	timer    *Timer
	registry *CommandRegistry
	dict     *Dictionary
	out      Responder

	held     [hal.NumBlocks]*PIO
	channels [hal.NumBlocks][hal.SlotsPerBlock]Channel
	staged   []uint16

	idIdentify, idResult, idUptime uint16
	idResources, idPIOStatus       uint16
	idPutResult, idGetResult       uint16
}

// Version is reported in the dictionary.
const Version = "piobroker-0.1.0"

// NewConsole registers the console messages. timer supplies uptime and the
// system clock frequency.
func NewConsole(b *Broker, timer *Timer) *Console {
	c := &Console{
		broker:   b,
		timer:    timer,
		registry: NewCommandRegistry(),
		staged:   make([]uint16, 0, MaxProgramLength),
	}
	r := c.registry

	// identify_response and identify keep IDs 0 and 1 so a host can
	// bootstrap before it has the dictionary.
	c.idIdentify = r.RegisterResponse("identify_response", "offset=%u data=%*s")
	r.Register("identify", "offset=%u count=%c", c.handleIdentify)

	r.Register("get_uptime", "", c.handleGetUptime)
	r.Register("get_status", "", c.handleGetStatus)
	r.Register("pio_checkout", "block=%c", c.handleCheckout)
	r.Register("pio_checkin", "block=%c", c.handleCheckin)
	r.Register("pio_program_reset", "", c.handleProgramReset)
	r.Register("pio_program_append", "words=%*s", c.handleProgramAppend)
	r.Register("pio_install", "block=%c origin=%i wrap_target=%c wrap=%c sideset=%c count=%c pins=%*s clocks=%*s", c.handleInstall)
	r.Register("pio_start", "block=%c", c.handleStart)
	r.Register("pio_stop", "block=%c", c.handleStop)
	r.Register("pio_uninstall", "block=%c", c.handleUninstall)
	r.Register("pio_put", "block=%c sm=%c value=%u", c.handlePut)
	r.Register("pio_get", "block=%c sm=%c", c.handleGet)
	r.Register("set_log_level", "level=%c", c.handleSetLogLevel)
	r.Register("debug_dump", "", c.handleDebugDump)

	c.idResult = r.RegisterResponse("result", "cmd=%c code=%s")
	c.idUptime = r.RegisterResponse("uptime", "high=%u low=%u")
	c.idResources = r.RegisterResponse("resource_status", "states=%*s")
	c.idPIOStatus = r.RegisterResponse("pio_status", "block=%c held=%c in_use=%c states=%*s")
	c.idPutResult = r.RegisterResponse("pio_put_result", "ok=%c stalled=%c")
	c.idGetResult = r.RegisterResponse("pio_get_result", "ok=%c value=%u level=%c")

	c.dict = NewDictionary(r, Version, "go-tinygo")
	c.dict.AddConstant("MCU", "rp2040")
	c.dict.AddConstant("CLOCK_FREQ", timer.SysClockHz())
	c.dict.AddConstant("PIO_BLOCKS", hal.NumBlocks)
	c.dict.AddConstant("SM_PER_BLOCK", hal.SlotsPerBlock)
	c.dict.AddConstant("GPIO_COUNT", hal.NumPins)
	c.dict.AddConstant("MAX_PROGRAM_LEN", MaxProgramLength)
	c.dict.AddConstant("FIFO_DEPTH", hal.FIFODepth)
	c.dict.AddEnumeration("resource", resourceNames())
	c.dict.AddEnumeration("sm_state", []string{
		SMUninitialized.String(), SMStopped.String(), SMRunning.String(),
	})
	return c
}

func resourceNames() []string {
	names := make([]string, NumResources)
	for i := range names {
		names[i] = ResourceID(i).String()
	}
	return names
}

func (c *Console) Registry() *CommandRegistry { return c.registry }
func (c *Console) Dictionary() *Dictionary    { return c.dict }

// SetResponder attaches the transport replies are sent on.
func (c *Console) SetResponder(r Responder) { c.out = r }

// Dispatch has the protocol.CommandHandler signature.
func (c *Console) Dispatch(cmdID uint16, args *[]byte) error {
	return c.registry.Dispatch(cmdID, args)
}

// Reset drops a partially staged program. It runs when the host restarts
// its sequence.
func (c *Console) Reset() {
	c.staged = c.staged[:0]
}

// Held returns the block the host has checked out, or nil.
func (c *Console) Held(block BlockID) *PIO {
	if block >= hal.NumBlocks {
		return nil
	}
	return c.held[block]
}

// Channel returns the channel the host installed on block/slot.
func (c *Console) Channel(block BlockID, slot uint8) (Channel, bool) {
	if block >= hal.NumBlocks || slot >= hal.SlotsPerBlock {
		return Channel{}, false
	}
	ch := c.channels[block][slot]
	return ch, ch.Attached()
}

func (c *Console) send(id uint16, args func(out protocol.OutputBuffer)) {
	if c.out != nil {
		c.out.SendCommand(id, args)
	}
}

// reply answers a state-changing command with its outcome.
func (c *Console) reply(cmd string, err error) {
	entry, _ := c.registry.LookupName(cmd)
	code := errcode.Of(err)
	if err != nil {
		LogWarn(cmd + ": " + err.Error())
	}
	c.send(c.idResult, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(entry.ID))
		protocol.EncodeVLQString(out, string(code))
	})
}

// argReader decodes command arguments in order. err is the first decode
// failure, which drops the rest of the frame; bad is the first value out of
// range, which the handler reports as a result code.
type argReader struct {
	data *[]byte
	err  error
	bad  error
}

func (a *argReader) u32() uint32 {
	if a.err != nil {
		return 0
	}
	v, err := protocol.DecodeVLQUint(a.data)
	a.err = err
	return v
}

func (a *argReader) u8() uint8 {
	v := a.u32()
	if v > 0xff {
		if a.bad == nil {
			a.bad = errcode.InvalidParams
		}
		return 0
	}
	return uint8(v)
}

func (a *argReader) i32() int32 {
	if a.err != nil {
		return 0
	}
	v, err := protocol.DecodeVLQInt(a.data)
	a.err = err
	return v
}

func (a *argReader) bytes() []byte {
	if a.err != nil {
		return nil
	}
	b, err := protocol.DecodeVLQBytes(a.data)
	a.err = err
	return b
}

func (a *argReader) block() (BlockID, error) {
	b := a.u32()
	if a.err != nil {
		return 0, a.err
	}
	if b >= hal.NumBlocks {
		return 0, ErrUnknownResource
	}
	return BlockID(b), nil
}

func (c *Console) handleIdentify(data *[]byte) error {
	a := argReader{data: data}
	offset := a.u32()
	count := a.u8()
	if a.err != nil {
		return a.err
	}
	if a.bad != nil {
		return a.bad
	}
	chunk := c.dict.Chunk(offset, count)
	c.send(c.idIdentify, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, offset)
		protocol.EncodeVLQBytes(out, chunk)
	})
	return nil
}

func (c *Console) handleGetUptime(*[]byte) error {
	up := c.timer.Uptime()
	c.send(c.idUptime, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(up>>32))
		protocol.EncodeVLQUint(out, uint32(up))
	})
	return nil
}

func (c *Console) handleGetStatus(*[]byte) error {
	status := c.broker.Status()
	states := make([]byte, len(status))
	for i, s := range status {
		states[i] = byte(s)
	}
	c.send(c.idResources, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQBytes(out, states)
	})

	for b := BlockID(0); b < hal.NumBlocks; b++ {
		slots, _ := c.broker.PIOStatus(b)
		var raw [hal.SlotsPerBlock]byte
		inUse := false
		for i, s := range slots {
			raw[i] = byte(s)
			inUse = inUse || s != SMUninitialized
		}
		held := c.held[b] != nil
		c.send(c.idPIOStatus, func(out protocol.OutputBuffer) {
			protocol.EncodeVLQUint(out, uint32(b))
			protocol.EncodeVLQUint(out, boolWord(held))
			protocol.EncodeVLQUint(out, boolWord(inUse))
			protocol.EncodeVLQBytes(out, raw[:])
		})
	}
	return nil
}

func (c *Console) handleCheckout(data *[]byte) error {
	a := argReader{data: data}
	b, err := a.block()
	if a.err != nil {
		return a.err
	}
	if err == nil {
		var p *PIO
		if p, err = c.broker.CheckoutPIO(b); err == nil {
			c.held[b] = p
		}
	}
	c.reply("pio_checkout", err)
	return nil
}

func (c *Console) handleCheckin(data *[]byte) error {
	a := argReader{data: data}
	b, err := a.block()
	if a.err != nil {
		return a.err
	}
	if err == nil {
		err = c.withBlock(b, func(p *PIO) error {
			if err := c.broker.CheckinPIO(p); err != nil {
				return err
			}
			c.held[b] = nil
			return nil
		})
	}
	c.reply("pio_checkin", err)
	return nil
}

func (c *Console) withBlock(b BlockID, fn func(p *PIO) error) error {
	p := c.held[b]
	if p == nil {
		return errcode.NotCheckedOut
	}
	return fn(p)
}

func (c *Console) handleProgramReset(*[]byte) error {
	c.staged = c.staged[:0]
	c.reply("pio_program_reset", nil)
	return nil
}

func (c *Console) handleProgramAppend(data *[]byte) error {
	a := argReader{data: data}
	words := a.bytes()
	if a.err != nil {
		return a.err
	}
	var err error
	switch {
	case len(words)%2 != 0:
		err = errcode.InvalidParams
	case len(c.staged)+len(words)/2 > MaxProgramLength:
		err = ErrProgramTooLarge
	default:
		for i := 0; i < len(words); i += 2 {
			c.staged = append(c.staged, uint16(words[i])|uint16(words[i+1])<<8)
		}
	}
	c.reply("pio_program_append", err)
	return nil
}

func (c *Console) handleInstall(data *[]byte) error {
	a := argReader{data: data}
	b, err := a.block()
	origin := a.i32()
	wrapTarget := a.u8()
	wrap := a.u8()
	sideset := a.u8()
	count := a.u32()
	rawPins := a.bytes()
	rawClocks := a.bytes()
	if a.err != nil {
		return a.err
	}

	if err == nil {
		err = a.bad
	}
	if err == nil && count > hal.SlotsPerBlock {
		err = ErrTooManyStateMachinesRequested
	}
	if err == nil {
		err = c.withBlock(b, func(p *PIO) error {
			prog := Program{
				Instructions: append([]uint16(nil), c.staged...),
				Origin:       int8(origin),
				WrapTarget:   wrapTarget,
				Wrap:         wrap,
				SidesetBits:  sideset,
			}
			if origin < -1 || origin >= MaxProgramLength {
				return ErrBadStateMachineProgramming
			}
			channels, err := p.Install(prog, int(count), decodePins(rawPins), decodeClocks(rawClocks))
			if err != nil {
				return err
			}
			for _, ch := range channels {
				c.channels[b][ch.ID().Slot] = ch
			}
			c.staged = c.staged[:0]
			return nil
		})
	}
	c.reply("pio_install", err)
	return nil
}

// decodePins reads (base, count) byte pairs.
func decodePins(raw []byte) []hal.PinWindow {
	pins := make([]hal.PinWindow, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		pins = append(pins, hal.PinWindow{Base: raw[i], Count: raw[i+1]})
	}
	return pins
}

// decodeClocks reads (int lo, int hi, frac) byte triples.
func decodeClocks(raw []byte) []hal.ClockDivisor {
	clocks := make([]hal.ClockDivisor, 0, len(raw)/3)
	for i := 0; i+2 < len(raw); i += 3 {
		clocks = append(clocks, hal.ClockDivisor{
			Int:  uint16(raw[i]) | uint16(raw[i+1])<<8,
			Frac: raw[i+2],
		})
	}
	return clocks
}

func (c *Console) handleStart(data *[]byte) error {
	return c.blockCommand(data, "pio_start", (*PIO).Start)
}

func (c *Console) handleStop(data *[]byte) error {
	return c.blockCommand(data, "pio_stop", (*PIO).Stop)
}

func (c *Console) handleUninstall(data *[]byte) error {
	return c.blockCommand(data, "pio_uninstall", func(p *PIO) error {
		b := p.Index()
		var installed []Channel
		for _, ch := range c.channels[b] {
			if ch.Attached() {
				installed = append(installed, ch)
			}
		}
		if len(installed) == 0 {
			return ErrNoProgramToUninstall
		}
		err := p.Uninstall(installed)
		for i := range c.channels[b] {
			if p.SlotState(uint8(i)) == SMUninitialized {
				c.channels[b][i] = Channel{}
			}
		}
		return err
	})
}

func (c *Console) blockCommand(data *[]byte, name string, fn func(p *PIO) error) error {
	a := argReader{data: data}
	b, err := a.block()
	if a.err != nil {
		return a.err
	}
	if err == nil {
		err = c.withBlock(b, fn)
	}
	c.reply(name, err)
	return nil
}

// heldChannel returns the channel on block/slot of a block the console
// still holds.
func (c *Console) heldChannel(b BlockID, slot uint8) (Channel, error) {
	if c.held[b] == nil {
		return Channel{}, errcode.NotCheckedOut
	}
	ch, ok := c.Channel(b, slot)
	if !ok {
		return Channel{}, errcode.InvalidParams
	}
	return ch, nil
}

// channelArgs decodes block=%c sm=%c and resolves the channel.
func (c *Console) channelArgs(a *argReader) (Channel, error) {
	b, err := a.block()
	slot := a.u8()
	if a.err != nil || err != nil {
		return Channel{}, err
	}
	if a.bad != nil {
		return Channel{}, a.bad
	}
	return c.heldChannel(b, slot)
}

// handlePut writes one word and reports, then clears, the stall flag.
func (c *Console) handlePut(data *[]byte) error {
	a := argReader{data: data}
	ch, err := c.channelArgs(&a)
	value := a.u32()
	if a.err != nil {
		return a.err
	}
	if err != nil {
		c.reply("pio_put", err)
		return nil
	}
	written := ch.Tx.Write(value)
	stalled := ch.Tx.HasStalled()
	if stalled {
		ch.Tx.ClearStalledFlag()
	}
	c.send(c.idPutResult, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, boolWord(written))
		protocol.EncodeVLQUint(out, boolWord(stalled))
	})
	return nil
}

func (c *Console) handleGet(data *[]byte) error {
	a := argReader{data: data}
	ch, err := c.channelArgs(&a)
	if a.err != nil {
		return a.err
	}
	if err != nil {
		c.reply("pio_get", err)
		return nil
	}
	value, read := ch.Rx.Read()
	level := ch.Rx.Level()
	c.send(c.idGetResult, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, boolWord(read))
		protocol.EncodeVLQUint(out, value)
		protocol.EncodeVLQUint(out, uint32(level))
	})
	return nil
}

func (c *Console) handleSetLogLevel(data *[]byte) error {
	a := argReader{data: data}
	l := Level(a.u8())
	if a.err != nil {
		return a.err
	}
	err := a.bad
	if err != nil || l > LevelOff {
		err = errcode.InvalidParams
	} else {
		SetLogLevel(l)
	}
	c.reply("set_log_level", err)
	return nil
}

func (c *Console) handleDebugDump(*[]byte) error {
	DumpEventRing()
	c.reply("debug_dump", nil)
	return nil
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
