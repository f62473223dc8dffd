// Package mcu is the host-side client of the device console. It fetches the
// message dictionary and offers typed calls for the broker and PIO
// commands.
package mcu

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"piobroker/errcode"
	"piobroker/hal"
	"piobroker/host/serial"
	"piobroker/protocol"
	"piobroker/tinycompress"
)

// DefaultTimeout bounds every acknowledgement and reply wait.
const DefaultTimeout = time.Second

var ErrNotConnected = errors.New("mcu: not connected")

// Dictionary is the parsed identify data.
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`

	byName   map[string]uint16
	respName map[uint16]string
}

func (d *Dictionary) index() {
	d.byName = make(map[string]uint16, len(d.Commands)+len(d.Responses))
	d.respName = make(map[uint16]string, len(d.Responses))
	for sig, id := range d.Commands {
		d.byName[messageName(sig)] = uint16(id)
	}
	for sig, id := range d.Responses {
		name := messageName(sig)
		d.byName[name] = uint16(id)
		d.respName[uint16(id)] = name
	}
}

func messageName(signature string) string {
	if i := strings.IndexByte(signature, ' '); i >= 0 {
		return signature[:i]
	}
	return signature
}

// ID looks up a command or response by name.
func (d *Dictionary) ID(name string) (uint16, bool) {
	id, ok := d.byName[name]
	return id, ok
}

// ResponseName names a response ID, or returns "".
func (d *Dictionary) ResponseName(id uint16) string { return d.respName[id] }

// MCU is a connection to one device.
type MCU struct {
	transport *protocol.HostTransport
	timeout   time.Duration

	dict    *Dictionary
	rawDict []byte
}

// Connect opens the serial device and starts the transport.
func Connect(cfg *serial.Config) (*MCU, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return New(port), nil
}

// New runs the link over an already open port.
func New(port io.ReadWriteCloser) *MCU {
	return &MCU{transport: protocol.NewHostTransport(port), timeout: DefaultTimeout}
}

// SetTimeout changes the acknowledgement and reply timeout.
func (m *MCU) SetTimeout(d time.Duration) { m.timeout = d }

func (m *MCU) Close() error {
	if m.transport == nil {
		return nil
	}
	err := m.transport.Close()
	m.transport = nil
	return err
}

// Identify fetches and parses the dictionary in chunks of chunkSize bytes.
func (m *MCU) Identify(chunkSize uint8) error {
	if m.transport == nil {
		return ErrNotConnected
	}
	if chunkSize == 0 || int(chunkSize) > protocol.MaxPayload-8 {
		return fmt.Errorf("identify: chunk size %d out of range", chunkSize)
	}

	var buf bytes.Buffer
	for {
		offset := uint32(buf.Len())
		// identify is command 1 and identify_response is 0 on every build.
		err := m.transport.Send(1, func(out protocol.OutputBuffer) {
			protocol.EncodeVLQUint(out, offset)
			protocol.EncodeVLQUint(out, uint32(chunkSize))
		}, m.timeout)
		if err != nil {
			return fmt.Errorf("identify at %d: %w", offset, err)
		}
		msg, err := m.await(0)
		if err != nil {
			return fmt.Errorf("identify at %d: %w", offset, err)
		}
		gotOffset, err := protocol.DecodeVLQUint(&msg.Args)
		if err != nil {
			return err
		}
		if gotOffset != offset {
			return fmt.Errorf("identify: asked offset %d, got %d", offset, gotOffset)
		}
		chunk, err := protocol.DecodeVLQBytes(&msg.Args)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			break
		}
		buf.Write(chunk)
	}

	raw := buf.Bytes()
	if tinycompress.IsZlib(raw) {
		r, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("identify: %w", err)
		}
		if raw, err = io.ReadAll(r); err != nil {
			return fmt.Errorf("identify: inflate: %w", err)
		}
	}

	dict := &Dictionary{}
	if err := json.Unmarshal(raw, dict); err != nil {
		return fmt.Errorf("identify: parse dictionary: %w", err)
	}
	dict.index()
	m.dict = dict
	m.rawDict = raw
	return nil
}

func (m *MCU) Dictionary() *Dictionary { return m.dict }
func (m *MCU) RawDictionary() []byte   { return m.rawDict }

// await returns the next message with the given response ID, skipping
// others.
func (m *MCU) await(id uint16) (protocol.Message, error) {
	deadline := time.Now().Add(m.timeout)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return protocol.Message{}, protocol.ErrTimeout
		}
		msg, err := m.transport.Receive(left)
		if err != nil {
			return msg, err
		}
		if msg.ID == id {
			return msg, nil
		}
	}
}

// Send issues a command by name without waiting for a reply.
func (m *MCU) Send(name string, args func(out protocol.OutputBuffer)) error {
	if m.transport == nil {
		return ErrNotConnected
	}
	if m.dict == nil {
		return fmt.Errorf("%s: dictionary not loaded", name)
	}
	id, ok := m.dict.ID(name)
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	return m.transport.Send(id, args, m.timeout)
}

// Query sends a command and returns the arguments of its response.
func (m *MCU) Query(name, response string, args func(out protocol.OutputBuffer)) ([]byte, error) {
	if err := m.Send(name, args); err != nil {
		return nil, err
	}
	id, ok := m.dict.ID(response)
	if !ok {
		return nil, fmt.Errorf("unknown response %q", response)
	}
	msg, err := m.await(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return msg.Args, nil
}

// Call sends a command that answers with "result" and turns a non-ok code
// into an error matching the errcode value.
func (m *MCU) Call(name string, args func(out protocol.OutputBuffer)) error {
	data, err := m.Query(name, "result", args)
	if err != nil {
		return err
	}
	if _, err := protocol.DecodeVLQUint(&data); err != nil {
		return err
	}
	code, err := protocol.DecodeVLQString(&data)
	if err != nil {
		return err
	}
	if errcode.Code(code) == errcode.OK {
		return nil
	}
	return errcode.Wrap(errcode.Code(code), name, nil)
}

func uintArg(v uint8) func(out protocol.OutputBuffer) {
	return func(out protocol.OutputBuffer) { protocol.EncodeVLQUint(out, uint32(v)) }
}

func (m *MCU) Checkout(block uint8) error  { return m.Call("pio_checkout", uintArg(block)) }
func (m *MCU) Checkin(block uint8) error   { return m.Call("pio_checkin", uintArg(block)) }
func (m *MCU) Start(block uint8) error     { return m.Call("pio_start", uintArg(block)) }
func (m *MCU) Stop(block uint8) error      { return m.Call("pio_stop", uintArg(block)) }
func (m *MCU) Uninstall(block uint8) error { return m.Call("pio_uninstall", uintArg(block)) }

// SetLogLevel changes the device log threshold (0 debug .. 4 off).
func (m *MCU) SetLogLevel(level uint8) error {
	return m.Call("set_log_level", uintArg(level))
}

// DumpEvents writes the device event ring to its debug port.
func (m *MCU) DumpEvents() error { return m.Call("debug_dump", nil) }

// wordsPerFrame keeps pio_program_append inside one frame.
const wordsPerFrame = 24

// Program is what Install loads.
type Program struct {
	Words       []uint16
	Origin      int8
	WrapTarget  uint8
	Wrap        uint8
	SidesetBits uint8
}

// Install stages the program across as many frames as it needs and installs
// it on count slots of block.
func (m *MCU) Install(block uint8, prog Program, count int, pins []hal.PinWindow, clocks []hal.ClockDivisor) error {
	if err := m.Call("pio_program_reset", nil); err != nil {
		return err
	}
	for start := 0; start < len(prog.Words); start += wordsPerFrame {
		end := start + wordsPerFrame
		if end > len(prog.Words) {
			end = len(prog.Words)
		}
		raw := make([]byte, 0, 2*(end-start))
		for _, w := range prog.Words[start:end] {
			raw = append(raw, byte(w), byte(w>>8))
		}
		err := m.Call("pio_program_append", func(out protocol.OutputBuffer) {
			protocol.EncodeVLQBytes(out, raw)
		})
		if err != nil {
			return err
		}
	}

	rawPins := make([]byte, 0, 2*len(pins))
	for _, p := range pins {
		rawPins = append(rawPins, p.Base, p.Count)
	}
	rawClocks := make([]byte, 0, 3*len(clocks))
	for _, c := range clocks {
		rawClocks = append(rawClocks, byte(c.Int), byte(c.Int>>8), c.Frac)
	}
	return m.Call("pio_install", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(block))
		protocol.EncodeVLQInt(out, int32(prog.Origin))
		protocol.EncodeVLQUint(out, uint32(prog.WrapTarget))
		protocol.EncodeVLQUint(out, uint32(prog.Wrap))
		protocol.EncodeVLQUint(out, uint32(prog.SidesetBits))
		protocol.EncodeVLQUint(out, uint32(count))
		protocol.EncodeVLQBytes(out, rawPins)
		protocol.EncodeVLQBytes(out, rawClocks)
	})
}

// Put writes one word to a slot's Tx FIFO. ok is false when the FIFO was
// full; stalled reports whether the program had run dry before the write.
func (m *MCU) Put(block, slot uint8, value uint32) (ok, stalled bool, err error) {
	data, err := m.Query("pio_put", "pio_put_result", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(block))
		protocol.EncodeVLQUint(out, uint32(slot))
		protocol.EncodeVLQUint(out, value)
	})
	if err != nil {
		return false, false, err
	}
	v, err := decodeUints(&data, 2)
	if err != nil {
		return false, false, err
	}
	return v[0] != 0, v[1] != 0, nil
}

// Get reads one word from a slot's Rx FIFO. level is what remains queued.
func (m *MCU) Get(block, slot uint8) (value uint32, ok bool, level uint8, err error) {
	data, err := m.Query("pio_get", "pio_get_result", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(block))
		protocol.EncodeVLQUint(out, uint32(slot))
	})
	if err != nil {
		return 0, false, 0, err
	}
	v, err := decodeUints(&data, 3)
	if err != nil {
		return 0, false, 0, err
	}
	return v[1], v[0] != 0, uint8(v[2]), nil
}

// Uptime returns microseconds since the broker came up.
func (m *MCU) Uptime() (time.Duration, error) {
	data, err := m.Query("get_uptime", "uptime", nil)
	if err != nil {
		return 0, err
	}
	v, err := decodeUints(&data, 2)
	if err != nil {
		return 0, err
	}
	us := uint64(v[0])<<32 | uint64(v[1])
	return time.Duration(us) * time.Microsecond, nil
}

// BlockStatus is one pio_status reply.
type BlockStatus struct {
	Block  uint8
	Held   bool
	InUse  bool
	Slots  []string
	States []uint8
}

// Status is a get_status snapshot.
type Status struct {
	Resources map[string]string // resource name to "available" or "checked_out"
	Blocks    []BlockStatus
}

// Status queries every resource and both PIO blocks.
func (m *MCU) Status() (*Status, error) {
	data, err := m.Query("get_status", "resource_status", nil)
	if err != nil {
		return nil, err
	}
	states, err := protocol.DecodeVLQBytes(&data)
	if err != nil {
		return nil, err
	}
	names := m.enumNames("resource")
	st := &Status{Resources: make(map[string]string, len(states))}
	for i, s := range states {
		name, ok := names[i]
		if !ok {
			name = fmt.Sprintf("resource%d", i)
		}
		st.Resources[name] = "available"
		if s != 0 {
			st.Resources[name] = "checked_out"
		}
	}

	id, _ := m.dict.ID("pio_status")
	smNames := m.enumNames("sm_state")
	for i := 0; i < hal.NumBlocks; i++ {
		msg, err := m.await(id)
		if err != nil {
			return nil, fmt.Errorf("pio_status: %w", err)
		}
		args := msg.Args
		v, err := decodeUints(&args, 3)
		if err != nil {
			return nil, err
		}
		raw, err := protocol.DecodeVLQBytes(&args)
		if err != nil {
			return nil, err
		}
		bs := BlockStatus{Block: uint8(v[0]), Held: v[1] != 0, InUse: v[2] != 0, States: raw}
		for _, s := range raw {
			bs.Slots = append(bs.Slots, smNames[int(s)])
		}
		st.Blocks = append(st.Blocks, bs)
	}
	return st, nil
}

func (m *MCU) enumNames(enum string) map[int]string {
	out := make(map[int]string)
	for name, v := range m.dict.Enumerations[enum] {
		out[v] = name
	}
	return out
}

func decodeUints(data *[]byte, n int) ([]uint32, error) {
	v := make([]uint32, n)
	for i := range v {
		x, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return nil, err
		}
		v[i] = x
	}
	return v, nil
}

// PrintDictionary writes a summary of the dictionary to w.
func (m *MCU) PrintDictionary(w io.Writer) {
	d := m.dict
	if d == nil {
		fmt.Fprintln(w, "No dictionary loaded")
		return
	}
	fmt.Fprintf(w, "Version: %s (%s)\n", d.Version, d.BuildVersions)
	fmt.Fprintln(w, "Config:")
	for _, k := range sortedKeys(d.Config) {
		fmt.Fprintf(w, "  %s = %s\n", k, d.Config[k])
	}
	fmt.Fprintf(w, "Commands (%d):\n", len(d.Commands))
	for _, sig := range sortedKeys(d.Commands) {
		fmt.Fprintf(w, "  [%d] %s\n", d.Commands[sig], sig)
	}
	fmt.Fprintf(w, "Responses (%d):\n", len(d.Responses))
	for _, sig := range sortedKeys(d.Responses) {
		fmt.Fprintf(w, "  [%d] %s\n", d.Responses[sig], sig)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
