// pio-host is an interactive console for a piobroker device.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"piobroker/config"
	"piobroker/core"
	"piobroker/hal"
	"piobroker/host/mcu"
	"piobroker/host/serial"
)

var (
	device  = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud    = flag.Int("baud", 115200, "Baud rate (ignored for USB CDC)")
	timeout = flag.Duration("timeout", mcu.DefaultTimeout, "Reply timeout")
	board   = flag.String("board", "", "Board description (JSON); defaults to a Pico")
)

// blinkProgram toggles one set pin with the longest delays SET allows.
var blinkProgram = mcu.Program{
	Words:  []uint16{0xff01, 0xff00}, // set pins, 1 [31]; set pins, 0 [31]
	Origin: -1,
}

func main() {
	flag.Parse()

	layout := config.DefaultBoard()
	if *board != "" {
		data, err := os.ReadFile(*board)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if layout, err = config.Load(data); err != nil {
			fmt.Fprintf(os.Stderr, "Error: board %s: %v\n", *board, err)
			os.Exit(1)
		}
	}

	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud
	fmt.Printf("Connecting to %s...\n", *device)
	m, err := mcu.Connect(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()
	m.SetTimeout(*timeout)

	if err := m.Identify(40); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	d := m.Dictionary()
	fmt.Printf("Connected: %s, %s MHz\n", d.Version, mhz(d.Config["CLOCK_FREQ"]))
	fmt.Println("Type 'help' for commands, 'quit' to exit.")

	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			break
		}
		args, err := shlex.Split(in.Text())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if args[0] == "quit" || args[0] == "exit" || args[0] == "q" {
			return
		}
		if err := run(m, layout, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}

func printHelp() {
	fmt.Println(`Commands:
  status                          resources and PIO slot states
  uptime                          device uptime
  dict | raw                      dictionary summary or raw JSON
  checkout <block>                take a PIO block
  checkin <block>                 give it back
  install <block> <count> <pin> <div> <word>...
                                  load a program (hex words) on count slots,
                                  one pin per slot starting at pin
  start|stop|uninstall <block>    lifecycle of every slot on the block
  put <block> <sm> <value>        write one Tx word
  get <block> <sm>                read one Rx word
  blink <block> [pin]             checkout, install and start a blinker
  log <debug|info|warn|error|off> device log level
  events                          dump the device event ring
  quit`)
}

func run(m *mcu.MCU, layout *config.Board, args []string) error {
	n := func(i int) (uint8, error) {
		if i >= len(args) {
			return 0, fmt.Errorf("%s: missing argument %d", args[0], i)
		}
		v, err := strconv.ParseUint(args[i], 0, 8)
		return uint8(v), err
	}

	switch args[0] {
	case "help", "?":
		printHelp()

	case "dict":
		m.PrintDictionary(os.Stdout)

	case "raw":
		fmt.Println(string(m.RawDictionary()))

	case "uptime":
		up, err := m.Uptime()
		if err != nil {
			return err
		}
		fmt.Printf("Running for %v\n", up.Truncate(time.Millisecond))

	case "status":
		st, err := m.Status()
		if err != nil {
			return err
		}
		var out []string
		for name, state := range st.Resources {
			if state != "available" {
				out = append(out, name)
			}
		}
		fmt.Printf("Checked out: %s\n", strings.Join(out, " "))
		for _, b := range st.Blocks {
			fmt.Printf("pio%d held=%v in_use=%v slots=%v\n", b.Block, b.Held, b.InUse, b.Slots)
		}

	case "checkout", "checkin", "start", "stop", "uninstall":
		block, err := n(1)
		if err != nil {
			return err
		}
		call := map[string]func(uint8) error{
			"checkout":  m.Checkout,
			"checkin":   m.Checkin,
			"start":     m.Start,
			"stop":      m.Stop,
			"uninstall": m.Uninstall,
		}[args[0]]
		if err := call(block); err != nil {
			return err
		}
		fmt.Println("ok")

	case "install":
		if len(args) < 6 {
			return fmt.Errorf("usage: install <block> <count> <pin> <div> <word>...")
		}
		block, err := n(1)
		if err != nil {
			return err
		}
		count, err := n(2)
		if err != nil {
			return err
		}
		pin, err := n(3)
		if err != nil {
			return err
		}
		div, err := strconv.ParseFloat(args[4], 64)
		if err != nil {
			return err
		}
		prog := mcu.Program{Origin: -1}
		for _, w := range args[5:] {
			v, err := strconv.ParseUint(w, 16, 16)
			if err != nil {
				return fmt.Errorf("word %q: %w", w, err)
			}
			prog.Words = append(prog.Words, uint16(v))
		}
		pins, clocks := perSlot(int(count), pin, divisor(div))
		if err := m.Install(block, prog, int(count), pins, clocks); err != nil {
			return err
		}
		fmt.Println("ok")

	case "put":
		block, err := n(1)
		if err != nil {
			return err
		}
		sm, err := n(2)
		if err != nil {
			return err
		}
		if len(args) < 4 {
			return fmt.Errorf("usage: put <block> <sm> <value>")
		}
		v, err := strconv.ParseUint(args[3], 0, 32)
		if err != nil {
			return err
		}
		ok, stalled, err := m.Put(block, sm, uint32(v))
		if err != nil {
			return err
		}
		fmt.Printf("written=%v stalled=%v\n", ok, stalled)

	case "get":
		block, err := n(1)
		if err != nil {
			return err
		}
		sm, err := n(2)
		if err != nil {
			return err
		}
		v, ok, level, err := m.Get(block, sm)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("empty")
			return nil
		}
		fmt.Printf("%#08x (%d left)\n", v, level)

	case "blink":
		block, err := n(1)
		if err != nil {
			return err
		}
		pin := layout.StatusLED
		if len(args) > 2 {
			if pin, err = n(2); err != nil {
				return err
			}
		}
		if err := m.Checkout(block); err != nil {
			return err
		}
		pins, clocks := perSlot(1, pin, hal.ClockDivisor{Int: 0xffff})
		if err := m.Install(block, blinkProgram, 1, pins, clocks); err != nil {
			return err
		}
		if err := m.Start(block); err != nil {
			return err
		}
		fmt.Printf("blinking gpio%d on pio%d\n", pin, block)

	case "log":
		if len(args) < 2 {
			return fmt.Errorf("usage: log <level>")
		}
		l, ok := core.ParseLevel(args[1])
		if !ok {
			return fmt.Errorf("unknown level %q", args[1])
		}
		return m.SetLogLevel(uint8(l))

	case "events":
		return m.DumpEvents()

	default:
		return fmt.Errorf("unknown command %q (try 'help')", args[0])
	}
	return nil
}

// perSlot gives each of count slots one consecutive pin and the same clock.
func perSlot(count int, base uint8, div hal.ClockDivisor) ([]hal.PinWindow, []hal.ClockDivisor) {
	pins := make([]hal.PinWindow, count)
	clocks := make([]hal.ClockDivisor, count)
	for i := range pins {
		pins[i] = hal.PinWindow{Base: base + uint8(i), Count: 1}
		clocks[i] = div
	}
	return pins, clocks
}

// divisor converts a float clock divider to 16.8 fixed point.
func divisor(div float64) hal.ClockDivisor {
	if div < 1 {
		div = 1
	}
	fixed := uint32(div*256 + 0.5)
	if fixed > 0xffffff {
		fixed = 0xffffff
	}
	return hal.ClockDivisor{Int: uint16(fixed >> 8), Frac: uint8(fixed)}
}

func mhz(hz string) string {
	v, err := strconv.ParseFloat(hz, 64)
	if err != nil {
		return "?"
	}
	return strconv.FormatFloat(v/1e6, 'f', -1, 64)
}
