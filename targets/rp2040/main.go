//go:build rp2040

package main

import (
	"image/color"
	"machine"
	"time"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"piobroker/config"
	"piobroker/core"
	"piobroker/hal"
	"piobroker/ledstrip"
)

func main() {
	// Clear watchdog state left over from the previous boot.
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})

	board := config.DefaultBoard()
	initUSB()

	broker := core.Init(peripherals(board))
	core.SetResetHandler(watchdogReset)
	core.SetLogLevel(board.Level())
	initDebugUART(broker, board.DebugUART)
	if hz := machine.CPUFrequency(); hz != board.SysClockHz {
		core.LogWarn("sys clock " + itoa(int(hz)) + " Hz, board expects " + itoa(int(board.SysClockHz)))
	}

	timer, err := broker.CheckoutTimer()
	if err != nil {
		core.Fatal("timer: " + err.Error())
	}

	console := core.NewConsole(broker, timer)
	link := core.NewLink(broker, console)
	go usbReaderLoop(broker.USBInterrupt())

	led, err := broker.CheckoutPin(board.StatusLED)
	if err != nil {
		core.Fatal("status led: " + err.Error())
	}
	led.ConfigureOutput(false)

	strip := startStrip(broker, timer, board.Strip)

	var sched core.Scheduler
	sched.Every(timer.Micros(), 1000000, func(uint64) {
		core.LogInfo("Running for " + itoa(int(timer.UptimeSeconds())) + " seconds")
		led.Toggle()
	})
	if strip != nil {
		var hue uint8
		sched.Every(timer.Micros(), 50000, func(uint64) {
			hue += 2
			for i := 0; i < board.Strip.Pixels; i++ {
				strip.SetPixel(int16(i), 0, dim(ledstrip.Wheel(hue+uint8(i*32))))
			}
			if err := strip.Display(); err != nil {
				core.LogWarn(err.Error())
			}
		})
	}

	for {
		link.Step()
		sched.Dispatch(timer.Micros())
		time.Sleep(50 * time.Microsecond)
	}
}

// peripherals collects every brokered peripheral of the chip. The clock
// frequency is the one the runtime actually configured.
func peripherals(b *config.Board) core.Peripherals {
	p := core.Peripherals{
		ClockHz:       machine.CPUFrequency(),
		Clock:         hwClock{},
		USB:           usbPort{},
		USBBufferSize: b.USBBufferSize,
	}
	for i := range p.Pins {
		p.Pins[i] = gpio(i)
	}
	p.PIO[0] = newPIOBlock(rp2pio.PIO0)
	p.PIO[1] = newPIOBlock(rp2pio.PIO1)
	return p
}

// startStrip installs the WS2812 program on one slot of the configured
// block and keeps both the block and the data pin checked out. It returns
// nil when the strip cannot be started; the console keeps running.
func startStrip(b *core.Broker, timer *core.Timer, cfg config.Strip) *ledstrip.Strip {
	if cfg.Disabled {
		return nil
	}
	pin, err := b.CheckoutPin(cfg.Pin)
	if err != nil {
		core.LogWarn("strip pin: " + err.Error())
		return nil
	}
	block, err := b.CheckoutPIO(core.BlockID(cfg.Block))
	if err != nil {
		core.LogWarn("strip pio: " + err.Error())
		b.CheckinPin(pin)
		return nil
	}
	div, err := timer.DivisorFor(ws2812BitHz)
	if err != nil {
		core.LogWarn("strip clock: " + err.Error())
		b.CheckinPIO(block)
		b.CheckinPin(pin)
		return nil
	}

	channels, err := block.Install(ws2812Program(), 1, []hal.PinWindow{pin.Window(1)}, []hal.ClockDivisor{div})
	if err == nil {
		err = block.Start()
	}
	if err != nil {
		core.LogWarn("strip install: " + err.Error())
		block.Uninstall(channels)
		b.CheckinPIO(block)
		b.CheckinPin(pin)
		return nil
	}
	core.LogInfo("strip: " + itoa(cfg.Pixels) + " pixels on " + channels[0].ID().String())

	strip := ledstrip.New(channels[0].Tx, cfg.Pixels)
	strip.SetRetries(ledstrip.DefaultRetries, func() { timer.DelayUs(10) })
	return strip
}

// dim keeps the demo at an eighth of full brightness.
func dim(c color.RGBA) color.RGBA {
	return color.RGBA{R: c.R >> 3, G: c.G >> 3, B: c.B >> 3, A: c.A}
}

// watchdogReset reboots through the watchdog, which also re-enumerates USB.
func watchdogReset() {
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
	machine.Watchdog.Start()
	for {
		time.Sleep(time.Millisecond)
	}
}
