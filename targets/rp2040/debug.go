//go:build rp2040

package main

import (
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"piobroker/config"
	"piobroker/core"
)

// initDebugUART routes the core log to UART0. The TX and RX pins are checked
// out of the broker and kept for as long as the firmware runs.
func initDebugUART(b *core.Broker, cfg config.UART) {
	tx, err := b.CheckoutPin(cfg.TX)
	if err != nil {
		return
	}
	rx, err := b.CheckoutPin(cfg.RX)
	if err != nil {
		b.CheckinPin(tx)
		return
	}

	uart := uartx.UART0
	err = uart.Configure(uartx.UARTConfig{
		BaudRate: cfg.Baud,
		TX:       machine.Pin(tx.Number()),
		RX:       machine.Pin(rx.Number()),
	})
	if err != nil {
		b.CheckinPin(rx)
		b.CheckinPin(tx)
		return
	}

	crlf := []byte("\r\n")
	core.SetDebugWriter(func(line string) {
		uart.Write([]byte(line))
		uart.Write(crlf)
	})
	core.InitAsyncLog(16)
	core.LogInfo("debug uart: " + itoa(int(cfg.Baud)) + " baud, TX=GPIO" +
		itoa(int(cfg.TX)) + " RX=GPIO" + itoa(int(cfg.RX)))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
