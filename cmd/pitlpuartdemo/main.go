// Command pitlpuartdemo wires up a system.Board and drives it through
// a short canned script: arm one PIT channel, write a line of text to
// an LPUART, and print the register-level activity that results.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"s32k358emu/chardev"
	"s32k358emu/system"
)

func main() {
	pitHz := flag.Uint("pit-hz", 1_000_000, "PIT peripheral clock frequency in Hz")
	uartHz := flag.Uint("uart-hz", 80_000_000, "LPUART peripheral clock frequency in Hz")
	debug := flag.Bool("debug", false, "enable verbose device logging")
	flag.Parse()

	logger := log.New(os.Stdout, "pitlpuartdemo: ", log.LstdFlags)
	if !*debug {
		logger = log.New(io.Discard, "pitlpuartdemo: ", log.LstdFlags)
	}

	backend := chardev.NewLoopback()
	board, err := system.NewBoard(system.Config{
		PITClockHz:    uint32(*pitHz),
		LPUARTClockHz: uint32(*uartHz),
		LPUARTCount:   1,
		Backends:      []chardev.Backend{backend},
		Logger:        logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "pitlpuartdemo: %v\n", err)
		os.Exit(1)
	}

	const (
		pitMCR   = 0x000
		pitLDVAL = 0x100
		pitTCTRL = 0x108
		pitTFLG  = 0x10C

		uartCTRL = 0x18
		uartDATA = 0x1C
	)

	if err := board.Bus.WriteMMIO(system.PITBase+pitMCR, 4, 0); err != nil {
		log.Fatalf("enabling PIT module: %v", err)
	}
	if err := board.Bus.WriteMMIO(system.PITBase+pitLDVAL, 4, 1000); err != nil {
		log.Fatalf("writing PIT channel 0 LDVAL: %v", err)
	}
	if err := board.Bus.WriteMMIO(system.PITBase+pitTCTRL, 4, 0b011); err != nil {
		log.Fatalf("arming PIT channel 0: %v", err)
	}

	if err := board.Bus.WriteMMIO(system.LPUARTBase+uartCTRL, 4, 1<<19); err != nil {
		log.Fatalf("enabling LPUART0 transmitter: %v", err)
	}
	for _, b := range []byte("hello from s32k358emu\n") {
		if err := board.Bus.WriteMMIO(system.LPUARTBase+uartDATA, 4, uint64(b)); err != nil {
			log.Fatalf("writing LPUART0 DATA: %v", err)
		}
	}

	fmt.Printf("LPUART0 transmitted: %s", backend.Out)

	board.Advance(1000 * time.Microsecond)
	tflg, err := board.Bus.ReadMMIO(system.PITBase+pitTFLG, 4)
	if err != nil {
		log.Fatalf("reading PIT channel 0 TFLG: %v", err)
	}
	fmt.Printf("PIT channel 0 TFLG after advancing virtual time: 0x%x\n", tflg)

	if board.PIC.HasPendingInterrupts() {
		vector := board.PIC.GetInterruptVector()
		fmt.Printf("PIC delivered interrupt vector 0x%x\n", vector)
	} else {
		fmt.Println("PIC has no pending interrupt (channel 0's IRQ line is masked by default)")
	}
}
