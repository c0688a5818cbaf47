// Command cc wires a hypervisor-backed virtual machine to the
// time-synchronization core: a pacer.Pacer gates vCPU execution
// against an external co-simulator reached over the POSIX transport,
// and a chardev.Binding front-ends the machine's 16550 UART so guest
// console I/O obeys the same io_sync and deferred-open policy.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/tinyrange/ccsync/internal/chardev"
	"github.com/tinyrange/ccsync/internal/chipset"
	"github.com/tinyrange/ccsync/internal/devices/amd64/serial"
	"github.com/tinyrange/ccsync/internal/hv"
	"github.com/tinyrange/ccsync/internal/hv/factory"
	"github.com/tinyrange/ccsync/internal/pacer"
)

// vmControl adapts a hv.VirtualMachine to pacer.EmulatorControl. Tick
// enable/disable has no host-clock analogue to toggle at this layer,
// so it only logs the change at debug level; KickAllVCPUs queues a
// no-op VirtualCPUCall on vCPU 0 (the only vCPU this program creates)
// and ignores its error; it does not interrupt a vCPU that is running
// guest code.
type vmControl struct {
	vm hv.VirtualMachine
}

func (c *vmControl) EnableTicks()  { slog.Debug("cc: ticks enabled") }
func (c *vmControl) DisableTicks() { slog.Debug("cc: ticks disabled") }
func (c *vmControl) KickAllVCPUs() {
	_ = c.vm.VirtualCPUCall(0, func(hv.VirtualCPU) error { return nil })
}

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	memSize := fs.Uint64("mem-size", 64<<20, "guest memory size in bytes")
	simPPID := fs.Int("sim-ppid", 0, "parent pid of the external co-simulator (0 disables pacing)")
	ioSync := fs.Bool("io-sync", false, "enable synchronous chardev I/O")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	hypervisor, err := factory.Open()
	if err != nil {
		slog.Error("cc: open hypervisor", "err", err)
		os.Exit(1)
	}
	defer hypervisor.Close()

	clock := pacer.NewClock()
	chrCtx := &chardev.Context{IOSync: *ioSync, Clock: clock}

	cfg := hv.SimpleVMConfig{
		NumCPUs: 1,
		MemSize: *memSize,
		CreateVM: func(vm hv.VirtualMachine) error {
			console := chardev.NewLoopback()
			binding := chardev.NewBinding(chrCtx)
			if err := binding.Init(console); err != nil {
				return fmt.Errorf("cc: bind console front-end: %w", err)
			}

			uart := serial.NewSerial16550(0x3f8, chipset.LineInterruptDetached(), nil, nil)
			uart.BindFrontEnd(binding)
			if err := vm.AddDevice(uart); err != nil {
				return fmt.Errorf("cc: add serial device: %w", err)
			}

			if *simPPID != 0 {
				attacher, ok := vm.(hv.PacerAttacher)
				if !ok {
					return fmt.Errorf("cc: hypervisor backend does not support pacing")
				}
				transport, err := pacer.NewPosixTransport(*simPPID)
				if err != nil {
					return fmt.Errorf("cc: create pacer transport: %w", err)
				}
				p := pacer.New(transport, &vmControl{vm: vm}, clock)
				attacher.SetPacer(p)
				p.Setup()
			}

			return nil
		},
	}

	vm, err := hypervisor.NewVirtualMachine(cfg)
	if err != nil {
		slog.Error("cc: create virtual machine", "err", err)
		os.Exit(1)
	}
	defer vm.Close()

	slog.Info("cc: virtual machine ready", "mem_size", *memSize, "paced", *simPPID != 0)
}
