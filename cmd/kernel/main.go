// Command kernel is the boot entry point: it stands up physical memory,
// the kernel's own translation table, the scheduler's first thread, and
// the process manager, then spawns the two demonstration processes and
// waits for the system to go idle. The boot ordering is fixed: memory
// online, then the kernel table installed, then the first thread runs.
package main

import (
	"time"

	"defs"
	"irq"
	"klog"
	"mem"
	"procmgr"
	"sched"
	"ttbl"
)

// bootPages is the simulated board's RAM size in pages (32MB), large
// enough for the process manager plus a handful of demonstration
// processes without tuning.
const bootPages = 8192

func main() {
	klog.Printf("booting: reserving %d pages of simulated RAM", bootPages)
	mem.Phys_init(bootPages)

	kernelTT, err := ttbl.MkTranslationTable(0)
	if err != defs.OK {
		panic("kernel: cannot allocate kernel translation table: " + err.String())
	}
	ttbl.SetKernelTable(kernelTT)
	klog.Printf("booting: kernel translation table installed")

	timer := &tickingTimer{}
	irq.SetController(noController{})
	irq.SetTimer(timer)
	irq.Init()
	irq.AttachKernelHandler(defs.IRQ_TIMER, sched.SetNeedResched)
	klog.Printf("booting: interrupt dispatch ready (no physical controller wired)")

	pm := procmgr.Bootstrap()
	klog.Printf("booting: process manager running as pid %d", pm.Pid)

	timer.StartPeriodic(1000)
	klog.Printf("booting: periodic timer armed at 1000ms")

	spawnDemo(pm)

	sched.BeginTransaction()
	sched.RunNextThread()
	sched.EndTransaction()

	pm.Thread.WaitFinished()
	klog.Printf("halted: process manager exited")
}

// noController satisfies irq.Controller without driving real hardware;
// it exists so Dispatcher_t has something to mask and unmask against
// on a build with no physical PL190 wired.
type noController struct{}

func (noController) Init()                {}
func (noController) Mask(irqNumber int)   {}
func (noController) Unmask(irqNumber int) {}
func (noController) SupportedCount() int  { return 32 }
func (noController) Raised() int          { return -1 }

// tickingTimer is the simulated SP804 stand-in: StartPeriodic spawns a
// goroutine driving irq.Dispatch(defs.IRQ_TIMER) on a real wall-clock
// tick, the closest analogue available to a hardware timer interrupt.
// The kernel handler AttachKernelHandler installs on that line is what
// actually sets need_resched; this type only supplies the "interrupt"
// arriving on schedule.
type tickingTimer struct {
	stop chan struct{}
}

func (t *tickingTimer) Init()             { t.stop = make(chan struct{}) }
func (t *tickingTimer) ClearInterrupt()   {}
func (t *tickingTimer) StartPeriodic(periodMs int) {
	ticker := time.NewTicker(time.Duration(periodMs) * time.Millisecond)
	go func() {
		for {
			select {
			case <-ticker.C:
				irq.Dispatch(defs.IRQ_TIMER)
			case <-t.stop:
				ticker.Stop()
				return
			}
		}
	}()
}
