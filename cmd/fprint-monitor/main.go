// Command fprint-monitor is a host/device diagnostics CLI: it reports
// host resource pressure, lists the drivers this build knows how to
// route to, and can run a scripted enroll/identify/delete cycle against
// the in-process moctest driver as a smoke test of the device/sdcp
// stack (internal/image is not exercised). -usb vid:pid opens/resets/closes a real USB
// sensor through internal/usbtransport underneath that same scripted
// cycle, and -trace iface attaches internal/devicetrace's XDP latency
// probe and prints a handful of completions. Grounded on teacher's
// cmd/monitor/main.go (flag-driven phases, a "diagnostics" mode that
// runs before the main work) and its gopsutil usage pattern in
// internal/cli/ui/ui.go (psutil.Percent / psmem.VirtualMemory).
package main

import (
	"context"
	"encoding/pem"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"fprintcore/drivers/moctest"
	"fprintcore/internal/device"
	"fprintcore/internal/devicetrace"
	"fprintcore/internal/fpconfig"
	"fprintcore/internal/idtable"
	"fprintcore/internal/obslog"
	"fprintcore/internal/reactor"
	"fprintcore/internal/sdcp"
	"fprintcore/internal/usbtransport"
)

func main() {
	hostStats := flag.Bool("host-stats", true, "print host CPU/memory pressure")
	listDrivers := flag.Bool("list-drivers", true, "print the known (vid, pid) -> driver routing table")
	selfTest := flag.Bool("self-test", false, "run a scripted enroll/identify/delete cycle against the built-in moctest driver")
	usbProbe := flag.String("usb", "", "vid:pid (hex, e.g. 04cc:0116) of a real USB sensor to open/reset/close as a transport-layer smoke test")
	trace := flag.String("trace", "", "network interface name to attach an XDP latency tracer to (Linux only; prints a handful of events then exits)")
	flag.Parse()

	cfg := fpconfig.Load()
	fmt.Printf("fprint-monitor: default enroll stages=%d trust bundle=%q intermediate bundle=%q virtual bridge=%q\n",
		cfg.DefaultEnrollStages, cfg.SDCPTrustBundlePath, cfg.SDCPIntermediateBundlePath, cfg.VirtualBridgeAddr)

	if *hostStats {
		printHostStats()
	}
	if *listDrivers {
		printDriverTable()
	}
	if *selfTest {
		if err := runSelfTest(); err != nil {
			fmt.Fprintf(os.Stderr, "self-test failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("self-test: ok")
	}
	if *usbProbe != "" {
		if err := runUSBProbe(*usbProbe); err != nil {
			fmt.Fprintf(os.Stderr, "usb probe failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("usb probe: ok")
	}
	if *trace != "" {
		if err := runTrace(*trace); err != nil {
			fmt.Fprintf(os.Stderr, "trace failed: %v\n", err)
			os.Exit(1)
		}
	}
}

func printHostStats() {
	percents, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil || len(percents) == 0 {
		fmt.Println("host: cpu percent unavailable:", err)
	} else {
		fmt.Printf("host: cpu=%.1f%%\n", percents[0])
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		fmt.Println("host: memory stats unavailable:", err)
		return
	}
	fmt.Printf("host: mem used=%.1f%% total=%dMiB\n", vm.UsedPercent, vm.Total/(1024*1024))
}

// printDriverTable registers the drivers this build ships with synthetic
// routing entries (moctest and virtual have no real silicon, so there is
// no real vid:pid to report) and prints the resulting table, the way
// spec §6's device-identification registry would be inspected in the
// field.
func printDriverTable() {
	tbl := idtable.New()
	_ = tbl.Register("moctest", idtable.Row{ID: idtable.ID{VID: 0xffff, PID: 0x0001}})
	_ = tbl.Register("virtual", idtable.Row{ID: idtable.ID{VID: 0xffff, PID: 0x0002}})

	fmt.Println("drivers:")
	for _, e := range tbl.Entries() {
		fmt.Printf("  %s -> %s (driver_data=%d)\n", e.ID, e.DriverID, e.DriverData)
	}
}

func runSelfTest() error {
	drv, rootDER, err := moctest.NewDriver()
	if err != nil {
		return fmt.Errorf("build moctest driver: %w", err)
	}
	trust, err := sdcp.NewTrustStore(pemEncodeCert(rootDER))
	if err != nil {
		return fmt.Errorf("build trust store: %w", err)
	}

	rx := reactor.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rx.Run(ctx)

	sess := sdcp.New(rx, drv, trust, obslog.Nop())
	base := device.New(rx, sess, obslog.Nop(), device.Config{
		DriverID: "moctest", DeviceID: "moctest0", Name: "Mock On-Chip Test Sensor",
		NrEnrollStages: 1, ScanType: device.ScanPress,
	})
	sess.SetBase(base)

	if res := <-base.OpenAsync(ctx); res.Err != nil {
		return fmt.Errorf("open: %w", res.Err)
	}
	defer func() { <-base.CloseAsync(ctx) }()

	drv.QueueEnrollSample([]byte("self-test finger"))
	enrollRes := <-base.EnrollAsync(ctx, &device.Print{}, nil)
	if enrollRes.Err != nil {
		return fmt.Errorf("enroll: %w", enrollRes.Err)
	}

	drv.QueueIdentifySample([]byte("self-test finger"))
	idRes := <-base.IdentifyAsync(ctx, []*device.Print{enrollRes.Print})
	if idRes.Err != nil {
		return fmt.Errorf("identify: %w", idRes.Err)
	}
	if idRes.Matched == nil {
		return fmt.Errorf("identify: expected a match against the just-enrolled print")
	}

	if res := <-base.DeleteAsync(ctx, enrollRes.Print); res.Err != nil {
		return fmt.Errorf("delete: %w", res.Err)
	}
	return nil
}

func pemEncodeCert(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

// runUSBProbe wires a real internal/usbtransport.Transport into a
// device.Device the same way a USB-transport sensor driver would (spec
// §4.1 "USB-transport devices perform transport open before driver.Open
// runs"), using the in-process moctest driver underneath so the smoke
// test exercises real bus I/O without requiring a real SDCP sensor.
// spec is vid:pid in hex, e.g. "04cc:0116".
func runUSBProbe(spec string) error {
	vid, pid, err := parseVIDPID(spec)
	if err != nil {
		return err
	}

	drv, rootDER, err := moctest.NewDriver()
	if err != nil {
		return fmt.Errorf("build moctest driver: %w", err)
	}
	trust, err := sdcp.NewTrustStore(pemEncodeCert(rootDER))
	if err != nil {
		return fmt.Errorf("build trust store: %w", err)
	}

	rx := reactor.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rx.Run(ctx)

	sess := sdcp.New(rx, drv, trust, obslog.Nop())
	base := device.New(rx, sess, obslog.Nop(), device.Config{
		DriverID: "moctest", DeviceID: "moctest0", Name: "Mock On-Chip Test Sensor",
		NrEnrollStages: 1, ScanType: device.ScanPress,
		Transport: usbtransport.New(vid, pid),
	})
	sess.SetBase(base)

	res := <-base.OpenAsync(ctx)
	if res.Err != nil {
		return fmt.Errorf("open (transport reset + configure): %w", res.Err)
	}
	<-base.CloseAsync(ctx)
	return nil
}

func parseVIDPID(spec string) (vid, pid uint16, err error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("usb: expected vid:pid, got %q", spec)
	}
	v, err := strconv.ParseUint(parts[0], 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("usb: bad vid %q: %w", parts[0], err)
	}
	p, err := strconv.ParseUint(parts[1], 16, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("usb: bad pid %q: %w", parts[1], err)
	}
	return uint16(v), uint16(p), nil
}

// runTrace attaches devicetrace's XDP latency probe to ifaceName and
// prints the first few completions it sees. Grounded on teacher's
// internal/driver/device/eBPF_driver.go diagnostic-loop shape.
func runTrace(ifaceName string) error {
	tracer, err := devicetrace.Attach(ifaceName)
	if err != nil {
		return err
	}
	defer tracer.Close()

	const maxEvents = 5
	for i := 0; i < maxEvents; i++ {
		ev, err := tracer.Next()
		if err != nil {
			return fmt.Errorf("read event %d: %w", i, err)
		}
		fmt.Printf("trace: endpoint=0x%02x duration=%dns\n", ev.EndpointAddr, ev.DurationNs)
	}
	return nil
}
