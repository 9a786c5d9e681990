package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cuemby/bfqsched/internal/simdevice"
	"github.com/cuemby/bfqsched/pkg/config"
	"github.com/cuemby/bfqsched/pkg/iface"
	"github.com/cuemby/bfqsched/pkg/metrics"
	"github.com/cuemby/bfqsched/pkg/scheduler"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "run -f WORKLOAD.yaml",
	Short: "Replay a workload file against an in-process scheduler",
	Long: `Simulate loads a YAML workload describing one or more producers and
drives the scheduler core to exhaustion, using a fake clock so slice_idle
waits resolve instantly instead of costing wall time.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringP("file", "f", "", "workload YAML file to replay (required)")
	simulateCmd.Flags().String("tunables", "", "optional tunables YAML file (defaults to config.Default())")
	simulateCmd.Flags().Int("max-rounds", 200000, "safety ceiling on dispatch/complete rounds before giving up")
	simulateCmd.Flags().String("serve", "", "if set, keep serving /metrics and health endpoints on this address after the run")
	_ = simulateCmd.MarkFlagRequired("file")
}

// producerCtx is the simulator's iface.IOContext: a stable identity (via
// google/uuid, since producers arrive with no natural process/task ID the
// way a real host's per-process io_context would carry one) plus the
// class/weight a workload file declares.
type producerCtx struct {
	id     uuid.UUID
	name   string
	class  iface.IOClass
	weight uint64
}

func (p *producerCtx) Class() iface.IOClass { return p.class }
func (p *producerCtx) Weight() uint64       { return p.weight }

func parseClass(s string) (iface.IOClass, error) {
	switch strings.ToLower(s) {
	case "rt":
		return iface.ClassRT, nil
	case "be", "":
		return iface.ClassBE, nil
	case "idle":
		return iface.ClassIdle, nil
	default:
		return 0, fmt.Errorf("unknown class %q (want rt, be, or idle)", s)
	}
}

func runSimulate(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	tunablesFile, _ := cmd.Flags().GetString("tunables")
	maxRounds, _ := cmd.Flags().GetInt("max-rounds")
	serveAddr, _ := cmd.Flags().GetString("serve")

	workload, err := loadWorkload(file)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if workload.Spec.TunablesFile != "" {
		tunablesFile = workload.Spec.TunablesFile
	}
	if tunablesFile != "" {
		cfg, err = config.LoadFile(tunablesFile)
		if err != nil {
			return err
		}
	}

	clock := simdevice.NewClock(time.Now())
	deferred := simdevice.NewDeferred(clock)
	device := simdevice.NewDevice(0)
	root := scheduler.New(cfg, device, deferred, clock, workload.Spec.Rotational)

	type producer struct {
		ctx   *producerCtx
		label string
	}
	producers := make([]producer, 0, len(workload.Spec.Producers))
	owner := make(map[uint64]string)

	var nextReqID uint64
	for i, p := range workload.Spec.Producers {
		class, err := parseClass(p.Class)
		if err != nil {
			return fmt.Errorf("producer %d: %w", i, err)
		}
		label := p.Name
		if label == "" {
			label = fmt.Sprintf("producer-%d", i)
		}
		pc := &producerCtx{id: uuid.New(), name: label, class: class, weight: p.Weight}
		producers = append(producers, producer{ctx: pc, label: label})

		for j := 0; j < p.RequestCount; j++ {
			nextReqID++
			rq := &iface.Request{
				ID:     nextReqID,
				Sector: p.SectorStart + uint64(j)*p.RequestLength,
				Length: p.RequestLength,
				Sync:   p.Sync,
			}
			owner[rq.ID] = label
			root.AddRequest(pc, rq)
		}
	}

	fmt.Printf("Simulating workload %q (%d producers, %d requests)\n", workload.Metadata.Name, len(producers), nextReqID)

	counts := make(map[string]int)
	dispatched := 0
	for round := 0; round < maxRounds; round++ {
		rq := root.Dispatch()
		if rq == nil {
			if deferred.Pending() == 0 {
				break
			}
			deferred.Advance(cfg.SliceIdle + time.Millisecond)
			continue
		}
		counts[owner[rq.ID]]++
		dispatched++
		root.Completed(rq)
	}

	fmt.Printf("\n%-20s %-36s %-6s %-8s %s\n", "PRODUCER", "ID", "CLASS", "WEIGHT", "DISPATCHED")
	for _, p := range producers {
		fmt.Printf("%-20s %-36s %-6s %-8d %d\n",
			p.label, p.ctx.id, classLabel(p.ctx.class), p.ctx.weight, counts[p.label])
	}
	fmt.Printf("\nTotal dispatched: %d/%d\n", dispatched, nextReqID)

	if serveAddr != "" {
		return serveMetrics(serveAddr)
	}
	return nil
}

func classLabel(c iface.IOClass) string {
	switch c {
	case iface.ClassRT:
		return "rt"
	case iface.ClassIdle:
		return "idle"
	default:
		return "be"
	}
}

// serveMetrics exposes the run's final scheduler gauges and a liveness
// heartbeat until interrupted, mirroring cmd/warren's background
// metrics-HTTP-server-plus-signal-wait pattern.
func serveMetrics(addr string) error {
	metrics.SetVersion(Version)
	collector := metrics.NewCollector("scheduler", 15*time.Second)
	collector.Start()
	defer collector.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	errCh := make(chan error, 1)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()
	fmt.Printf("\n✓ Metrics endpoint: http://%s/metrics\n", addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
		return nil
	case err := <-errCh:
		return err
	}
}
