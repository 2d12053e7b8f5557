package core

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// BudgetManager tracks the receiver's storage budget for inbound pushed
// blocks with two shared atomic counters, per §4.9. Its acceptance decisions
// are also mirrored into a private prometheus registry (gauges for
// available/onDisk, counters for accept/reject) so an external control
// surface can mount Registry() behind its own /metrics handler, the same
// registry-per-component shape as system_health_logging.go's HealthLogger.
type BudgetManager struct {
	available atomic.Int64
	onDisk    atomic.Int64

	registry      *prometheus.Registry
	availableGauge prometheus.Gauge
	onDiskGauge    prometheus.Gauge
	acceptCounter  prometheus.Counter
	rejectCounter  prometheus.Counter
}

// NewBudgetManager reads the ledger's "Total: <N>" line, sets onDisk to N,
// and computes available = configured - onDisk. Returns ErrBudgetUnderflow
// if that would be negative.
func NewBudgetManager(ledgerPath string, configured int64) (*BudgetManager, error) {
	total, err := readLedgerTotal(ledgerPath)
	if err != nil {
		return nil, fmt.Errorf("new budget manager: %w", err)
	}

	available := configured - total
	if available < 0 {
		return nil, fmt.Errorf("new budget manager: %w", ErrBudgetUnderflow)
	}

	bm := &BudgetManager{
		registry: prometheus.NewRegistry(),
		availableGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dragoonfly_budget_available_bytes",
			Help: "Remaining storage budget for inbound pushed blocks.",
		}),
		onDiskGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dragoonfly_budget_on_disk_bytes",
			Help: "Total bytes of accepted inbound pushed blocks.",
		}),
		acceptCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dragoonfly_budget_accepted_total",
			Help: "Number of inbound pushes accepted against the budget.",
		}),
		rejectCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dragoonfly_budget_rejected_total",
			Help: "Number of inbound pushes rejected by the budget.",
		}),
	}
	bm.registry.MustRegister(bm.availableGauge, bm.onDiskGauge, bm.acceptCounter, bm.rejectCounter)

	bm.onDisk.Store(total)
	bm.available.Store(available)
	bm.onDiskGauge.Set(float64(total))
	bm.availableGauge.Set(float64(available))
	return bm, nil
}

// Registry returns the prometheus registry the budget's gauges and counters
// are registered on, for an external control surface to expose on its own
// /metrics handler.
func (b *BudgetManager) Registry() *prometheus.Registry { return b.registry }

func readLedgerTotal(path string) (int64, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read ledger total: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, nil
	}
	line := scanner.Text()
	const prefix = "Total: "
	if !strings.HasPrefix(line, prefix) {
		return 0, fmt.Errorf("read ledger total: %w", ErrLedgerCorrupt)
	}
	total, err := strconv.ParseInt(strings.TrimPrefix(line, prefix), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("read ledger total: %w", ErrLedgerCorrupt)
	}
	return total, nil
}

// TryAccept optimistically decrements available by size and checks the
// result stayed strictly positive, per §4.6 step 3's "available > sz"; an
// exact fit is rejected, not just an overdraft. On rejection it restores
// available first.
func (b *BudgetManager) TryAccept(size int64) bool {
	remaining := b.available.Add(-size)
	if remaining <= 0 {
		b.available.Add(size)
		b.availableGauge.Set(float64(b.available.Load()))
		b.rejectCounter.Inc()
		return false
	}
	onDisk := b.onDisk.Add(size)
	b.availableGauge.Set(float64(remaining))
	b.onDiskGauge.Set(float64(onDisk))
	b.acceptCounter.Inc()
	return true
}

// Release compensates a caller-reported failure after TryAccept succeeded,
// restoring both counters.
func (b *BudgetManager) Release(size int64) {
	available := b.available.Add(size)
	onDisk := b.onDisk.Add(-size)
	b.availableGauge.Set(float64(available))
	b.onDiskGauge.Set(float64(onDisk))
}

// SetBudget recomputes available = max(0, new-onDisk) and reports whether
// future pushes will be accepted at all.
func (b *BudgetManager) SetBudget(newBudget int64) bool {
	onDisk := b.onDisk.Load()
	available := newBudget - onDisk
	if available < 0 {
		available = 0
	}
	b.available.Store(available)
	b.availableGauge.Set(float64(available))
	return available > 0
}

// Available returns the current acceptance budget.
func (b *BudgetManager) Available() int64 { return b.available.Load() }

// OnDisk returns the current sum of accepted inbound block sizes.
func (b *BudgetManager) OnDisk() int64 { return b.onDisk.Load() }
