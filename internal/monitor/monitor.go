// Package monitor drives sweeps over the Proxmox cluster: enumerate nodes and
// VMs, classify each VM, and notify on every state change.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/projecteru2/core/log"
	"golang.org/x/sync/errgroup"

	"github.com/berocorpdotnet/pvewatch/internal/api"
	"github.com/berocorpdotnet/pvewatch/internal/metrics"
	"github.com/berocorpdotnet/pvewatch/internal/models"
	"github.com/berocorpdotnet/pvewatch/internal/notify"
	"github.com/berocorpdotnet/pvewatch/internal/state"
)

const (
	DefaultIgnoreFrom = 9000
	DefaultIgnoreTo   = 10000
	defaultHistory    = 100
)

// Hypervisor is the subset of the Proxmox API a sweep needs.
type Hypervisor interface {
	GetNodes(ctx context.Context) ([]models.Node, error)
	GetNodeStatus(ctx context.Context, node string) (*models.NodeStatus, error)
	GetVMs(ctx context.Context, node string) ([]models.Guest, error)
	GetVMStatus(ctx context.Context, node string, vmid int) (*models.GuestStatus, error)
}

type Options struct {
	// Concurrency is the number of nodes swept in parallel. 1 keeps the sweep
	// strictly sequential.
	Concurrency int
	// VM IDs in [IgnoreFrom, IgnoreTo) are never observed.
	IgnoreFrom  int
	IgnoreTo    int
	HistorySize int
	Clock       Clock
}

// SweepReport summarises one sweep.
type SweepReport struct {
	Started        time.Time
	Duration       time.Duration
	Aborted        bool
	Nodes          int
	NodesSkipped   int
	VMs            int
	VMsSkipped     int
	Ignored        int
	Notified       int
	DispatchFailed int
}

func (r *SweepReport) add(o SweepReport) {
	r.Nodes += o.Nodes
	r.NodesSkipped += o.NodesSkipped
	r.VMs += o.VMs
	r.VMsSkipped += o.VMsSkipped
	r.Ignored += o.Ignored
	r.Notified += o.Notified
	r.DispatchFailed += o.DispatchFailed
}

func (r SweepReport) result() string {
	switch {
	case r.Aborted:
		return "aborted"
	case r.NodesSkipped > 0 || r.VMsSkipped > 0 || r.DispatchFailed > 0:
		return "partial"
	default:
		return "ok"
	}
}

type Monitor struct {
	hv       Hypervisor
	sender   notify.Sender
	detector *state.Detector
	metrics  *metrics.Metrics
	opts     Options

	view *view
}

// New wires a Monitor. detector is owned by the caller so tests and restarts
// decide what the monitor has already seen; m may be nil.
func New(hv Hypervisor, sender notify.Sender, detector *state.Detector, m *metrics.Metrics, opts Options) *Monitor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.IgnoreFrom == 0 && opts.IgnoreTo == 0 {
		opts.IgnoreFrom, opts.IgnoreTo = DefaultIgnoreFrom, DefaultIgnoreTo
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = defaultHistory
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	return &Monitor{
		hv:       hv,
		sender:   sender,
		detector: detector,
		metrics:  m,
		opts:     opts,
		view:     newView(opts.HistorySize),
	}
}

// Ignored reports whether vmid falls in the ignored range.
func (m *Monitor) Ignored(vmid int) bool {
	return vmid >= m.opts.IgnoreFrom && vmid < m.opts.IgnoreTo
}

// Sweep runs one pass over every node. Fetch and dispatch failures are logged
// and skipped at the smallest scope; the returned error is reserved for
// unexpected faults such as a panic while handling a node.
func (m *Monitor) Sweep(ctx context.Context) (report SweepReport, err error) {
	logger := log.WithFunc("monitor.Sweep")
	report.Started = m.opts.Clock.Now()
	defer func() {
		report.Duration = m.opts.Clock.Now().Sub(report.Started)
		m.view.setLastSweep(report)
		m.metrics.SetTracked(m.detector.Len())
		m.metrics.SweepDone(report.result(), report.Duration)
	}()

	nodes, err := m.hv.GetNodes(ctx)
	if err != nil {
		m.fetchFailed(ctx, "nodes", err, "could not retrieve nodes, skipping sweep")
		report.Aborted = true
		return report, nil
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(m.opts.Concurrency)
	for _, n := range nodes {
		n := n
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("node %s: panic: %v", n.Node, r)
				}
			}()
			nr := m.sweepNode(ctx, n.Node)
			mu.Lock()
			report.add(nr)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	logger.Debugf(ctx, "sweep done: %d nodes (%d skipped), %d VMs (%d skipped, %d ignored), %d notifications (%d failed)",
		report.Nodes, report.NodesSkipped, report.VMs, report.VMsSkipped, report.Ignored, report.Notified, report.DispatchFailed)
	return report, nil
}

func (m *Monitor) sweepNode(ctx context.Context, node string) (r SweepReport) {
	logger := log.WithFunc("monitor.sweepNode")
	r.Nodes = 1

	ns, err := m.hv.GetNodeStatus(ctx, node)
	if err != nil {
		m.fetchFailed(ctx, "node_status", err, "node %s: could not retrieve node status, skipping node", node)
		r.NodesSkipped = 1
		return r
	}
	nodeMetrics := ns.Metrics()

	vms, err := m.hv.GetVMs(ctx, node)
	if err != nil {
		m.fetchFailed(ctx, "vms", err, "node %s: could not retrieve VM list, skipping node", node)
		r.NodesSkipped = 1
		return r
	}

	for _, vm := range vms {
		if m.Ignored(vm.VMID) {
			logger.Debugf(ctx, "VM %d on node %s is ignored", vm.VMID, node)
			m.metrics.Ignored()
			r.Ignored++
			continue
		}
		r.VMs++

		st, err := m.hv.GetVMStatus(ctx, node, vm.VMID)
		if err != nil {
			m.fetchFailed(ctx, "vm_status", err, "VM %d on node %s: could not retrieve status, skipping VM", vm.VMID, node)
			r.VMsSkipped++
			continue
		}

		fired, delivered := m.observe(ctx, node, vm, st, &nodeMetrics)
		if fired {
			r.Notified++
			if !delivered {
				r.DispatchFailed++
			}
		}
	}
	return r
}

// observe classifies one VM status and, on a change, formats and dispatches
// the notification before returning, so a VM's messages keep their order.
func (m *Monitor) observe(ctx context.Context, node string, vm models.Guest, st *models.GuestStatus, nm *models.NodeMetrics) (fired, delivered bool) {
	logger := log.WithFunc("monitor.observe")
	id := models.VMIdentity{Node: node, VMID: vm.VMID}
	now := m.opts.Clock.Now()

	canonical := state.Classify(st.EffectiveStatus(), st.Lock)
	logger.Debugf(ctx, "VM %d on node %s: status %s, lock %q -> %s", vm.VMID, node, st.EffectiveStatus(), st.Lock, canonical)

	name := st.Name
	if name == "" {
		name = vm.Name
	}
	snap := &notify.Snapshot{
		Name:   name,
		CPU:    st.CPU,
		Mem:    st.Mem,
		MaxMem: st.MaxMem,
		Uptime: st.Uptime,
		Node:   nm,
	}

	if !m.detector.Observe(id.Key(), canonical) {
		m.view.track(id, canonical, snap, now, false)
		logger.Debugf(ctx, "no change for VM %d on node %s: state remains %s", vm.VMID, node, canonical)
		return false, false
	}
	m.view.track(id, canonical, snap, now, true)

	msg := notify.Format(id, canonical, snap, now)
	msg.ID = uuid.NewString()

	err := m.sender.Send(ctx, msg)
	delivered = err == nil
	if err != nil {
		logger.Errorf(ctx, err, "notification %s for VM %d on node %s (%s) was not delivered", msg.ID, vm.VMID, node, canonical)
	} else {
		logger.Infof(ctx, "notification %s for VM %d on node %s sent: %s", msg.ID, vm.VMID, node, canonical)
	}

	m.metrics.Notified(canonical.String(), delivered)
	m.view.record(Event{
		ID:        msg.ID,
		Identity:  id,
		Name:      name,
		State:     canonical,
		At:        now,
		Delivered: delivered,
	})
	return true, delivered
}

func (m *Monitor) fetchFailed(ctx context.Context, endpoint string, err error, format string, args ...any) {
	logger := log.WithFunc("monitor.fetch")
	logger.Errorf(ctx, err, format, args...)
	if api.IsUnauthorized(err) {
		logger.Warnf(ctx, "401 Unauthorized: check the API token and permissions")
	}
	m.metrics.FetchFailed(endpoint)
}

// Tracked returns the latest observation of every VM seen so far.
func (m *Monitor) Tracked() []Tracked { return m.view.tracked() }

// Recent returns dispatched notifications, newest first.
func (m *Monitor) Recent() []Event { return m.view.recent() }

// LastSweep returns the report of the most recent sweep.
func (m *Monitor) LastSweep() SweepReport { return m.view.lastSweep() }
