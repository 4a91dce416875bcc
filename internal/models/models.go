package models

import "fmt"

type Node struct {
	Node    string  `json:"node"`
	Status  string  `json:"status"`
	CPU     float64 `json:"cpu"`
	MaxCPU  int     `json:"maxcpu"`
	Mem     int64   `json:"mem"`
	MaxMem  int64   `json:"maxmem"`
	Disk    int64   `json:"disk"`
	MaxDisk int64   `json:"maxdisk"`
	Uptime  int64   `json:"uptime"`
}

// NodeStatus is the payload of /nodes/{node}/status.
type NodeStatus struct {
	CPU    float64 `json:"cpu"`
	Uptime int64   `json:"uptime"`
	Memory struct {
		Used  int64 `json:"used"`
		Total int64 `json:"total"`
		Free  int64 `json:"free"`
	} `json:"memory"`
}

func (s NodeStatus) Metrics() NodeMetrics {
	return NodeMetrics{
		CPUFraction:      s.CPU,
		UsedMemoryBytes:  s.Memory.Used,
		TotalMemoryBytes: s.Memory.Total,
	}
}

// NodeMetrics is attached to every notification for VMs of that node in one sweep.
type NodeMetrics struct {
	CPUFraction      float64
	UsedMemoryBytes  int64
	TotalMemoryBytes int64
}

type Guest struct {
	VMID   int     `json:"vmid"`
	Name   string  `json:"name"`
	Status string  `json:"status"`
	Node   string  `json:"node"`
	CPU    float64 `json:"cpu"`
	CPUs   int     `json:"cpus"`
	Mem    int64   `json:"mem"`
	MaxMem int64   `json:"maxmem"`
	Uptime int64   `json:"uptime"`
	Lock   string  `json:"lock,omitempty"`
}

type GuestStatus struct {
	VMID      int     `json:"vmid"`
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	QMPStatus string  `json:"qmpstatus,omitempty"`
	Lock      string  `json:"lock,omitempty"`
	CPU       float64 `json:"cpu"`
	CPUs      int     `json:"cpus"`
	Mem       int64   `json:"mem"`
	MaxMem    int64   `json:"maxmem"`
	Uptime    int64   `json:"uptime"`
	PID       int     `json:"pid,omitempty"`
}

// EffectiveStatus prefers the QMP status, which is the only field that
// reports paused or suspended guests.
func (s GuestStatus) EffectiveStatus() string {
	if s.QMPStatus != "" {
		return s.QMPStatus
	}
	return s.Status
}

// VMIdentity is scoped to node+vmid; the same vmid on two nodes is two VMs.
type VMIdentity struct {
	Node string
	VMID int
}

func (id VMIdentity) Key() string {
	return fmt.Sprintf("%s-%d", id.Node, id.VMID)
}

func (id VMIdentity) String() string {
	return id.Key()
}
