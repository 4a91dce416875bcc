package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/berocorpdotnet/pvewatch/internal/models"
	"github.com/berocorpdotnet/pvewatch/internal/state"
)

const mib = 1024 * 1024

// Field is one name/value row of a Message body.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Message is a sink-agnostic notification.
type Message struct {
	ID          string
	Title       string
	Description string
	Color       int
	Timestamp   time.Time
	Fields      []Field
	Footer      string
}

// Snapshot carries the optional resource figures of one observation.
type Snapshot struct {
	Name   string
	CPU    float64
	Mem    int64
	MaxMem int64
	Uptime int64
	Node   *models.NodeMetrics
}

// Format builds the notification for a VM that entered state s.
// snap may be nil; the message then carries identity and state only.
func Format(id models.VMIdentity, s state.State, snap *Snapshot, at time.Time) Message {
	info := s.Info()

	name := ""
	if snap != nil {
		name = snap.Name
	}
	if name == "" {
		name = fmt.Sprintf("VM %d", id.VMID)
	}

	msg := Message{
		Title:       fmt.Sprintf("%s: %s", info.Title, name),
		Description: fmt.Sprintf("Hostname: %s\nStatus: %s", name, info.Description),
		Color:       info.Color,
		Timestamp:   at.UTC(),
		Footer:      "Proxmox VE · " + id.Node,
		Fields: []Field{
			{Name: "VM Name", Value: name, Inline: true},
			{Name: "VM ID", Value: strconv.Itoa(id.VMID), Inline: true},
			{Name: "Node", Value: id.Node, Inline: true},
			{Name: "State", Value: info.Description},
		},
	}
	if snap == nil {
		return msg
	}

	msg.Fields = append(msg.Fields,
		Field{Name: "CPU", Value: fmt.Sprintf("%.2f%%", snap.CPU*100), Inline: true},
		Field{Name: "Memory", Value: FormatMemory(snap.Mem, snap.MaxMem), Inline: true},
		Field{Name: "Uptime", Value: FormatUptime(snap.Uptime)},
	)
	if snap.Node != nil {
		msg.Fields = append(msg.Fields, Field{
			Name:  "Node Memory",
			Value: FormatMemory(snap.Node.UsedMemoryBytes, snap.Node.TotalMemoryBytes),
		})
	}
	return msg
}

// Percent returns used as a percentage of total, or 0 when total is not positive.
func Percent(used, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(used) / float64(total) * 100
}

// FormatMemory renders "used/total MB (pct%)".
func FormatMemory(used, total int64) string {
	return fmt.Sprintf("%d/%d MB (%.2f%%)", used/mib, total/mib, Percent(used, total))
}

var uptimeUnits = []struct {
	name    string
	seconds int64
}{
	{"years", 365 * 24 * 3600},
	{"weeks", 7 * 24 * 3600},
	{"days", 24 * 3600},
	{"hours", 3600},
	{"minutes", 60},
	{"seconds", 1},
}

// FormatUptime spells out seconds from the largest non-zero unit downward,
// e.g. 3661 -> "1 hours, 1 minutes, 1 seconds".
func FormatUptime(seconds int64) string {
	if seconds <= 0 {
		return "0 seconds"
	}

	var parts []string
	rest := seconds
	for _, u := range uptimeUnits {
		n := rest / u.seconds
		rest %= u.seconds
		if n == 0 && len(parts) == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, u.name))
	}
	return strings.Join(parts, ", ")
}
