package metrics

import "time"

// Raw is one ordered tuple of unsigned kernel counters.
type Raw []uint64

// Derived is a rate, percentage or gauge tuple computed from raw counters.
type Derived []float64

// Entity is the derived view of one disk or network interface.
type Entity struct {
	ID    string `json:"id"`
	Stats Stats  `json:"stats"`
}

// Snapshot is the result of one sampling cycle. Families that could not be
// read are left nil and listed in Errors.
type Snapshot struct {
	ID        string            `json:"id"`
	Host      string            `json:"host"`
	Timestamp time.Time         `json:"timestamp"`
	Cycle     uint64            `json:"cycle"`
	Elapsed   Seconds           `json:"elapsed"`
	Load      Stats             `json:"load,omitempty"`
	Uptime    Stats             `json:"uptime,omitempty"`
	CPU       Stats             `json:"cpu,omitempty"`
	Mem       Stats             `json:"mem,omitempty"`
	VM        Stats             `json:"vmstat,omitempty"`
	Sys       Stats             `json:"sys,omitempty"`
	TCP       Stats             `json:"tcpstat,omitempty"`
	IO        Stats             `json:"io,omitempty"`
	Disks     []Entity          `json:"iostat,omitempty"`
	Net       []Entity          `json:"net,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}
