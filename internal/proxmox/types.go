package proxmox

// GuestType distinguishes full VMs from lightweight containers in API paths.
type GuestType string

const (
	GuestQemu GuestType = "qemu"
	GuestLXC  GuestType = "lxc"
)

// Node is one entry of GET /nodes.
type Node struct {
	Node   string  `json:"node"`
	Status string  `json:"status"`
	CPU    float64 `json:"cpu"`
	Mem    int64   `json:"mem"`
	MaxMem int64   `json:"maxmem"`
}

// VM is one entry of GET /nodes/{node}/qemu or /nodes/{node}/lxc.
type VM struct {
	VMID   int    `json:"vmid"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// ClusterResource is one entry of GET /cluster/resources?type=vm.
type ClusterResource struct {
	VMID int    `json:"vmid"`
	Type string `json:"type"`
	Node string `json:"node"`
	Name string `json:"name"`
}

// VMStatus is GET /nodes/{node}/{type}/{vmid}/status/current.
type VMStatus struct {
	Status string  `json:"status"`
	Uptime int64   `json:"uptime"`
	CPU    float64 `json:"cpu"`
	Mem    int64   `json:"mem"`
	MaxMem int64   `json:"maxmem"`
}

// Storage is one entry of GET /nodes/{node}/storage.
type Storage struct {
	Storage string `json:"storage"`
	Type    string `json:"type"`
	Active  int    `json:"active"`
	Total   int64  `json:"total"`
	Used    int64  `json:"used"`
}

// StorageContent is one entry of GET /nodes/{node}/storage/{storage}/content.
type StorageContent struct {
	VolID   string `json:"volid"`
	Content string `json:"content"`
	Size    int64  `json:"size"`
	VMID    int    `json:"vmid"`
}

// Snapshot is one entry of GET /nodes/{node}/qemu/{vmid}/snapshot.
type Snapshot struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	SnapTime    int64  `json:"snaptime"`
}

// TaskStatus is GET /nodes/{node}/tasks/{upid}/status.
type TaskStatus struct {
	Status     string `json:"status"`
	ExitStatus string `json:"exitstatus"`
	StartTime  int64  `json:"starttime"`
	Type       string `json:"type"`
}

// TaskLogLine is one entry of GET /nodes/{node}/tasks/{upid}/log.
type TaskLogLine struct {
	N int    `json:"n"`
	T string `json:"t"`
}

// FirewallRule is one entry of the per-VM firewall rule set.
type FirewallRule struct {
	Pos     int    `json:"pos"`
	Type    string `json:"type"`
	Action  string `json:"action"`
	Proto   string `json:"proto"`
	DPort   string `json:"dport"`
	SPort   string `json:"sport"`
	Comment string `json:"comment"`
	Enable  int    `json:"enable"`
}

// AgentExecStatus is GET .../agent/exec-status.
type AgentExecStatus struct {
	Exited       int    `json:"exited"`
	ExitCode     int    `json:"exitcode"`
	OutData      string `json:"out-data"`
	ErrData      string `json:"err-data"`
	OutTruncated int    `json:"out-truncated"`
	ErrTruncated int    `json:"err-truncated"`
}

// AgentFileRead is GET .../agent/file-read.
type AgentFileRead struct {
	Content   string `json:"content"`
	Truncated int    `json:"truncated"`
	BytesRead int    `json:"bytes-read"`
}
