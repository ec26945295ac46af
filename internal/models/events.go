package models

// ChangeKind describes what happened to an installed package
type ChangeKind int

const (
	PackageInstalled ChangeKind = iota
	PackageUpdated
	PackageUninstalled
)

// String returns the string representation of ChangeKind
func (k ChangeKind) String() string {
	switch k {
	case PackageInstalled:
		return "installed"
	case PackageUpdated:
		return "updated"
	case PackageUninstalled:
		return "uninstalled"
	default:
		return "unknown"
	}
}

// PackageEvent is emitted by the package monitor
type PackageEvent struct {
	Kind ChangeKind
	Name string
}

// RunningStatus tells observers whether the catalog owner is busy
type RunningStatus int

const (
	StatusNormal RunningStatus = iota
	StatusBusy
)

// String returns the string representation of RunningStatus
func (s RunningStatus) String() string {
	if s == StatusBusy {
		return "busy"
	}
	return "normal"
}
