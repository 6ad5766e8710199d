package watch

// Op classifies a filesystem notification.
type Op uint8

const (
	// OpCreate is a file creation.
	OpCreate Op = iota
	// OpWrite is a content modification.
	OpWrite
	// OpRemove is a deletion or rename-away.
	OpRemove
)

// String returns the op name.
func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Event is one simplified filesystem notification.
type Event struct {
	Path string
	Op   Op
}
