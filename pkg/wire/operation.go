package wire

// Operation represents a device management operation on the object tree.
type Operation uint8

const (
	// OpRead reads an object, an instance or a resource.
	OpRead Operation = 1

	// OpWrite writes resources of an instance.
	OpWrite Operation = 2

	// OpExecute executes a resource.
	OpExecute Operation = 3

	// OpCreate creates an instance.
	OpCreate Operation = 4

	// OpDelete deletes an instance.
	OpDelete Operation = 5

	// OpObserve registers for change notifications.
	OpObserve Operation = 6

	// OpCancelObserve cancels an observation.
	OpCancelObserve Operation = 7

	// OpDiscover lists the object links.
	OpDiscover Operation = 8
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpRead:
		return "Read"
	case OpWrite:
		return "Write"
	case OpExecute:
		return "Execute"
	case OpCreate:
		return "Create"
	case OpDelete:
		return "Delete"
	case OpObserve:
		return "Observe"
	case OpCancelObserve:
		return "CancelObserve"
	case OpDiscover:
		return "Discover"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the operation is known.
func (o Operation) IsValid() bool {
	return o >= OpRead && o <= OpDiscover
}
