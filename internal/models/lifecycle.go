package models

// Lifecycle is the soft-delete state shared by rooms and messages.
type Lifecycle string

const (
	LifecycleActive   Lifecycle = "ACTIVE"
	LifecycleDeleted  Lifecycle = "DELETED"
	LifecycleRestored Lifecycle = "RESTORED"
)

// Visible reports whether an entity in this state is shown to participants.
// RESTORED behaves as ACTIVE.
func (l Lifecycle) Visible() bool {
	return l != LifecycleDeleted
}

// CanTransition reports whether l may move to next.
func (l Lifecycle) CanTransition(next Lifecycle) bool {
	switch next {
	case LifecycleDeleted:
		return l == LifecycleActive || l == LifecycleRestored
	case LifecycleRestored:
		return l == LifecycleDeleted
	default:
		return false
	}
}
