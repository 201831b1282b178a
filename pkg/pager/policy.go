package pager

import "github.com/scwright027/kv-engine/pkg/vbucket"

// Policy is the eviction algorithm a vBucket is configured with.
type Policy uint8

const (
	LRU2Bit Policy = iota
	HifiMFU
)

func (p Policy) String() string {
	if p == HifiMFU {
		return "hifi_mfu"
	}
	return "2-bit_lru"
}

// Type is which pager a Visitor is running on behalf of.
type Type uint8

const (
	ItemPagerType Type = iota
	ExpiryPagerType
)

// Phase is which vBucket states the pager currently considers (spec.md §4.3).
type Phase uint8

const (
	PhaseReplicaOnly Phase = iota
	PhaseActiveAndPendingOnly
	PhasePagingUnreferenced
)

func (p Phase) String() string {
	switch p {
	case PhaseReplicaOnly:
		return "replica_only"
	case PhaseActiveAndPendingOnly:
		return "active_and_pending_only"
	case PhasePagingUnreferenced:
		return "paging_unreferenced"
	default:
		return "unknown"
	}
}

// Matches reports whether a vBucket in the given state is in scope for this phase. PhasePagingUnreferenced targets
// every non-dead state; Visitor.isEligible still skips replica items in every phase other than PhaseReplicaOnly.
func (p Phase) Matches(state vbucket.State) bool {
	switch p {
	case PhaseReplicaOnly:
		return state == vbucket.StateReplica
	case PhaseActiveAndPendingOnly:
		return state == vbucket.StateActive || state == vbucket.StatePending
	case PhasePagingUnreferenced:
		return state == vbucket.StateActive || state == vbucket.StatePending || state == vbucket.StateReplica
	default:
		return false
	}
}

// InitialPhase returns the correct starting phase for a fresh run, given the bucket type and configured policy
// (spec.md §4.3's phase-ordering guarantees, re-initialised whenever the policy changes).
func InitialPhase(bucketType vbucket.Type, policy Policy) Phase {
	if bucketType.IsEphemeral() {
		return PhaseActiveAndPendingOnly
	}
	if policy == HifiMFU {
		return PhaseReplicaOnly
	}
	return PhasePagingUnreferenced
}

// NextPhase advances phase according to the phase-ordering guarantees, or returns ok=false once phases are
// exhausted for this bucket type/policy combination.
func NextPhase(bucketType vbucket.Type, policy Policy, phase Phase) (next Phase, ok bool) {
	if bucketType.IsEphemeral() {
		// Ephemeral replicas are never paged (they'd diverge from active history): there is only one phase.
		return phase, false
	}
	switch policy {
	case HifiMFU:
		switch phase {
		case PhaseReplicaOnly:
			return PhaseActiveAndPendingOnly, true
		default:
			return phase, false
		}
	default: // LRU2Bit
		switch phase {
		case PhasePagingUnreferenced:
			return PhaseReplicaOnly, true
		case PhaseReplicaOnly:
			return PhaseActiveAndPendingOnly, true
		default:
			return phase, false
		}
	}
}
