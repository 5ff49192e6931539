package engine

import (
	"fmt"
	"strings"
)

// OverflowPolicy decides what a bounded queue does when an item arrives
// while it is full.
type OverflowPolicy int

const (
	// Throw rejects the item and reports an overflow error to the sender.
	Throw OverflowPolicy = iota
	// DropIncoming discards the arriving item.
	DropIncoming
	// DropOldest evicts the head and appends the item.
	DropOldest
	// DropNewest evicts the current tail and appends the item in its place.
	DropNewest
	// DropPending clears the queue and keeps only the arriving item.
	DropPending
	// DropAll clears the queue and discards the arriving item as well.
	DropAll
)

var policyNames = [...]string{
	Throw:        "THROW",
	DropIncoming: "DROP_INCOMING",
	DropOldest:   "DROP_OLDEST",
	DropNewest:   "DROP_NEWEST",
	DropPending:  "DROP_PENDING",
	DropAll:      "DROP_ALL",
}

func (p OverflowPolicy) String() string {
	if p >= 0 && int(p) < len(policyNames) {
		return policyNames[p]
	}
	return fmt.Sprintf("OverflowPolicy(%d)", int(p))
}

// ParseOverflowPolicy accepts the names printed by String, case-insensitively.
func ParseOverflowPolicy(name string) (OverflowPolicy, error) {
	for i, n := range policyNames {
		if strings.EqualFold(n, name) {
			return OverflowPolicy(i), nil
		}
	}
	return Throw, fmt.Errorf("unknown overflow policy %q", name)
}

// QueueKind selects the queue backing store. Both kinds behave identically;
// they differ in how memory is laid out.
type QueueKind int

const (
	// ArrayQueue is a ring buffer that grows up to the queue's capacity.
	ArrayQueue QueueKind = iota
	// LinkedQueue is a list of fixed-size segments.
	LinkedQueue
)

func (k QueueKind) String() string {
	switch k {
	case ArrayQueue:
		return "array"
	case LinkedQueue:
		return "linked"
	default:
		return fmt.Sprintf("QueueKind(%d)", int(k))
	}
}

// ParseQueueKind accepts "array" or "linked".
func ParseQueueKind(name string) (QueueKind, error) {
	switch strings.ToLower(name) {
	case "array":
		return ArrayQueue, nil
	case "linked":
		return LinkedQueue, nil
	default:
		return ArrayQueue, fmt.Errorf("unknown queue kind %q", name)
	}
}

// CrankPolicy decides how many ready reactions one crank fires.
type CrankPolicy int

const (
	// FirstReady fires the first ready reaction in registration order.
	FirstReady CrankPolicy = iota
	// AllReady fires every reaction that is ready when its turn comes.
	AllReady
)

func (p CrankPolicy) String() string {
	if p == AllReady {
		return "all-ready"
	}
	return "first-ready"
}
