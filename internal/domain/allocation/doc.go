// Package allocation splits one physical stock pool across sales channels
// and manages short-lived reservations against the allocated quantities.
// The aggregate is the sole writer of allocation state; every mutation
// re-checks the invariant that the total allocated across channels never
// exceeds the physical stock minus the configured safety buffer.
package allocation
