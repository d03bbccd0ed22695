// Package filter defines the SchedulingFilter external collaborator: given
// the resources offered by a slave, produce a predicate over pending
// tasks indicating which of them may be placed there. The CORE treats
// this as pluggable policy (out of scope: §1); this package also supplies
// a default resource-fit implementation so the scheduler is runnable
// without a custom policy wired in.
package filter

import "github.com/ethanzhu/shardsched/pkg/model"

// OfferResources is the resource advertisement carried by one offer.
type OfferResources struct {
	CPUs   float64
	RAMMb  int64
	DiskMb int64
}

// Predicate reports whether a pending task may run on the slave an offer
// was built for.
type Predicate func(*model.ScheduledTask) bool

// Filter builds a per-offer Predicate.
type Filter interface {
	MakeFilter(resources OfferResources, slaveHost string) Predicate
}

// Default is a simple resource-fit SchedulingFilter: a task matches an
// offer if the offer's resources are no smaller than the task requires.
// It ignores slaveHost entirely (no host-based constraints).
type Default struct{}

// MakeFilter implements Filter.
func (Default) MakeFilter(resources OfferResources, _ string) Predicate {
	return func(t *model.ScheduledTask) bool {
		return resources.CPUs >= t.Info.NumCPUs &&
			resources.RAMMb >= t.Info.RAMMb &&
			resources.DiskMb >= t.Info.DiskMb
	}
}

// RejectAll is a SchedulingFilter that matches nothing; useful to
// exercise offer-decline behavior in tests.
type RejectAll struct{}

// MakeFilter implements Filter.
func (RejectAll) MakeFilter(OfferResources, string) Predicate {
	return func(*model.ScheduledTask) bool { return false }
}
