package model

// AvailabilityCode is the coarse state reported alongside the numeric
// remaining capacity.  Callers branch on the code rather than raw
// counts, since "unlimited" must stay distinguishable from a numeric
// remaining that happens to be zero.
type AvailabilityCode int

const (
	// AvailabilityGone means no capacity is left and all of it is
	// bound to paid orders.
	AvailabilityGone AvailabilityCode = 0
	// AvailabilityReserved means no capacity is left right now, but
	// some of the consumption is soft (cart positions or pending
	// orders) and may free up again.
	AvailabilityReserved AvailabilityCode = 80
	// AvailabilityOK means capacity is left (or unconstrained).
	AvailabilityOK AvailabilityCode = 100
)

// Availability is the result of a quota computation.  Remaining is
// nil when no covering quota constrains the item (unlimited); zero is
// a real number meaning sold out.
type Availability struct {
	Code      AvailabilityCode
	Remaining *int64
}

// Unlimited returns an availability with no numeric constraint.
func Unlimited() Availability {
	return Availability{Code: AvailabilityOK}
}

// Limited returns an availability for a finite remaining count.  The
// softHeld flag marks whether any of the consumed capacity could
// still be released (carts, pending orders) and only matters when
// remaining is zero.
func Limited(remaining int64, softHeld bool) Availability {
	if remaining < 0 {
		remaining = 0
	}
	a := Availability{Remaining: &remaining}
	switch {
	case remaining > 0:
		a.Code = AvailabilityOK
	case softHeld:
		a.Code = AvailabilityReserved
	default:
		a.Code = AvailabilityGone
	}
	return a
}

// Sellable reports whether the given quantity can currently be sold.
func (a Availability) Sellable(quantity int64) bool {
	if a.Code != AvailabilityOK {
		return false
	}
	return a.Remaining == nil || *a.Remaining >= quantity
}
