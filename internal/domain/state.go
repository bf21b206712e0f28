package domain

import (
	"fmt"
	"time"
)

// Activate moves a membership to Active starting at now. Pending, Overdue and
// already Active memberships are accepted; an Active one has its dates
// recomputed from now. Cancelled is terminal.
func (m *Membership) Activate(now time.Time, durationMonths int) error {
	if m.State == MembershipCancelled {
		return fmt.Errorf("%w: membership %s is cancelled", ErrInvalidTransition, m.ID)
	}
	if durationMonths <= 0 {
		durationMonths = 1
	}
	start := now
	next := AddMonths(start, durationMonths)
	m.State = MembershipActive
	m.StartDate = &start
	m.NextPaymentDate = &next
	return nil
}

// Cancel moves a membership to Cancelled. It reports false when the membership
// was already cancelled.
func (m *Membership) Cancel() bool {
	if m.State == MembershipCancelled {
		return false
	}
	m.State = MembershipCancelled
	return true
}

// MarkOverdue flags an Active membership whose next payment date has passed.
func (m *Membership) MarkOverdue(now time.Time) bool {
	if m.State != MembershipActive || m.NextPaymentDate == nil || !m.NextPaymentDate.Before(now) {
		return false
	}
	m.State = MembershipOverdue
	return true
}

// AttachPreference sets the preference id once.
func (m *Membership) AttachPreference(preferenceID string) (bool, error) {
	if m.PreferenceID != nil {
		if *m.PreferenceID == preferenceID {
			return false, nil
		}
		return false, ErrPreferenceAlreadySet
	}
	m.PreferenceID = &preferenceID
	return true, nil
}
