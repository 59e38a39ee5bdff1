package booking

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NextEligible picks the next slot for a booking attempt. Selection is pure
// and deterministic: earliest start wins, ties broken by id ascending, so the
// retry loop always makes forward progress over the same underlying data.
//
// A slot is eligible when its start is at or after notBefore (the caller's
// "now" plus the configured buffer, computed once per booking attempt so the
// boundary never flips mid-operation), its owner matches the restriction when
// one is given, and its id is not in the tried set.
func NextEligible(slots []Slot, notBefore time.Time, ownerID *uuid.UUID, tried map[uuid.UUID]struct{}) (Slot, bool) {
	candidates := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if s.StartAt.Before(notBefore) {
			continue
		}
		if ownerID != nil && s.ClinicianID != *ownerID {
			continue
		}
		if _, skip := tried[s.ID]; skip {
			continue
		}
		candidates = append(candidates, s)
	}

	if len(candidates) == 0 {
		return Slot{}, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].StartAt.Equal(candidates[j].StartAt) {
			return candidates[i].StartAt.Before(candidates[j].StartAt)
		}
		return strings.Compare(candidates[i].ID.String(), candidates[j].ID.String()) < 0
	})

	return candidates[0], true
}
