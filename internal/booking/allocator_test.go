package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slotAt(clinician uuid.UUID, start time.Time) Slot {
	return Slot{
		ID:          uuid.New(),
		ClinicianID: clinician,
		StartAt:     start,
		EndAt:       start.Add(30 * time.Minute),
	}
}

func TestNextEligible_PicksEarliestStart(t *testing.T) {
	clinician := uuid.New()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	later := slotAt(clinician, base.Add(2*time.Hour))
	earliest := slotAt(clinician, base)
	middle := slotAt(clinician, base.Add(time.Hour))

	got, ok := NextEligible([]Slot{later, earliest, middle}, base.Add(-time.Hour), nil, nil)
	require.True(t, ok)
	assert.Equal(t, earliest.ID, got.ID)
}

func TestNextEligible_TieBrokenByID(t *testing.T) {
	clinician := uuid.New()
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	a := slotAt(clinician, start)
	b := slotAt(clinician, start)

	want := a
	if b.ID.String() < a.ID.String() {
		want = b
	}

	got, ok := NextEligible([]Slot{a, b}, start.Add(-time.Hour), nil, nil)
	require.True(t, ok)
	assert.Equal(t, want.ID, got.ID)

	// Same answer regardless of input order.
	got, ok = NextEligible([]Slot{b, a}, start.Add(-time.Hour), nil, nil)
	require.True(t, ok)
	assert.Equal(t, want.ID, got.ID)
}

func TestNextEligible_BufferBoundary(t *testing.T) {
	clinician := uuid.New()
	notBefore := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	atBoundary := slotAt(clinician, notBefore)
	justBefore := slotAt(clinician, notBefore.Add(-time.Second))

	got, ok := NextEligible([]Slot{justBefore, atBoundary}, notBefore, nil, nil)
	require.True(t, ok)
	// Starting exactly at the cutoff is eligible; a second earlier is not.
	assert.Equal(t, atBoundary.ID, got.ID)

	_, ok = NextEligible([]Slot{justBefore}, notBefore, nil, nil)
	assert.False(t, ok)
}

func TestNextEligible_OwnerRestriction(t *testing.T) {
	mine := uuid.New()
	theirs := uuid.New()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	otherSlot := slotAt(theirs, base)
	mySlot := slotAt(mine, base.Add(time.Hour))

	got, ok := NextEligible([]Slot{otherSlot, mySlot}, base.Add(-time.Hour), &mine, nil)
	require.True(t, ok)
	assert.Equal(t, mySlot.ID, got.ID)

	_, ok = NextEligible([]Slot{otherSlot}, base.Add(-time.Hour), &mine, nil)
	assert.False(t, ok)
}

func TestNextEligible_SkipsTriedSlots(t *testing.T) {
	clinician := uuid.New()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	first := slotAt(clinician, base)
	second := slotAt(clinician, base.Add(time.Hour))

	tried := map[uuid.UUID]struct{}{first.ID: {}}

	got, ok := NextEligible([]Slot{first, second}, base.Add(-time.Hour), nil, tried)
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)

	tried[second.ID] = struct{}{}
	_, ok = NextEligible([]Slot{first, second}, base.Add(-time.Hour), nil, tried)
	assert.False(t, ok)
}

func TestNextEligible_EmptyInput(t *testing.T) {
	_, ok := NextEligible(nil, time.Now(), nil, nil)
	assert.False(t, ok)
}
