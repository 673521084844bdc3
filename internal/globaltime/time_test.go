package globaltime

import (
	"testing"
	"time"
)

func TestFreezePinsClockUntilRestore(t *testing.T) {
	pinned := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.FixedZone("CET", 3600))
	restore := Freeze(pinned)

	if got := Now(); !got.Equal(pinned) {
		t.Fatalf("Now() = %s, want %s", got, pinned)
	}
	got := UTC()
	if got.Location() != time.UTC {
		t.Fatalf("UTC() location = %s, want UTC", got.Location())
	}
	want := time.Date(2026, 3, 14, 8, 26, 53, 589793000, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("UTC() = %s, want %s", got, want)
	}

	restore()
	if got := Now(); got.Equal(pinned) {
		t.Fatalf("Now() still pinned after restore")
	}
}

func TestNestedFreezeRestoresPreviousClock(t *testing.T) {
	outer := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	inner := outer.Add(48 * time.Hour)

	restoreOuter := Freeze(outer)
	defer restoreOuter()

	restoreInner := Freeze(inner)
	if got := UTC(); !got.Equal(inner) {
		t.Fatalf("UTC() = %s, want %s", got, inner)
	}
	restoreInner()

	if got := UTC(); !got.Equal(outer) {
		t.Fatalf("UTC() after inner restore = %s, want %s", got, outer)
	}
}
