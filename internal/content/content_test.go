package content

import (
	"reflect"
	"testing"
)

func TestSourceSetDeduplicatesAndSorts(t *testing.T) {
	t.Parallel()

	got := SourceSet([]string{"reuters", " ap ", ""}, []string{"ap", "bbc"})
	want := []string{"ap", "bbc", "reuters"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected source set: got %v want %v", got, want)
	}
}

func TestRecordIDSetDeduplicatesAndSorts(t *testing.T) {
	t.Parallel()

	got := RecordIDSet([]int64{7, 3}, []int64{3, 1})
	want := []int64{1, 3, 7}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected id set: got %v want %v", got, want)
	}
}

func TestRecordStatusValid(t *testing.T) {
	t.Parallel()

	for _, status := range []RecordStatus{StatusUnprocessed, StatusDuplicate, StatusPrimary} {
		if !status.Valid() {
			t.Fatalf("expected %q to be valid", status)
		}
	}
	if RecordStatus("merged").Valid() {
		t.Fatalf("did not expect unknown status to be valid")
	}
	if !(Record{Status: StatusDuplicate}).IsDuplicate() {
		t.Fatalf("expected duplicate status to report IsDuplicate")
	}
}
