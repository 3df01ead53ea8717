package keyspace

import (
	"encoding/base64"
	"testing"

	"github.com/clinnotes/clinnotes/internal/platform/kvstore"
)

func TestCursor_RoundTrip(t *testing.T) {
	partition := PatientPartition("clinic-1", "patient-1")
	key := kvstore.Key{Partition: partition, Sort: NoteSort("2024-03-15", "note-7")}

	cursor := EncodeCursor(key)
	if cursor == "" {
		t.Fatal("expected non-empty cursor")
	}

	decoded := DecodeCursor(cursor, partition)
	if decoded == nil {
		t.Fatal("expected cursor to decode")
	}
	if *decoded != key {
		t.Errorf("expected %+v, got %+v", key, *decoded)
	}
}

func TestDecodeCursor_Empty(t *testing.T) {
	if got := DecodeCursor("", PatientPartition("c", "p")); got != nil {
		t.Errorf("expected nil for empty cursor, got %+v", got)
	}
}

func TestDecodeCursor_Garbage(t *testing.T) {
	partition := PatientPartition("clinic-1", "patient-1")
	cases := []string{
		"not base64 at all!!!",
		base64.RawURLEncoding.EncodeToString([]byte("not json")),
		base64.RawURLEncoding.EncodeToString([]byte(`{"pk":123}`)),
	}
	for _, cursor := range cases {
		if got := DecodeCursor(cursor, partition); got != nil {
			t.Errorf("DecodeCursor(%q): expected nil, got %+v", cursor, got)
		}
	}
}

func TestDecodeCursor_WrongPartition(t *testing.T) {
	cursor := EncodeCursor(kvstore.Key{
		Partition: PatientPartition("clinic-1", "patient-1"),
		Sort:      NoteSort("2024-03-15", "note-7"),
	})

	// A cursor issued for one patient must not resume a scan of another.
	if got := DecodeCursor(cursor, PatientPartition("clinic-1", "patient-2")); got != nil {
		t.Errorf("expected nil for mismatched partition, got %+v", got)
	}
	if got := DecodeCursor(cursor, PatientPartition("clinic-2", "patient-1")); got != nil {
		t.Errorf("expected nil for mismatched clinic, got %+v", got)
	}
}

func TestDecodeCursor_ForgedSortKey(t *testing.T) {
	partition := PatientPartition("clinic-1", "patient-1")

	// Sort keys outside the note family are rejected even when the
	// partition matches.
	for _, sort := range []string{"METADATA", "PATIENT#p2", "", "NOTE#2024-03-15"} {
		cursor := EncodeCursor(kvstore.Key{Partition: partition, Sort: sort})
		if got := DecodeCursor(cursor, partition); got != nil {
			t.Errorf("sort %q: expected nil, got %+v", sort, got)
		}
	}
}

func TestDecodeCursor_RebuildsPartition(t *testing.T) {
	partition := PatientPartition("clinic-1", "patient-1")
	cursor := EncodeCursor(kvstore.Key{Partition: partition, Sort: NoteSort("2024-03-15", "note-7")})

	decoded := DecodeCursor(cursor, partition)
	if decoded == nil {
		t.Fatal("expected cursor to decode")
	}
	if decoded.Partition != partition {
		t.Errorf("expected partition %s, got %s", partition, decoded.Partition)
	}
}
