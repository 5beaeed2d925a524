package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{
		UploadDate: time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC),
		ID:         uuid.MustParse("7d1c5e0a-5f0e-4b5a-9d43-0f7a1d2c3b4e"),
	}

	decoded, err := DecodeCursor(c.Encode())
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if !decoded.UploadDate.Equal(c.UploadDate) || decoded.ID != c.ID {
		t.Fatalf("decoded %+v, want %+v", decoded, c)
	}
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"%%%", "bm90LWEtY3Vyc29y", "MTIzfG5vdC1hLXV1aWQ"} {
		if _, err := DecodeCursor(raw); KindOf(err) != KindValidation {
			t.Errorf("DecodeCursor(%q) error = %v, want validation error", raw, err)
		}
	}

	c, err := DecodeCursor("")
	if err != nil || c != nil {
		t.Fatalf("empty cursor should decode to nil, got %v, %v", c, err)
	}
}

func TestCursorBefore(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")
	c := &Cursor{UploadDate: base, ID: low}

	if !c.Before(base.Add(-time.Minute), uuid.New()) {
		t.Error("older rows belong to later pages")
	}
	if c.Before(base.Add(time.Minute), uuid.New()) {
		t.Error("newer rows belong to earlier pages")
	}
	if !c.Before(base, high) {
		t.Error("same date, larger id belongs to a later page")
	}
	if c.Before(base, low) {
		t.Error("the cursor row itself is not on the next page")
	}
}

func TestPageSize(t *testing.T) {
	cases := map[int]int{0: DefaultPageSize, -5: DefaultPageSize, 7: 7, 1000: MaxPageSize}
	for in, want := range cases {
		if got := (RecordFilter{Limit: in}).PageSize(); got != want {
			t.Errorf("PageSize(%d) = %d, want %d", in, got, want)
		}
	}
}
