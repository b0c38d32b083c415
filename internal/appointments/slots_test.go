package appointments

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateSlotsFullDay(t *testing.T) {
	slots, err := GenerateSlots("09:00", "17:00", 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	if len(slots) != 16 {
		t.Fatalf("expected 16 slots, got %d: %v", len(slots), slots)
	}
	if slots[0] != "09:00" || slots[15] != "16:30" {
		t.Fatalf("unexpected bounds: first=%s last=%s", slots[0], slots[15])
	}
	for i := 1; i < len(slots); i++ {
		if slots[i] <= slots[i-1] {
			t.Fatalf("slots not chronological at %d: %v", i, slots)
		}
	}
}

func TestGenerateSlotsPartialTail(t *testing.T) {
	slots, err := GenerateSlots("09:00", "10:45", 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateSlots: %v", err)
	}
	want := []string{"09:00", "09:30", "10:00"}
	if len(slots) != len(want) {
		t.Fatalf("expected %v, got %v", want, slots)
	}
	for i := range want {
		if slots[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, slots)
		}
	}
}

func TestGenerateSlotsRejectsBadWindow(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		duration time.Duration
	}{
		{"inverted", "17:00", "09:00", 30 * time.Minute},
		{"zero duration", "09:00", "17:00", 0},
		{"garbage", "nine", "17:00", 30 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateSlots(tt.from, tt.to, tt.duration)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestFreeSlotsSubtractsBooked(t *testing.T) {
	all, _ := GenerateSlots("09:00", "17:00", 30*time.Minute)
	free := FreeSlots(all, []string{"9:00", "13:30", "not-a-time"})
	if len(free) != 14 {
		t.Fatalf("expected 14 free slots, got %d", len(free))
	}
	for _, slot := range free {
		if slot == "09:00" || slot == "13:30" {
			t.Fatalf("booked slot %s still offered", slot)
		}
	}
}

func TestFreeSlotsFullyBooked(t *testing.T) {
	all, _ := GenerateSlots("09:00", "10:00", 30*time.Minute)
	free := FreeSlots(all, all)
	if free == nil || len(free) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", free)
	}
}

func TestNormalizeClock(t *testing.T) {
	tests := map[string]string{
		"9:00":     "09:00",
		"09:30":    "09:30",
		"14:00:00": "14:00",
	}
	for in, want := range tests {
		got, err := NormalizeClock(in)
		if err != nil || got != want {
			t.Fatalf("NormalizeClock(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := NormalizeClock("2pm"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for 2pm, got %v", err)
	}
}
