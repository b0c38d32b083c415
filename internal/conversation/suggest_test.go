package conversation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wolfman30/medassist/internal/identity"
)

func TestInfer(t *testing.T) {
	now := time.Date(2025, 6, 9, 15, 0, 0, 0, time.UTC) // Monday
	roster := []string{"Dr. Sarah Johnson", "Dr. Mohit Adoni"}

	tests := []struct {
		name string
		text string
		role identity.Role
		want []string
	}{
		{"asks for date", "Which date would you like?", identity.RolePatient, []string{"Tuesday, June 10", "Wednesday, June 11"}},
		{"date wins over time", "What day and what time suit you?", identity.RolePatient, []string{"Tuesday, June 10", "Wednesday, June 11"}},
		{"time tokens", "Open slots: 9:00 AM, 2:30pm and 16:00. Which time works?", identity.RolePatient, []string{"9:00 AM", "2:30 PM", "4:00 PM"}},
		{"time defaults", "What time would you prefer?", identity.RolePatient, []string{"9:00 AM", "10:30 AM", "2:00 PM", "4:00 PM"}},
		{"confirmation", "Shall I book Dr. Adoni for you?", identity.RolePatient, []string{"Yes, confirm", "No, cancel"}},
		{"which doctor", "Which doctor would you like to see?", identity.RolePatient, roster},
		{"doctor menu", "Here are your numbers.", identity.RoleDoctor, []string{"Today's schedule", "Generate daily report", "Appointment stats"}},
		{"doctor still gets date chips", "Which date should the report cover?", identity.RoleDoctor, []string{"Tuesday, June 10", "Wednesday, June 11"}},
		{"nothing for patient", "Your appointment is confirmed.", identity.RolePatient, nil},
		{"empty", "", identity.RolePatient, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Infer(tt.text, tt.role, now, roster))
		})
	}
}

func TestInferWithoutRosterSkipsDoctorRule(t *testing.T) {
	now := time.Date(2025, 6, 9, 15, 0, 0, 0, time.UTC)
	assert.Nil(t, Infer("Which doctor would you like to see?", identity.RolePatient, now, nil))
}

func TestTimeTokensDedupAndCap(t *testing.T) {
	text := strings.Join([]string{"9am", "9:00 AM", "09:00", "10:00", "10:30", "11:00", "11:30", "12:00 pm", "1 p.m."}, ", ")
	assert.Equal(t, []string{"9:00 AM", "10:00 AM", "10:30 AM", "11:00 AM", "11:30 AM", "12:00 PM"}, TimeTokens(text))
}
