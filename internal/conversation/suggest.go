package conversation

import (
	"regexp"
	"strings"
	"time"

	"github.com/wolfman30/medassist/internal/identity"
)

const maxTimeSuggestions = 6

var (
	defaultTimeSuggestions = []string{"9:00 AM", "10:30 AM", "2:00 PM", "4:00 PM"}
	confirmSuggestions     = []string{"Yes, confirm", "No, cancel"}
	doctorMenuSuggestions  = []string{"Today's schedule", "Generate daily report", "Appointment stats"}
	askDatePattern         = regexp.MustCompile(`(?i)\b(which|what|preferred|preference for( a)?|choose a|pick a)\s+(date|day)\b|\bwhen would you like\b|\bwhat day\b`)
	askTimePattern         = regexp.MustCompile(`(?i)\b(which|what|preferred|choose a|pick a)\s+(time|slot)s?\b|\bwhat time\b|\btime works\b|\bavailable (slots|times)\b`)
	askConfirmPattern      = regexp.MustCompile(`(?i)\b(confirm|shall i (book|proceed)|should i (book|proceed)|would you like (me )?to (book|proceed)|is (this|that) correct|do you want (me )?to (book|proceed))\b`)
	askDoctorPattern       = regexp.MustCompile(`(?i)\b(which|what|preferred|choose a)\s+doctor\b|\bwhich (physician|specialist)\b|\bwho would you like to see\b`)
	timeTokenPattern       = regexp.MustCompile(`(?i)\b(1[0-2]|0?[1-9])(?::([0-5][0-9]))?\s*([ap])\.?\s*m\b\.?|\b([01]?[0-9]|2[0-3]):([0-5][0-9])\b`)
)

// Infer proposes quick replies for the assistant's latest message. Rules are
// checked in order and the first match wins.
func Infer(text string, role identity.Role, now time.Time, doctorNames []string) []string {
	text = strings.TrimSpace(text)
	switch {
	case askDatePattern.MatchString(text):
		return []string{dayLabel(now.AddDate(0, 0, 1)), dayLabel(now.AddDate(0, 0, 2))}
	case askTimePattern.MatchString(text):
		if found := TimeTokens(text); len(found) > 0 {
			return found
		}
		return append([]string(nil), defaultTimeSuggestions...)
	case askConfirmPattern.MatchString(text):
		return append([]string(nil), confirmSuggestions...)
	case askDoctorPattern.MatchString(text) && len(doctorNames) > 0:
		return append([]string(nil), doctorNames...)
	case role == identity.RoleDoctor:
		return append([]string(nil), doctorMenuSuggestions...)
	}
	return nil
}

// TimeTokens extracts clock times from text as "3:04 PM", in order of
// appearance without duplicates.
func TimeTokens(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range timeTokenPattern.FindAllStringSubmatch(text, -1) {
		var t time.Time
		var err error
		if m[3] != "" {
			minute := m[2]
			if minute == "" {
				minute = "00"
			}
			t, err = time.Parse("3:04 PM", strings.TrimLeft(m[1], "0")+":"+minute+" "+strings.ToUpper(m[3])+"M")
		} else {
			t, err = time.Parse("15:04", pad2(m[4])+":"+m[5])
		}
		if err != nil {
			continue
		}
		label := t.Format("3:04 PM")
		if seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
		if len(out) == maxTimeSuggestions {
			break
		}
	}
	return out
}

func dayLabel(t time.Time) string {
	return t.Format("Monday, January 2")
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
