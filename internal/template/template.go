// Package template expands placeholders in bind content.
//
// Supported forms:
//   - {discord_me}, {discord_zga}, {discord_ga}, {me_name}: profile variables
//   - {date}: current date as DD.MM.YYYY
//   - {time}: current time as HH:MM
//   - {g:MALE|FEMALE}: gendered choice driven by the gender variable
//
// Expansion is a single pass. Text produced by a replacement is never
// scanned again.
package template

import (
	"strings"
	"time"
)

// Variable names recognised in content.
const (
	DiscordMe  = "discord_me"
	DiscordZGA = "discord_zga"
	DiscordGA  = "discord_ga"
	MeName     = "me_name"
	Gender     = "gender"
)

// Gender values.
const (
	Male   = "male"
	Female = "female"
)

const (
	dateLayout = "02.01.2006"
	timeLayout = "15:04"
	genderOpen = "{g:"
)

// Variables is the per-profile set of substitution values.
type Variables map[string]string

// DefaultVariables returns the values seeded into a new profile.
func DefaultVariables() Variables {
	return Variables{
		Gender:     Male,
		DiscordMe:  "me#9999",
		DiscordZGA: "zga#5678",
		DiscordGA:  "admin#1234",
		MeName:     "AdminName",
	}
}

// Clone returns an independent copy.
func (v Variables) Clone() Variables {
	out := make(Variables, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Female reports whether the female branch of {g:} blocks applies.
func (v Variables) Female() bool {
	return v[Gender] == Female
}

// Apply expands text using the current local time.
func Apply(text string, vars Variables) string {
	return ApplyAt(text, vars, time.Now())
}

// ApplyAt expands text as of now. Gender blocks are resolved on the raw text
// first, so variable values are inserted verbatim and never scanned.
func ApplyAt(text string, vars Variables, now time.Time) string {
	r := strings.NewReplacer(
		"{"+DiscordMe+"}", vars[DiscordMe],
		"{"+DiscordZGA+"}", vars[DiscordZGA],
		"{"+DiscordGA+"}", vars[DiscordGA],
		"{"+MeName+"}", vars[MeName],
		"{date}", now.Format(dateLayout),
		"{time}", now.Format(timeLayout),
	)
	return r.Replace(expandGender(text, vars.Female()))
}

// expandGender resolves {g:MALE|FEMALE} blocks left to right. A block that
// has no closing brace or no separator stops the scan and the rest of the
// text is returned as is.
func expandGender(text string, female bool) string {
	var b strings.Builder
	rest := text
	for {
		start := strings.Index(rest, genderOpen)
		if start < 0 {
			break
		}
		body := rest[start+len(genderOpen):]
		end := strings.IndexByte(body, '}')
		if end < 0 {
			break
		}
		male, fem, ok := strings.Cut(body[:end], "|")
		if !ok {
			break
		}
		b.WriteString(rest[:start])
		if female {
			b.WriteString(fem)
		} else {
			b.WriteString(male)
		}
		rest = body[end+1:]
	}
	b.WriteString(rest)
	return b.String()
}
