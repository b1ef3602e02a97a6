package template

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var fixedNow = time.Date(2024, time.March, 5, 9, 7, 0, 0, time.Local)

func TestApplyAtVariables(t *testing.T) {
	vars := DefaultVariables()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"me_name", "Привет, меня зовут {me_name}", "Привет, меня зовут AdminName"},
		{"discord", "{discord_me} {discord_zga} {discord_ga}", "me#9999 zga#5678 admin#1234"},
		{"date and time", "{date} {time}", "05.03.2024 09:07"},
		{"unknown placeholder kept", "/ajail {id} {time}", "/ajail {id} 09:07"},
		{"repeated", "{me_name}{me_name}", "AdminNameAdminName"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ApplyAt(tt.in, vars, fixedNow))
		})
	}
}

func TestApplyAtMissingVariable(t *testing.T) {
	assert.Equal(t, "name: ", ApplyAt("name: {me_name}", Variables{}, fixedNow))
	assert.Equal(t, "x", ApplyAt("x", nil, fixedNow))
}

func TestApplyUsesCurrentDate(t *testing.T) {
	before := time.Now().Format(dateLayout)
	got := Apply("{date}", nil)
	after := time.Now().Format(dateLayout)
	assert.Contains(t, []string{before, after}, got)
}

func TestGenderBlocks(t *testing.T) {
	male := Variables{Gender: Male}
	female := Variables{Gender: Female}

	tests := []struct {
		name string
		in   string
		vars Variables
		want string
	}{
		{"male", "Я {g:сделал|сделала} это", male, "Я сделал это"},
		{"female", "Я {g:сделал|сделала} это", female, "Я сделала это"},
		{"missing gender is male", "{g:a|b}", Variables{}, "a"},
		{"two blocks", "{g:a|b}-{g:c|d}", female, "b-d"},
		{"split on first bar", "{g:a|b|c}", female, "b|c"},
		{"no closing brace", "x {g:a|b", male, "x {g:a|b"},
		{"no separator stops scan", "{g:ab} {g:c|d}", male, "{g:ab} {g:c|d}"},
		{"earlier blocks survive a stop", "{g:a|b} {g:cd}", male, "a {g:cd}"},
		{"empty branches", "[{g:|}]", male, "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ApplyAt(tt.in, tt.vars, fixedNow))
		})
	}
}

func TestNoRecursiveExpansion(t *testing.T) {
	vars := Variables{MeName: "{discord_me}", DiscordMe: "leak", Gender: Male}
	assert.Equal(t, "{discord_me}", ApplyAt("{me_name}", vars, fixedNow))

	vars = Variables{MeName: "{g:x|y}", Gender: Male}
	assert.Equal(t, "{g:x|y}", ApplyAt("{me_name}", vars, fixedNow))
}

func TestVariableValueKeptLiteralNextToBlocks(t *testing.T) {
	vars := Variables{MeName: "A|B}", DiscordMe: "{g:", Gender: Female}
	got := ApplyAt("{discord_me}{g:m|f} {me_name}", vars, fixedNow)
	assert.Equal(t, "{g:f A|B}", got)
}


func TestGenderOutputNotRescanned(t *testing.T) {
	// The male branch contains the opening of another block; scanning resumes
	// after the replaced block so that text stays literal.
	got := ApplyAt("{g:{g:|x}-{g:m|f}", Variables{Gender: Male}, fixedNow)
	assert.Equal(t, "{g:-m", got)
}

func TestVariablesClone(t *testing.T) {
	v := DefaultVariables()
	c := v.Clone()
	c[MeName] = "Other"
	assert.Equal(t, "AdminName", v[MeName])
	assert.False(t, v.Female())
	assert.True(t, Variables{Gender: Female}.Female())
}
