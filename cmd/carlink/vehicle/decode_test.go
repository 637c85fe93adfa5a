package vehicle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_decodeRecognizedKeys(t *testing.T) {
	base := Initial()
	tests := []struct {
		line string
		want func(s *State)
	}{
		{line: "ENGINE_RUNNING: 1", want: func(s *State) { s.EngineRunning = true }},
		{line: "RPM: 4200", want: func(s *State) { s.RPM = 4200 }},
		{line: "SPEED: 87", want: func(s *State) { s.Speed = 87 }},
		{line: "GEAR: 3", want: func(s *State) { s.Gear = 3 }},
		{line: "THROTTLE: 100", want: func(s *State) { s.Throttle = 100 }},
		{line: "RPM_STATUS: SHIFT_DOWN", want: func(s *State) { s.RPMStatus = StatusShiftDown }},
		{line: "HANDBRAKE: 0", want: func(s *State) { s.Handbrake = false }},
		{line: "  RPM  :  900  ", want: func(s *State) { s.RPM = 900 }},
		{line: "RPM:1200", want: func(s *State) { s.RPM = 1200 }},
	}

	d := Decoder{Limits: DefaultLimits}
	for _, test := range tests {
		t.Run(test.line, func(t *testing.T) {
			want := base
			test.want(&want)
			got, ok := d.Apply(base, test.line)
			require.True(t, ok)
			assert.Equal(t, want, got)
		})
	}
}

func Test_decodeSkips(t *testing.T) {
	base := State{EngineRunning: true, RPM: 2500, Speed: 40, Gear: 2, Throttle: 30, RPMStatus: StatusOK, Handbrake: false}
	tests := []string{
		"RPM: fast",
		"RPM: -5",
		"SPEED: 12.5",
		"GEAR: 0",
		"GEAR: 6",
		"THROTTLE: 101",
		"RPM_STATUS: SIDEWAYS",
		"OIL_TEMP: 90",
		"no separator here",
		"",
		"--- STATUS ---",
	}

	d := Decoder{Limits: DefaultLimits}
	for _, line := range tests {
		t.Run(line, func(t *testing.T) {
			got, ok := d.Apply(base, line)
			assert.False(t, ok)
			assert.Equal(t, base, got)
		})
	}
}

func Test_decodeFlags(t *testing.T) {
	d := Decoder{Limits: DefaultLimits}
	s := State{EngineRunning: true}
	for _, v := range []string{"0", "true", "yes", "", "11"} {
		got, ok := d.Apply(s, "ENGINE_RUNNING: "+v)
		require.True(t, ok)
		assert.False(t, got.EngineRunning, v)
	}
}

func Test_decodeSplitsAtFirstSeparator(t *testing.T) {
	key, value, ok := SplitLine("RPM_STATUS: a:b")
	require.True(t, ok)
	assert.Equal(t, "RPM_STATUS", key)
	assert.Equal(t, "a:b", value)
}

func Test_decodeIdempotent(t *testing.T) {
	d := Decoder{Limits: DefaultLimits}
	lines := []string{"RPM: 3100", "GEAR: 4", "ENGINE_RUNNING: 1", "RPM_STATUS: HIGH", "HANDBRAKE: 1"}
	for _, line := range lines {
		once, _ := d.Apply(Initial(), line)
		twice, _ := d.Apply(once, line)
		assert.Equal(t, once, twice, line)
	}
}

func Test_decodeGearUsesConfiguredLimit(t *testing.T) {
	d := Decoder{Limits: Limits{MaxGears: 6}}
	got, ok := d.Apply(Initial(), "GEAR: 6")
	require.True(t, ok)
	assert.Equal(t, 6, got.Gear)
}
