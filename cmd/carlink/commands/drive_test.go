package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/eiannone/keyboard"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/toitlang/carlink/cmd/carlink/input"
	"github.com/toitlang/carlink/cmd/carlink/link"
	"github.com/toitlang/carlink/cmd/carlink/vehicle"
)

type fakeControls struct {
	pressed   []input.Control
	released  []input.Control
	submitted []link.Command
	err       error
}

func (f *fakeControls) Press(c input.Control) error {
	f.pressed = append(f.pressed, c)
	return f.err
}

func (f *fakeControls) Release(c input.Control) {
	f.released = append(f.released, c)
}

func (f *fakeControls) Submit(cmd link.Command) error {
	f.submitted = append(f.submitted, cmd)
	return f.err
}

func Test_keyHolder(t *testing.T) {
	start := time.Unix(1000, 0)

	t.Run("key map", func(t *testing.T) {
		c := &fakeControls{}
		h := newKeyHolder(c, 500*time.Millisecond)
		assert.False(t, h.Key('p', 0, start))
		assert.False(t, h.Key(0, keyboard.KeySpace, start))
		assert.False(t, h.Key(0, keyboard.KeyArrowUp, start))
		assert.False(t, h.Key(0, keyboard.KeyArrowDown, start))
		assert.False(t, h.Key(0, keyboard.KeyArrowRight, start))
		assert.False(t, h.Key(0, keyboard.KeyArrowLeft, start))
		assert.False(t, h.Key('x', 0, start))

		assert.Equal(t, []link.Command{link.EngineToggle, link.HandbrakeToggle}, c.submitted)
		assert.Equal(t, []input.Control{input.Accelerate, input.Brake, input.ShiftUp, input.ShiftDown}, c.pressed)
	})

	t.Run("quit keys", func(t *testing.T) {
		h := newKeyHolder(&fakeControls{}, time.Second)
		assert.True(t, h.Key('q', 0, start))
		assert.True(t, h.Key(0, keyboard.KeyEsc, start))
		assert.True(t, h.Key(0, keyboard.KeyCtrlC, start))
	})

	t.Run("release after silence", func(t *testing.T) {
		c := &fakeControls{}
		h := newKeyHolder(c, 500*time.Millisecond)
		h.Key(0, keyboard.KeyArrowUp, start)
		h.Key(0, keyboard.KeyArrowUp, start.Add(300*time.Millisecond))

		h.Expire(start.Add(600 * time.Millisecond))
		assert.Empty(t, c.released)

		h.Expire(start.Add(800 * time.Millisecond))
		assert.Equal(t, []input.Control{input.Accelerate}, c.released)

		h.Expire(start.Add(2 * time.Second))
		assert.Len(t, c.released, 1)
	})

	t.Run("failures are shown", func(t *testing.T) {
		c := &fakeControls{err: link.ErrNotConnected}
		h := newKeyHolder(c, time.Second)
		h.Key(0, keyboard.KeyArrowRight, start)
		assert.Equal(t, link.ErrNotConnected.Error(), h.notice)

		c.err = nil
		h.Key('p', 0, start)
		assert.Empty(t, h.notice)
	})
}

func Test_driveView(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = noColor }()

	var out bytes.Buffer
	v := newDriveView(&out)
	v.ConnectionChanged(true, "connected: /dev/ttyUSB0")
	for i := 0; i < viewLines+2; i++ {
		v.LineReceived("line " + string(rune('a'+i)))
	}

	s := vehicle.Initial()
	s.EngineRunning = true
	s.RPM = 6800
	s.RPMStatus = vehicle.StatusRedline
	d := s.Derive(vehicle.DefaultLimits)
	conn := link.ConnectionState{Status: link.Connected, Port: "/dev/ttyUSB0"}

	frame := v.frame(conn, s, d, "not connected")
	assert.Contains(t, frame, "connected /dev/ttyUSB0")
	assert.Contains(t, frame, "connected: /dev/ttyUSB0")
	assert.Contains(t, frame, "running")
	assert.Contains(t, frame, " 6800 critical")
	assert.Contains(t, frame, "redline warning")
	assert.Contains(t, frame, "applied")
	assert.Contains(t, frame, "not connected")
	assert.NotContains(t, frame, "line a\r\n")
	assert.Contains(t, frame, "line h\r\n")
	for _, l := range strings.Split(strings.TrimSuffix(frame, "\r\n"), "\r\n") {
		assert.NotContains(t, l, "\n")
	}

	v.Render(conn, s, d, "")
	assert.True(t, strings.HasPrefix(out.String(), "\x1b[H\x1b[2J"))
}
