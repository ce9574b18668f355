package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPlayer_WindowsKeepsPathOutOfScript(t *testing.T) {
	t.Parallel()

	player, err := defaultPlayer("windows")
	require.NoError(t, err)

	path := `C:\Users\o'brien\AppData\Local\Temp\valvoice\tts_output-1.wav`
	args := player.expandArgs(path)

	assert.Equal(t, "powershell", player.command)
	for _, arg := range args {
		assert.NotContains(t, arg, "o'brien")
	}

	assert.Contains(t, args[len(args)-1], "$env:"+FileEnv)
}

func TestDefaultPlayer_Platforms(t *testing.T) {
	t.Parallel()

	player, err := defaultPlayer("linux")
	require.NoError(t, err)
	assert.Equal(t, []string{"-q", "/tmp/a.wav"}, player.expandArgs("/tmp/a.wav"))

	player, err = defaultPlayer("darwin")
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/a.wav"}, player.expandArgs("/tmp/a.wav"))

	_, err = defaultPlayer("plan9")
	require.ErrorIs(t, err, ErrNoPlayerCommand)
}
