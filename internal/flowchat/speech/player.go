package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrUnsupported is returned when no audio player is available.
var ErrUnsupported = errors.New("speech playback is not supported: no audio player found (set speech_player)")

// Player plays WAV audio.
type Player interface {
	Play(ctx context.Context, wav []byte) error
}

// knownPlayers are tried in order when no player is configured.
var knownPlayers = [][]string{
	{"afplay"},
	{"paplay"},
	{"aplay", "-q"},
	{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"},
}

// CommandPlayer writes audio to a temp file and runs an external player on it.
type CommandPlayer struct {
	command []string
}

// NewCommandPlayer returns a player for the given command line ("aplay -q").
// An empty command detects one of the known players on PATH.
func NewCommandPlayer(command string) (*CommandPlayer, error) {
	if fields := strings.Fields(command); len(fields) > 0 {
		if _, err := exec.LookPath(fields[0]); err != nil {
			return nil, fmt.Errorf("speech player %q: %w", fields[0], err)
		}
		return &CommandPlayer{command: fields}, nil
	}
	for _, candidate := range knownPlayers {
		if _, err := exec.LookPath(candidate[0]); err == nil {
			return &CommandPlayer{command: candidate}, nil
		}
	}
	return nil, ErrUnsupported
}

// Command returns the player command line
func (p *CommandPlayer) Command() string {
	return strings.Join(p.command, " ")
}

// Play blocks until playback finishes or ctx is cancelled.
func (p *CommandPlayer) Play(ctx context.Context, wav []byte) error {
	tmpFile, err := os.CreateTemp("", "flowchat-*.wav")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(wav); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write audio: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to write audio: %w", err)
	}

	args := append(append([]string(nil), p.command[1:]...), tmpFile.Name())
	cmd := exec.CommandContext(ctx, p.command[0], args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("audio player failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
