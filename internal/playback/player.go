package playback

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// PathArg is replaced by the WAV path in a player command line.
const PathArg = "{file}"

// ErrPlayerInterrupted is returned when a player was killed by a signal,
// typically the user pressing Ctrl+C while it played.
var ErrPlayerInterrupted = errors.New("player interrupted")

// Player plays a finished WAV file to completion.
type Player interface {
	Play(ctx context.Context, path string) error
}

// CommandPlayer tries external player commands in order until one exits
// cleanly. Commands whose executable is not on PATH are skipped. A player
// killed by a signal ends the search.
type CommandPlayer struct {
	Commands [][]string
}

// DefaultPlayer returns the player commands for goos, in priority order.
func DefaultPlayer(goos string) *CommandPlayer {
	switch goos {
	case "windows":
		return &CommandPlayer{Commands: [][]string{
			{"powershell", "-NoProfile", "-c", "(New-Object Media.SoundPlayer '" + PathArg + "').PlaySync()"},
		}}
	case "darwin":
		return &CommandPlayer{Commands: [][]string{
			{"afplay", PathArg},
		}}
	default:
		return &CommandPlayer{Commands: [][]string{
			{"aplay", "-q", PathArg},
			{"ffplay", "-nodisp", "-autoexit", "-hide_banner", "-loglevel", "panic", PathArg},
			{"play", "-q", PathArg},
		}}
	}
}

func (p *CommandPlayer) Play(ctx context.Context, path string) error {
	var errs []error
	for _, cmdline := range p.Commands {
		if len(cmdline) == 0 {
			continue
		}
		name, err := exec.LookPath(cmdline[0])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		args := make([]string, len(cmdline)-1)
		for i, a := range cmdline[1:] {
			args[i] = strings.ReplaceAll(a, PathArg, path)
		}
		if err := exec.CommandContext(ctx, name, args...).Run(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) && exitErr.ExitCode() == -1 {
				return fmt.Errorf("%s: %w (%v)", cmdline[0], ErrPlayerInterrupted, err)
			}
			errs = append(errs, fmt.Errorf("%s: %w", cmdline[0], err))
			continue
		}
		return nil
	}
	if len(errs) == 0 {
		return errors.New("no player configured")
	}
	return errors.Join(errs...)
}
