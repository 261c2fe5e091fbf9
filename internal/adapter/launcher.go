package adapter

import (
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
)

// Launcher opens server URLs in an external program: covers in an image
// viewer, media entries in a player.
type Launcher struct {
	kind       string   // "viewer" or "player", for logs
	command    string   // configured program, empty to detect
	args       []string // extra arguments placed before the URL
	candidates map[string][]string
	logger     *slog.Logger

	// run is swapped in tests
	run func(wait bool, name string, args ...string) error
}

// Programs tried in order when nothing is configured. An "open-a:" prefix
// launches a macOS app bundle through open(1).
var (
	viewerCandidates = map[string][]string{
		"darwin":  {"open-a:Preview"},
		"linux":   {"imv", "feh", "nsxiv", "sxiv", "eog"},
		"windows": {},
	}
	playerCandidates = map[string][]string{
		"darwin":  {"open-a:IINA", "vlc", "mpv"},
		"linux":   {"mpv", "celluloid", "haruna", "vlc"},
		"windows": {"vlc", "mpv", "PotPlayerMini64.exe"},
	}
)

// NewCoverViewer creates a launcher for cover images.
func NewCoverViewer(command string, args []string, logger *slog.Logger) *Launcher {
	return newLauncher("viewer", command, args, viewerCandidates, logger)
}

// NewPlayer creates a launcher for media entries.
func NewPlayer(command string, args []string, logger *slog.Logger) *Launcher {
	return newLauncher("player", command, args, playerCandidates, logger)
}

func newLauncher(kind, command string, args []string, candidates map[string][]string, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		kind:       kind,
		command:    command,
		args:       args,
		candidates: candidates,
		logger:     logger,
		run:        runCommand,
	}
}

// Launch opens target with the configured program, then the first detected
// candidate, then the system default handler.
func (l *Launcher) Launch(target string) error {
	if l.command != "" {
		l.logger.Info("launching configured program", "kind", l.kind, "command", l.command)
		return l.launchWith(l.command, target)
	}

	list, ok := l.candidates[runtime.GOOS]
	if !ok {
		list = l.candidates["linux"]
	}
	for _, name := range list {
		err := l.launchWith(name, target)
		if err == nil {
			l.logger.Info("launched detected program", "kind", l.kind, "program", name)
			return nil
		}
		l.logger.Debug("program not available", "kind", l.kind, "program", name, "error", err)
	}

	l.logger.Info("no candidate program found, using system default", "kind", l.kind)
	return l.launchDefault(target)
}

func (l *Launcher) launchWith(program, target string) error {
	if app, ok := strings.CutPrefix(program, "open-a:"); ok {
		args := []string{"-a", app}
		if len(l.args) > 0 {
			args = append(args, "--args")
			args = append(args, l.args...)
		}
		// open(1) only reports a missing app when waited for
		return l.run(true, "open", append(args, target)...)
	}
	args := append(append([]string{}, l.args...), target)
	return l.run(false, program, args...)
}

func (l *Launcher) launchDefault(target string) error {
	switch runtime.GOOS {
	case "darwin":
		return l.run(false, "open", target)
	case "windows":
		return l.run(false, "cmd", "/c", "start", "", target)
	default:
		return l.run(false, "xdg-open", target)
	}
}

// runCommand starts name, waiting for it only when wait is set. Programs
// missing from PATH fail before anything is started.
func runCommand(wait bool, name string, args ...string) error {
	if _, err := exec.LookPath(name); err != nil {
		return err
	}
	cmd := exec.Command(name, args...)
	if wait {
		return cmd.Run()
	}
	return cmd.Start()
}

// ServerURL turns a server path into an absolute URL for an external
// program. Credentials are carried in the userinfo since the program cannot
// prompt for them.
func ServerURL(base, path, username, password string) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + path)
	if err != nil {
		return "", fmt.Errorf("invalid cover url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("server url %q is not absolute", base)
	}
	if username != "" {
		u.User = url.UserPassword(username, password)
	}
	return u.String(), nil
}
