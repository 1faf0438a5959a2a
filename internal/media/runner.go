package media

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner executes an external binary. Tests inject a fake to avoid
// requiring ffmpeg on the machine running them.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// defaultCommandRunner executes the command and folds combined output into
// the error so stage failures carry the tool's diagnostics.
func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(output))
		if trimmed != "" {
			return fmt.Errorf("%w: %s", err, tail(trimmed, 2048))
		}
		return err
	}
	return nil
}

// tail keeps the last n bytes of tool output. ffmpeg prints its banner and
// progress first; the failure reason is at the end.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
