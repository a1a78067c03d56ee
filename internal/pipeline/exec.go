package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// runTool executes an external binary and returns its stdout. Failures wrap
// ErrTool and carry the tool's stderr so logs show what the tool complained
// about.
func runTool(ctx context.Context, bin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return "", fmt.Errorf("%w: %s: %v: %s", ErrTool, bin, err, detail)
		}
		return "", fmt.Errorf("%w: %s: %v", ErrTool, bin, err)
	}

	return stdout.String(), nil
}
