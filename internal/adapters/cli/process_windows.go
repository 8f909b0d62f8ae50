//go:build windows

package cli

import "os/exec"

// configureProcAttr is a no-op on Windows (Setpgid not supported);
// CommandContext kills the process itself.
func configureProcAttr(_ *exec.Cmd) {}
