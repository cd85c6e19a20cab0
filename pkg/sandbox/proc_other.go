//go:build !unix

package sandbox

import "os/exec"

// isolateProcessGroup falls back to killing the direct child only.
func isolateProcessGroup(cmd *exec.Cmd) {}
