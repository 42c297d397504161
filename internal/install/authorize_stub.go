//go:build !darwin

package install

// authorizeExecution is a no-op outside macOS. The 0755 mode set during
// install is all other platforms need.
func authorizeExecution(_ string) {}
