//go:build unix

package config

import "golang.org/x/sys/unix"

// readable reports whether the directory can be listed by this process.
func readable(path string) bool {
	return unix.Access(path, unix.R_OK|unix.X_OK) == nil
}
