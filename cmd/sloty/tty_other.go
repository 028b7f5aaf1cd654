//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly

package main

// isTerminal always reports false; commands are read line by line instead.
func isTerminal(uintptr) bool {
	return false
}
