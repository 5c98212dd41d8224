//go:build !(linux || darwin || freebsd || openbsd || netbsd || dragonfly || windows)

package lockfile

import "os"

// No advisory locking on this platform.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
