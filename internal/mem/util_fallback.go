//go:build !linux && !darwin && !freebsd && !openbsd && !netbsd && !dragonfly && !windows

package mem

func lockMemoryPlatform() (ProtectionLevel, error) {
	// memguard still wipes buffers, but nothing stops the OS from swapping
	return ProtectionPartial, nil
}

func unlockMemoryPlatform() error {
	return nil
}
