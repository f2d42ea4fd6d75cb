//go:build !linux

package platform

func lockMemory() error { return ErrUnsupported }

func setNice(int) error { return ErrUnsupported }

func access(string) error { return ErrUnsupported }
