package terminal

import (
	"os"
)

// ColorEnabled reports whether output should be colored: stdout is a
// terminal and NO_COLOR is unset
func ColorEnabled() bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	return isCharDevice(os.Stdout)
}

// Interactive reports whether stdin is a terminal
func Interactive() bool {
	return isCharDevice(os.Stdin)
}

func isCharDevice(file *os.File) bool {
	info, err := file.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
