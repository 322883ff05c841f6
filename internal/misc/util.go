package misc

import "strings"

func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "not found") ||
		strings.Contains(errStr, "does not exist") ||
		strings.Contains(errStr, "no such file") ||
		strings.Contains(errStr, "NoSuchKey")
}

// WipeBytes zeroes a heap slice that held secret material.
func WipeBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
