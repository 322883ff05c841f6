package misc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNotFoundError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain not found", errors.New("key not found"), true},
		{"wrapped os error", fmt.Errorf("read: %w", errors.New("open x: no such file or directory")), true},
		{"minio code", errors.New("NoSuchKey: The specified key does not exist."), true},
		{"other", errors.New("permission denied"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNotFoundError(tt.err))
		})
	}
}

func TestWipeBytes(t *testing.T) {
	data := []byte("passphrase")
	WipeBytes(data)
	assert.Equal(t, make([]byte, len("passphrase")), data)
	WipeBytes(nil)
}
