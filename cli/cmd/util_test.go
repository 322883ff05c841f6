package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/serious-company/rd-themis/persist"
)

func TestDecodeArg(t *testing.T) {
	data, err := decodeArg("hello", "raw")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	data, err = decodeArg("aGVsbG8=", "base64")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	data, err = decodeArg("68656c6c6f", "HEX")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	_, err = decodeArg("zz", "hex")
	assert.Error(t, err)

	_, err = decodeArg("hello", "rot13")
	assert.Error(t, err)
}

func TestEncodeBytes(t *testing.T) {
	payload := []byte{0x00, 0xff, 0x10}

	for _, encoding := range []string{"raw", "base64", "hex"} {
		text, err := encodeBytes(payload, encoding)
		require.NoError(t, err)

		decoded, err := decodeArg(text, encoding)
		require.NoError(t, err)
		assert.Equal(t, payload, decoded, encoding)
	}

	_, err := encodeBytes(payload, "ascii85")
	assert.Error(t, err)
}

func TestParseQueryTime(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseQueryTime("90m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-90*time.Minute), got)

	got, err = parseQueryTime("2024-04-30T08:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 4, 30, 8, 0, 0, 0, time.UTC), got)

	_, err = parseQueryTime("yesterday", now)
	assert.Error(t, err)
}

func TestValidateS3Config(t *testing.T) {
	valid := persist.S3Config{Endpoint: "localhost:9000", Bucket: "cells"}
	assert.NoError(t, validateS3Config(valid))

	err := validateS3Config(persist.S3Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.s3.endpoint")
	assert.Contains(t, err.Error(), "store.s3.bucket")

	halfCredentials := valid
	halfCredentials.AccessKeyID = "minio"
	err = validateS3Config(halfCredentials)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.s3.secret_access_key")
}

func TestSensitiveKeys(t *testing.T) {
	assert.True(t, isSensitiveConfigKey("store.s3.secret_access_key"))
	assert.True(t, isSensitiveConfigKey("passphrase"))
	assert.False(t, isSensitiveConfigKey("store.s3.bucket"))

	config := map[string]interface{}{
		"passphrase": "hunter2",
		"store": map[string]interface{}{
			"s3": map[string]interface{}{"secret_access_key": "abc", "bucket": "cells"},
		},
	}
	maskSensitiveValues(config)
	assert.Equal(t, "[REDACTED]", config["passphrase"])
	s3 := config["store"].(map[string]interface{})["s3"].(map[string]interface{})
	assert.Equal(t, "[REDACTED]", s3["secret_access_key"])
	assert.Equal(t, "cells", s3["bucket"])
}

func TestNeedsService(t *testing.T) {
	assert.False(t, needsService(keygenCmd))
	assert.False(t, needsService(configShowCmd))
	assert.False(t, needsService(commandsCmd))
	assert.True(t, needsService(cellSetCmd))
	assert.True(t, needsService(auditQueryCmd))
}

func TestArgEncoding(t *testing.T) {
	tests := []struct {
		command string
		index   int
		want    string
	}{
		{"rd_themis.msset", 2, "base64"},
		{"RD_THEMIS.MSGETBL", 2, "base64"},
		{"message-set", 2, "base64"},
		{"rd_themis.msset", 3, "raw"},
		{"rd_themis.cset", 2, "raw"},
		{"rd_themis.cget", 2, "raw"},
		{"no-such-command", 2, "raw"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			assert.Equal(t, tt.want, argEncoding(tt.command, tt.index, "raw", "base64"))
		})
	}
}

func TestCompleteCommandNames(t *testing.T) {
	names, directive := completeCommandNames(nil, nil, "rd_themis.ms")
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)
	assert.Contains(t, names, "rd_themis.msset")
	assert.Contains(t, names, "rd_themis.msgetbl")
	assert.NotContains(t, names, "rd_themis.cset")

	names, _ = completeCommandNames(nil, []string{"rd_themis.cset"}, "")
	assert.Empty(t, names)
}
