package cmd

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	rdthemis "github.com/serious-company/rd-themis"
)

var validEncodings = []string{"raw", "base64", "hex"}

// decodeArg converts a command line argument into bytes using encoding.
func decodeArg(arg, encoding string) ([]byte, error) {
	switch strings.ToLower(encoding) {
	case "", "raw":
		return []byte(arg), nil
	case "base64":
		data, err := base64.StdEncoding.DecodeString(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 argument: %w", err)
		}
		return data, nil
	case "hex":
		data, err := hex.DecodeString(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid hex argument: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("invalid encoding: %s (valid: %s)", encoding, strings.Join(validEncodings, ", "))
	}
}

// encodeBytes renders data for output using encoding.
func encodeBytes(data []byte, encoding string) (string, error) {
	switch strings.ToLower(encoding) {
	case "", "raw":
		return string(data), nil
	case "base64":
		return base64.StdEncoding.EncodeToString(data), nil
	case "hex":
		return hex.EncodeToString(data), nil
	default:
		return "", fmt.Errorf("invalid encoding: %s (valid: %s)", encoding, strings.Join(validEncodings, ", "))
	}
}

func valueEncoding(cmd *cobra.Command) string {
	encoding, _ := cmd.Flags().GetString("encoding")
	return encoding
}

func keyEncoding(cmd *cobra.Command) string {
	encoding, _ := cmd.Flags().GetString("key-encoding")
	return encoding
}

// execute runs argv on the service and prints the reply.
func execute(cmd *cobra.Command, argv ...[]byte) error {
	reply, err := service.Execute(cmd.Context(), argv)
	if err != nil {
		return err
	}
	return printReply(cmd, reply)
}

// printReply writes reply to stdout. Bulk payloads use the value encoding and
// error replies become a command error so the exit status reflects them.
func printReply(cmd *cobra.Command, reply rdthemis.Reply) error {
	out := cmd.OutOrStdout()
	switch reply.Kind {
	case rdthemis.ReplyBulk:
		text, err := encodeBytes(reply.Bulk, valueEncoding(cmd))
		if err != nil {
			return err
		}
		fmt.Fprintln(out, text)
	case rdthemis.ReplyError:
		return fmt.Errorf("%s", reply.Str)
	default:
		fmt.Fprintln(out, reply.String())
	}
	return nil
}

// contains checks if a string slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// printConfigTable prints configuration in table format
func printConfigTable() error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "KEY\tVALUE\tSOURCE")
	fmt.Fprintln(w, "---\t-----\t------")

	var keys []string
	flattenKeys(viper.AllSettings(), "", &keys)
	sort.Strings(keys)

	for _, key := range keys {
		value := viper.Get(key)
		source := "default"
		if viper.ConfigFileUsed() != "" && viper.InConfig(key) {
			source = viper.ConfigFileUsed()
		}

		envKey := "RDTHEMIS_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if os.Getenv(envKey) != "" {
			source = "environment"
		}

		if isSensitiveConfigKey(key) {
			value = "[REDACTED]"
		}

		fmt.Fprintf(w, "%s\t%v\t%s\n", key, value, source)
	}

	return nil
}

// printConfigJSON prints configuration in JSON format
func printConfigJSON() error {
	config := viper.AllSettings()
	maskSensitiveValues(config)

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON: %w", err)
	}

	fmt.Println(string(data))
	return nil
}

// printConfigYAML prints configuration in YAML format
func printConfigYAML() error {
	config := viper.AllSettings()
	maskSensitiveValues(config)

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	fmt.Print(string(data))
	return nil
}

// flattenKeys recursively flattens nested maps into dot-notation keys
func flattenKeys(m map[string]interface{}, prefix string, keys *[]string) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		if nested, ok := v.(map[string]interface{}); ok {
			flattenKeys(nested, key, keys)
		} else {
			*keys = append(*keys, key)
		}
	}
}

func isSensitiveConfigKey(key string) bool {
	sensitiveKeys := []string{"passphrase", "password", "secret", "private", "token"}
	lowerKey := strings.ToLower(key)

	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// maskSensitiveValues recursively masks sensitive values in configuration
func maskSensitiveValues(config map[string]interface{}) {
	for key, value := range config {
		if isSensitiveConfigKey(key) {
			config[key] = "[REDACTED]"
		} else if nested, ok := value.(map[string]interface{}); ok {
			maskSensitiveValues(nested)
		}
	}
}
