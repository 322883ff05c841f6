package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configFormat string

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Inspect configuration",
	Annotations: map[string]string{noServiceAnnotation: "true"},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  "Display the configuration merged from defaults, the config file, RDTHEMIS_* environment variables and flags. Secrets are redacted.",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		problems := validateConfiguration()
		if len(problems) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return nil
		}
		for _, problem := range problems {
			fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", problem)
		}
		return fmt.Errorf("configuration has %d problem(s)", len(problems))
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the configuration keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keys := getConfigKeyDescriptions()
		names := make([]string, 0, len(keys))
		for name := range keys {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintln(w, "KEY\tDESCRIPTION")
		for _, name := range names {
			fmt.Fprintf(w, "%s\t%s\n", name, keys[name])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configValidateCmd, configKeysCmd)
	configShowCmd.Flags().StringVarP(&configFormat, "format", "f", "yaml", "output format (yaml, json, table)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(os.Stderr, "# config file: %s\n", viper.ConfigFileUsed())
	}
	switch configFormat {
	case "yaml":
		return printConfigYAML()
	case "json":
		return printConfigJSON()
	case "table":
		return printConfigTable()
	default:
		return fmt.Errorf("unsupported format: %s", configFormat)
	}
}

func validateConfiguration() []string {
	var errors []string

	storeType := viper.GetString("store.type")
	validStoreTypes := []string{"memory", "filesystem", "s3"}
	if !contains(validStoreTypes, strings.ToLower(storeType)) {
		errors = append(errors, fmt.Sprintf("invalid store type: %s (must be one of: %s)",
			storeType, strings.Join(validStoreTypes, ", ")))
	}

	switch strings.ToLower(storeType) {
	case "filesystem":
		if viper.GetString("store.path") == "" {
			errors = append(errors, "store path is required when using the filesystem store")
		}
	case "s3":
		if viper.GetString("store.s3.bucket") == "" {
			errors = append(errors, "S3 bucket is required when using S3 store")
		}
		if viper.GetString("store.s3.endpoint") == "" {
			errors = append(errors, "S3 endpoint is required when using S3 store")
		}
	}

	if viper.GetDuration("service.timeout") <= 0 {
		errors = append(errors, "service timeout must be positive")
	}

	if kdf := viper.GetString("service.kdf.algorithm"); !contains([]string{"argon2id", "pbkdf2"}, kdf) {
		errors = append(errors, fmt.Sprintf("invalid kdf: %s (must be one of: argon2id, pbkdf2)", kdf))
	}

	if viper.GetBool("audit.enabled") {
		auditType := viper.GetString("audit.type")
		validAuditTypes := []string{"file", "syslog"}
		if !contains(validAuditTypes, auditType) {
			errors = append(errors, fmt.Sprintf("invalid audit type: %s (must be one of: %s)",
				auditType, strings.Join(validAuditTypes, ", ")))
		}
		if auditType == "file" && viper.GetString("audit.options.file_path") == "" &&
			strings.ToLower(storeType) != "filesystem" {
			errors = append(errors, "audit file path is required when using file audit")
		}
	}

	for _, encoding := range []string{"encoding", "key-encoding"} {
		value, _ := rootCmd.PersistentFlags().GetString(encoding)
		if !contains(validEncodings, value) {
			errors = append(errors, fmt.Sprintf("invalid --%s: %s", encoding, value))
		}
	}

	return errors
}

func getConfigKeyDescriptions() map[string]string {
	return map[string]string{
		"log.level":                     "Log level (debug, info, warn, error)",
		"store.type":                    "Storage backend type (memory, filesystem, s3)",
		"store.path":                    "Base path for the filesystem store",
		"store.namespace":               "Key namespace within the store",
		"store.s3.endpoint":             "S3 endpoint (host:port)",
		"store.s3.bucket":               "S3 bucket name",
		"store.s3.region":               "S3 region",
		"store.s3.key_prefix":           "S3 key prefix",
		"store.s3.access_key_id":        "S3 access key ID",
		"store.s3.secret_access_key":    "S3 secret access key",
		"store.s3.use_ssl":              "Use SSL for S3 connections",
		"service.timeout":               "Timeout for asynchronous commands",
		"service.max_workers":           "Maximum asynchronous commands in flight",
		"service.enable_memory_lock":    "Lock process memory",
		"service.kdf.algorithm":         "Secure cell key derivation (argon2id, pbkdf2)",
		"service.kdf.argon_time":        "Argon2id iterations",
		"service.kdf.argon_memory":      "Argon2id memory in KiB",
		"service.kdf.argon_threads":     "Argon2id parallelism",
		"service.kdf.pbkdf2_iterations": "PBKDF2 iterations",
		"passphrase":                    "Secure cell passphrase",
		"audit.enabled":                 "Enable audit logging",
		"audit.type":                    "Audit logger type (file, syslog)",
		"audit.options.file_path":       "Audit log file path",
		"audit.options.cache_size":      "Events kept in memory for queries",
	}
}
