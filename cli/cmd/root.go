package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	rdthemis "github.com/serious-company/rd-themis"
	"github.com/serious-company/rd-themis/audit"
	"github.com/serious-company/rd-themis/persist"
)

// annotation set on commands that never touch the store
const noServiceAnnotation = "rdthemis/no-service"

var (
	cfgFile     string
	service     *rdthemis.Service
	auditLogger audit.Logger
	logger      zerolog.Logger
	cliContext  *CLIContext
)

type CLIContext struct {
	UserID    string
	SessionID string
	Source    string // hostname
	StartTime time.Time
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rdthemis",
	Short: "Secure cell and secure message encryption over a key-value store",
	Long: `rdthemis encrypts values into a key-value store and decrypts them back out.

Secure cell commands seal a value under a passphrase. Secure message commands
seal a value for the holder of an X25519 private key. Every command has an
asynchronous variant that runs the cryptography on a worker and answers with
"Request timedout" when the worker takes longer than the configured timeout.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initializeService,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if service != nil {
			err := service.Close()
			service = nil
			return err
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.rdthemis.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	bindFlagOrPanic("log.level", "log-level")

	// Store flags
	rootCmd.PersistentFlags().String("store-type", "", "storage backend type (memory, filesystem, s3)")
	rootCmd.PersistentFlags().StringP("store-path", "p", "", "base path for the filesystem store")
	rootCmd.PersistentFlags().StringP("namespace", "n", "", "key namespace within the store")
	bindFlagOrPanic("store.type", "store-type")
	bindFlagOrPanic("store.path", "store-path")
	bindFlagOrPanic("store.namespace", "namespace")

	// Service flags
	rootCmd.PersistentFlags().Duration("timeout", 0, "timeout for asynchronous commands")
	rootCmd.PersistentFlags().Int("max-workers", 0, "maximum asynchronous commands in flight (0 = unbounded)")
	rootCmd.PersistentFlags().String("kdf", "", "secure cell key derivation (argon2id, pbkdf2)")
	rootCmd.PersistentFlags().Bool("memory-lock", false, "lock process memory to keep keys out of swap")
	bindFlagOrPanic("service.timeout", "timeout")
	bindFlagOrPanic("service.max_workers", "max-workers")
	bindFlagOrPanic("service.kdf.algorithm", "kdf")
	bindFlagOrPanic("service.enable_memory_lock", "memory-lock")

	// Audit flags
	rootCmd.PersistentFlags().Bool("audit", false, "enable audit logging")
	rootCmd.PersistentFlags().String("audit-type", "", "audit logger type (file, syslog)")
	rootCmd.PersistentFlags().String("audit-file", "", "audit log file path")
	bindFlagOrPanic("audit.enabled", "audit")
	bindFlagOrPanic("audit.type", "audit-type")
	bindFlagOrPanic("audit.options.file_path", "audit-file")

	// S3 flags
	rootCmd.PersistentFlags().String("s3-endpoint", "", "S3 endpoint (host:port)")
	rootCmd.PersistentFlags().String("s3-region", "", "S3 region")
	rootCmd.PersistentFlags().String("s3-bucket", "", "S3 bucket name")
	rootCmd.PersistentFlags().String("s3-prefix", "", "S3 key prefix")
	rootCmd.PersistentFlags().String("s3-access-key", "", "S3 access key ID")
	rootCmd.PersistentFlags().String("s3-secret-key", "", "S3 secret access key")
	rootCmd.PersistentFlags().Bool("s3-use-ssl", true, "use SSL for S3 connections")
	bindFlagOrPanic("store.s3.endpoint", "s3-endpoint")
	bindFlagOrPanic("store.s3.region", "s3-region")
	bindFlagOrPanic("store.s3.bucket", "s3-bucket")
	bindFlagOrPanic("store.s3.key_prefix", "s3-prefix")
	bindFlagOrPanic("store.s3.access_key_id", "s3-access-key")
	bindFlagOrPanic("store.s3.secret_access_key", "s3-secret-key")
	bindFlagOrPanic("store.s3.use_ssl", "s3-use-ssl")

	// Argument encodings
	rootCmd.PersistentFlags().StringP("encoding", "e", "raw", "encoding of value arguments and output (raw, base64, hex)")
	rootCmd.PersistentFlags().String("key-encoding", "base64", "encoding of public and private keys (raw, base64, hex)")
	for _, flag := range []string{"encoding", "key-encoding"} {
		if err := rootCmd.RegisterFlagCompletionFunc(flag, completeEncodings); err != nil {
			panic(fmt.Sprintf("failed to register %s completion: %v", flag, err))
		}
	}
}

func bindFlagOrPanic(configKey, flagName string) {
	if err := viper.BindPFlag(configKey, rootCmd.PersistentFlags().Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("failed to bind %s flag: %v", flagName, err))
	}
}

func initConfig() {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/rdthemis")

		viper.SetConfigType("yaml")
		viper.SetConfigName(".rdthemis")
	}

	viper.SetEnvPrefix("RDTHEMIS")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
	} else if os.Getenv("DEBUG") == "true" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

func setDefaults() {
	defaults := rdthemis.DefaultOptions()

	viper.SetDefault("log.level", "warn")

	viper.SetDefault("store.type", string(persist.StoreTypeFileSystem))
	viper.SetDefault("store.path", ".rdthemis")
	viper.SetDefault("store.namespace", "default")

	viper.SetDefault("store.s3.region", "us-east-1")
	viper.SetDefault("store.s3.key_prefix", "rdthemis/")
	viper.SetDefault("store.s3.use_ssl", true)

	viper.SetDefault("service.timeout", defaults.Timeout)
	viper.SetDefault("service.max_workers", defaults.MaxWorkers)
	viper.SetDefault("service.enable_memory_lock", false)
	viper.SetDefault("service.kdf.algorithm", defaults.KDF.Algorithm)
	viper.SetDefault("service.kdf.argon_time", defaults.KDF.ArgonTime)
	viper.SetDefault("service.kdf.argon_memory", defaults.KDF.ArgonMemory)
	viper.SetDefault("service.kdf.argon_threads", defaults.KDF.ArgonThreads)
	viper.SetDefault("service.kdf.pbkdf2_iterations", defaults.KDF.PBKDF2Iterations)

	viper.SetDefault("audit.enabled", false)
	viper.SetDefault("audit.type", string(audit.FileAuditType))
	viper.SetDefault("audit.options.file_path", "")
	viper.SetDefault("audit.options.cache_size", 1000)
	viper.SetDefault("audit.log_level", "info")
}

// needsService reports whether cmd or one of its parents opted out of the service.
func needsService(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "completion", "__complete", "__completeNoDesc":
		return false
	}
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[noServiceAnnotation] == "true" {
			return false
		}
	}
	return true
}

func initializeService(cmd *cobra.Command, args []string) error {
	logger = newLogger(viper.GetString("log.level"))

	if !needsService(cmd) {
		return nil
	}

	cliContext = &CLIContext{
		UserID:    getCurrentUser(),
		SessionID: uuid.NewString(),
		Source:    getHostname(),
		StartTime: time.Now(),
	}

	options, err := serviceOptions()
	if err != nil {
		return err
	}

	store, err := createStore()
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	auditLogger, err = createAuditLogger()
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to create audit logger: %w", err)
	}

	service, err = rdthemis.NewWithStore(options, store, auditLogger)
	if err != nil {
		_ = auditLogger.Close()
		_ = store.Close()
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	logger.Debug().
		Str("session_id", cliContext.SessionID).
		Str("command", cmd.CommandPath()).
		Interface("flags", sanitizeFlags(cmd)).
		Str("store", getStoreConfigSummary(viper.GetString("store.type"))).
		Msg("service ready")
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

func serviceOptions() (rdthemis.Options, error) {
	options := rdthemis.DefaultOptions()
	options.Timeout = viper.GetDuration("service.timeout")
	options.MaxWorkers = viper.GetInt("service.max_workers")
	options.EnableMemoryLock = viper.GetBool("service.enable_memory_lock")
	if err := viper.UnmarshalKey("service.kdf", &options.KDF); err != nil {
		return options, fmt.Errorf("invalid kdf configuration: %w", err)
	}
	options.UserID = cliContext.UserID
	options.Logger = logger.With().Str("session_id", cliContext.SessionID).Logger()
	return options, options.Validate()
}

func createAuditLogger() (audit.Logger, error) {
	filePath := viper.GetString("audit.options.file_path")
	if filePath == "" && viper.GetString("store.type") == string(persist.StoreTypeFileSystem) {
		filePath = viper.GetString("store.path") + string(os.PathSeparator) + "audit.log"
	}
	return audit.NewLogger(&audit.Config{
		Enabled:   viper.GetBool("audit.enabled"),
		Namespace: viper.GetString("store.namespace"),
		Type:      audit.ConfigType(viper.GetString("audit.type")),
		Options: map[string]interface{}{
			"file_path":  filePath,
			"cache_size": viper.GetInt("audit.options.cache_size"),
		},
		LogLevel: viper.GetString("audit.log_level"),
	})
}

func createStore() (persist.Store, error) {
	storeType := persist.StoreType(strings.ToLower(viper.GetString("store.type")))
	namespace := viper.GetString("store.namespace")

	config := persist.StoreConfig{Type: storeType}
	switch storeType {
	case persist.StoreTypeMemory:
	case persist.StoreTypeFileSystem:
		config.Config = map[string]interface{}{
			"base_path": viper.GetString("store.path"),
		}
	case persist.StoreTypeS3:
		s3Config := persist.S3Config{
			Endpoint:        viper.GetString("store.s3.endpoint"),
			AccessKeyID:     viper.GetString("store.s3.access_key_id"),
			SecretAccessKey: viper.GetString("store.s3.secret_access_key"),
			Bucket:          viper.GetString("store.s3.bucket"),
			KeyPrefix:       viper.GetString("store.s3.key_prefix"),
			UseSSL:          viper.GetBool("store.s3.use_ssl"),
			Region:          viper.GetString("store.s3.region"),
		}
		if err := validateS3Config(s3Config); err != nil {
			return nil, fmt.Errorf("invalid S3 configuration: %w", err)
		}
		return persist.NewS3Store(s3Config, namespace)
	default:
		return nil, fmt.Errorf("unsupported store type: %s. Supported types: memory, filesystem, s3", storeType)
	}
	return persist.NewStore(config, namespace)
}

func validateS3Config(config persist.S3Config) error {
	var missing []string

	if config.Endpoint == "" {
		missing = append(missing, "store.s3.endpoint")
	}
	if config.Bucket == "" {
		missing = append(missing, "store.s3.bucket")
	}

	hasAccessKey := config.AccessKeyID != ""
	hasSecretKey := config.SecretAccessKey != ""

	if hasAccessKey && !hasSecretKey {
		missing = append(missing, "store.s3.secret_access_key")
	}
	if !hasAccessKey && hasSecretKey {
		missing = append(missing, "store.s3.access_key_id")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return nil
}

// getStoreConfigSummary returns a summary of the current store configuration (for logging/debugging)
func getStoreConfigSummary(storeType string) string {
	switch persist.StoreType(strings.ToLower(storeType)) {
	case persist.StoreTypeMemory:
		return "memory store"
	case persist.StoreTypeFileSystem:
		return fmt.Sprintf("filesystem store: path=%s, namespace=%s",
			viper.GetString("store.path"), viper.GetString("store.namespace"))
	case persist.StoreTypeS3:
		return fmt.Sprintf("s3 store: bucket=%s, region=%s, prefix=%s, namespace=%s",
			viper.GetString("store.s3.bucket"),
			viper.GetString("store.s3.region"),
			viper.GetString("store.s3.key_prefix"),
			viper.GetString("store.namespace"))
	default:
		return fmt.Sprintf("unknown store type: %s", storeType)
	}
}

func isSensitiveFlag(name string) bool {
	sensitive := []string{"passphrase", "password", "secret", "private", "token"}
	lower := strings.ToLower(name)
	for _, s := range sensitive {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// getCurrentUser retrieves the username of the currently logged-in user.
// It returns "unknown_user" if the user cannot be determined.
func getCurrentUser() string {
	currentUser, err := user.Current()
	if err != nil {
		// scratch images have no /etc/passwd
		if envUser := os.Getenv("USER"); envUser != "" {
			return envUser
		}
		return "unknown_user"
	}
	return currentUser.Username
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown_host"
	}
	return hostname
}

func formatError(err error) string {
	if err == nil {
		return ""
	}

	var messages []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		messages = append(messages, e.Error())
	}

	message := messages[0]
	if len(message) > 0 {
		first := string(message[0])
		if first != strings.ToUpper(first) {
			message = strings.ToUpper(first) + message[1:]
		}
	}

	return fmt.Sprintf("Error: %s", message)
}

// sanitizeFlags returns the changed flags of cmd with sensitive values redacted.
func sanitizeFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if flag.Changed {
			if isSensitiveFlag(flag.Name) {
				flags[flag.Name] = "[REDACTED]"
			} else {
				flags[flag.Name] = flag.Value.String()
			}
		}
	})
	return flags
}
