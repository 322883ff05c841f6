package audit

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config defines audit logging configuration
type Config struct {
	Enabled   bool                   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Namespace string                 `json:"namespace" yaml:"namespace" mapstructure:"namespace"`
	Type      ConfigType             `json:"type" yaml:"type" mapstructure:"type"`          // "file", "syslog"
	Options   map[string]interface{} `json:"options" yaml:"options" mapstructure:"options"` // Provider-specific options
	LogLevel  string                 `json:"log_level,omitempty" yaml:"log_level,omitempty" mapstructure:"log_level"`
}

type ConfigType string

const (
	FileAuditType   ConfigType = "file"
	SyslogAuditType ConfigType = "syslog"
	NoOp            ConfigType = ""
)

// Actions recorded by the command layer.
const (
	ActionCellEncrypt    = "cell_encrypt"
	ActionCellDecrypt    = "cell_decrypt"
	ActionMessageEncrypt = "message_encrypt"
	ActionMessageDecrypt = "message_decrypt"
)

// Logger defines the interface for audit logging
type Logger interface {
	Log(event Event) error
	Query(options QueryOptions) (QueryResult, error)
	Close() error
}

// Event is one audited command. It never carries passphrases, keys or
// plaintext; only names, sizes and outcomes.
type Event struct {
	ID         string                 `json:"id"`
	RequestID  string                 `json:"request_id,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Namespace  string                 `json:"namespace,omitempty"`
	Action     string                 `json:"action"`
	Command    string                 `json:"command,omitempty"`
	Key        string                 `json:"key,omitempty"`
	Async      bool                   `json:"async,omitempty"`
	Success    bool                   `json:"success"`
	Status     string                 `json:"status,omitempty"`
	Error      string                 `json:"error,omitempty"`
	InputSize  int                    `json:"input_size,omitempty"`
	OutputSize int                    `json:"output_size,omitempty"`
	UserID     string                 `json:"user_id,omitempty"`
	Source     string                 `json:"source,omitempty"`
	Duration   int64                  `json:"duration_ms,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// QueryOptions for filtering audit events
type QueryOptions struct {
	Namespace string
	Since     *time.Time
	Until     *time.Time
	Action    string
	Command   string
	Key       string
	RequestID string
	Success   *bool // nil = all, true = only success, false = only failures
	Limit     int
	Offset    int
}

// QueryResult contains the results of an audit query
type QueryResult struct {
	Events     []Event `json:"events"`
	TotalCount int     `json:"total_count"`
	Filtered   int     `json:"filtered"`
	HasMore    bool    `json:"has_more"`
}

// NewLogger creates an audit logger based on configuration
func NewLogger(config *Config) (Logger, error) {
	if config == nil || !config.Enabled {
		return &NoOpLogger{}, nil
	}

	switch config.Type {
	case FileAuditType:
		return NewFileLogger(config)
	case SyslogAuditType:
		return NewSyslogLogger(config)
	case NoOp:
		return &NoOpLogger{}, nil
	default:
		return nil, fmt.Errorf("unknown audit provider: %s", config.Type)
	}
}

// matches reports whether event passes every filter set in options.
func (options QueryOptions) matches(event Event) bool {
	switch {
	case options.Namespace != "" && event.Namespace != options.Namespace:
		return false
	case options.Since != nil && event.Timestamp.Before(*options.Since):
		return false
	case options.Until != nil && event.Timestamp.After(*options.Until):
		return false
	case options.Action != "" && event.Action != options.Action:
		return false
	case options.Command != "" && event.Command != options.Command:
		return false
	case options.Key != "" && event.Key != options.Key:
		return false
	case options.RequestID != "" && event.RequestID != options.RequestID:
		return false
	case options.Success != nil && event.Success != *options.Success:
		return false
	}
	return true
}

func parseOptions(options map[string]interface{}, target interface{}) error {
	if len(options) == 0 {
		return nil
	}

	// Convert to JSON and back to parse into struct
	jsonData, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	if err = json.Unmarshal(jsonData, target); err != nil {
		return fmt.Errorf("failed to unmarshal options: %w", err)
	}

	return nil
}
