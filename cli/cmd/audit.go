package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/serious-company/rd-themis/audit"
)

var (
	auditJsonOutput    bool
	auditDetails       bool
	auditSince         string
	auditUntil         string
	auditLimit         int
	auditOffset        int
	auditAction        string
	auditCommand       string
	auditKey           string
	auditRequestID     string
	auditSuccessFilter string
	auditFailuresOnly  bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the audit trail",
	Long:  "Query the audit events recorded for the crypto commands. Requires the file audit logger.",
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query audit events",
	Long: `Query audit events, newest first.

--since and --until accept an RFC3339 timestamp or a duration relative to now
such as 15m or 24h.`,
	Args: cobra.NoArgs,
	RunE: runAuditQuery,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd)

	auditCmd.PersistentFlags().BoolVar(&auditJsonOutput, "json", false, "Output in JSON format")
	auditCmd.PersistentFlags().BoolVar(&auditDetails, "details", false, "Show detailed event information")

	auditQueryCmd.Flags().StringVar(&auditSince, "since", "", "Show events since this time")
	auditQueryCmd.Flags().StringVar(&auditUntil, "until", "", "Show events until this time")
	auditQueryCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to return")
	auditQueryCmd.Flags().IntVar(&auditOffset, "offset", 0, "Number of events to skip")
	auditQueryCmd.Flags().StringVar(&auditAction, "action", "", "Filter by action (cell_encrypt, cell_decrypt, message_encrypt, message_decrypt)")
	auditQueryCmd.Flags().StringVar(&auditCommand, "command", "", "Filter by command name")
	auditQueryCmd.Flags().StringVar(&auditKey, "key", "", "Filter by key")
	auditQueryCmd.Flags().StringVar(&auditRequestID, "request-id", "", "Filter by asynchronous request ID")
	auditQueryCmd.Flags().StringVar(&auditSuccessFilter, "success", "", "Filter by success status (true/false)")
	auditQueryCmd.Flags().BoolVar(&auditFailuresOnly, "failures-only", false, "Show only failed events")
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	options, err := buildQueryOptions(time.Now())
	if err != nil {
		return err
	}

	result, err := auditLogger.Query(options)
	if err != nil {
		return fmt.Errorf("failed to query audit events: %w", err)
	}

	if auditJsonOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal audit events: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	if err = displayAuditEvents(cmd, result.Events); err != nil {
		return err
	}
	if result.HasMore {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d matching events shown; use --offset for more\n",
			len(result.Events), result.Filtered)
	}
	return nil
}

func buildQueryOptions(now time.Time) (audit.QueryOptions, error) {
	options := audit.QueryOptions{
		Limit:     auditLimit,
		Offset:    auditOffset,
		Action:    auditAction,
		Command:   auditCommand,
		Key:       auditKey,
		RequestID: auditRequestID,
	}

	if auditSince != "" {
		since, err := parseQueryTime(auditSince, now)
		if err != nil {
			return options, fmt.Errorf("invalid since time format: %w", err)
		}
		options.Since = &since
	}

	if auditUntil != "" {
		until, err := parseQueryTime(auditUntil, now)
		if err != nil {
			return options, fmt.Errorf("invalid until time format: %w", err)
		}
		options.Until = &until
	}

	if auditSuccessFilter != "" {
		success, err := strconv.ParseBool(auditSuccessFilter)
		if err != nil {
			return options, fmt.Errorf("invalid success filter format: %w", err)
		}
		options.Success = &success
	}

	if auditFailuresOnly {
		falseVal := false
		options.Success = &falseVal
	}

	return options, nil
}

// parseQueryTime accepts RFC3339 or a duration back from now.
func parseQueryTime(value string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(value); err == nil {
		return now.Add(-d), nil
	}
	return time.Parse(time.RFC3339, value)
}

func displayAuditEvents(cmd *cobra.Command, events []audit.Event) error {
	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No audit events found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if auditDetails {
		for _, event := range events {
			fmt.Fprintf(w, "Event ID:\t%s\n", event.ID)
			fmt.Fprintf(w, "Timestamp:\t%s\n", event.Timestamp.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(w, "Namespace:\t%s\n", event.Namespace)
			fmt.Fprintf(w, "Action:\t%s\n", event.Action)
			fmt.Fprintf(w, "Command:\t%s\n", event.Command)
			fmt.Fprintf(w, "Key:\t%s\n", event.Key)
			fmt.Fprintf(w, "Status:\t%s\n", eventStatus(event))
			if event.Error != "" {
				fmt.Fprintf(w, "Error:\t%s\n", event.Error)
			}
			if event.RequestID != "" {
				fmt.Fprintf(w, "Request ID:\t%s\n", event.RequestID)
			}
			if event.UserID != "" {
				fmt.Fprintf(w, "User ID:\t%s\n", event.UserID)
			}
			fmt.Fprintf(w, "Sizes:\t%d in / %d out\n", event.InputSize, event.OutputSize)
			fmt.Fprintf(w, "Duration:\t%dms\n", event.Duration)
			fmt.Fprintln(w, "---\t")
		}
		return nil
	}

	fmt.Fprintln(w, "TIMESTAMP\tACTION\tCOMMAND\tKEY\tSTATUS\tDURATION")
	for _, event := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%dms\n",
			event.Timestamp.Format("2006-01-02 15:04:05"),
			event.Action, event.Command, event.Key, eventStatus(event), event.Duration)
	}
	return nil
}

func eventStatus(event audit.Event) string {
	switch {
	case event.Status != "":
		return event.Status
	case event.Success:
		return "SUCCESS"
	default:
		return "FAILED"
	}
}
