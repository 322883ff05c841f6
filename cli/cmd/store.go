package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/serious-company/rd-themis/persist"
)

var putType string

var delCmd = &cobra.Command{
	Use:   "del <key>...",
	Short: "Delete keys from the store",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, key := range args {
			if err := service.Store().Delete(cmd.Context(), key); err != nil {
				return fmt.Errorf("failed to delete %s: %w", key, err)
			}
		}
		return nil
	},
}

var putCmd = &cobra.Command{
	Use:   "put <key> <value>",
	Short: "Store a raw value without encrypting it",
	Long: `Store a raw typed value. Values of a type other than string make the
crypto commands answer with WRONGTYPE.`,
	Args: cobra.ExactArgs(2),
	RunE: runPut,
}

var keysCmd = &cobra.Command{
	Use:   "keys [prefix]",
	Short: "List keys in the namespace",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		keys, err := service.Store().Keys(cmd.Context(), prefix)
		if err != nil {
			return err
		}
		for _, key := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), key)
		}
		return nil
	},
}

var typeCmd = &cobra.Command{
	Use:   "type <key>",
	Short: "Show the type of the value stored at key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, err := service.Store().Open(cmd.Context(), args[0], persist.ModeRead)
		if errors.Is(err, persist.ErrNotFound) {
			fmt.Fprintln(cmd.OutOrStdout(), "none")
			return nil
		}
		if err != nil {
			return err
		}
		defer entry.Close()
		fmt.Fprintln(cmd.OutOrStdout(), entry.Type())
		return nil
	},
}

var namespacesCmd = &cobra.Command{
	Use:   "namespaces",
	Short: "List the namespaces in the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lister, ok := service.Store().(interface{ ListNamespaces() ([]string, error) })
		if !ok {
			return fmt.Errorf("the %s store cannot list namespaces", service.Store().GetType())
		}
		namespaces, err := lister.ListNamespaces()
		if err != nil {
			return err
		}
		for _, namespace := range namespaces {
			fmt.Fprintln(cmd.OutOrStdout(), namespace)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(delCmd, putCmd, keysCmd, typeCmd, namespacesCmd)
	putCmd.Flags().StringVar(&putType, "type", string(persist.TypeString), "value type (string, list, hash, set)")
}

func runPut(cmd *cobra.Command, args []string) error {
	valueType := persist.ValueType(strings.ToLower(putType))
	switch valueType {
	case persist.TypeString, persist.TypeList, persist.TypeHash, persist.TypeSet:
	default:
		return fmt.Errorf("invalid value type: %s", putType)
	}

	data, err := decodeArg(args[1], valueEncoding(cmd))
	if err != nil {
		return err
	}
	return service.Store().Put(cmd.Context(), args[0], persist.Value{Type: valueType, Data: data})
}
