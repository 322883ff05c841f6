package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cellCmd = &cobra.Command{
	Use:   "cell",
	Short: "Secure cell commands",
	Long: `Seal values under a passphrase and open them again.

The passphrase is read from --passphrase or the RDTHEMIS_PASSPHRASE
environment variable so it does not have to appear in the argument list.`,
}

var cellSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Encrypt a value into key",
	Args:  cobra.ExactArgs(2),
	RunE:  runCellSet,
}

var cellGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Decrypt the value stored at key",
	Args:  cobra.ExactArgs(1),
	RunE:  runCellGet,
}

func init() {
	rootCmd.AddCommand(cellCmd)
	cellCmd.AddCommand(cellSetCmd, cellGetCmd)

	cellCmd.PersistentFlags().String("passphrase", "", "secure cell passphrase (or use RDTHEMIS_PASSPHRASE env var)")
	cellCmd.PersistentFlags().Bool("async", false, "run the cryptography on a worker")

	if err := viper.BindPFlag("passphrase", cellCmd.PersistentFlags().Lookup("passphrase")); err != nil {
		panic(fmt.Sprintf("failed to bind passphrase flag: %v", err))
	}
}

func cellPassphrase() ([]byte, error) {
	passphrase := viper.GetString("passphrase")
	if passphrase == "" {
		passphrase = os.Getenv("RDTHEMIS_PASSPHRASE")
	}
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase is required. Use --passphrase flag or RDTHEMIS_PASSPHRASE environment variable")
	}
	return []byte(passphrase), nil
}

func commandName(cmd *cobra.Command, sync, async string) string {
	if isAsync, _ := cmd.Flags().GetBool("async"); isAsync {
		return async
	}
	return sync
}

func runCellSet(cmd *cobra.Command, args []string) error {
	passphrase, err := cellPassphrase()
	if err != nil {
		return err
	}
	value, err := decodeArg(args[1], valueEncoding(cmd))
	if err != nil {
		return err
	}
	name := commandName(cmd, "rd_themis.cset", "rd_themis.csetbl")
	return execute(cmd, []byte(name), []byte(args[0]), passphrase, value)
}

func runCellGet(cmd *cobra.Command, args []string) error {
	passphrase, err := cellPassphrase()
	if err != nil {
		return err
	}
	name := commandName(cmd, "rd_themis.cget", "rd_themis.cgetbl")
	return execute(cmd, []byte(name), []byte(args[0]), passphrase)
}
