package cmd

import (
	"github.com/spf13/cobra"
)

var messageCmd = &cobra.Command{
	Use:   "message",
	Short: "Secure message commands",
	Long: `Seal values for the holder of an X25519 private key.

Keys are passed in --key-encoding (base64 by default); use "rdthemis keygen"
to create a keypair.`,
}

var messageSetCmd = &cobra.Command{
	Use:   "set <key> <public-key> <value>",
	Short: "Encrypt a value into key for a public key",
	Args:  cobra.ExactArgs(3),
	RunE:  runMessageSet,
}

var messageGetCmd = &cobra.Command{
	Use:   "get <key> <private-key>",
	Short: "Decrypt the value stored at key with a private key",
	Args:  cobra.ExactArgs(2),
	RunE:  runMessageGet,
}

func init() {
	rootCmd.AddCommand(messageCmd)
	messageCmd.AddCommand(messageSetCmd, messageGetCmd)

	messageCmd.PersistentFlags().Bool("async", false, "run the cryptography on a worker")
}

func runMessageSet(cmd *cobra.Command, args []string) error {
	publicKey, err := decodeArg(args[1], keyEncoding(cmd))
	if err != nil {
		return err
	}
	value, err := decodeArg(args[2], valueEncoding(cmd))
	if err != nil {
		return err
	}
	name := commandName(cmd, "rd_themis.msset", "rd_themis.mssetbl")
	return execute(cmd, []byte(name), []byte(args[0]), publicKey, value)
}

func runMessageGet(cmd *cobra.Command, args []string) error {
	privateKey, err := decodeArg(args[1], keyEncoding(cmd))
	if err != nil {
		return err
	}
	name := commandName(cmd, "rd_themis.msget", "rd_themis.msgetbl")
	return execute(cmd, []byte(name), []byte(args[0]), privateKey)
}
