package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	rdthemis "github.com/serious-company/rd-themis"
)

var execRESP bool

var execCmd = &cobra.Command{
	Use:   "exec <command> [key] [args...]",
	Short: "Run a command by its registered name",
	Long: `Run any registered command exactly as a client would send it, for example

  rdthemis exec rd_themis.cset mykey secret "hello"

Arguments after the key are decoded with --encoding, except the public or
private key of the rd_themis.ms* commands, which uses --key-encoding. With
--resp the reply is written in its wire encoding.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().BoolVar(&execRESP, "resp", false, "print the reply in RESP wire format")
}

func runExec(cmd *cobra.Command, args []string) error {
	argv := make([][]byte, 0, len(args))
	for i, arg := range args {
		if i < 2 {
			argv = append(argv, []byte(arg))
			continue
		}
		data, err := decodeArg(arg, argEncoding(args[0], i, valueEncoding(cmd), keyEncoding(cmd)))
		if err != nil {
			return err
		}
		argv = append(argv, data)
	}

	reply, err := service.Execute(cmd.Context(), argv)
	if err != nil {
		return err
	}
	if execRESP {
		_, err = cmd.OutOrStdout().Write(reply.AppendRESP(nil))
		return err
	}
	return printReply(cmd, reply)
}

// argEncoding picks the encoding of argument index of command. The argument
// after the key of a message command is key material.
func argEncoding(command string, index int, valueEnc, keyEnc string) string {
	if index == 2 && isMessageCommand(command) {
		return keyEnc
	}
	return valueEnc
}

func isMessageCommand(command string) bool {
	for _, info := range rdthemis.Commands() {
		if strings.EqualFold(command, info.Name) || strings.EqualFold(command, info.Alias) {
			return strings.HasPrefix(info.Name, "rd_themis.ms")
		}
	}
	return false
}
