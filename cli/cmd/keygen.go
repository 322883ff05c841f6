package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	rdthemis "github.com/serious-company/rd-themis"
)

var (
	keygenOutput  string
	keygenPrivate string
)

var keygenCmd = &cobra.Command{
	Use:         "keygen",
	Short:       "Generate an X25519 keypair for secure messages",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{noServiceAnnotation: "true"},
	RunE:        runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVarP(&keygenOutput, "output", "o", "text", "output format (text, json, yaml)")
	keygenCmd.Flags().StringVar(&keygenPrivate, "from-private", "", "derive the public key of an existing private key instead of generating one")
}

type keypairOutput struct {
	PublicKey  string `json:"public_key" yaml:"public_key"`
	PrivateKey string `json:"private_key" yaml:"private_key"`
}

func runKeygen(cmd *cobra.Command, args []string) error {
	publicKey, privateKey, err := keygenKeys(cmd)
	if err != nil {
		return err
	}

	var out keypairOutput
	if out.PublicKey, err = encodeBytes(publicKey, keyEncoding(cmd)); err != nil {
		return err
	}
	if out.PrivateKey, err = encodeBytes(privateKey, keyEncoding(cmd)); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	switch keygenOutput {
	case "json":
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
	case "yaml":
		data, err := yaml.Marshal(out)
		if err != nil {
			return err
		}
		fmt.Fprint(w, string(data))
	case "text":
		fmt.Fprintf(w, "public:  %s\n", out.PublicKey)
		fmt.Fprintf(w, "private: %s\n", out.PrivateKey)
	default:
		return fmt.Errorf("unsupported output format: %s", keygenOutput)
	}
	return nil
}

func keygenKeys(cmd *cobra.Command) (publicKey, privateKey []byte, err error) {
	if keygenPrivate == "" {
		publicKey, privateKey, err = rdthemis.GenerateKeypair()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate keypair: %w", err)
		}
		return publicKey, privateKey, nil
	}

	privateKey, err = decodeArg(keygenPrivate, keyEncoding(cmd))
	if err != nil {
		return nil, nil, err
	}
	publicKey, err = rdthemis.PublicKey(privateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	return publicKey, privateKey, nil
}
