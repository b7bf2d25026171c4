package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Fantom-foundation/go-lachesis/src/crypto/keys"
)

// NewKeygenCmd produces a KeygenCmd which generates a key pair for a
// validator and writes it to a keyfile.
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create new key pair",
		RunE:  keygen,
	}
	cmd.Flags().StringVarP(&_config.DataDir, "datadir", "d", _config.DataDir, "Top-level directory for configuration and data")
	return cmd
}

func keygen(cmd *cobra.Command, args []string) error {
	keyfile := _config.Keyfile()

	if _, err := os.Stat(keyfile); err == nil {
		return fmt.Errorf("a key already lives under: %s; remove it first", keyfile)
	}

	if err := os.MkdirAll(filepath.Dir(keyfile), 0700); err != nil {
		return err
	}

	key, err := keys.GenerateECDSAKey()
	if err != nil {
		return fmt.Errorf("generating key: %v", err)
	}

	simpleKeyfile := keys.NewSimpleKeyfile(keyfile)
	if err := simpleKeyfile.WriteKey(key); err != nil {
		return fmt.Errorf("writing key: %v", err)
	}

	fmt.Printf("Your key has been generated in %s\n", keyfile)
	fmt.Printf("Public key: %s\n", keys.PublicKeyHex(&key.PublicKey))

	return nil
}
