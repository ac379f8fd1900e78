package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/safenetwork/safenode/src/crypto/keys"
	"github.com/safenetwork/safenode/src/peers"
	"github.com/spf13/cobra"
)

var (
	privKeyFile string
)

// NewKeygenCmd produces a KeygenCmd which creates a private key and prints the
// peer ID derived from it.
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create new key pair",
		RunE:  keygen,
	}

	AddKeygenFlags(cmd)

	return cmd
}

//AddKeygenFlags adds flags to the keygen command
func AddKeygenFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&privKeyFile, "priv", _config.Keyfile(), "File where the private key will be written")
}

func keygen(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(privKeyFile); err == nil {
		return fmt.Errorf("A key already lives under: %s", filepath.Dir(privKeyFile))
	}

	key, err := keys.GenerateECDSAKey()
	if err != nil {
		return fmt.Errorf("Error generating ECDSA key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(privKeyFile), 0700); err != nil {
		return fmt.Errorf("Writing private key: %w", err)
	}

	if err := keys.NewSimpleKeyfile(privKeyFile).WriteKey(key); err != nil {
		return fmt.Errorf("Writing private key: %w", err)
	}

	fmt.Printf("Your private key has been saved to: %s\n", privKeyFile)

	id, err := peers.IDFromPublicKey(&key.PublicKey)
	if err != nil {
		return err
	}

	fmt.Printf("Your peer ID is: %s\n", id)

	return nil
}
