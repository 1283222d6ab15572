package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/khamel/linkgate/internal/domain/auth"
)

var useArgon2id bool

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [secret]",
	Short: "Hash an API secret for use in config",
	Long: `Hash an API secret for the auth.api_secret_hash config field.

By default the output is "sha256:<hex>". With --argon2id the output is an
Argon2id PHC string, which resists offline brute force if the config leaks.

Example:
  linkgate hash-key "my-shared-secret"
  linkgate hash-key --argon2id "my-shared-secret"

Security note: the secret will appear in shell history.
Consider using an environment variable:
  linkgate hash-key "$LINKGATE_SECRET"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if useArgon2id {
			hash, err := auth.HashSecretArgon2id(args[0])
			if err != nil {
				return fmt.Errorf("failed to hash secret: %w", err)
			}
			fmt.Println(hash)
			return nil
		}
		fmt.Println(auth.HashSecret(args[0]))
		return nil
	},
}

func init() {
	hashKeyCmd.Flags().BoolVar(&useArgon2id, "argon2id", false, "use Argon2id instead of SHA-256")
	rootCmd.AddCommand(hashKeyCmd)
}
