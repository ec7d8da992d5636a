package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tech-arch1tect/walletauth/config"
	"github.com/tech-arch1tect/walletauth/services/secret"
)

const minGenerateBytes = 32

var (
	generateBytes int
	checkStdin    bool
	checkJSON     bool
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate and check the token signing secret",
}

var secretGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Print a new random signing secret",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if generateBytes < minGenerateBytes {
			return fmt.Errorf("--bytes must be at least %d", minGenerateBytes)
		}

		value, err := secret.Generate(generateBytes)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), value)
		return err
	},
}

var secretCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Judge the configured signing secret",
	Long: `Judge JWT_SECRET_KEY (from the environment or .env) the same way the server
does at startup. With --stdin the secret is read from standard input instead.
Exits non-zero if the server would refuse to start.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := secretToCheck(cmd.InOrStdin())
		if err != nil {
			return err
		}

		result := secret.Validate(value)
		if err := printResult(cmd.OutOrStdout(), result); err != nil {
			return err
		}

		if !result.Valid {
			return secret.ErrWeakSecret
		}
		return nil
	},
}

func secretToCheck(stdin io.Reader) (string, error) {
	if checkStdin {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("failed to read secret from stdin: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	_ = godotenv.Load()

	var jwtCfg config.JWTConfig
	if err := env.ParseWithOptions(&jwtCfg, env.Options{Prefix: "JWT_"}); err != nil {
		return "", fmt.Errorf("failed to read JWT configuration: %w", err)
	}
	return jwtCfg.SecretKey, nil
}

func printResult(w io.Writer, result secret.Result) error {
	if checkJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	verdict := "accepted"
	if !result.Valid {
		verdict = "rejected"
	}

	fmt.Fprintf(w, "secret %s (strength: %s, entropy: %.2f bits/char)\n", verdict, result.Strength, result.Entropy)
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
	if !result.Valid {
		fmt.Fprintln(w, `run "walletauth secret generate" and set JWT_SECRET_KEY to its output`)
	}
	return nil
}

func init() {
	secretGenerateCmd.Flags().IntVar(&generateBytes, "bytes", secret.DefaultGenerateBytes, "number of random bytes")
	secretCheckCmd.Flags().BoolVar(&checkStdin, "stdin", false, "read the secret from standard input")
	secretCheckCmd.Flags().BoolVar(&checkJSON, "json", false, "print the result as JSON")

	secretCmd.AddCommand(secretGenerateCmd, secretCheckCmd)
	rootCmd.AddCommand(secretCmd)
}
