package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/otherjamesbrown/interview-scribe/credentials"
)

// TokenStore is where 'auth hf-token set' saves the token.
type TokenStore interface {
	credentials.TokenSource
	Set(token string) error
	Delete() error
}

// AuthCommandDeps holds the dependencies for auth commands.
type AuthCommandDeps struct {
	Store TokenStore
	// Sources is the lookup order used by 'show'.
	Sources func() []credentials.TokenSource
	// ReadSecret prompts for a value without echoing it.
	ReadSecret func(prompt string) (string, error)
	// LookupEnv reports whether the token variable overrides the store.
	LookupEnv func(key string) (string, bool)
}

// DefaultAuthDeps returns the default dependencies for production use.
func DefaultAuthDeps() *AuthCommandDeps {
	store := credentials.NewKeyringStore()
	return &AuthCommandDeps{
		Store: store,
		Sources: func() []credentials.TokenSource {
			return []credentials.TokenSource{credentials.NewEnvSource(credentials.EnvHFToken), store}
		},
		ReadSecret: promptSecret,
		LookupEnv:  os.LookupEnv,
	}
}

// NewAuthCommand creates the auth command group.
func NewAuthCommand(deps *AuthCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultAuthDeps()
	}

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage credentials",
		Long: `Manage the credentials used by the transcription engines.

The diarization engine downloads its models from Hugging Face and needs an
access token. The token is kept in the system keyring. The HF_TOKEN
environment variable takes precedence over the stored token.`,
	}

	tokenCmd := &cobra.Command{
		Use:   "hf-token",
		Short: "Manage the Hugging Face access token",
	}
	tokenCmd.AddCommand(newTokenSetCommand(deps))
	tokenCmd.AddCommand(newTokenShowCommand(deps))
	tokenCmd.AddCommand(newTokenDeleteCommand(deps))
	cmd.AddCommand(tokenCmd)

	return cmd
}

func newTokenSetCommand(deps *AuthCommandDeps) *cobra.Command {
	var (
		token     string
		fromStdin bool
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the Hugging Face token in the system keyring",
		Long: `Store the Hugging Face access token in the system keyring.

Without flags the token is read from a hidden prompt.

Examples:
  scribe auth hf-token set
  scribe auth hf-token set --token hf_abc123...
  echo "$TOKEN" | scribe auth hf-token set --stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			switch {
			case token != "":
			case fromStdin:
				token, err = readLine(cmd.InOrStdin())
			default:
				token, err = deps.ReadSecret("Hugging Face token: ")
			}
			if err != nil {
				return fmt.Errorf("reading token: %w", err)
			}

			token = strings.TrimSpace(token)
			if err := credentials.ValidateToken(token); err != nil {
				return err
			}
			if err := deps.Store.Set(token); err != nil {
				return fmt.Errorf("saving token: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Token %s saved to %s\n", credentials.Mask(token), deps.Store.Description())
			if _, ok := deps.LookupEnv(credentials.EnvHFToken); ok {
				fmt.Fprintf(out, "\nNote: %s is set and takes precedence over the stored token.\n", credentials.EnvHFToken)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "token value (visible in shell history)")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "read the token from standard input")

	return cmd
}

func newTokenShowCommand(deps *AuthCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the token in use (masked) and where it comes from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			token, from, err := credentials.Resolve(deps.Sources()...)
			if errors.Is(err, credentials.ErrNoToken) {
				fmt.Fprintln(out, "No Hugging Face token configured.")
				fmt.Fprintln(out, "Set one with: scribe auth hf-token set")
				if msg := err.Error(); msg != credentials.ErrNoToken.Error() {
					fmt.Fprintf(out, "Detail: %s\n", msg)
				}
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Token:  %s\n", credentials.Mask(token))
			fmt.Fprintf(out, "Source: %s\n", from)
			return nil
		},
	}
}

func newTokenDeleteCommand(deps *AuthCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored token from the system keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			err := deps.Store.Delete()
			if errors.Is(err, credentials.ErrNoToken) {
				fmt.Fprintln(out, "No stored token found.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("removing token: %w", err)
			}
			fmt.Fprintf(out, "Token removed from %s\n", deps.Store.Description())
			if _, ok := deps.LookupEnv(credentials.EnvHFToken); ok {
				fmt.Fprintf(out, "\nNote: %s is still set.\n", credentials.EnvHFToken)
			}
			return nil
		},
	}
}

// promptSecret reads a value without echo, falling back to a plain line
// when stdin is not a terminal.
func promptSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return readLine(os.Stdin)
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
