package cli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mrlokans/opdscatalog/internal/config"
	"github.com/mrlokans/opdscatalog/internal/crypto"
	"github.com/mrlokans/opdscatalog/internal/oauth2"
)

// LoginCommand authenticates against an OAuth-protected catalog and stores
// the encrypted refresh token
type LoginCommand struct {
	Request       oauth2.Request
	PasswordStdin bool
	Logout        bool
	DatabasePath  string

	In  io.Reader
	Out io.Writer
}

func NewLoginCommand() *LoginCommand {
	return &LoginCommand{}
}

func (cmd *LoginCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)

	fs.StringVar(&cmd.Request.CatalogURL, "catalog", "", "Catalog URL to authenticate against (required)")
	fs.StringVar(&cmd.Request.OAuthURL, "oauth-url", "", "Token endpoint for the password grant (required unless -logout)")
	fs.StringVar(&cmd.Request.RefreshURL, "refresh-url", "", "Token endpoint for refresh grants (defaults to -oauth-url)")
	fs.StringVar(&cmd.Request.Login, "login", "", "Account login")
	fs.StringVar(&cmd.Request.EncryptionKeyHex, "key", "", "Refresh-token key, 64 hex chars (or set OPDS_AUTH_ENCRYPTION_KEY_HEX)")
	fs.StringVar(&cmd.Request.EncryptionIVHex, "iv", "", "Refresh-token IV, 32 hex chars (or set OPDS_AUTH_ENCRYPTION_IV_HEX)")
	fs.BoolVar(&cmd.PasswordStdin, "password-stdin", false, "Read the password from the first line of stdin")
	fs.BoolVar(&cmd.Logout, "logout", false, "Forget the stored credential instead of logging in")
	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the catalog database")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s login -catalog <url> -oauth-url <url> -login <name> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Authenticate against an OAuth-protected OPDS catalog.\n\n")
		fmt.Fprintf(os.Stderr, "Only the refresh token is stored, encrypted with the configured key.\n")
		fmt.Fprintf(os.Stderr, "Without a password a stored refresh token is tried first.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Generate key material once\n")
		fmt.Fprintf(os.Stderr, "  %s keygen\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Log in, reading the password from a secret store\n")
		fmt.Fprintf(os.Stderr, "  pass show library | %s login -catalog https://lib.example/opds -oauth-url https://lib.example/token -login me -password-stdin\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.Request.CatalogURL == "" {
		return fmt.Errorf("required flag -catalog not provided")
	}
	if !cmd.Logout && cmd.Request.OAuthURL == "" {
		return fmt.Errorf("required flag -oauth-url not provided")
	}
	return nil
}

func (cmd *LoginCommand) Run() error {
	app, err := openApp(cmd.DatabasePath)
	if err != nil {
		return err
	}
	defer closeApp(app)

	ctx := context.Background()
	out := output(cmd.Out)

	if cmd.Logout {
		if err := app.Catalog.Logout(ctx, cmd.Request.CatalogURL); err != nil {
			return err
		}
		fmt.Fprintf(out, "Logged out of %s\n", cmd.Request.CatalogURL)
		return nil
	}

	req := cmd.Request
	if cmd.PasswordStdin {
		in := cmd.In
		if in == nil {
			in = os.Stdin
		}
		password, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read password: %w", err)
		}
		req.Password = strings.TrimRight(password, "\r\n")
	}

	ok, err := app.Catalog.OAuth(ctx, req)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("login rejected by %s", req.OAuthURL)
	}

	fmt.Fprintf(out, "Authenticated with %s\n", req.CatalogURL)
	if req.EncryptionKeyHex != "" && req.EncryptionIVHex != "" {
		fmt.Fprintf(out, "Refresh token encrypted with key %s\n", crypto.Fingerprint(req.EncryptionKeyHex, req.EncryptionIVHex))
	}
	return nil
}

// KeygenCommand prints fresh key material for refresh-token encryption
type KeygenCommand struct {
	Out io.Writer
}

func NewKeygenCommand() *KeygenCommand {
	return &KeygenCommand{}
}

func (cmd *KeygenCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s keygen\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Print a random key and IV for OPDS_AUTH_ENCRYPTION_KEY_HEX and\n")
		fmt.Fprintf(os.Stderr, "OPDS_AUTH_ENCRYPTION_IV_HEX. Losing them makes stored refresh tokens unusable.\n")
	}
	return fs.Parse(args)
}

func (cmd *KeygenCommand) Run() error {
	keyHex, ivHex, err := crypto.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("failed to generate key material: %w", err)
	}

	out := output(cmd.Out)
	fmt.Fprintf(out, "OPDS_AUTH_ENCRYPTION_KEY_HEX=%s\n", keyHex)
	fmt.Fprintf(out, "OPDS_AUTH_ENCRYPTION_IV_HEX=%s\n", ivHex)
	fmt.Fprintf(out, "# fingerprint %s\n", crypto.Fingerprint(keyHex, ivHex))
	return nil
}
