// Package keytool implements the operator commands that prepare key material
// for the server: generating the RSA keypair and wrapping the symmetric key.
package keytool

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nickk-eng/Serialboxd/internal/common"
	"github.com/nickk-eng/Serialboxd/internal/cryptox"
	"golang.org/x/term"
)

// Test seams.
var (
	readPassword = term.ReadPassword
	getenv       = os.Getenv
	stdinFd      = func() int { return int(os.Stdin.Fd()) }
)

var ErrUsage = errors.New("usage: keytool gen [-dir DIR] | wrap [-pub FILE] [-out FILE] [-random]")

// Run dispatches args (without the program name) and returns the exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, ErrUsage)
		return 2
	}

	var err error
	switch args[0] {
	case "gen":
		err = runGen(args[1:], stdout, stderr)
	case "wrap":
		err = runWrap(args[1:], stdout, stderr)
	default:
		err = ErrUsage
	}

	if err != nil {
		fmt.Fprintln(stderr, err)
		if errors.Is(err, ErrUsage) {
			return 2
		}
		return 1
	}
	return 0
}

func runGen(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("gen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("dir", ".", "output directory")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	privPath, pubPath, err := GenerateKeyFiles(*dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s and %s\n", privPath, pubPath)
	return nil
}

// GenerateKeyFiles writes a fresh RSA keypair into dir as private_key.pem
// (mode 0600) and public_key.pem.
func GenerateKeyFiles(dir string) (privPath, pubPath string, err error) {
	priv, err := cryptox.GenerateKeyPair()
	if err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}
	privPEM, err := cryptox.MarshalPrivateKeyPEM(priv)
	if err != nil {
		return "", "", err
	}
	pubPEM, err := cryptox.MarshalPublicKeyPEM(&priv.PublicKey)
	if err != nil {
		return "", "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	privPath = filepath.Join(dir, "private_key.pem")
	pubPath = filepath.Join(dir, "public_key.pem")
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		return "", "", err
	}
	return privPath, pubPath, nil
}

func runWrap(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("wrap", flag.ContinueOnError)
	fs.SetOutput(stderr)
	pub := fs.String("pub", "public_key.pem", "RSA public key")
	out := fs.String("out", "wrapped_key.b64", "output file for the wrapped key")
	random := fs.Bool("random", false, "generate a random key instead of reading one")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	key, err := readKey(*random, stderr)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	if err := WrapKeyFile(*pub, *out, key); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s\n", *out)
	return nil
}

// readKey picks the raw key from -random, then ENCRYPTION_KEY, then the
// terminal.
func readKey(random bool, prompt io.Writer) ([]byte, error) {
	if random {
		return common.GenerateRandByteArray(cryptox.KeySize), nil
	}
	if k := getenv("ENCRYPTION_KEY"); k != "" {
		return []byte(k), nil
	}

	fmt.Fprint(prompt, "Enter 32-byte key: ")
	k, err := readPassword(stdinFd())
	fmt.Fprintln(prompt)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	return []byte(strings.TrimRight(string(k), "\r\n")), nil
}

// WrapKeyFile wraps key with the public key at pubPath and writes the base64
// artifact to outPath.
func WrapKeyFile(pubPath, outPath string, key []byte) error {
	if len(key) != cryptox.KeySize {
		return fmt.Errorf("%w: got %d bytes, want %d", cryptox.ErrInvalidKey, len(key), cryptox.KeySize)
	}
	pub, err := cryptox.LoadRSAPublicKey(pubPath)
	if err != nil {
		return err
	}
	wrapped, err := cryptox.WrapKey(pub, key)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, []byte(cryptox.EncodeWrappedKey(wrapped)+"\n"), 0o600)
}
