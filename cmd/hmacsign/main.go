// Command hmacsign prints the headers a merchant sends with a signed
// request to the gateway:
//
//	PAYGATE_API_SECRET=... hmacsign -key mpg_... -body payload.json
//
// The secret is read from PAYGATE_API_SECRET or, when unset, prompted for
// without echo. The body is read from -body, or stdin when it is "-".
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/paygate/internal/common"
	"github.com/dmitrijs2005/paygate/internal/cryptox"
	"golang.org/x/term"
)

const secretEnv = "PAYGATE_API_SECRET"

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var now = time.Now

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "hmacsign:", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("hmacsign", flag.ContinueOnError)
	fs.SetOutput(stderr)

	apiKey := fs.String("key", "", "merchant API key (x-api-key)")
	bodyPath := fs.String("body", "-", "request body file, - for stdin")
	algo := fs.String("algo", "sha256", "HMAC algorithm: sha256, sha384 or sha512")
	ts := fs.Int64("ts", 0, "timestamp in unix milliseconds, defaults to now")

	if err := fs.Parse(args); err != nil {
		return err
	}

	signer, err := cryptox.NewSigner(*algo)
	if err != nil {
		return err
	}

	body, err := readBody(*bodyPath, stdin)
	if err != nil {
		return err
	}

	secret, err := readSecret(stderr)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(secret)

	if *ts == 0 {
		*ts = now().UnixMilli()
	}
	timestamp := strconv.FormatInt(*ts, 10)
	sig := signer.Sign(timestamp, body, string(secret))

	if *apiKey != "" {
		fmt.Fprintf(stdout, "x-api-key: %s\n", *apiKey)
	}
	fmt.Fprintf(stdout, "x-timestamp: %s\n", timestamp)
	fmt.Fprintf(stdout, "x-signature: %s\n", sig)
	return nil
}

func readBody(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func readSecret(prompt io.Writer) ([]byte, error) {
	if v := strings.TrimSpace(os.Getenv(secretEnv)); v != "" {
		return []byte(v), nil
	}

	fmt.Fprint(prompt, "API secret: ")
	secret, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(prompt)
	if err != nil {
		return nil, err
	}
	if len(secret) == 0 {
		return nil, errors.New("empty API secret")
	}
	return secret, nil
}
