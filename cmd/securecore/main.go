package main

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"aim-chat/securecore/internal/codec"
	"aim-chat/securecore/internal/config"
	"aim-chat/securecore/internal/identity"
	"aim-chat/securecore/internal/platform/privacylog"
	"aim-chat/securecore/internal/session"
)

const (
	exitOK           = 0
	exitInvalidInput = 10
	exitConfig       = 20
	exitCrypto       = 30
	exitUnreadable   = 40
)

const defaultPhraseEnv = "SECURECORE_RECOVERY_PHRASE"

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
	now    func() time.Time
}

func main() {
	c := &cli{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr, getenv: os.Getenv, now: time.Now}
	os.Exit(c.run(os.Args[1:]))
}

func (c *cli) run(args []string) int {
	if len(args) < 1 {
		c.printUsage()
		return exitInvalidInput
	}
	switch args[0] {
	case "keygen":
		return c.runKeygen(args[1:])
	case "encrypt":
		return c.runEncrypt(args[1:])
	case "decrypt":
		return c.runDecrypt(args[1:])
	case "inspect":
		return c.runInspect(args[1:])
	case "version":
		fmt.Fprintf(c.stdout, "securecore version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return exitOK
	default:
		c.printUsage()
		return exitInvalidInput
	}
}

func (c *cli) runKeygen(args []string) int {
	fs := c.flagSet("keygen")
	configPath := fs.String("config", "", "path to securecore.yaml (optional)")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	cfg, err := config.LoadFromPath(*configPath)
	if err != nil {
		return c.fail(err, exitConfig)
	}

	phrase, err := identity.NewRecoveryPhrase()
	if err != nil {
		return c.fail(err, exitCrypto)
	}
	sess, err := c.newSession(cfg, session.WithRecoveryPhrase(phrase, ""))
	if err != nil {
		return c.fail(err, exitConfig)
	}
	defer sess.Close()

	km, err := sess.Initialize()
	if err != nil {
		return c.fail(err, exitCrypto)
	}
	fp, err := sess.Fingerprint()
	if err != nil {
		return c.fail(err, exitCrypto)
	}
	return c.printJSON(map[string]any{
		"suite":           cfg.Suite.String(),
		"public_key":      base64.RawURLEncoding.EncodeToString(km.PublicKey()),
		"fingerprint":     fp,
		"safety_number":   identity.SafetyNumber(fp),
		"recovery_phrase": phrase,
	})
}

func (c *cli) runEncrypt(args []string) int {
	fs := c.flagSet("encrypt")
	configPath := fs.String("config", "", "path to securecore.yaml (optional)")
	to := fs.String("to", "", "recipient public key, base64url")
	ttl := fs.Int("ttl", 0, "self-destruct after this many minutes (0 keeps the message)")
	msg := fs.String("msg", "", "message text; read from stdin when empty")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	recipient, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(*to))
	if err != nil || len(recipient) == 0 {
		return c.fail(errors.New("-to must be a base64url public key"), exitInvalidInput)
	}
	text := *msg
	if text == "" {
		raw, err := io.ReadAll(c.stdin)
		if err != nil {
			return c.fail(err, exitInvalidInput)
		}
		text = strings.TrimRight(string(raw), "\r\n")
	}

	cfg, err := config.LoadFromPath(*configPath)
	if err != nil {
		return c.fail(err, exitConfig)
	}
	sess, err := c.newSession(cfg)
	if err != nil {
		return c.fail(err, exitConfig)
	}
	defer sess.Close()

	opts := session.SendOptions{SelfDestruct: *ttl != 0, ExpirationMinutes: *ttl}
	env, err := sess.EncryptForRecipient(text, recipient, opts)
	if err != nil {
		if errors.Is(err, session.ErrInvalidExpiration) || errors.Is(err, session.ErrEmptyPlaintext) {
			return c.fail(err, exitInvalidInput)
		}
		return c.fail(err, exitCrypto)
	}
	armored, err := codec.EncodeString(env)
	if err != nil {
		return c.fail(err, exitCrypto)
	}
	fmt.Fprintln(c.stdout, armored)
	return exitOK
}

func (c *cli) runDecrypt(args []string) int {
	fs := c.flagSet("decrypt")
	configPath := fs.String("config", "", "path to securecore.yaml (optional)")
	phraseEnv := fs.String("phrase-env", defaultPhraseEnv, "environment variable holding the recovery phrase")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	phrase := strings.TrimSpace(c.getenv(*phraseEnv))
	if phrase == "" {
		return c.fail(fmt.Errorf("%s is not set", *phraseEnv), exitInvalidInput)
	}
	armored, err := c.readArmored()
	if err != nil {
		return c.fail(err, exitInvalidInput)
	}

	cfg, err := config.LoadFromPath(*configPath)
	if err != nil {
		return c.fail(err, exitConfig)
	}
	sess, err := c.newSession(cfg, session.WithRecoveryPhrase(phrase, ""))
	if err != nil {
		return c.fail(err, exitConfig)
	}
	defer sess.Close()
	km, err := sess.Initialize()
	if err != nil {
		return c.fail(err, exitCrypto)
	}

	env, err := codec.DecodeString(armored)
	if err != nil {
		return c.fail(session.PublicError(err), exitUnreadable)
	}
	plaintext, err := sess.DecryptIncoming(env, km.PrivateKey())
	if err != nil {
		code := exitCrypto
		if session.Unreadable(err) {
			code = exitUnreadable
		}
		return c.fail(session.PublicError(err), code)
	}
	fmt.Fprintln(c.stdout, plaintext)
	return exitOK
}

func (c *cli) runInspect(args []string) int {
	fs := c.flagSet("inspect")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	armored, err := c.readArmored()
	if err != nil {
		return c.fail(err, exitInvalidInput)
	}
	raw, err := base64.RawURLEncoding.DecodeString(armored)
	if err != nil {
		return c.fail(session.PublicError(fmt.Errorf("%w: %v", codec.ErrMalformedEnvelope, err)), exitUnreadable)
	}
	header, err := codec.Peek(raw)
	if err != nil {
		return c.fail(session.PublicError(err), exitUnreadable)
	}

	out := map[string]any{"header": header}
	if !header.ExpiresAt.IsZero() {
		left := header.ExpiresAt.Sub(c.now())
		if left < 0 {
			left = 0
		}
		out["expired"] = left == 0
		out["remaining"] = left.Round(time.Second).String()
	}
	return c.printJSON(out)
}

func (c *cli) newSession(cfg config.Config, opts ...session.Option) (*session.SecureSession, error) {
	logger := privacylog.NewLogger(c.stderr, cfg.LogLevel, cfg.LogFormat)
	opts = append([]session.Option{session.WithLogger(logger), session.WithClock(c.now)}, opts...)
	return session.New(cfg, opts...)
}

func (c *cli) readArmored() (string, error) {
	sc := bufio.NewScanner(c.stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 32<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line, nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", errors.New("no envelope on stdin")
}

func (c *cli) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) printJSON(v any) int {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return exitInvalidInput
	}
	return exitOK
}

func (c *cli) fail(err error, code int) int {
	fmt.Fprintln(c.stderr, err.Error())
	return code
}

func (c *cli) printUsage() {
	fmt.Fprintln(c.stderr, "securecore <command> [flags]")
	fmt.Fprintln(c.stderr, "commands:")
	fmt.Fprintln(c.stderr, "  keygen   [--config path]")
	fmt.Fprintln(c.stderr, "  encrypt  --to <public key> [--ttl minutes] [--msg text] [--config path]")
	fmt.Fprintln(c.stderr, "  decrypt  [--phrase-env VAR] [--config path] < envelope")
	fmt.Fprintln(c.stderr, "  inspect  < envelope")
	fmt.Fprintln(c.stderr, "  version")
}
