// Command pe is a CLI client for the prompt-enhancer service.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/term"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "prompt-enhancer")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "prompt-enhancer")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func historyPath() string { return filepath.Join(cfgDir(), "history.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	tf, err := readTokenFile()
	if err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

func readTokenFile() (tokenFile, error) {
	var tf tokenFile
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return tf, err
	}
	err = json.Unmarshal(b, &tf)
	return tf, err
}

func removeToken() error {
	err := os.Remove(tokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// tokenExpiry reads exp from the bearer token without verifying it; the server does that.
func tokenExpiry(tok string, now time.Time) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return now.Add(15 * time.Minute), nil
	}
	return claims.ExpiresAt.Time, nil
}

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// readSecret reads an API key without echo when stdin is a terminal.
var readSecret = func(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `pe CLI
Usage:
  pe [-addr URL] [-timeout 30s] <cmd> [args]

Commands:
  version
  login      -token <jwt>                         (saves token)
  logout
  status                                      (server health and session)
  enhance    [-site s] [-context file] [-file f|-text t]
  keys                                        (masked API keys)
  key-set    -provider openai|anthropic         (key read from stdin, hidden)
  key-rm     [-provider openai|anthropic]       (all when omitted)
  settings   [-provider p] [-tone t] [-detail d] [-audience a] [-enabled=bool]
  history    [-page n] [-limit n] [-site s] [-provider p] [-search q]
  local-history
  quota
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands and turns each into a typed message for the API.
func main() {
	addr := flag.String("addr", "http://localhost:8080", "server base URL")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch cmd {
	case "version":
		fmt.Printf("pe %s (%s)\n", version, buildDate)

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		tok := fs.String("token", "", "bearer token ('-'=stdin)")
		_ = fs.Parse(args)
		if *tok == "" {
			fmt.Fprintln(os.Stderr, "need -token")
			os.Exit(1)
		}
		if *tok == "-" {
			b, err := readAll("-")
			if err != nil {
				fail(err)
			}
			*tok = strings.TrimSpace(string(b))
		}
		exp, err := tokenExpiry(*tok, time.Now())
		if err != nil {
			fail(err)
		}
		cli := newClient(*addr, *tok, *timeout)
		if res := cli.Send(ctx, Message{Kind: KindGetUser}); !res.OK() {
			fail(res.Err)
		}
		if err := saveToken(*tok, exp); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "logout":
		if err := removeToken(); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "status":
		cli := newClient(*addr, "", *timeout)
		out := map[string]any{"server": "unreachable", "authenticated": false}
		if res := cli.Send(ctx, Message{Kind: KindPing}); res.OK() {
			out["server"] = "ok"
		}
		if tf, err := readTokenFile(); err == nil && tf.AccessToken != "" {
			out["tokenExpiresAt"] = tf.ExpiresAt.UTC().Format(time.RFC3339)
			if time.Now().Before(tf.ExpiresAt) {
				cli.token = tf.AccessToken
				res := cli.Send(ctx, Message{Kind: KindGetUser})
				out["authenticated"] = res.OK()
				if res.OK() {
					var u struct {
						Email string `json:"email"`
					}
					_ = res.Decode(&u)
					out["email"] = u.Email
				}
			}
		}
		printJSON(out)

	case "enhance":
		fs := flag.NewFlagSet("enhance", flag.ExitOnError)
		site := fs.String("site", "ChatGPT", "chat site (ChatGPT or Claude)")
		text := fs.String("text", "", "prompt text")
		file := fs.String("file", "", "prompt file ('-'=stdin)")
		ctxFile := fs.String("context", "", "conversation context file")
		_ = fs.Parse(args)

		body := enhanceRequest{Site: *site, OriginalText: *text}
		if *file != "" {
			b, err := readAll(*file)
			if err != nil {
				fail(err)
			}
			body.OriginalText = string(b)
		}
		if *ctxFile != "" {
			b, err := readAll(*ctxFile)
			if err != nil {
				fail(err)
			}
			body.Context = string(b)
		}
		if strings.TrimSpace(body.OriginalText) == "" {
			fmt.Fprintln(os.Stderr, "need -text or -file")
			os.Exit(1)
		}

		var out enhanceResponse
		res := authedClient(*addr, *timeout).Send(ctx, Message{Kind: KindEnhance, Body: body})
		if err := res.Decode(&out); err != nil {
			fail(err)
		}
		store := newHistoryStore(historyPath())
		if err := store.Add(body.Site, body.OriginalText, out.EnhancedText); err != nil {
			fmt.Fprintln(os.Stderr, "local history:", err)
		}
		if out.Warning != "" {
			fmt.Fprintln(os.Stderr, "warning:", out.Warning)
		}
		printJSON(out)

	case "keys":
		printResult(authedClient(*addr, *timeout).Send(ctx, Message{Kind: KindGetAPIKeys}))

	case "key-set":
		fs := flag.NewFlagSet("key-set", flag.ExitOnError)
		provider := fs.String("provider", "openai", "openai or anthropic")
		_ = fs.Parse(args)
		body, err := keyBody(*provider, func() (string, error) { return readSecret("API key: ") })
		if err != nil {
			fail(err)
		}
		printResult(authedClient(*addr, *timeout).Send(ctx, Message{Kind: KindSetAPIKey, Body: body}))

	case "key-rm":
		fs := flag.NewFlagSet("key-rm", flag.ExitOnError)
		provider := fs.String("provider", "", "openai or anthropic (all when empty)")
		_ = fs.Parse(args)
		q := url.Values{}
		if *provider != "" {
			q.Set("provider", *provider)
		}
		printResult(authedClient(*addr, *timeout).Send(ctx, Message{Kind: KindDeleteAPIKey, Query: q}))

	case "settings":
		fs := flag.NewFlagSet("settings", flag.ExitOnError)
		patch := settingsFlags(fs)
		_ = fs.Parse(args)
		cli := authedClient(*addr, *timeout)
		body := patch.body(fs)
		if len(body) == 0 {
			printResult(cli.Send(ctx, Message{Kind: KindGetSettings}))
			break
		}
		printResult(cli.Send(ctx, Message{Kind: KindSetSettings, Body: body}))

	case "history":
		fs := flag.NewFlagSet("history", flag.ExitOnError)
		page := fs.String("page", "", "page number")
		limit := fs.String("limit", "", "page size (max 50)")
		site := fs.String("site", "", "site filter")
		provider := fs.String("provider", "", "provider filter")
		search := fs.String("search", "", "text search")
		_ = fs.Parse(args)
		q := url.Values{}
		for k, v := range map[string]string{"page": *page, "limit": *limit, "site": *site, "provider": *provider, "search": *search} {
			if v != "" {
				q.Set(k, v)
			}
		}
		printResult(authedClient(*addr, *timeout).Send(ctx, Message{Kind: KindGetHistory, Query: q}))

	case "local-history":
		items, err := newHistoryStore(historyPath()).Load()
		if err != nil {
			fail(err)
		}
		printJSON(items)

	case "quota":
		printResult(authedClient(*addr, *timeout).Send(ctx, Message{Kind: KindGetQuota}))

	default:
		usage()
	}
}

// ---- helpers ----

func authedClient(addr string, timeout time.Duration) *client {
	token, err := loadToken()
	if err != nil {
		fail(err)
	}
	return newClient(addr, token, timeout)
}

func printResult(res Result) {
	var v any
	if err := res.Decode(&v); err != nil {
		fail(err)
	}
	printJSON(v)
}

func fail(err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		fmt.Fprintf(os.Stderr, "api error: status=%d code=%s msg=%s\n", ae.Status, ae.Code, ae.Message)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
