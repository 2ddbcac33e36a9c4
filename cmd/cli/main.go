// Command gf is a CLI client for the gymflow backend. It keeps the session on disk and shows
// which screen the app would put the user on.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/and161185/gymflow/internal/auth"
	"github.com/and161185/gymflow/internal/config"
	"github.com/and161185/gymflow/internal/gate"
	"go.uber.org/zap"
	"google.golang.org/grpc/status"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `gf CLI
Usage:
  gf [-config file] [-addr HOST:PORT] [-cacert file | -insecure] [-v] <cmd> [args]

Commands:
  version
  register      -u <username> -p <password>
  login         -u <username> -p <password> | -assertion <jwt>   (saves token)
  logout
  whereami                                      (one resolution pass)
  watch                                         (follow the session; type help for commands)
  set-password  -p <password>
`)
	os.Exit(2)
}

// overrides copies explicitly set global flags over the file config.
func overrides(cfg *config.Config, set map[string]bool, addr, caPath string, insecure bool) {
	if set["addr"] {
		cfg.Addr = addr
	}
	if set["cacert"] {
		cfg.CACert = caPath
		cfg.Insecure = false
	}
	if set["insecure"] {
		cfg.Insecure = insecure
		if insecure {
			cfg.CACert = ""
		}
	}
}

func newLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// main dispatches subcommands.
func main() {
	cfgPath := flag.String("config", config.Path(auth.ConfigDir()), "client config (YAML)")
	addr := flag.String("addr", "", "server addr")
	caPath := flag.String("cacert", "", "CA cert (PEM)")
	insecure := flag.Bool("insecure", false, "skip cert verify (dev)")
	verbose := flag.Bool("v", false, "log to stderr")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	if cmd == "version" {
		fmt.Printf("gf %s (%s)\n", version, buildDate)
		return
	}

	cfg, err := config.LoadOptional(*cfgPath)
	if err != nil {
		fail(err)
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	overrides(cfg, set, *addr, *caPath, *insecure)
	if err := cfg.Validate(); err != nil {
		fail(err)
	}

	log := newLogger(*verbose)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := connect(cfg, log)
	if err != nil {
		fail(err)
	}
	defer d.Close()

	switch cmd {
	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		u := fs.String("u", "", "username")
		p := fs.String("p", "", "password")
		_ = fs.Parse(args)
		if *u == "" || *p == "" {
			fmt.Fprintln(os.Stderr, "need -u and -p")
			os.Exit(1)
		}
		id, err := d.client.Register(ctx, *u, *p)
		if err != nil {
			fail(err)
		}
		fmt.Println(id)

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		u := fs.String("u", "", "username")
		p := fs.String("p", "", "password")
		assertion := fs.String("assertion", "", "identity broker assertion (federated sign-in)")
		_ = fs.Parse(args)

		var err error
		switch {
		case *assertion != "":
			_, err = d.provider.SignInFederated(ctx, *assertion)
		case *u != "" && *p != "":
			_, err = d.provider.SignIn(ctx, *u, *p)
		default:
			fmt.Fprintln(os.Stderr, "need -u and -p, or -assertion")
			os.Exit(1)
		}
		if err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "logout":
		if err := d.provider.SignOut(ctx); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "whereami":
		sess, err := d.provider.CurrentSession(ctx)
		if err != nil {
			fail(err)
		}
		fmt.Println(describe(whereami(ctx, sess, d.fetcher(), time.Now())))

	case "watch":
		if err := watch(ctx, d, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			fail(err)
		}

	case "set-password":
		fs := flag.NewFlagSet("set-password", flag.ExitOnError)
		p := fs.String("p", "", "new password")
		_ = fs.Parse(args)
		sess, err := d.provider.CurrentSession(ctx)
		if err != nil {
			fail(err)
		}
		if sess == nil {
			fail(auth.ErrNotSignedIn)
		}
		if err := gate.ValidatePassword(*p); err != nil {
			fail(err)
		}
		if err := setPassword(ctx, d.client, sess.UserID, *p); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	default:
		usage()
	}
}

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
