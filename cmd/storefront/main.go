package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Izileth/lp-ebook/internal/config"
	"github.com/Izileth/lp-ebook/internal/util"
	"github.com/Izileth/lp-ebook/pkg/remote"
)

const usage = `usage: storefront [-config path] [-log-level level] <command> [flags]

commands:
  products                       list products with their images
  product -id N                  show one product
  signin -email E -password P    sign in and persist the session
  signup -email E -password P [-name N]
  signout
  whoami                         show the signed-in identity
  profile                        show the signed-in user's profile
  profile-update [-name] [-slug] [-bio]
  subscribe -email E             subscribe to the newsletter
  admin stats|create|update|images|delete [flags]
  watch [-interval 30s]          keep products and profile fresh, serve metrics
`

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", remote.Message(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("storefront", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	configPath := fs.String("config", "", "config file (default $STOREFRONT_CONFIG or config.yaml)")
	logLevel := fs.String("log-level", "", "override log level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	util.InitLogger(cfg.LogLevel, os.Stderr)

	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fs.Usage()
		return fmt.Errorf("unknown command %q", fs.Arg(0))
	}

	ctx = util.WithRequestID(ctx, "")
	a, err := newApp(ctx, cfg, stdout)
	if err != nil {
		return err
	}
	defer a.close()
	return cmd(ctx, a, fs.Args()[1:])
}
