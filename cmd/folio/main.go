package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/five82/folio/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: folio [flags] <path|url>\n")
		flag.PrintDefaults()
	}
	configPath := flag.String("config", "", "override config path (optional)")
	export := flag.String("export", "", "render one page into this PNG file and exit")
	page := flag.Int("page", 1, "page to export (1-based)")
	width := flag.Int("width", 0, "export width in pixels (default 800)")
	height := flag.Int("height", 0, "export height in pixels (default 1100)")
	password := flag.String("password", "", "password for an encrypted document")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := app.Options{
		ConfigPath: *configPath,
		Document:   flag.Arg(0),
		Password:   *password,
		Export:     *export,
		Page:       *page,
		Width:      *width,
		Height:     *height,
	}
	if err := app.Run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "folio: %v\n", err)
		return 1
	}
	return 0
}
