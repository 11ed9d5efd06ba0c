// Command flowgen expands a base flow graph with authored value segments and
// writes one validated graph document per plan file.
//
// Usage:
//
//	flowgen -base flows/default.yaml -out generated plans/*.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrWong99/callscript/internal/flowgen"
)

func main() {
	os.Exit(run())
}

func run() int {
	basePath := flag.String("base", "flows/default.yaml", "base flow graph document")
	outDir := flag.String("out", "generated", "output directory")
	verbose := flag.Bool("v", false, "log every written file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] plan.yaml...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		return 2
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	written, err := flowgen.Run(ctx, *basePath, *outDir, flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "flowgen: %v\n", err)
		return 1
	}
	for _, path := range written {
		fmt.Println(path)
	}
	return 0
}
