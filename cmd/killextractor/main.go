package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/dualitycsgo1/csgodemo/internal/cliconfig"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	outPath := flag.String("o", "", "output file, overrides output.path of the config")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <demo_file_path>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *configPath, *outPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(demoPath, configPath, outPath string) error {
	cfg, err := cliconfig.Load(configPath)
	if err != nil {
		return err
	}

	if outPath != "" {
		cfg.Output.Path = outPath
	}

	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result := parseDemoFile(ctx, demoPath, cfg.Parser.DemoParserConfig(logger))

	out, err := cfg.Output.Open()
	if err != nil {
		return err
	}

	if err := cfg.Output.WriteJSON(out, result); err != nil {
		_ = out.Close()
		return err
	}

	return out.Close()
}
