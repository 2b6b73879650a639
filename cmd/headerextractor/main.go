package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dualitycsgo1/csgodemo/internal/cliconfig"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <demo_file_path>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(demoPath, configPath string) error {
	cfg, err := cliconfig.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	demoInfo, err := readDemoHeader(demoPath, cfg.Parser.DemoParserConfig(logger))
	if err != nil {
		logger.WithError(err).WithField("demo", demoPath).Warn("failed to read header")

		if demoInfo == nil {
			demoInfo = &DemoInfo{DemoFile: demoPath}
		}
		demoInfo.ErrorMessage = err.Error()
	}

	out, err := cfg.Output.Open()
	if err != nil {
		return err
	}

	if err := cfg.Output.WriteJSON(out, demoInfo); err != nil {
		_ = out.Close()
		return err
	}

	return out.Close()
}
