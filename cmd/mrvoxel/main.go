package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"mrvoxel/pkg/config"
	"mrvoxel/pkg/logging"
)

type command struct {
	name  string
	usage string
	run   func(cfg *config.Config, args []string) error
}

var commands = []command{
	{"info", "info <image>...", runInfo},
	{"convert", "convert [-datatype T] [-strides s1,s2,...] [-coord axis=list]... [-axes a1,a2,...] [-gzip] <in> <out>", runConvert},
	{"cat", "cat [-axis n] [-datatype T] <in1> <in2>... <out>", runCat},
	{"reslice", "reslice [-interp K] [-oversample x,y,z] <in> <template> <out>", runReslice},
	{"resize", "resize [-interp K] (-voxel v | -scale s | -size x,y,z) <in> <out>", runResize},
	{"slices", "slices [-axis x|y|z|all] [-ext .png|.jpg] [-volume n] <in> <dir>", runSlices},
	{"import", "import [-gap mm] <dir> <out>  (stack PNG/JPEG slices into a volume)", runImport},
	{"config", "config <path>  (write a default configuration file)", runConfig},
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: mrvoxel [global flags] <command> [flags] <args>\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(out, "  %s\n", c.usage)
	}
	fmt.Fprintf(out, "\nGlobal flags:\n")
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "mrvoxel.yaml", "Configuration file (defaults are used if missing)")
	threads := flag.Int("threads", 0, "Number of worker threads (default: from config, all cores)")
	logLevel := flag.String("loglevel", "", "Log level: debug, info, warn, error, disabled")
	quiet := flag.Bool("quiet", false, "Disable progress output")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *threads > 0 {
		cfg.Threads.Count = *threads
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *quiet {
		cfg.Progress.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ApplyLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	name, args := flag.Arg(0), flag.Args()[1:]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		start := time.Now()
		if err := c.run(cfg, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", name, err)
			os.Exit(1)
		}
		logging.For("main").Debug().
			Str("command", name).
			Dur("elapsed", time.Since(start)).
			Msg("done")
		return
	}
	fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", name)
	flag.Usage()
	os.Exit(1)
}
