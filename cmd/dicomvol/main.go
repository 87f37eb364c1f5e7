package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/mrsinham/dicomvol/internal/config"
	"github.com/mrsinham/dicomvol/internal/convert"
	"github.com/mrsinham/dicomvol/internal/logger"
	"github.com/mrsinham/dicomvol/internal/manifest"
	"github.com/mrsinham/dicomvol/internal/storage"
	"github.com/rs/zerolog"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches to a subcommand and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	cmd := "convert"
	if len(args) > 0 {
		switch args[0] {
		case "convert", "configs", "results", "synth":
			cmd, args = args[0], args[1:]
		case "version", "--version", "-version":
			fmt.Fprintf(stdout, "dicomvol %s\n", version)
			return 0
		case "help", "--help", "-help", "-h":
			printHelp(stdout)
			return 0
		}
	}

	switch cmd {
	case "configs":
		return runConfigs(args, stdout, stderr)
	case "results":
		return runResults(args, stdout, stderr)
	case "synth":
		return runSynth(args, stdout, stderr)
	default:
		return runConvert(args, stdout, stderr)
	}
}

// convertFlags are the convert flags that override the configuration file
// when set on the command line.
type convertFlags struct {
	maxPerModality   int
	minSlices        int
	minDistinguished int
	distinguished    string
	pack             bool
	copyOriginals    bool
	format           string
	collection       string
	bins             int
	workers          int
	logLevel         string
	logFile          string
}

func (f *convertFlags) register(fs *flag.FlagSet) {
	def := config.Default()
	fs.IntVar(&f.maxPerModality, "max-per-modality", def.Selection.MaxPerModality, "Maximum converted series per modality (0 = unlimited)")
	fs.IntVar(&f.minSlices, "min-slices", def.Selection.MinSlices, "Minimum declared slices for a series to be converted")
	fs.IntVar(&f.minDistinguished, "min-slices-distinguished", def.Selection.MinSlicesDistinguished, "Minimum slices for the distinguished modality")
	fs.StringVar(&f.distinguished, "distinguished-modality", def.Selection.DistinguishedModality, "Modality using the distinguished minimum")
	fs.BoolVar(&f.pack, "pack", def.Output.PackHistograms, "Also write a histogram-packed volume when levels are unused")
	fs.BoolVar(&f.copyOriginals, "copy-originals", def.Output.CopyOriginals, "Copy the source slice files of each converted series")
	fs.StringVar(&f.format, "format", def.Output.Format, fmt.Sprintf("Volume format: %v", storage.AllFormats()))
	fs.StringVar(&f.collection, "collection", def.Output.Collection, "Write into this subdirectory of the output directory")
	fs.IntVar(&f.bins, "bins", def.Histogram.Bins, "Histogram bins (1-256)")
	fs.IntVar(&f.workers, "workers", def.Processing.Workers, fmt.Sprintf("Number of parallel workers (CPU cores: %d)", runtime.NumCPU()))
	fs.StringVar(&f.logLevel, "log-level", def.Log.Level, "Log level: debug, info, warn, error")
	fs.StringVar(&f.logFile, "log-file", def.Log.File, "Also write JSON logs to this rotating file")
}

// apply copies every flag given on the command line into cfg.
func (f *convertFlags) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "max-per-modality":
			cfg.Selection.MaxPerModality = f.maxPerModality
		case "min-slices":
			cfg.Selection.MinSlices = f.minSlices
		case "min-slices-distinguished":
			cfg.Selection.MinSlicesDistinguished = f.minDistinguished
		case "distinguished-modality":
			cfg.Selection.DistinguishedModality = f.distinguished
		case "pack":
			cfg.Output.PackHistograms = f.pack
		case "copy-originals":
			cfg.Output.CopyOriginals = f.copyOriginals
		case "format":
			cfg.Output.Format = f.format
		case "collection":
			cfg.Output.Collection = f.collection
		case "bins":
			cfg.Histogram.Bins = f.bins
		case "workers":
			cfg.Processing.Workers = f.workers
		case "log-level":
			cfg.Log.Level = f.logLevel
		case "log-file":
			cfg.Log.File = f.logFile
		}
	})
}

// loadConfig resolves the effective configuration: defaults, then the YAML
// file, then explicit flags.
func loadConfig(path string, fs *flag.FlagSet, f *convertFlags) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	f.apply(fs, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig, stderr io.Writer) (zerolog.Logger, io.Closer, error) {
	return logger.New(logger.Config{
		Level:      cfg.Level,
		File:       cfg.File,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxAgeDays: cfg.MaxAgeDays,
		Console:    stderr,
	})
}

func runConvert(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	fs.SetOutput(stderr)
	input := fs.String("input", "", "Collection directory holding the series manifest (required)")
	output := fs.String("output", "", "Output directory (required)")
	configFile := fs.String("config", "", "Load configuration from YAML file")
	saveConfig := fs.String("save-config", "", "Save the effective configuration to YAML file")
	var flags convertFlags
	flags.register(fs)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	if *input == "" && fs.NArg() > 0 {
		*input = fs.Arg(0)
	}
	if *output == "" && fs.NArg() > 1 {
		*output = fs.Arg(1)
	}
	if *input == "" || *output == "" {
		fmt.Fprintln(stderr, "Error: --input and --output are required")
		printUsage(stderr, fs, "dicomvol convert --input <DIR> --output <DIR> [options]")
		return 1
	}

	cfg, err := loadConfig(*configFile, fs, &flags)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}

	log, closer, err := newLogger(cfg.Log, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = closer.Close() }()

	if *saveConfig != "" {
		if err := config.Save(cfg, *saveConfig); err != nil {
			fmt.Fprintf(stderr, "Warning: could not save config: %v\n", err)
		} else {
			log.Info().Str("path", *saveConfig).Msg("configuration saved")
		}
	}

	fmt.Fprintln(stdout, "dicomvol")
	fmt.Fprintln(stdout, "========")
	fmt.Fprintln(stdout)

	m, err := manifest.Load(*input)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading manifest: %v\n", err)
		return 1
	}

	format, _ := storage.ParseFormat(cfg.Output.Format)
	conv, err := convert.New(convert.Options{
		OutputDir:     *output,
		Collection:    cfg.Output.Collection,
		Format:        format,
		Pack:          cfg.Output.PackHistograms,
		CopyOriginals: cfg.Output.CopyOriginals,
		Bins:          cfg.Histogram.Bins,
		Workers:       cfg.Processing.Workers,
		Policy:        cfg.Policy(),
	}, nil, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	report, err := conv.Run(m)
	if report != nil {
		fmt.Fprintln(stdout, renderReport(report))
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "\n✓ Conversion complete!")
	fmt.Fprintf(stdout, "  Manifest: %s\n", report.ManifestPath)
	return 0
}

// parseFlags parses args. When it returns false the command should exit
// with the returned code: 0 after --help, 2 on a bad flag.
func parseFlags(fs *flag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0, false
		}
		return 2, false
	}
	return 0, true
}

func printUsage(w io.Writer, fs *flag.FlagSet, usage string) {
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintf(w, "  %s\n", usage)
	fmt.Fprintln(w, "\nOptions:")
	fs.SetOutput(w)
	fs.PrintDefaults()
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "dicomvol")
	fmt.Fprintln(w, "========")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Convert DICOM series listed in a TCIA manifest into 8-bit volumes.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  dicomvol [convert] --input <DIR> --output <DIR> [options]")
	fmt.Fprintln(w, "  dicomvol configs --root <DIR> [--codecs LIST]")
	fmt.Fprintln(w, "  dicomvol results --root <DIR> --codec <CODEC>")
	fmt.Fprintln(w, "  dicomvol synth --output <DIR> [--series LIST] [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  convert   Convert every selected series and write conv_metadata.csv (default)")
	fmt.Fprintln(w, "  configs   Write lossless encoder configs for AVC, HEVC, VVC and JP3D")
	fmt.Fprintln(w, "  results   Build <CODEC>-results.csv from encoder and decoder logs")
	fmt.Fprintln(w, "  synth     Write a synthetic DICOM collection with its manifest")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'dicomvol <command> --help' for the options of a command.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  # Convert with the default policy (8 series per modality, 50 slices minimum)")
	fmt.Fprintln(w, "  dicomvol --input CMB-MEL --output volumes")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  # Pack sparse histograms, 4 workers, zstd volumes")
	fmt.Fprintln(w, "  dicomvol convert --input CMB-MEL --output volumes --pack --workers 4 --format zst")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  # Generate HEVC configs, then collect the benchmark results")
	fmt.Fprintln(w, "  dicomvol configs --root volumes --codecs hevc")
	fmt.Fprintln(w, "  dicomvol results --root volumes --codec hevc")
}
