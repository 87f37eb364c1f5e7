package main

import (
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mrsinham/dicomvol/internal/codec"
	"github.com/mrsinham/dicomvol/internal/codecconfig"
	"github.com/mrsinham/dicomvol/internal/config"
	"github.com/mrsinham/dicomvol/internal/dicom/modalities"
	"github.com/mrsinham/dicomvol/internal/resultsheet"
	"github.com/mrsinham/dicomvol/internal/synth"
)

func logConfig(level string) config.LogConfig {
	return config.LogConfig{Level: level}
}

func runConfigs(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("configs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	root := fs.String("root", "", "Directory searched recursively for conv_metadata.csv (required)")
	codecs := fs.String("codecs", "all", "Comma-separated codecs: AVC, HEVC, VVC, JP3D (or 'all')")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if *root == "" {
		fmt.Fprintln(stderr, "Error: --root is required")
		printUsage(stderr, fs, "dicomvol configs --root <DIR> [--codecs LIST]")
		return 1
	}

	list, err := codec.ParseList(*codecs)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	log, closer, err := newLogger(logConfig(*logLevel), stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = closer.Close() }()

	n, err := codecconfig.Run(*root, list, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error generating configs: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "✓ %d config files written under %s\n", n, *root)
	return 0
}

func runResults(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("results", flag.ContinueOnError)
	fs.SetOutput(stderr)
	root := fs.String("root", "", "Directory searched recursively for conv_metadata.csv (required)")
	codecName := fs.String("codec", "", "Codec whose logs are read: AVC, HEVC, VVC, JP3D (required)")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if *root == "" || *codecName == "" {
		fmt.Fprintln(stderr, "Error: --root and --codec are required")
		printUsage(stderr, fs, "dicomvol results --root <DIR> --codec <CODEC>")
		return 1
	}

	c, err := codec.Parse(*codecName)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	log, closer, err := newLogger(logConfig(*logLevel), stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = closer.Close() }()

	sheets, err := resultsheet.Run(*root, c, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error building result sheets: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, renderSheets(sheets))
	return 0
}

func runSynth(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("synth", flag.ContinueOnError)
	fs.SetOutput(stderr)
	output := fs.String("output", "", "Directory the collection and its metadata.csv are written to (required)")
	collection := fs.String("collection", "SYN", "Collection name")
	series := fs.String("series", "MR:60,CT:60,US:5", "Comma-separated MODALITY:SLICES list, one entry per series")
	width := fs.Int("width", 64, "Slice width")
	height := fs.Int("height", 64, "Slice height")
	levels := fs.Int("levels", 256, "Distinct gray levels per series (2-256)")
	seed := fs.Uint64("seed", 0, "Seed for reproducibility (derived from the output path if 0)")
	overlay := fs.Bool("overlay", true, "Draw the slice number on every slice")
	workers := fs.Int("workers", 0, "Number of parallel workers (0 = CPU cores)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if *output == "" {
		fmt.Fprintln(stderr, "Error: --output is required")
		printUsage(stderr, fs, "dicomvol synth --output <DIR> [options]")
		return 1
	}

	specs, err := parseSeriesList(*series, *collection)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	path, err := synth.GenerateCollection(*output, specs, synth.Options{
		Width:   *width,
		Height:  *height,
		Levels:  *levels,
		Seed:    *seed,
		Overlay: *overlay,
		Workers: *workers,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error generating collection: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "✓ %d series written\n", len(specs))
	fmt.Fprintf(stdout, "  Manifest: %s\n", path)
	return 0
}

// parseSeriesList reads "MR:60,CT:20" into one SeriesSpec per entry. Folders are
// <collection>/<MODALITY>-<n>, n counting series of the same modality.
func parseSeriesList(s, collection string) ([]synth.SeriesSpec, error) {
	seen := make(map[modalities.Modality]int)
	var specs []synth.SeriesSpec
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		modStr, countStr, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("invalid series %q, expected MODALITY:SLICES", entry)
		}
		mod := modalities.Normalize(modStr)
		if !modalities.IsValid(string(mod)) {
			return nil, fmt.Errorf("invalid modality %q, valid options: %v", modStr, modalities.AllModalities())
		}
		n, err := strconv.Atoi(strings.TrimSpace(countStr))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid slice count in %q", entry)
		}
		specs = append(specs, synth.SeriesSpec{
			Collection: collection,
			Modality:   mod,
			Slices:     n,
			Folder:     filepath.Join(collection, fmt.Sprintf("%s-%d", mod, seen[mod])),
		})
		seen[mod]++
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no series in %q", s)
	}
	return specs, nil
}
