package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"siftmatch/pkg/featurefile"
	"siftmatch/pkg/geometry"
	"siftmatch/pkg/sift"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var debug = os.Getenv("SIFTMATCH_LOG_LEVEL") == "debug"

func main() {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) < 1 {
		usage(out)
		return errors.New("missing command")
	}
	switch args[0] {
	case "extract":
		return runExtract(args[1:], out)
	case "match":
		return runMatch(args[1:], out)
	case "--version", "-v", "version":
		fmt.Fprintf(out, "siftmatch %s\n", Version)
		fmt.Fprintf(out, "  Build time: %s\n", BuildTime)
		fmt.Fprintf(out, "  Git commit: %s\n", GitCommit)
		return nil
	case "--help", "-h", "help":
		usage(out)
		return nil
	default:
		usage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "siftmatch - scale invariant feature extraction and matching")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  siftmatch extract [options] <image>          write <image>.sift")
	fmt.Fprintln(out, "  siftmatch match [options] <a> <b>            match two images or .sift files")
	fmt.Fprintln(out, "  siftmatch version")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Images may be PNG, JPEG, GIF, TIFF, BMP, WebP or FITS.")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Environment variables:")
	fmt.Fprintln(out, "  SIFTMATCH_LOG_LEVEL=debug    Enable debug logging")
}

// extractFlags registers the extraction parameters on fs.
func extractFlags(fs *flag.FlagSet) *sift.Params {
	p := sift.NewParams()
	fs.IntVar(&p.Steps, "steps", p.Steps, "blur levels per octave")
	fs.Float64Var(&p.InitialSigma, "sigma", p.InitialSigma, "blur of the first level of every octave")
	fs.IntVar(&p.MinOctaveSize, "min-octave", p.MinOctaveSize, "smallest octave side")
	fs.IntVar(&p.MaxOctaveSize, "max-octave", p.MaxOctaveSize, "largest octave side searched for features")
	fs.IntVar(&p.FdSize, "fd-size", p.FdSize, "descriptor grid size")
	fs.IntVar(&p.FdBins, "fd-bins", p.FdBins, "descriptor orientation bins")
	fs.Float64Var(&p.MinContrast, "min-contrast", p.MinContrast, "DoG contrast threshold")
	fs.Float64Var(&p.EdgeRatio, "edge-ratio", p.EdgeRatio, "principal curvature ratio limit")
	fs.BoolVar(&p.Parallel, "parallel", false, "process octaves concurrently")
	fs.StringVar(&p.DebugPath, "debug-dir", "", "existing directory for scale space dumps")
	return p
}

func runExtract(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(out)
	p := extractFlags(fs)
	output := fs.String("o", "", "output file (default <image>.sift)")
	coverage := fs.Bool("coverage", false, "print the 3x3 feature coverage")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: siftmatch extract [options] <image>")
	}
	input := fs.Arg(0)
	if *output == "" {
		*output = strings.TrimSuffix(input, filepath.Ext(input)) + ".sift"
	}

	res, err := extractFile(input, p)
	if err != nil {
		return err
	}
	if err := featurefile.Save(*output, res.Features, res.Width, res.Height); err != nil {
		return fmt.Errorf("writing features: %w", err)
	}

	fmt.Fprintf(out, "Image size:   %d x %d\n", res.Width, res.Height)
	fmt.Fprintf(out, "Features:     %d\n", len(res.Features))
	if len(res.Features) > 0 {
		scales := make([]float64, len(res.Features))
		for i, f := range res.Features {
			scales[i] = float64(f.Scale)
		}
		median, mad := medianMAD(scales)
		fmt.Fprintf(out, "Scale:        %.3f +/- %.3f px\n", median, mad)
	}
	fmt.Fprintf(out, "Written:      %s\n", *output)

	if *coverage {
		printCoverage(out, sift.AnalyzeCoverage(res.Features, res.Width, res.Height))
	}
	return nil
}

func extractFile(path string, p *sift.Params) (*sift.Result, error) {
	start := time.Now()
	g, err := loadGrid(path)
	if err != nil {
		return nil, err
	}
	defer g.Close()

	res, err := sift.Extract(context.Background(), g, p)
	if err != nil {
		return nil, fmt.Errorf("extracting features from %s: %w", path, err)
	}
	if n := res.Metrics.DebugWriteErrors; n > 0 {
		log.Printf("%s: %d debug files could not be written to %s", path, n, p.DebugPath)
	}
	if debug {
		log.Printf("%s: %d features in %.2fs, metrics %v", path, len(res.Features), time.Since(start).Seconds(), res.Metrics)
	}
	return res, nil
}

// loadFeatures reads a .sift file or extracts features from an image.
func loadFeatures(path string, p *sift.Params) ([]sift.Feature, error) {
	if strings.EqualFold(filepath.Ext(path), ".sift") {
		m, err := featurefile.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer m.Close()
		if debug {
			h := m.Header()
			log.Printf("%s: %d features, descriptor length %d", path, h.Count, h.DescriptorLen)
		}
		return m.All()
	}
	res, err := extractFile(path, p)
	if err != nil {
		return nil, err
	}
	return res.Features, nil
}

func runMatch(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("match", flag.ContinueOnError)
	fs.SetOutput(out)
	p := extractFlags(fs)
	mp := sift.NewMatchParams()
	fs.Float64Var(&mp.MaxScaleRatio, "scale-ratio", mp.MaxScaleRatio, "maximum scale ratio between matched features (0 = any)")
	fs.Float64Var(&mp.MaxDistanceRatio, "ratio", mp.MaxDistanceRatio, "maximum best/second-best distance ratio")
	fs.IntVar(&mp.Workers, "workers", mp.Workers, "goroutines for the nearest neighbor search")
	modelName := fs.String("model", "", "fit a translation, rigid, similarity or affine model to the matches")
	epsilon := fs.Float64("epsilon", 3, "inlier distance for the model test in px")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("usage: siftmatch match [options] <a> <b>")
	}
	var model *geometry.Model
	if *modelName != "" {
		kind, err := geometry.ParseKind(*modelName)
		if err != nil {
			return err
		}
		model = geometry.NewModel(kind)
	}

	as, err := loadFeatures(fs.Arg(0), p)
	if err != nil {
		return err
	}
	bs, err := loadFeatures(fs.Arg(1), p)
	if err != nil {
		return err
	}

	matches := sift.MatchFeatures(as, bs, mp)
	fmt.Fprintf(out, "Features:     %d / %d\n", len(as), len(bs))
	fmt.Fprintf(out, "Matches:      %d\n", len(matches))
	if len(matches) == 0 {
		return nil
	}

	dx, dy, votes := majorityDisplacement(matches)
	fmt.Fprintf(out, "Displacement: (%d, %d) px, %d votes\n", dx, dy, votes)

	distances := make([]float64, len(matches))
	weights := make([]float64, len(matches))
	for i, m := range matches {
		distances[i] = float64(m.Distance)
		weights[i] = float64(m.Weight)
	}
	mean, std := stat.MeanStdDev(distances, weights)
	fmt.Fprintf(out, "Distance:     %.4f +/- %.4f (weighted)\n", mean, std)

	if model == nil {
		return nil
	}
	pms := sift.MatchesToPointMatches(matches)
	if err := model.Fit(pms); err != nil {
		return fmt.Errorf("fitting model: %w", err)
	}
	inliers, ok := model.Test(pms, *epsilon, 0)
	fmt.Fprintf(out, "Model:        %v\n", model)
	fmt.Fprintf(out, "Inliers:      %d of %d (residual %.3f px, ok=%v)\n", len(inliers), len(pms), model.Cost, ok)
	return nil
}

// majorityDisplacement returns the most common rounded offset from A to B.
// Ties go to the smaller offset.
func majorityDisplacement(matches []sift.Match) (int, int, int) {
	votes := make(map[[2]int]int)
	for _, m := range matches {
		key := [2]int{
			int(math.Round(float64(m.B.X - m.A.X))),
			int(math.Round(float64(m.B.Y - m.A.Y))),
		}
		votes[key]++
	}
	var best [2]int
	bestVotes := 0
	for k, n := range votes {
		if n > bestVotes || n == bestVotes && (k[0] < best[0] || k[0] == best[0] && k[1] < best[1]) {
			best = k
			bestVotes = n
		}
	}
	return best[0], best[1], bestVotes
}

// medianMAD returns the (lower) median and the scaled median absolute
// deviation.
func medianMAD(values []float64) (float64, float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)

	deviations := make([]float64, len(sorted))
	for i, v := range sorted {
		deviations[i] = math.Abs(v - median)
	}
	sort.Float64s(deviations)
	return median, 1.4826 * stat.Quantile(0.5, stat.Empirical, deviations, nil)
}

func printCoverage(out io.Writer, c *sift.Coverage) {
	if c == nil {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "=== Coverage (3x3) ===")
	for i, z := range c.Zones {
		fmt.Fprintf(out, "  %-8s n=%-5d scale=%.3f\n", z.Label, z.Count, z.MedianScale)
		if (i+1)%3 == 0 && i < 8 {
			fmt.Fprintln(out, "  ---")
		}
	}
	fmt.Fprintf(out, "\n  Balance:  %.2f\n", c.Balance)
	if !c.Reliable {
		fmt.Fprintf(out, "  [SPARSE ZONES %s]\n", strings.Join(c.EmptyZones, " "))
	}
	fmt.Fprintln(out, "======================")
}
