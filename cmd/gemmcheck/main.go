// Command gemmcheck runs the tiled GEMM engine on a device and checks the
// result against host reference products.
//
// Usage:
//
//	gemmcheck [-backend name] [-device index] [-m M -k K -n N] [-tensor] [-png file]
//
// The triad kernel runs first as a smoke test. gemmcheck exits with status 1
// if any result differs from its reference beyond -tol.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/gemm"
	"github.com/gogpu/gemm/backend"
	_ "github.com/gogpu/gemm/backend/software"
	"github.com/gogpu/gemm/reference"
)

// errMismatch marks a result outside tolerance.
var errMismatch = errors.New("result mismatch")

type config struct {
	backend string
	device  int
	name    string
	m, n, k int
	repeat  int
	seed    uint64
	tol     float64
	tensor  bool
	png     string
	scale   int
	verbose bool
}

func parseFlags(args []string) (config, error) {
	var c config
	fs := flag.NewFlagSet("gemmcheck", flag.ContinueOnError)
	fs.StringVar(&c.backend, "backend", "", "backend name (default: best available)")
	fs.IntVar(&c.device, "device", -1, "device index within -backend (default: first match)")
	fs.StringVar(&c.name, "name", "", "select the first device whose name contains this string")
	fs.IntVar(&c.m, "m", 256, "rows of A and C, a multiple of 4")
	fs.IntVar(&c.n, "n", 256, "columns of B and C, a multiple of 8")
	fs.IntVar(&c.k, "k", 256, "columns of A and rows of B, a multiple of 4")
	fs.IntVar(&c.repeat, "repeat", 3, "timed Multiply runs")
	fs.Uint64Var(&c.seed, "seed", 1, "random input seed")
	fs.Float64Var(&c.tol, "tol", 1e-5, "maximum relative error")
	fs.BoolVar(&c.tensor, "tensor", false, "also compare against the gorgonia tensor product")
	fs.StringVar(&c.png, "png", "", "write a reference | device | difference heatmap to this file")
	fs.IntVar(&c.scale, "scale", 4, "heatmap pixels per element")
	fs.BoolVar(&c.verbose, "v", false, "log engine diagnostics to stderr")
	if err := fs.Parse(args); err != nil {
		return c, err
	}
	if c.device >= 0 && c.backend == "" {
		return c, errors.New("-device needs -backend")
	}
	if c.repeat < 1 {
		c.repeat = 1
	}
	if c.scale < 1 {
		c.scale = 1
	}
	return c, nil
}

func main() {
	log.SetFlags(0)
	c, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("gemmcheck: %v", err)
	}
	if c.verbose {
		gemm.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	if err := run(c, os.Stdout); err != nil {
		log.Printf("gemmcheck: %v", err)
		os.Exit(1)
	}
}

func openDevice(c config) (gemm.Device, error) {
	if c.device >= 0 {
		return backend.Open(c.backend, c.device)
	}
	return backend.Select(backend.Criteria{Backend: c.backend, NameContains: c.name})
}

func run(c config, w io.Writer) error {
	p := message.NewPrinter(language.English)

	dev, err := openDevice(c)
	if err != nil {
		return err
	}
	eng, err := gemm.NewEngine(dev, gemm.WithOwnedDevice())
	if err != nil {
		_ = dev.Close()
		return err
	}
	defer eng.Close()
	p.Fprintf(w, "device: %s\n", dev.Info())

	if err := checkTriad(eng, w); err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(c.seed, c.seed^0x9e3779b97f4a7c15))
	a := reference.Random(rng, c.m, c.k)
	b := reference.Random(rng, c.k, c.n)

	var got *gemm.Matrix
	var best time.Duration
	for i := 0; i < c.repeat; i++ {
		start := time.Now()
		got, err = eng.Multiply(a, b)
		elapsed := time.Since(start)
		if err != nil {
			return err
		}
		if i == 0 || elapsed < best {
			best = elapsed
		}
	}
	flops := 2 * float64(c.m) * float64(c.n) * float64(c.k)
	p.Fprintf(w, "gemm %dx%dx%d: best of %d in %v, %.2f GFLOP/s\n",
		c.m, c.n, c.k, c.repeat, best.Round(time.Microsecond), flops/best.Seconds()/1e9)

	want, err := reference.Naive(a, b)
	if err != nil {
		return err
	}
	failed := compare(w, "naive", got, want, c.tol)

	if c.tensor {
		tw, err := reference.Tensor(a, b)
		if err != nil {
			return err
		}
		failed = compare(w, "tensor", got, tw, c.tol) || failed
	}

	if c.png != "" {
		if err := writeHeatmap(c.png, want, got, c.scale); err != nil {
			return err
		}
		fmt.Fprintf(w, "heatmap written to %s\n", c.png)
	}

	if failed {
		return errMismatch
	}
	fmt.Fprintln(w, "PASS")
	return nil
}

// compare prints the maximum relative error and reports whether it is
// above tol.
func compare(w io.Writer, name string, got, want *gemm.Matrix, tol float64) bool {
	e, row, col := reference.MaxRelError(got, want)
	if row < 0 {
		fmt.Fprintf(w, "%s: FAIL result is %v, want %v\n", name, got, want)
		return true
	}
	if e > tol {
		fmt.Fprintf(w, "%s: FAIL max rel error %.3g at (%d,%d): got %g want %g\n",
			name, e, row, col, got.At(row, col), want.At(row, col))
		return true
	}
	fmt.Fprintf(w, "%s: ok, max rel error %.3g\n", name, e)
	return false
}

// checkTriad runs c = a + 2b on integer vectors, for which the result is
// exact on every device.
func checkTriad(eng *gemm.Engine, w io.Writer) error {
	const n = 1 << 12
	a := make([]float32, n)
	b := make([]float32, n)
	for i := range a {
		a[i] = float32(i)
		b[i] = float32(n - i)
	}
	c, err := eng.Triad(a, b, 2)
	if err != nil {
		return fmt.Errorf("triad: %w", err)
	}
	for i := range c {
		if want := a[i] + 2*b[i]; c[i] != want {
			return fmt.Errorf("triad: %w: c[%d] = %g, want %g", errMismatch, i, c[i], want)
		}
	}
	fmt.Fprintf(w, "triad: ok (%d elements)\n", n)
	return nil
}
