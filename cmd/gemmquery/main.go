// Command gemmquery lists the compute devices visible to gemm backends.
//
// Usage:
//
//	gemmquery [-json] [-backend name]
//
// Each device is printed with its backend, kind, API version, vector
// width and buffer memory. The native backend is only linked without the
// nogpu build tag.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/gemm"
	"github.com/gogpu/gemm/backend"
	_ "github.com/gogpu/gemm/backend/software"
)

func main() {
	var (
		asJSON  = flag.Bool("json", false, "print devices as JSON")
		only    = flag.String("backend", "", "list only this backend")
		verbose = flag.Bool("v", false, "log backend diagnostics to stderr")
	)
	flag.Parse()
	log.SetFlags(0)

	if *verbose {
		gemm.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	devices := backend.List()
	if *only != "" {
		devices = filterBackend(devices, *only)
	}
	if len(devices) == 0 {
		log.Fatalf("gemmquery: no devices found (backends: %v)", backend.Available())
	}

	var err error
	if *asJSON {
		err = writeJSON(os.Stdout, devices)
	} else {
		err = writeTable(os.Stdout, devices)
	}
	if err != nil {
		log.Fatalf("gemmquery: %v", err)
	}
}

func filterBackend(devices []gemm.DeviceInfo, name string) []gemm.DeviceInfo {
	var out []gemm.DeviceInfo
	for _, d := range devices {
		if d.Backend == name {
			out = append(out, d)
		}
	}
	return out
}

// deviceJSON is the -json record of one device.
type deviceJSON struct {
	Backend     string `json:"backend"`
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Version     string `json:"version"`
	VectorWidth int    `json:"vector_width"`
	MemoryBytes uint64 `json:"memory_bytes,omitempty"`
	Usable      bool   `json:"usable"`
}

func writeJSON(w io.Writer, devices []gemm.DeviceInfo) error {
	out := make([]deviceJSON, len(devices))
	for i, d := range devices {
		out[i] = deviceJSON{
			Backend:     d.Backend,
			Index:       d.Index,
			Name:        d.Name,
			Kind:        d.Kind.String(),
			Version:     d.Version,
			VectorWidth: d.VectorWidth,
			MemoryBytes: d.MemoryBytes,
			Usable:      d.VectorWidth >= gemm.VectorWidth,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeTable(w io.Writer, devices []gemm.DeviceInfo) error {
	p := message.NewPrinter(language.English)
	if _, err := p.Fprintf(w, "number of devices: %d\n", len(devices)); err != nil {
		return err
	}
	for _, d := range devices {
		mem := "unknown"
		if d.MemoryBytes > 0 {
			mem = p.Sprintf("%d MiB", d.MemoryBytes>>20)
		}
		_, err := p.Fprintf(w, "\n%s device %d: %s\n  kind:         %s\n  version:      %s\n  vector width: %d\n  memory:       %s\n",
			d.Backend, d.Index, d.Name, d.Kind, d.Version, d.VectorWidth, mem)
		if err != nil {
			return err
		}
		if d.VectorWidth < gemm.VectorWidth {
			if _, err := fmt.Fprintf(w, "  (unusable: kernels need vector width %d)\n", gemm.VectorWidth); err != nil {
				return err
			}
		}
	}
	return nil
}
