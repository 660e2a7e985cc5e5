package main

import (
	"bytes"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/gemm"
	"github.com/gogpu/gemm/backend"
)

func TestParseFlags(t *testing.T) {
	c, err := parseFlags([]string{"-m", "8", "-n", "16", "-k", "4", "-backend", "software", "-device", "0", "-repeat", "0"})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if c.m != 8 || c.n != 16 || c.k != 4 || c.backend != "software" || c.device != 0 {
		t.Errorf("config = %+v", c)
	}
	if c.repeat != 1 {
		t.Errorf("repeat = %d, want clamped to 1", c.repeat)
	}

	if _, err := parseFlags([]string{"-device", "1"}); err == nil {
		t.Error("-device without -backend should fail")
	}
	if _, err := parseFlags([]string{"-bogus"}); err == nil {
		t.Error("unknown flag should fail")
	}
}

func TestRunSoftware(t *testing.T) {
	out := filepath.Join(t.TempDir(), "heat.png")
	c, err := parseFlags([]string{"-backend", backend.BackendSoftware, "-m", "8", "-n", "16", "-k", "12",
		"-tensor", "-png", out, "-scale", "2"})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}

	var buf bytes.Buffer
	if err := run(c, &buf); err != nil {
		t.Fatalf("run() error = %v\n%s", err, buf.String())
	}
	for _, want := range []string{"triad: ok", "gemm 8x16x12", "naive: ok", "tensor: ok", "PASS"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("heatmap not written: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != (3*16+2*panelGap)*2 || b.Dy() != 8*2 {
		t.Errorf("heatmap size = %v", b)
	}
}

func TestRunShapeMismatch(t *testing.T) {
	c, _ := parseFlags([]string{"-backend", backend.BackendSoftware, "-m", "6", "-n", "16", "-k", "12"})
	var buf bytes.Buffer
	if err := run(c, &buf); !errors.Is(err, gemm.ErrShapeMismatch) {
		t.Errorf("run() error = %v, want ErrShapeMismatch", err)
	}
}

func TestRunUnknownBackend(t *testing.T) {
	c, _ := parseFlags([]string{"-backend", "opencl"})
	if err := run(c, &bytes.Buffer{}); !errors.Is(err, gemm.ErrDeviceUnavailable) {
		t.Errorf("run() error = %v, want ErrDeviceUnavailable", err)
	}
}

func TestCompare(t *testing.T) {
	want, _ := gemm.NewMatrixFrom(1, 2, []float32{1, 2})
	got, _ := gemm.NewMatrixFrom(1, 2, []float32{1, 2.5})

	var buf bytes.Buffer
	if compare(&buf, "x", want, want, 1e-5) {
		t.Error("identical matrices should pass")
	}
	if !compare(&buf, "x", got, want, 1e-5) {
		t.Error("differing matrices should fail")
	}
	if !strings.Contains(buf.String(), "FAIL max rel error 0.25 at (0,1)") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestHeatmapColors(t *testing.T) {
	want, _ := gemm.NewMatrixFrom(1, 2, []float32{-1, 1})
	img := heatmap(want, want)
	if c := img.RGBAAt(0, 0); c.B != 255 || c.R != 0 {
		t.Errorf("negative value color = %v, want blue", c)
	}
	if c := img.RGBAAt(1, 0); c.R != 255 || c.B != 0 {
		t.Errorf("positive value color = %v, want red", c)
	}
	if c := img.RGBAAt(2*(2+panelGap), 0); c.R != 0 || c.G != 0 {
		t.Errorf("exact match diff color = %v, want black", c)
	}
}
