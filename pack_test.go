// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gemm

import (
	"errors"
	"math/rand/v2"
	"testing"
)

// indexMatrix returns a rows×cols matrix whose elements are their
// row-major index.
func indexMatrix(rows, cols int) *Matrix {
	m := NewMatrix(rows, cols)
	for i := range m.Data {
		m.Data[i] = float32(i)
	}
	return m
}

func randomMatrix(rng *rand.Rand, rows, cols int) *Matrix {
	m := NewMatrix(rows, cols)
	for i := range m.Data {
		m.Data[i] = rng.Float32()*2 - 1
	}
	return m
}

func TestPackALayout(t *testing.T) {
	a := indexMatrix(4, 8)
	p, err := PackA(a)
	if err != nil {
		t.Fatalf("PackA() error = %v", err)
	}
	if len(p) != 8 {
		t.Fatalf("len = %d, want 8", len(p))
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 2; j++ {
			for l := 0; l < 4; l++ {
				if got, want := p[i*2+j][l], a.At(i, 4*j+l); got != want {
					t.Errorf("A tile (%d,%d) lane %d = %g, want %g", i, j, l, got, want)
				}
			}
		}
	}
}

func TestPackBLayout(t *testing.T) {
	const k, n = 8, 16
	b := indexMatrix(k, n)
	p, err := PackB(b)
	if err != nil {
		t.Fatalf("PackB() error = %v", err)
	}
	kv := k / 4
	if len(p) != n*kv {
		t.Fatalf("len = %d, want %d", len(p), n*kv)
	}
	for c := 0; c < n; c++ {
		for j := 0; j < kv; j++ {
			for l := 0; l < 4; l++ {
				if got, want := p[c*kv+j][l], b.At(4*j+l, c); got != want {
					t.Errorf("B column %d step %d lane %d = %g, want %g", c, j, l, got, want)
				}
			}
		}
	}
}

func TestPackCRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, s := range [][2]int{{4, 8}, {8, 16}, {12, 24}, {64, 128}} {
		c := randomMatrix(rng, s[0], s[1])
		p, err := PackC(c)
		if err != nil {
			t.Fatalf("PackC() error = %v", err)
		}
		got, err := UnpackC(p, s[0], s[1])
		if err != nil {
			t.Fatalf("UnpackC() error = %v", err)
		}
		if !got.Equal(c) {
			t.Errorf("%dx%d: UnpackC(PackC(C)) != C", s[0], s[1])
		}
	}
}

func TestPackIdempotent(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	a := randomMatrix(rng, 8, 12)
	b := randomMatrix(rng, 12, 16)

	for name, pack := range map[string]func() ([]Vec4, error){
		"A": func() ([]Vec4, error) { return PackA(a) },
		"B": func() ([]Vec4, error) { return PackB(b) },
	} {
		p1, err := pack()
		if err != nil {
			t.Fatalf("pack %s: %v", name, err)
		}
		p2, _ := pack()
		if len(p1) != len(p2) {
			t.Fatalf("pack %s: lengths %d and %d", name, len(p1), len(p2))
		}
		for i := range p1 {
			if p1[i] != p2[i] {
				t.Errorf("pack %s: vector %d differs: %v vs %v", name, i, p1[i], p2[i])
			}
		}
	}
}

func TestPackPreconditions(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"A rows", func() error { _, err := PackA(NewMatrix(3, 8)); return err }},
		{"A cols", func() error { _, err := PackA(NewMatrix(4, 6)); return err }},
		{"A nil", func() error { _, err := PackA(nil); return err }},
		{"B cols", func() error { _, err := PackB(NewMatrix(4, 12)); return err }},
		{"B rows", func() error { _, err := PackB(NewMatrix(5, 8)); return err }},
		{"C cols", func() error { _, err := PackC(NewMatrix(4, 4)); return err }},
		{"unpack rows", func() error { _, err := UnpackC(make([]Vec4, 4), 2, 8); return err }},
		{"unpack length", func() error { _, err := UnpackC(make([]Vec4, 7), 4, 8); return err }},
		{"vector length", func() error { _, err := PackVector(make([]float32, 6)); return err }},
		{"vector empty", func() error { _, err := PackVector(nil); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, ErrShapeMismatch) {
				t.Errorf("error = %v, want ErrShapeMismatch", err)
			}
		})
	}
}

func TestPackVectorRoundTrip(t *testing.T) {
	x := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	p, err := PackVector(x)
	if err != nil {
		t.Fatalf("PackVector() error = %v", err)
	}
	if p[1] != (Vec4{5, 6, 7, 8}) {
		t.Errorf("vector 1 = %v", p[1])
	}
	got := UnpackVector(p)
	for i := range x {
		if got[i] != x[i] {
			t.Errorf("x[%d] = %g, want %g", i, got[i], x[i])
		}
	}
}

func BenchmarkPackB(b *testing.B) {
	m := randomMatrix(rand.New(rand.NewPCG(1, 1)), 256, 256)
	b.ReportAllocs()
	for b.Loop() {
		if _, err := PackB(m); err != nil {
			b.Fatal(err)
		}
	}
}
