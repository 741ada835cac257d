package dist

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/lowvariance/marginal/factor"
	"github.com/lowvariance/marginal/kernels"
)

func TestConstructorValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		build   func() error
		wantErr bool
	}{
		{name: "bernoulli ok", build: func() error { _, err := NewBernoulli(0.3); return err }},
		{name: "bernoulli p>1", build: func() error { _, err := NewBernoulli(1.5); return err }, wantErr: true},
		{name: "bernoulli NaN", build: func() error { _, err := NewBernoulli(math.NaN()); return err }, wantErr: true},
		{name: "categorical ok", build: func() error { _, err := NewCategorical(1, 2, 3); return err }},
		{name: "categorical empty", build: func() error { _, err := NewCategorical(); return err }, wantErr: true},
		{name: "categorical negative", build: func() error { _, err := NewCategorical(1, -1); return err }, wantErr: true},
		{name: "categorical all zero", build: func() error { _, err := NewCategorical(0, 0); return err }, wantErr: true},
		{name: "logits ok", build: func() error { _, err := NewCategoricalLogits(0, -1); return err }},
		{name: "logits all -Inf", build: func() error { _, err := NewCategoricalLogits(math.Inf(-1)); return err }, wantErr: true},
		{name: "normal ok", build: func() error { _, err := NewNormal(0, 1); return err }},
		{name: "normal zero scale", build: func() error { _, err := NewNormal(0, 0); return err }, wantErr: true},
		{name: "exponential ok", build: func() error { _, err := NewExponential(2); return err }},
		{name: "exponential negative", build: func() error { _, err := NewExponential(-2); return err }, wantErr: true},
		{name: "poisson ok", build: func() error { _, err := NewPoisson(3); return err }},
		{name: "poisson zero", build: func() error { _, err := NewPoisson(0); return err }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build()
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLogProbNormalizes(t *testing.T) {
	t.Parallel()
	// For discrete distributions, the mass over the support must sum to one.
	discretes := []Discrete{
		mustBernoulli(t, 0.25),
		mustCategorical(t, 1, 2, 3, 4),
	}
	for _, d := range discretes {
		support, err := d.Support()
		if err != nil {
			t.Fatalf("%s Support: %v", d.Kind(), err)
		}
		lps := make([]float64, len(support))
		for i, x := range support {
			lps[i] = d.LogProb(x)
		}
		if z := kernels.LogSumExp(lps); math.Abs(z) > 1e-12 {
			t.Errorf("%s mass sums to exp(%v), want 1", d.Kind(), z)
		}
	}
}

func TestOutOfSupport(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		d    Distribution
		x    float64
	}{
		{name: "bernoulli half", d: mustBernoulli(t, 0.5), x: 0.5},
		{name: "categorical negative", d: mustCategorical(t, 1, 1), x: -1},
		{name: "categorical fractional", d: mustCategorical(t, 1, 1), x: 0.5},
		{name: "categorical overflow", d: mustCategorical(t, 1, 1), x: 2},
		{name: "exponential negative", d: mustExponential(t, 1), x: -0.1},
		{name: "poisson fractional", d: mustPoisson(t, 2), x: 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if lp := tt.d.LogProb(tt.x); !math.IsInf(lp, -1) {
				t.Errorf("LogProb(%v) = %v, want -Inf", tt.x, lp)
			}
		})
	}
}

func TestNormalLogProb(t *testing.T) {
	t.Parallel()
	n := mustNormal(t, 0, 1)
	want := -0.5 * log2Pi // standard normal at the mode
	if got := n.LogProb(0); math.Abs(got-want) > 1e-12 {
		t.Errorf("LogProb(0) = %v, want %v", got, want)
	}

	shifted := mustNormal(t, 3, 2)
	if got, want := shifted.LogProb(3), n.LogProb(0)-math.Log(2); math.Abs(got-want) > 1e-12 {
		t.Errorf("scaled mode density = %v, want %v", got, want)
	}
}

func TestPoissonLogProb(t *testing.T) {
	t.Parallel()
	p := mustPoisson(t, 2)
	// P(k=0) = exp(-2)
	if got := p.LogProb(0); math.Abs(got-(-2)) > 1e-12 {
		t.Errorf("LogProb(0) = %v, want -2", got)
	}
	// P(k=3) = 2^3 exp(-2) / 3!
	want := 3*math.Log(2) - 2 - math.Log(6)
	if got := p.LogProb(3); math.Abs(got-want) > 1e-12 {
		t.Errorf("LogProb(3) = %v, want %v", got, want)
	}
}

func TestPoissonRefusesEnumeration(t *testing.T) {
	t.Parallel()
	p := mustPoisson(t, 2)
	_, err := p.Support()
	if !errors.Is(err, ErrNotEnumerable) {
		t.Errorf("Support error = %v, want ErrNotEnumerable", err)
	}
}

func TestSampleMoments(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(42))
	const n = 200000

	tests := []struct {
		name     string
		d        Distribution
		wantMean float64
		tol      float64
	}{
		{name: "bernoulli", d: mustBernoulli(t, 0.3), wantMean: 0.3, tol: 0.01},
		{name: "categorical", d: mustCategorical(t, 1, 1, 2), wantMean: 0.25*0 + 0.25*1 + 0.5*2, tol: 0.02},
		{name: "normal", d: mustNormal(t, -1, 0.5), wantMean: -1, tol: 0.01},
		{name: "exponential", d: mustExponential(t, 4), wantMean: 0.25, tol: 0.01},
		{name: "poisson", d: mustPoisson(t, 3), wantMean: 3, tol: 0.05},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum := 0.0
			for i := 0; i < n; i++ {
				sum += tt.d.Sample(rng)
			}
			got := sum / n
			if math.Abs(got-tt.wantMean) > tt.tol {
				t.Errorf("sample mean = %v, want %v +- %v", got, tt.wantMean, tt.tol)
			}
		})
	}
}

func TestLogProbFactor(t *testing.T) {
	t.Parallel()
	c := mustCategorical(t, 1, 1, 2)
	support, err := c.Support()
	if err != nil {
		t.Fatalf("Support: %v", err)
	}
	value, err := factor.New([]factor.Dim{{Name: "z", Size: 3}}, support)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	lp, err := LogProbFactor(c, value)
	if err != nil {
		t.Fatalf("LogProbFactor: %v", err)
	}
	if _, ok := lp.Size("z"); !ok {
		t.Fatal("log-prob factor should keep the value's dimension")
	}
	for k := 0; k < 3; k++ {
		got, err := lp.At(map[string]int{"z": k})
		if err != nil {
			t.Fatalf("At: %v", err)
		}
		if want := c.LogProb(float64(k)); got != want {
			t.Errorf("lp[z=%d] = %v, want %v", k, got, want)
		}
	}
}

func mustBernoulli(t *testing.T, p float64) *Bernoulli {
	t.Helper()
	d, err := NewBernoulli(p)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func mustCategorical(t *testing.T, ws ...float64) *Categorical {
	t.Helper()
	d, err := NewCategorical(ws...)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func mustNormal(t *testing.T, loc, scale float64) *Normal {
	t.Helper()
	d, err := NewNormal(loc, scale)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func mustExponential(t *testing.T, rate float64) *Exponential {
	t.Helper()
	d, err := NewExponential(rate)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func mustPoisson(t *testing.T, rate float64) *Poisson {
	t.Helper()
	d, err := NewPoisson(rate)
	if err != nil {
		t.Fatal(err)
	}
	return d
}
