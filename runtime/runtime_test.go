package runtime

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowvariance/marginal/dist"
	"github.com/lowvariance/marginal/factor"
)

func TestStoreConstraints(t *testing.T) {
	st := NewStore()
	require.NoError(t, st.Declare("loc", -2, Real))
	require.NoError(t, st.Declare("scale", 0.5, Positive))
	require.NoError(t, st.Declare("p", 0.25, UnitInterval))

	t.Run("constrained reads", func(t *testing.T) {
		loc, err := st.Get("loc")
		require.NoError(t, err)
		assert.Equal(t, -2.0, loc)

		scale, err := st.Get("scale")
		require.NoError(t, err)
		assert.InDelta(t, 0.5, scale, 1e-12)

		p, err := st.Get("p")
		require.NoError(t, err)
		assert.InDelta(t, 0.25, p, 1e-12)
	})

	t.Run("positive stays positive after steps", func(t *testing.T) {
		u, err := st.Unconstrained("scale")
		require.NoError(t, err)
		require.NoError(t, st.SetUnconstrained("scale", u-100))
		v, err := st.Get("scale")
		require.NoError(t, err)
		assert.Greater(t, v, 0.0)
		require.NoError(t, st.SetUnconstrained("scale", u))
	})

	t.Run("invalid declarations", func(t *testing.T) {
		assert.Error(t, st.Declare("loc", 0, Real), "duplicate name")
		assert.Error(t, st.Declare("", 0, Real), "empty name")
		assert.Error(t, st.Declare("bad-scale", -1, Positive))
		assert.Error(t, st.Declare("bad-p", 1.5, UnitInterval))
		assert.Error(t, st.Declare("bad-c", 0, Constraint(99)))
	})

	t.Run("unknown parameter", func(t *testing.T) {
		_, err := st.Get("nope")
		assert.Error(t, err)
		assert.Error(t, st.SetUnconstrained("nope", 0))
	})

	t.Run("NaN refused", func(t *testing.T) {
		assert.Error(t, st.SetUnconstrained("loc", math.NaN()))
	})

	assert.Equal(t, []string{"loc", "p", "scale"}, st.Names())
}

func TestSnapshotRoundTrip(t *testing.T) {
	st := NewStore()
	require.NoError(t, st.Declare("loc", 1.5, Real))
	require.NoError(t, st.Declare("scale", 2.0, Positive))
	require.NoError(t, st.Declare("mix", 0.7, UnitInterval))

	data, err := st.Serialize()
	require.NoError(t, err)

	back, err := Deserialize(data)
	require.NoError(t, err)
	require.Equal(t, st.Names(), back.Names())
	for _, name := range st.Names() {
		u1, err := st.Unconstrained(name)
		require.NoError(t, err)
		u2, err := back.Unconstrained(name)
		require.NoError(t, err)
		assert.Equal(t, u1, u2, "parameter %s must round-trip bit-exactly", name)

		c1, err := st.ConstraintOf(name)
		require.NoError(t, err)
		c2, err := back.ConstraintOf(name)
		require.NoError(t, err)
		assert.Equal(t, c1, c2)
	}

	// Sorted emission keeps snapshots byte-stable.
	again, err := st.Serialize()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestSnapshotRejectsGarbage(t *testing.T) {
	st := NewStore()
	require.NoError(t, st.Declare("x", 1, Real))
	data, err := st.Serialize()
	require.NoError(t, err)

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[0] ^= 0xFF
		_, err := Deserialize(bad)
		assert.Error(t, err)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := Deserialize(data[:len(data)-3])
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Deserialize(nil)
		assert.Error(t, err)
	})
}

func TestSnapshotGobRoundTrip(t *testing.T) {
	st := NewStore()
	require.NoError(t, st.Declare("a", 3, Positive))

	data, err := st.SerializeGob()
	require.NoError(t, err)
	back, err := DeserializeGob(data)
	require.NoError(t, err)

	v1, err := st.Get("a")
	require.NoError(t, err)
	v2, err := back.Get("a")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestSnapshotFile(t *testing.T) {
	st := NewStore()
	require.NoError(t, st.Declare("w", 0.5, UnitInterval))

	path := t.TempDir() + "/params.mrgp"
	require.NoError(t, st.SaveFile(path))
	back, err := LoadFile(path)
	require.NoError(t, err)
	v, err := back.Get("w")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v, 1e-12)
}

func TestDimAllocExhaustion(t *testing.T) {
	a := NewDimAlloc(2)
	d1, err := a.Fresh("z")
	require.NoError(t, err)
	d2, err := a.Fresh("z")
	require.NoError(t, err)
	assert.NotEqual(t, d1, d2, "fresh dims must be distinct even with equal prefixes")

	_, err = a.Fresh("z")
	assert.ErrorIs(t, err, ErrDimExhausted)
	assert.Equal(t, 2, a.Allocated())
}

func TestTraceRecordsAndRejectsDuplicates(t *testing.T) {
	env := NewEnv(nil, 1)
	tr := NewTrace()

	n, err := dist.NewNormal(0, 1)
	require.NoError(t, err)

	err = env.With(tr, func() error {
		if _, err := env.Sample("a", n); err != nil {
			return err
		}
		if err := env.Observe("b", n, 0.5); err != nil {
			return err
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, tr.Names())
	site, ok := tr.Site("b")
	require.True(t, ok)
	assert.True(t, site.Observed)

	err = env.With(tr, func() error {
		_, err := env.Sample("a", n)
		return err
	})
	assert.Error(t, err, "duplicate site name must be rejected")
}

func TestReplaySubstitutesValues(t *testing.T) {
	st := NewStore()
	env := NewEnv(st, 7)
	n, err := dist.NewNormal(0, 1)
	require.NoError(t, err)

	tr := NewTrace()
	require.NoError(t, env.With(tr, func() error {
		_, err := env.Sample("mu", n)
		return err
	}))
	recorded, ok := tr.Site("mu")
	require.True(t, ok)

	var replayed *factor.Factor
	require.NoError(t, env.With(NewReplay(tr), func() error {
		v, err := env.Sample("mu", n)
		replayed = v
		return err
	}))
	assert.Equal(t, recorded.Value.Data(), replayed.Data())
}

func TestEnumerateDiscrete(t *testing.T) {
	env := NewEnv(nil, 1)
	en := NewEnumerate()

	cat, err := dist.NewCategorical(1, 2, 3)
	require.NoError(t, err)
	norm, err := dist.NewNormal(0, 1)
	require.NoError(t, err)

	var zVal *factor.Factor
	require.NoError(t, env.With(en, func() error {
		v, err := env.Sample("z", cat)
		if err != nil {
			return err
		}
		zVal = v
		_, err = env.Sample("mu", norm)
		return err
	}))

	dims := en.Dims()
	require.Len(t, dims, 1, "only the discrete site enumerates")
	size, ok := zVal.Size(dims[0])
	require.True(t, ok)
	assert.Equal(t, 3, size)
	assert.Equal(t, []float64{0, 1, 2}, zVal.Data())
}

func TestEnumerateRefusesPoisson(t *testing.T) {
	env := NewEnv(nil, 1)
	p, err := dist.NewPoisson(2)
	require.NoError(t, err)

	// Poisson is Discrete by type but has unbounded support; Enumerate must
	// pass it through to sampling rather than fail.
	var v *factor.Factor
	require.NoError(t, env.With(NewEnumerate(), func() error {
		got, err := env.Sample("k", p)
		v = got
		return err
	}))
	_, err = v.Scalar()
	assert.NoError(t, err, "Poisson site falls back to a scalar draw")
}

func TestEnumerateDimExhaustion(t *testing.T) {
	st := NewStore()
	env := NewEnv(st, 1)
	env.SetMaxDims(1)

	b, err := dist.NewBernoulli(0.5)
	require.NoError(t, err)

	err = env.With(NewEnumerate(), func() error {
		if _, err := env.Sample("z1", b); err != nil {
			return err
		}
		_, err := env.Sample("z2", b)
		return err
	})
	assert.ErrorIs(t, err, ErrDimExhausted)
}

func TestVectorizeDraws(t *testing.T) {
	env := NewEnv(nil, 3)
	vec, err := NewVectorize(env, 4, 99)
	require.NoError(t, err)

	n, err := dist.NewNormal(0, 1)
	require.NoError(t, err)

	var latent *factor.Factor
	require.NoError(t, env.With(vec, func() error {
		v, err := env.Sample("mu", n)
		if err != nil {
			return err
		}
		latent = v
		// Observations stay scalar; broadcasting happens at scoring time.
		return env.Observe("x", n, 1.25)
	}))

	size, ok := latent.Size(vec.Dim())
	require.True(t, ok)
	assert.Equal(t, 4, size)
}

func TestVectorizeDeterministicPerParticle(t *testing.T) {
	const seed = 1234
	n, err := dist.NewNormal(0, 1)
	require.NoError(t, err)

	env := NewEnv(nil, 1)
	vec, err := NewVectorize(env, 3, seed)
	require.NoError(t, err)
	var batch *factor.Factor
	require.NoError(t, env.With(vec, func() error {
		v, err := env.Sample("mu", n)
		batch = v
		return err
	}))

	// A scalar environment seeded with particle i's stream reproduces
	// element i of the vectorized draw.
	for i := 0; i < 3; i++ {
		scalarEnv := NewEnv(nil, ParticleSeed(seed, i))
		v, err := scalarEnv.Sample("mu", n)
		require.NoError(t, err)
		got, err := v.Scalar()
		require.NoError(t, err)
		want, err := batch.At(map[string]int{vec.Dim(): i})
		require.NoError(t, err)
		assert.Equal(t, want, got, "particle %d", i)
	}
}

func TestVectorizeRejectsBadCount(t *testing.T) {
	env := NewEnv(nil, 1)
	_, err := NewVectorize(env, 0, 1)
	assert.Error(t, err)
}

func TestLogJointScoresSites(t *testing.T) {
	env := NewEnv(nil, 5)
	lj := NewLogJoint()

	n, err := dist.NewNormal(0, 1)
	require.NoError(t, err)

	require.NoError(t, env.With(lj, func() error {
		return env.Observe("x", n, 2.0)
	}))

	terms := lj.Terms()
	require.Len(t, terms, 1)
	got, err := terms[0].Scalar()
	require.NoError(t, err)
	assert.InDelta(t, n.LogProb(2.0), got, 1e-12)
}

func TestConditionalScoringBroadcasts(t *testing.T) {
	env := NewEnv(nil, 5)
	en := NewEnumerate()
	lj := NewLogJoint()

	cat, err := dist.NewCategorical(1, 1)
	require.NoError(t, err)
	locs := []float64{-1, 1}

	require.NoError(t, env.With(en, func() error {
		return env.With(lj, func() error {
			z, err := env.Sample("z", cat)
			if err != nil {
				return err
			}
			return env.ObserveC("x", func(args []float64) (dist.Distribution, error) {
				return dist.NewNormal(locs[int(args[0])], 0.5)
			}, 0.8, z)
		})
	}))

	terms := lj.Terms()
	require.Len(t, terms, 2)

	// The observation term carries the enumeration dimension and holds the
	// per-component densities.
	obs := terms[1]
	enumDim := en.Dims()[0]
	size, ok := obs.Size(enumDim)
	require.True(t, ok)
	require.Equal(t, 2, size)
	for k := 0; k < 2; k++ {
		want, err := dist.NewNormal(locs[k], 0.5)
		require.NoError(t, err)
		got, err := obs.At(map[string]int{enumDim: k})
		require.NoError(t, err)
		assert.InDelta(t, want.LogProb(0.8), got, 1e-12)
	}
}

func TestConditionalDrawNeedsScalarArgs(t *testing.T) {
	env := NewEnv(nil, 5)
	nonScalar, err := factor.New([]factor.Dim{{Name: "d", Size: 2}}, []float64{0, 1})
	require.NoError(t, err)

	_, err = env.SampleC("y", func(args []float64) (dist.Distribution, error) {
		return dist.NewNormal(args[0], 1)
	}, nonScalar)
	assert.ErrorIs(t, err, ErrNonScalarArgs)
}

func TestEnvParam(t *testing.T) {
	st := NewStore()
	require.NoError(t, st.Declare("loc", 3, Real))
	env := NewEnv(st, 1)

	v, err := env.Param("loc")
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	_, err = env.Param("missing")
	assert.Error(t, err)

	bare := NewEnv(nil, 1)
	_, err = bare.Param("loc")
	assert.Error(t, err)
}
