package transcriber

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
)

func TestDetectEnvelopeBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	samples := make([]float64, 4096)
	peak := 0.0
	for i := range samples {
		samples[i] = rng.Float64()*2 - 1
		if a := math.Abs(samples[i]); a > peak {
			peak = a
		}
	}

	env := DetectEnvelope(samples, 44100, 0.001, 0.05)
	if len(env) != len(samples) {
		t.Fatalf("len(env) = %d, want %d", len(env), len(samples))
	}
	for i, v := range env {
		if v < 0 || v > peak+1e-12 {
			t.Fatalf("env[%d] = %v, want within [0, %v]", i, v, peak)
		}
	}
}

func TestDetectEnvelopeFirstSample(t *testing.T) {
	env := DetectEnvelope([]float64{-0.5}, 1000, 0.01, 0.01)
	ga := math.Exp(-1 / (1000 * 0.01))
	want := (1 - ga) * 0.5
	if math.Abs(env[0]-want) > 1e-15 {
		t.Errorf("env[0] = %v, want %v", env[0], want)
	}
}

func TestDetectEnvelopeAttackRelease(t *testing.T) {
	const (
		sampleRate = 1000
		amplitude  = 0.8
		attack     = 0.01
		release    = 0.1
		steps      = 200
	)
	samples := make([]float64, 2*steps)
	for i := 0; i < steps; i++ {
		samples[i] = amplitude
	}

	env := DetectEnvelope(samples, sampleRate, attack, release)
	ga := math.Exp(-1 / (sampleRate * attack))
	gr := math.Exp(-1 / (sampleRate * release))

	for _, n := range []int{1, 10, 50} {
		want := amplitude * (1 - math.Pow(ga, float64(n)))
		if math.Abs(env[n-1]-want) > 1e-12 {
			t.Errorf("attack env[%d] = %v, want %v", n-1, env[n-1], want)
		}
	}

	top := env[steps-1]
	for _, n := range []int{1, 10, 100} {
		want := top * math.Pow(gr, float64(n))
		if math.Abs(env[steps-1+n]-want) > 1e-12 {
			t.Errorf("release env[%d] = %v, want %v", steps-1+n, env[steps-1+n], want)
		}
	}

	swapped := DetectEnvelope(samples, sampleRate, release, attack)
	if math.Abs(swapped[9]-env[9]) < 1e-3 {
		t.Errorf("swapping attack and release should change the rise: %v vs %v", swapped[9], env[9])
	}
	if math.Abs(swapped[steps+9]-env[steps+9]) < 1e-3 {
		t.Errorf("swapping attack and release should change the decay: %v vs %v", swapped[steps+9], env[steps+9])
	}
}

func TestNormalizeUp(t *testing.T) {
	tests := []struct {
		name   string
		in     []float64
		target float64
		want   []float64
	}{
		{"quiet is boosted", []float64{0, 0.25, 0.5}, 1, []float64{0, 0.5, 1}},
		{"silence is untouched", []float64{0, 0, 0}, 0.95, []float64{0, 0, 0}},
		{"empty", []float64{}, 0.95, []float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := append([]float64(nil), tt.in...)
			NormalizeUp(buf, tt.target)
			for i := range tt.want {
				if math.Abs(buf[i]-tt.want[i]) > 1e-12 {
					t.Errorf("buf[%d] = %v, want %v", i, buf[i], tt.want[i])
				}
			}
		})
	}
}

func TestNormalizeUpLeavesLoudSignal(t *testing.T) {
	for _, in := range [][]float64{
		{0.1, 0.95, 0.3},
		{0.1, 1.7, 0.3},
	} {
		buf := append([]float64(nil), in...)
		NormalizeUp(buf, 0.95)
		if !reflect.DeepEqual(buf, in) {
			t.Errorf("NormalizeUp(%v) changed buffer to %v", in, buf)
		}
	}
}
