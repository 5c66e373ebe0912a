package mix

import (
	"math"

	"github.com/noricha-vr/twitter-video-translator/internal/audio"
	"github.com/noricha-vr/twitter-video-translator/pkg/log"
)

// PostProcessor runs once over a finished track.
type PostProcessor interface {
	Name() string
	Process(t *audio.Track) error
}

// Chain applies processors in order.
type Chain []PostProcessor

func (c Chain) Apply(t *audio.Track) error {
	for _, p := range c {
		before := t.Peak()
		if err := p.Process(t); err != nil {
			return err
		}
		log.Info("Post-processing %s: peak %.1f dBFS -> %.1f dBFS",
			p.Name(), audio.DBFS(before), audio.DBFS(t.Peak()))
	}
	return nil
}

// Compressor is a feed-forward peak compressor with a shared stereo
// envelope.
type Compressor struct {
	ThresholdDB float64
	Ratio       float64
	AttackMS    float64
	ReleaseMS   float64
	MakeupDB    float64
}

func DefaultCompressor() Compressor {
	return Compressor{ThresholdDB: -18, Ratio: 3, AttackMS: 5, ReleaseMS: 120, MakeupDB: 0}
}

func (c Compressor) Name() string { return "compressor" }

func (c Compressor) Process(t *audio.Track) error {
	rate := float64(t.Format.SampleRate)
	if rate <= 0 || len(t.Frames) == 0 {
		return nil
	}
	ratio := c.Ratio
	if ratio < 1 {
		ratio = 1
	}
	attack := coefficient(c.AttackMS, rate)
	release := coefficient(c.ReleaseMS, rate)
	makeup := audio.FromDB(c.MakeupDB)

	var env float64
	for i, f := range t.Frames {
		level := max(math.Abs(f[0]), math.Abs(f[1]))
		if level > env {
			env = attack*env + (1-attack)*level
		} else {
			env = release*env + (1-release)*level
		}

		gain := makeup
		if envDB := audio.DBFS(env); envDB > c.ThresholdDB {
			outDB := c.ThresholdDB + (envDB-c.ThresholdDB)/ratio
			gain *= audio.FromDB(outDB - envDB)
		}
		t.Frames[i][0] = f[0] * gain
		t.Frames[i][1] = f[1] * gain
	}
	return nil
}

func coefficient(ms, rate float64) float64 {
	if ms <= 0 {
		return 0
	}
	return math.Exp(-1 / (ms / 1000 * rate))
}

// LoudnessNormalizer applies one gain to the whole track so that its RMS
// reaches TargetDBFS, limited so the peak stays under CeilingDBFS.
type LoudnessNormalizer struct {
	TargetDBFS  float64
	CeilingDBFS float64
}

func (n LoudnessNormalizer) Name() string { return "loudness" }

func (n LoudnessNormalizer) Process(t *audio.Track) error {
	current := t.RMS()
	if current == 0 {
		return nil
	}
	gain := audio.FromDB(n.TargetDBFS) / current

	ceiling := n.CeilingDBFS
	if ceiling == 0 {
		ceiling = -1
	}
	if peak := t.Peak(); peak*gain > audio.FromDB(ceiling) {
		gain = audio.FromDB(ceiling) / peak
	}

	for i := range t.Frames {
		t.Frames[i][0] *= gain
		t.Frames[i][1] *= gain
	}
	return nil
}
