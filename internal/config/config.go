package config

import (
	"fmt"
	"math"
	"strings"
)

type Mode int

const (
	ModeAMR Mode = iota
	ModeSentence
	ModeMultilingual
)

func (m Mode) String() string {
	switch m {
	case ModeAMR:
		return "amr"
	case ModeSentence:
		return "sentence"
	case ModeMultilingual:
		return "multilingual"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "amr":
		return ModeAMR, nil
	case "sentence", "text":
		return ModeSentence, nil
	case "multilingual", "multilingual-sentence":
		return ModeMultilingual, nil
	}
	return 0, fmt.Errorf("invalid mode: %q (must be amr, sentence or multilingual)", s)
}

// GenerationParams are handed to the model for every batch.
type GenerationParams struct {
	MaxLength           int     `json:"max_length"`
	DecoderStartTokenID int     `json:"decoder_start_token_id"`
	NumBeams            int     `json:"num_beams"`
	NumReturnSequences  int     `json:"num_return_sequences"`
	EarlyStopping       bool    `json:"early_stopping"`
	NoRepeatNGramSize   int     `json:"no_repeat_ngram_size"`
	LengthPenalty       float64 `json:"length_penalty"`
	ForcedBOSTokenID    *int    `json:"forced_bos_token_id,omitempty"`
	AMRMode             bool    `json:"amr_mode"`
}

// TokenRange is an inclusive range of token ids. When FromToken and ToToken
// are set they are resolved through the tokenizer vocabulary and take
// precedence over Min and Max.
type TokenRange struct {
	Min       int
	Max       int
	FromToken string
	ToToken   string
}

func (r TokenRange) Contains(id int) bool {
	return id >= r.Min && id <= r.Max
}

type SmatchConfig struct {
	Restarts int
	Seed     int64
}

type Config struct {
	Mode           Mode
	BeamSize       int
	ReturnAll      bool
	RestoreNameOps bool

	Generation     GenerationParams
	MaxInputLength int

	// Ids <= SpecialTokenMax (bos, pad, eos) are dropped in sentence modes.
	SpecialTokenMax int
	Reserved        TokenRange

	InitMarker string
	Annotator  string
	Progress   bool

	Smatch    SmatchConfig
	GenServer string
}

const (
	DefaultAnnotator       = "bart-amr"
	DefaultInitMarker      = "Ġ"
	DefaultForcedBOS       = 36
	DefaultMaxInputLength  = 1024
	DefaultSpecialTokenMax = 2
)

func intPtr(v int) *int { return &v }

// ForMode returns the generation defaults for a mode.
func ForMode(mode Mode, beamSize, decoderStart int) Config {
	if beamSize < 1 {
		beamSize = 1
	}
	c := Config{
		Mode:            mode,
		BeamSize:        beamSize,
		MaxInputLength:  DefaultMaxInputLength,
		SpecialTokenMax: DefaultSpecialTokenMax,
		Reserved:        TokenRange{Min: 250003, Max: 250025},
		InitMarker:      DefaultInitMarker,
		Annotator:       DefaultAnnotator,
		Smatch:          SmatchConfig{Restarts: 5, Seed: 1},
	}
	g := GenerationParams{NumBeams: beamSize, NumReturnSequences: beamSize}
	switch mode {
	case ModeAMR:
		g.MaxLength = 1024
		g.DecoderStartTokenID = decoderStart
		g.EarlyStopping = true
		g.LengthPenalty = 1.0
		g.ForcedBOSTokenID = intPtr(DefaultForcedBOS)
		g.AMRMode = true
	case ModeSentence:
		g.MaxLength = 350
		g.DecoderStartTokenID = 0
		g.NoRepeatNGramSize = 4
		g.LengthPenalty = 0
	case ModeMultilingual:
		g.MaxLength = 350
		g.DecoderStartTokenID = decoderStart
		g.EarlyStopping = true
		g.LengthPenalty = 1.0
	}
	c.Generation = g
	return c
}

func Default() Config {
	return ForMode(ModeAMR, 1, 0)
}

func (c *Config) Validate() error {
	if c.Mode < ModeAMR || c.Mode > ModeMultilingual {
		return fmt.Errorf("invalid mode: %d", int(c.Mode))
	}
	if c.BeamSize <= 0 {
		return fmt.Errorf("invalid beam_size: %d (must be positive)", c.BeamSize)
	}
	if c.Generation.MaxLength <= 0 {
		return fmt.Errorf("invalid max_length: %d (must be positive)", c.Generation.MaxLength)
	}
	if c.Generation.NumBeams != c.BeamSize {
		return fmt.Errorf("num_beams mismatch: %d != beam_size(%d)", c.Generation.NumBeams, c.BeamSize)
	}
	if c.Generation.NumReturnSequences != c.BeamSize {
		return fmt.Errorf("num_return_sequences mismatch: %d != beam_size(%d)", c.Generation.NumReturnSequences, c.BeamSize)
	}
	if c.Generation.NoRepeatNGramSize < 0 {
		return fmt.Errorf("invalid no_repeat_ngram_size: %d (must be non-negative)", c.Generation.NoRepeatNGramSize)
	}
	if math.IsNaN(c.Generation.LengthPenalty) || math.IsInf(c.Generation.LengthPenalty, 0) {
		return fmt.Errorf("invalid length_penalty: %f", c.Generation.LengthPenalty)
	}
	if c.MaxInputLength < 0 {
		return fmt.Errorf("invalid max_input_length: %d (must be non-negative)", c.MaxInputLength)
	}
	if c.Mode == ModeMultilingual && c.Reserved.FromToken == "" && c.Reserved.Min > c.Reserved.Max {
		return fmt.Errorf("invalid reserved range: %d > %d", c.Reserved.Min, c.Reserved.Max)
	}
	if (c.Reserved.FromToken == "") != (c.Reserved.ToToken == "") {
		return fmt.Errorf("reserved range needs both from_token and to_token")
	}
	if c.Smatch.Restarts <= 0 {
		return fmt.Errorf("invalid smatch restarts: %d (must be positive)", c.Smatch.Restarts)
	}
	return nil
}

// WithBeamSize updates the beam size and the generation parameters tied to it.
func (c Config) WithBeamSize(n int) Config {
	c.BeamSize = n
	c.Generation.NumBeams = n
	c.Generation.NumReturnSequences = n
	return c
}
