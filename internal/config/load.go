package config

import (
	"github.com/spf13/viper"
)

// Load builds a Config from v. The mode picks the defaults; every other key
// overrides them only when set.
func Load(v *viper.Viper) (Config, error) {
	mode, err := ParseMode(v.GetString("mode"))
	if err != nil {
		return Config{}, err
	}
	beam := 1
	if v.IsSet("beam_size") {
		beam = v.GetInt("beam_size")
	}
	c := ForMode(mode, beam, v.GetInt("decoder_start_token_id"))
	c.BeamSize = beam

	if v.IsSet("return_all") {
		c.ReturnAll = v.GetBool("return_all")
	}
	if v.IsSet("restore_name_ops") {
		c.RestoreNameOps = v.GetBool("restore_name_ops")
	}
	if v.IsSet("progress") {
		c.Progress = v.GetBool("progress")
	}
	if v.IsSet("max_input_length") {
		c.MaxInputLength = v.GetInt("max_input_length")
	}
	if v.IsSet("special_token_max") {
		c.SpecialTokenMax = v.GetInt("special_token_max")
	}
	if v.IsSet("init_marker") {
		c.InitMarker = v.GetString("init_marker")
	}
	if v.IsSet("annotator") {
		c.Annotator = v.GetString("annotator")
	}
	if v.IsSet("gen_server") {
		c.GenServer = v.GetString("gen_server")
	}

	if v.IsSet("reserved.min") {
		c.Reserved.Min = v.GetInt("reserved.min")
	}
	if v.IsSet("reserved.max") {
		c.Reserved.Max = v.GetInt("reserved.max")
	}
	c.Reserved.FromToken = v.GetString("reserved.from_token")
	c.Reserved.ToToken = v.GetString("reserved.to_token")

	g := &c.Generation
	if v.IsSet("generation.max_length") {
		g.MaxLength = v.GetInt("generation.max_length")
	}
	if v.IsSet("generation.early_stopping") {
		g.EarlyStopping = v.GetBool("generation.early_stopping")
	}
	if v.IsSet("generation.no_repeat_ngram_size") {
		g.NoRepeatNGramSize = v.GetInt("generation.no_repeat_ngram_size")
	}
	if v.IsSet("generation.length_penalty") {
		g.LengthPenalty = v.GetFloat64("generation.length_penalty")
	}
	if v.IsSet("generation.forced_bos_token_id") {
		// A negative id disables forcing.
		if id := v.GetInt("generation.forced_bos_token_id"); id >= 0 {
			g.ForcedBOSTokenID = intPtr(id)
		} else {
			g.ForcedBOSTokenID = nil
		}
	}

	if v.IsSet("smatch.restarts") {
		c.Smatch.Restarts = v.GetInt("smatch.restarts")
	}
	if v.IsSet("smatch.seed") {
		c.Smatch.Seed = v.GetInt64("smatch.seed")
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
