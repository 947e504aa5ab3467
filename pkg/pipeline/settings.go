package pipeline

import (
	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Settings are the runtime tuning knobs of a consolidation run. They come
// from the environment, not from profiles: they bound resources on the
// machine running the tool, which is independent of what is being parsed.
type Settings struct {
	// FanIn bounds how many streams the merge holds open at once.
	FanIn int `env:"LOGWEAVE_MERGE_FAN_IN" envDefault:"16"`
	// Lookahead is the per-stream inversion repair window.
	Lookahead int `env:"LOGWEAVE_MERGE_LOOKAHEAD" envDefault:"64"`
	// ChannelDepth is the capacity of each source-to-merge channel.
	// Peak memory is roughly FanIn * ChannelDepth * record size.
	ChannelDepth int `env:"LOGWEAVE_CHANNEL_DEPTH" envDefault:"256"`
	// SpillDir is where polyphase run files go. Empty uses the system
	// temp directory.
	SpillDir string `env:"LOGWEAVE_SPILL_DIR"`
}

// LoadSettings reads Settings from the environment, honoring a local
// .env file when present.
func LoadSettings() (Settings, error) {
	_ = godotenv.Load()
	var s Settings
	if err := env.Parse(&s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
