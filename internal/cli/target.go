package cli

import (
	"strconv"

	"github.com/Dicklesworthstone/missionctl/internal/config"
)

// target is what a run works on: one bot and a fixed identity list.
type target struct {
	Bot        string
	Identities []string
}

// targetInput carries the command-line answers; a prompt is skipped when its
// answer was given as a flag.
type targetInput struct {
	bot      string
	first    int
	last     int
	hasFirst bool
	hasLast  bool
}

// collectTarget asks for whatever the flags and roster file leave open.
func collectTarget(p prompter, cfg *config.Config, in targetInput) (target, error) {
	bot := in.bot
	if bot == "" || validateBot(bot) != nil {
		answer, err := p.Ask("Bot username (without @)", validateBot)
		if err != nil {
			return target{}, err
		}
		bot = answer
	}
	t := target{Bot: normalizeBot(bot)}

	if cfg.Pool.RosterFile != "" {
		names, err := config.LoadRoster(cfg.Pool.RosterFile)
		if err != nil {
			return target{}, err
		}
		t.Identities = names
		return t, nil
	}

	first, err := askIndex(p, "Start session number", in.first, in.hasFirst)
	if err != nil {
		return target{}, err
	}
	last, err := askIndex(p, "End session number", in.last, in.hasLast)
	if err != nil {
		return target{}, err
	}
	names, err := config.IndexIdentities(cfg.Pool.NamePrefix, first, last)
	if err != nil {
		return target{}, err
	}
	t.Identities = names
	return t, nil
}

func askIndex(p prompter, label string, value int, given bool) (int, error) {
	if given {
		return value, nil
	}
	answer, err := p.Ask(label, validateIndex)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(answer)
}
