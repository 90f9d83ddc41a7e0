package plugins

import (
	"github.com/barpath/tracker/internal/cache"
	"github.com/barpath/tracker/internal/hub"
	"github.com/barpath/tracker/internal/model"
)

// AttemptBoard shows the athlete on the bar: name, team, requested
// weight, attempt number and the six-attempt card.
func AttemptBoard() Descriptor {
	return Descriptor{
		Type:     "attemptboard",
		Requires: []string{hub.ResourceDatabase},
		Compute:  computeAttemptBoard,
	}
}

func computeAttemptBoard(ctx *Context, platform string, opts map[string]string) (*cache.Payload, error) {
	db := ctx.Hub.DatabaseState()
	state := ctx.Hub.FopUpdate(platform)

	data := map[string]interface{}{
		"competitionName": db.Competition.Name,
	}

	if state == nil || state.NoActiveSession() {
		data["noSession"] = true
		return &cache.Payload{Data: data}, nil
	}

	data["groupName"] = state.GroupName
	data["liftType"] = state.LiftType
	data["attemptNumber"] = state.AttemptNumber
	data["weight"] = state.WeightKg

	if athlete := db.AthleteByKey(state.CurrentAthlete); athlete != nil {
		attempts := attemptCard(athlete)
		data["athlete"] = map[string]interface{}{
			"key":         athlete.Key,
			"fullName":    athlete.FullName,
			"teamCode":    athlete.TeamCode,
			"teamName":    athlete.TeamName,
			"category":    athlete.CategoryCode,
			"startNumber": athlete.StartNumber,
			"attempts":    attempts,
		}
		return &cache.Payload{Data: data, Arrays: []*[]interface{}{&attempts}}, nil
	}
	return &cache.Payload{Data: data}, nil
}

func attemptCard(a *model.AthleteRecord) []interface{} {
	derived := a.Attempts()
	out := make([]interface{}, len(derived))
	for i, att := range derived {
		out[i] = att
	}
	return out
}
