package plugins

import (
	"sort"

	"github.com/barpath/tracker/internal/cache"
	"github.com/barpath/tracker/internal/hub"
	"github.com/barpath/tracker/internal/model"
)

// Results is the ranked protocol sheet for one platform's session.
// Options: "liftType" (Snatch|CleanJerk|Total, default Total),
// "locale" for header labels.
func Results() Descriptor {
	return Descriptor{
		Type:     "results",
		Requires: []string{hub.ResourceDatabase},
		Compute:  computeResults,
	}
}

func computeResults(ctx *Context, platform string, opts map[string]string) (*cache.Payload, error) {
	db := ctx.Hub.DatabaseState()
	state := ctx.Hub.FopUpdate(platform)

	group := ""
	if state != nil {
		group = state.GroupName
	}

	athletes := db.SessionAthletes(group)
	if group == "" {
		athletes = db.Athletes
	}

	liftType := opts["liftType"]
	if liftType == "" {
		liftType = "Total"
	}

	rows := make([]interface{}, 0, len(athletes))
	for _, a := range athletes {
		rows = append(rows, resultRow(&a, liftType))
	}
	sortRows(rows, liftType)

	labels := ctx.Hub.GetTranslations(opts["locale"])
	data := map[string]interface{}{
		"competitionName": db.Competition.Name,
		"groupName":       group,
		"liftType":        liftType,
		"liftLabel":       label(labels, liftType),
		"athletes":        rows,
	}
	return &cache.Payload{Data: data, Arrays: []*[]interface{}{&rows}}, nil
}

func resultRow(a *model.AthleteRecord, liftType string) map[string]interface{} {
	row := map[string]interface{}{
		"key":           a.Key,
		"fullName":      a.FullName,
		"teamCode":      a.TeamCode,
		"category":      a.CategoryCode,
		"startNumber":   a.StartNumber,
		"attempts":      a.Attempts(),
		"bestSnatch":    a.BestSnatch,
		"bestCleanJerk": a.BestCleanJerk,
		"total":         a.Total,
	}
	switch liftType {
	case model.LiftSnatch:
		row["rank"] = a.SnatchRank
	case model.LiftCleanJerk:
		row["rank"] = a.CleanJerkRank
	default:
		row["rank"] = a.TotalRank
	}
	return row
}

// sortRows orders by rank, unranked last, ties by start number.
func sortRows(rows []interface{}, liftType string) {
	sort.SliceStable(rows, func(i, j int) bool {
		a := rows[i].(map[string]interface{})
		b := rows[j].(map[string]interface{})
		ra, rb := a["rank"].(int), b["rank"].(int)
		if ra != rb {
			if ra == 0 || rb == 0 {
				return rb == 0
			}
			return ra < rb
		}
		return a["startNumber"].(int) < b["startNumber"].(int)
	})
}

func label(translations map[string]string, key string) string {
	if v, ok := translations[key]; ok {
		return v
	}
	if key == model.LiftCleanJerk {
		return "Clean & Jerk"
	}
	return key
}
