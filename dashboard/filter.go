package dashboard

import (
	"strings"

	"github.com/theoremus-urban-solutions/surveyor-tracking/model"
)

// FilterSurveyors keeps the surveyors whose city and project contain the
// given substrings, ignoring case. Empty filters match everything.
func FilterSurveyors(list []model.Surveyor, city, project string) []model.Surveyor {
	city = strings.ToLower(strings.TrimSpace(city))
	project = strings.ToLower(strings.TrimSpace(project))

	out := make([]model.Surveyor, 0, len(list))
	for _, s := range list {
		if city != "" && !strings.Contains(strings.ToLower(s.City), city) {
			continue
		}
		if project != "" && !strings.Contains(strings.ToLower(s.ProjectName), project) {
			continue
		}
		out = append(out, s)
	}
	return out
}
