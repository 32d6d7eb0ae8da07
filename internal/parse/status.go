package parse

import (
	"strings"

	"github.com/jhunt/legisync/internal/model"
)

// statusLadder is scanned rung by rung: the first rung whose phrase appears
// in any action wins. Later-stage signals sit above earlier procedural ones,
// so "Signed by the Governor" dominates an older "Referred to Committee"
// regardless of where either sits in the action list. The phrase matching is
// a best-effort heuristic over the source's English action text; wording
// drift degrades to the Filed fallback rather than misclassifying.
var statusLadder = []struct {
	phrases []string
	status  string
}{
	{[]string{"signed by the governor", "effective on", "effective immediately"}, "Signed"},
	{[]string{"sent to the governor"}, "Sent to Governor"},
	{[]string{"enrolled"}, "Enrolled"},
	{[]string{"passed both chambers"}, "Passed Both Chambers"},
	{[]string{"passed to engrossment", "engrossed"}, "Engrossed"},
	{[]string{"passed"}, "Passed"},
	{[]string{"vetoed"}, "Vetoed"},
	{[]string{"withdrawn", "died"}, "Died"},
}

// deriveStatus computes the lifecycle status from the freshest action and
// committee data. Actions are scanned most recent first within each rung.
func deriveStatus(actions []model.Action, committees []model.Committee) string {
	for _, rung := range statusLadder {
		for i := len(actions) - 1; i >= 0; i-- {
			desc := strings.ToLower(actions[i].Description)
			for _, phrase := range rung.phrases {
				if strings.Contains(desc, phrase) {
					return rung.status
				}
			}
		}
	}

	for _, c := range committees {
		status := strings.ToLower(c.Status)
		if strings.Contains(status, "reported") {
			return "Reported from Committee"
		}
		if strings.Contains(status, "in committee") {
			return "In Committee"
		}
	}

	for i := len(actions) - 1; i >= 0; i-- {
		if strings.Contains(strings.ToLower(actions[i].Description), "referred to") {
			return "In Committee"
		}
	}

	return "Filed"
}
