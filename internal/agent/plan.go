package agent

// ActivityStatus tracks an activity through its forward-only lifecycle.
type ActivityStatus string

const (
	ActivityPending     ActivityStatus = "pending"
	ActivityActive      ActivityStatus = "active"
	ActivityCompleted   ActivityStatus = "completed"
	ActivityInterrupted ActivityStatus = "interrupted"
)

// Activity is a single timed entry in a daily plan.
type Activity struct {
	Description string         `json:"description"`
	StartMinute int            `json:"start_minute"` // minute of day, 0-1439
	Duration    int            `json:"duration"`     // minutes
	Location    string         `json:"location,omitempty"`
	Status      ActivityStatus `json:"status"`
}

// DailyPlan is a day-scoped ordered list of activities. A plan whose Day
// no longer matches the simulation day is stale and must be regenerated
// before any other per-tick logic for the agent runs.
type DailyPlan struct {
	Day        int         `json:"day"`
	Overview   string      `json:"overview"`
	Activities []*Activity `json:"activities"`
	Current    *Activity   `json:"current,omitempty"`
}

// CurrentAction returns the first non-completed activity whose window
// contains minuteOfDay, or failing that the earliest still-pending
// activity starting in the future. Nil means a no-op period: the agent
// idles.
func (p *DailyPlan) CurrentAction(minuteOfDay int) *Activity {
	for _, a := range p.Activities {
		if a.Status != ActivityCompleted &&
			minuteOfDay >= a.StartMinute &&
			minuteOfDay < a.StartMinute+a.Duration {
			return a
		}
	}
	for _, a := range p.Activities {
		if a.Status == ActivityPending && a.StartMinute > minuteOfDay {
			return a
		}
	}
	return nil
}

// Clone returns a deep copy detached from the live plan, so readers on
// other goroutines never observe Advance mutating activity state.
func (p *DailyPlan) Clone() *DailyPlan {
	if p == nil {
		return nil
	}
	out := &DailyPlan{
		Day:        p.Day,
		Overview:   p.Overview,
		Activities: make([]*Activity, len(p.Activities)),
	}
	for i, a := range p.Activities {
		copied := *a
		out.Activities[i] = &copied
		if p.Current == a {
			out.Current = out.Activities[i]
		}
	}
	return out
}

// Advance moves the plan's state machine forward for the given minute:
// active activities whose window has elapsed complete, and the selected
// pending activity activates once its start has arrived. Activities never
// revert from completed.
func (p *DailyPlan) Advance(minuteOfDay int) {
	for _, a := range p.Activities {
		if a.Status == ActivityActive && minuteOfDay >= a.StartMinute+a.Duration {
			a.Status = ActivityCompleted
		}
	}
	next := p.CurrentAction(minuteOfDay)
	if next != nil && next.Status == ActivityPending && minuteOfDay >= next.StartMinute {
		next.Status = ActivityActive
		p.Current = next
	}
}
