package dataset

import "strings"

// Day is a day of the week as recorded in the TTC delay data
type Day int

const (
	Monday Day = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var dayNames = [...]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// AllDays returns the days in display order (Monday first)
func AllDays() []Day {
	return []Day{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}
}

func (d Day) String() string {
	if d < Monday || d > Sunday {
		return "Unknown"
	}
	return dayNames[d]
}

// ParseDay converts a day name to a Day. Matching is case-insensitive and
// accepts three-letter abbreviations ("Mon", "sat").
func ParseDay(s string) (Day, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 3 {
		return 0, false
	}
	for i, name := range dayNames {
		lower := strings.ToLower(name)
		if s == lower || s == lower[:3] {
			return Day(i), true
		}
	}
	return 0, false
}

// Incident categories used by the TTC in the cleaned delay data
const (
	IncidentCleaning         = "Cleaning - Unsanitary"
	IncidentCollision        = "Collision - TTC"
	IncidentDiversion        = "Diversion"
	IncidentEmergency        = "Emergency Services"
	IncidentGeneralDelay     = "General Delay"
	IncidentHeldBy           = "Held By"
	IncidentInvestigation    = "Investigation"
	IncidentMechanical       = "Mechanical"
	IncidentNotSpecified     = "Not Specified"
	IncidentOperator         = "Operations - Operator"
	IncidentRoadBlocked      = "Road Blocked - NON-TTC Collision"
	IncidentSecurity         = "Security"
	IncidentUtilizedOffRoute = "Utilized Off Route"
	IncidentVision           = "Vision"
)

// KnownIncidents lists the incident categories the report always shows,
// even when a dataset has no records for some of them.
var KnownIncidents = []string{
	IncidentCleaning,
	IncidentCollision,
	IncidentDiversion,
	IncidentEmergency,
	IncidentGeneralDelay,
	IncidentHeldBy,
	IncidentInvestigation,
	IncidentMechanical,
	IncidentNotSpecified,
	IncidentOperator,
	IncidentRoadBlocked,
	IncidentSecurity,
	IncidentUtilizedOffRoute,
	IncidentVision,
}

// DelayRecord is one row of the cleaned bus delay data
type DelayRecord struct {
	Incident string  // incident category
	Day      Day     // day of week the delay occurred
	MinGap   float64 // minutes between the scheduled bus and the one ahead of it
	MinDelay float64 // minutes of deviation from the scheduled arrival
}
