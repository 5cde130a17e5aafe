package quiz

// Grade is the qualitative band for a percentage score.
type Grade struct {
	Tier    string `json:"tier"`
	Message string `json:"message"`
	Color   string `json:"color"`
}

// GradeFor maps a percentage to its band.
func GradeFor(percentage int) Grade {
	switch {
	case percentage >= 90:
		return Grade{Tier: "outstanding", Message: "Outstanding!", Color: "green"}
	case percentage >= 70:
		return Grade{Tier: "great", Message: "Great job!", Color: "blue"}
	case percentage >= 50:
		return Grade{Tier: "good", Message: "Good effort!", Color: "yellow"}
	default:
		return Grade{Tier: "practice", Message: "Keep practicing!", Color: "orange"}
	}
}
