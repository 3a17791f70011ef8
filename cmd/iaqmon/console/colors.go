package console

import "github.com/fatih/color"

// Available ANSI colors
var (
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	White  = color.New(color.FgHiWhite).SprintFunc()
	Bold   = color.New(color.Bold).SprintFunc()
)

// Rated colors a rating label by how healthy it is.
func Rated(rating string) string {
	switch rating {
	case "EXCELLENT", "GOOD", "VERY GOOD", "IDEAL", "OPTIMAL":
		return Green(rating)
	case "LIGHTLY POLLUTED", "ACCEPTABLE", "MODERATE", "DRY", "TOO HUMID":
		return Yellow(rating)
	default:
		return Red(rating)
	}
}
