package domain

import "strconv"

// A step is 0.8 m and 0.04 kcal. Kept in hundredths so floor rounding to
// two decimals is exact integer arithmetic.
const (
	centiMetersPerStep = 80
	centiKcalPerStep   = 4
)

// Handoff carries a finished run to the summary view. It is read-only at
// the destination.
type Handoff struct {
	ElapsedText    string `json:"formattedTime"`
	StepCount      int    `json:"steps"`
	CompletionDate string `json:"runDate"`
}

type SummaryMetrics struct {
	DistanceMeters float64 `json:"distanceMeters"`
	Calories       float64 `json:"calories"`
}

type Summary struct {
	Date     string         `json:"date"`
	Distance string         `json:"distance"`
	Calories string         `json:"calories"`
	Time     string         `json:"time"`
	Metrics  SummaryMetrics `json:"metrics"`
}

// Metrics derives distance and calories from a step count, both floored to
// two decimal places.
func Metrics(steps int) SummaryMetrics {
	if steps < 0 {
		steps = 0
	}
	return SummaryMetrics{
		DistanceMeters: float64(steps*centiMetersPerStep) / 100,
		Calories:       float64(steps*centiKcalPerStep) / 100,
	}
}

func Summarize(h Handoff) Summary {
	steps := h.StepCount
	if steps < 0 {
		steps = 0
	}

	return Summary{
		Date:     h.CompletionDate,
		Distance: formatHundredths(steps*centiMetersPerStep) + " m",
		Calories: formatHundredths(steps*centiKcalPerStep) + " kcal",
		Time:     h.ElapsedText,
		Metrics:  Metrics(steps),
	}
}

// formatHundredths prints n/100 with at most two decimals and no trailing
// zeros, e.g. 8000 -> "80", 50 -> "0.5", 12 -> "0.12".
func formatHundredths(n int) string {
	whole := strconv.Itoa(n / 100)
	frac := n % 100

	switch {
	case frac == 0:
		return whole
	case frac%10 == 0:
		return whole + "." + strconv.Itoa(frac/10)
	case frac < 10:
		return whole + ".0" + strconv.Itoa(frac)
	default:
		return whole + "." + strconv.Itoa(frac)
	}
}
