package provider

import "strings"

// Weather is a canned local reading used for climate tips.
type Weather struct {
	City      string  `yaml:"city" json:"city"`
	TempC     float64 `yaml:"tempC" json:"temp_c"`
	Humidity  float64 `yaml:"humidity" json:"humidity"`
	Condition string  `yaml:"condition" json:"condition"`
}

// ClimateTip gives one field-work suggestion for a reading. Heat wins over
// rain, rain over dryness.
func ClimateTip(w Weather) string {
	switch {
	case w.TempC >= 35:
		return "High heat! Use shade nets and reduce irrigation."
	case strings.Contains(strings.ToLower(w.Condition), "rain"):
		return "Rain expected. Avoid fertilizer today."
	case w.Humidity < 40:
		return "Low humidity. Use drip irrigation or mulching."
	default:
		return "Weather is favorable for most crops."
	}
}
