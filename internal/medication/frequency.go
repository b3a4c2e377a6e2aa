package medication

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FrequencyKind classifies a free-text frequency expression
type FrequencyKind string

const (
	FrequencyHourly      FrequencyKind = "hourly"        // "8/8h", "8 em 8 horas", "a cada 6 horas"
	FrequencyTimesPerDay FrequencyKind = "times_per_day" // "3x ao dia", "2 vezes por dia"
	FrequencyDaily       FrequencyKind = "daily"         // "diário", "diariamente"
	FrequencyContinuous  FrequencyKind = "continuous"    // "uso contínuo"
	FrequencyUnknown     FrequencyKind = "unknown"
)

// MaxTimesPerDay is the largest "Nx ao dia" count accepted; one dose a minute.
const MaxTimesPerDay = 24 * 60

// Frequency is the typed form of a prescription frequency. The schedule generator and the
// stock forecast both read it; they differ only in what they do with it.
type Frequency struct {
	Kind FrequencyKind
	// IntervalHours is set for FrequencyHourly
	IntervalHours int
	// TimesPerDay is set for FrequencyTimesPerDay
	TimesPerDay int
	Raw         string
}

var (
	slashIntervalPattern = regexp.MustCompile(`(\d+)\s*/\s*(\d+)\s*h`)
	emIntervalPattern    = regexp.MustCompile(`(\d+)\s*em\s*(\d+)\s*(?:h\b|horas?)`)
	cadaIntervalPattern  = regexp.MustCompile(`cada\s*(\d+)\s*(?:h\b|horas?)`)
	timesXPattern        = regexp.MustCompile(`(\d+)\s*x\s*(?:ao|por)\s*dia`)
	timesVezesPattern    = regexp.MustCompile(`(\d+)\s*vez(?:es)?\s*(?:ao|por)\s*dia`)
	dailyPattern         = regexp.MustCompile(`\bdiari(?:o|a|amente)\b`)
	continuousPattern    = regexp.MustCompile(`\bcontinu[oa]\b`)
)

// ParseFrequency classifies text. Matching is case and accent insensitive and the first
// matching rule wins: interval, times per day, daily, continuous.
func ParseFrequency(text string) Frequency {
	f := Frequency{Kind: FrequencyUnknown, Raw: text}
	s := NormalizeText(text)
	if s == "" {
		return f
	}

	if m := slashIntervalPattern.FindStringSubmatch(s); m != nil {
		// "8/8h": the spacing is the second number
		if hours, err := strconv.Atoi(m[2]); err == nil && hours > 0 {
			f.Kind, f.IntervalHours = FrequencyHourly, hours
			return f
		}
	}
	for _, re := range []*regexp.Regexp{emIntervalPattern, cadaIntervalPattern} {
		if m := re.FindStringSubmatch(s); m != nil {
			if hours, err := strconv.Atoi(m[len(m)-1]); err == nil && hours > 0 {
				f.Kind, f.IntervalHours = FrequencyHourly, hours
				return f
			}
		}
	}

	for _, re := range []*regexp.Regexp{timesXPattern, timesVezesPattern} {
		if m := re.FindStringSubmatch(s); m != nil {
			// zero, overflowing or absurd counts are left unrecognized
			if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= MaxTimesPerDay {
				f.Kind, f.TimesPerDay = FrequencyTimesPerDay, n
				return f
			}
		}
	}

	if dailyPattern.MatchString(s) {
		f.Kind = FrequencyDaily
		return f
	}
	if continuousPattern.MatchString(s) {
		f.Kind = FrequencyContinuous
		return f
	}
	return f
}

// DosesPerDay returns the dose count stated by the expression itself.
// ok is false when the text carries no explicit count (daily, continuous, unknown).
func (f Frequency) DosesPerDay() (n int, ok bool) {
	switch f.Kind {
	case FrequencyHourly:
		return 24 / f.IntervalHours, true
	case FrequencyTimesPerDay:
		return f.TimesPerDay, true
	}
	return 0, false
}

// IsRecognized reports whether any rule matched.
func (f Frequency) IsRecognized() bool {
	return f.Kind != FrequencyUnknown
}

// NormalizeText lower-cases, trims and strips diacritics ("Contínuo" -> "continuo").
func NormalizeText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}
