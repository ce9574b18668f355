// Package text turns raw chat lines into something a voice can read aloud.
package text

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

const (
	// MaxRunes is the longest message the narrator accepts.
	MaxRunes = 1024
	// MaxNumberForWords is the largest integer spelled out.
	MaxNumberForWords = 999999

	numberBaseTen      = 10
	numberBaseTwenty   = 20
	numberBaseHundred  = 100
	numberBaseThousand = 1000

	linkWord = "link"
)

const (
	urlRegexPattern        = `(?i)\b(?:https?://|www\.)\S+`
	numberRegexPattern     = `\b\d+\b`
	whitespaceRegexPattern = `\s+`
	repeatRegexPattern     = `([!?.])[!?.]+`
)

// chatAbbreviations are expanded as whole words, case-insensitively.
var chatAbbreviations = map[string]string{
	"gg":   "good game",
	"ggwp": "good game well played",
	"wp":   "well played",
	"ty":   "thank you",
	"thx":  "thanks",
	"np":   "no problem",
	"brb":  "be right back",
	"afk":  "away from keyboard",
	"idk":  "I don't know",
	"omg":  "oh my god",
	"nt":   "nice try",
	"ns":   "nice shot",
}

// Preparer normalizes chat text for narration. It is safe for concurrent use.
type Preparer struct {
	urlPattern          *regexp.Regexp
	numberPattern       *regexp.Regexp
	whitespacePattern   *regexp.Regexp
	repeatPattern       *regexp.Regexp
	abbreviationPattern *regexp.Regexp
	punctuationReplacer *strings.Replacer
	numbers             *numberConverter
}

// NewPreparer compiles the patterns once.
func NewPreparer() *Preparer {
	keys := make([]string, 0, len(chatAbbreviations))
	for key := range chatAbbreviations {
		keys = append(keys, regexp.QuoteMeta(key))
	}

	return &Preparer{
		urlPattern:          regexp.MustCompile(urlRegexPattern),
		numberPattern:       regexp.MustCompile(numberRegexPattern),
		whitespacePattern:   regexp.MustCompile(whitespaceRegexPattern),
		repeatPattern:       regexp.MustCompile(repeatRegexPattern),
		abbreviationPattern: regexp.MustCompile(`(?i)\b(?:` + strings.Join(keys, "|") + `)\b`),
		punctuationReplacer: strings.NewReplacer(
			"—", "-", "–", "-", "‒", "-",
			"…", "...",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
		numbers: newNumberConverter(),
	}
}

// Prepare returns the narratable form of raw. An empty result means there is
// nothing worth saying.
func (p *Preparer) Prepare(raw string) string {
	if raw == "" {
		return ""
	}

	prepared := html.UnescapeString(raw)
	prepared = p.urlPattern.ReplaceAllString(prepared, linkWord)
	prepared = p.punctuationReplacer.Replace(prepared)
	prepared = p.repeatPattern.ReplaceAllString(prepared, "$1")
	prepared = p.expandAbbreviations(prepared)
	prepared = p.normalizeNumbers(prepared)
	prepared = strings.TrimSpace(p.whitespacePattern.ReplaceAllString(prepared, " "))

	return truncateRunes(prepared, MaxRunes)
}

func (p *Preparer) expandAbbreviations(text string) string {
	return p.abbreviationPattern.ReplaceAllStringFunc(text, func(match string) string {
		if expansion, ok := chatAbbreviations[strings.ToLower(match)]; ok {
			return expansion
		}

		return match
	})
}

func (p *Preparer) normalizeNumbers(text string) string {
	return p.numberPattern.ReplaceAllStringFunc(text, func(s string) string {
		num, err := strconv.Atoi(s)
		if err != nil {
			return s
		}

		return p.numbers.toWords(num)
	})
}

func truncateRunes(s string, limit int) string {
	count := 0
	for index := range s {
		if count == limit {
			return strings.TrimSpace(s[:index])
		}
		count++
	}

	return s
}

type numberConverter struct {
	ones  []string
	teens []string
	tens  []string
}

func newNumberConverter() *numberConverter {
	return &numberConverter{
		ones: []string{
			"", "one", "two", "three", "four", "five",
			"six", "seven", "eight", "nine",
		},
		teens: []string{
			"ten", "eleven", "twelve", "thirteen", "fourteen",
			"fifteen", "sixteen", "seventeen", "eighteen", "nineteen",
		},
		tens: []string{
			"", "", "twenty", "thirty", "forty", "fifty",
			"sixty", "seventy", "eighty", "ninety",
		},
	}
}

// toWords spells 0..MaxNumberForWords; anything else is left as digits.
func (nc *numberConverter) toWords(number int) string {
	if number < 0 || number > MaxNumberForWords {
		return strconv.Itoa(number)
	}

	if number == 0 {
		return "zero"
	}

	var parts []string

	if thousands := number / numberBaseThousand; thousands > 0 {
		parts = append(parts, nc.underThousand(thousands)+" thousand")
	}

	if rest := number % numberBaseThousand; rest > 0 {
		parts = append(parts, nc.underThousand(rest))
	}

	return strings.Join(parts, " ")
}

func (nc *numberConverter) underThousand(num int) string {
	hundreds := num / numberBaseHundred
	rest := num % numberBaseHundred

	switch {
	case hundreds == 0:
		return nc.underHundred(rest)
	case rest == 0:
		return nc.ones[hundreds] + " hundred"
	default:
		return nc.ones[hundreds] + " hundred " + nc.underHundred(rest)
	}
}

func (nc *numberConverter) underHundred(num int) string {
	switch {
	case num < numberBaseTen:
		return nc.ones[num]
	case num < numberBaseTwenty:
		return nc.teens[num-numberBaseTen]
	case num%numberBaseTen == 0:
		return nc.tens[num/numberBaseTen]
	default:
		return nc.tens[num/numberBaseTen] + " " + nc.ones[num%numberBaseTen]
	}
}
