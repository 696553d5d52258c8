// Package bant extracts Budget, Authority, Need, Timeline and contact facts
// from free-form messages. Deterministic normalizers run first; the model
// gateway isolates values and resolves what the normalizers cannot parse.
package bant

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
)

var (
	amountRE = regexp.MustCompile(`(?i)(\d{1,3}(?:,\d{3})+|\d+)(?:\.(\d+))?\s*(billion|bn|b|million|mil|mn|m|thousand|k)?\b`)
	rangeRE  = regexp.MustCompile(`(?i)^\s*(?:-|–|to|and)\s*$`)

	currencyRE = regexp.MustCompile(`(?i)(₱|us\$|\$|€|£|¥|\b(?:php|usd|eur|euros?|gbp|jpy|yen|pesos?|dollars?)\b)`)

	currencyCodes = map[string]string{
		"₱": "PHP", "php": "PHP", "peso": "PHP", "pesos": "PHP",
		"us$": "USD", "$": "USD", "usd": "USD", "dollar": "USD", "dollars": "USD",
		"€": "EUR", "eur": "EUR", "euro": "EUR", "euros": "EUR",
		"£": "GBP", "gbp": "GBP",
		"¥": "JPY", "jpy": "JPY", "yen": "JPY",
	}

	magnitudes = map[string]float64{
		"k": 1e3, "thousand": 1e3,
		"m": 1e6, "mn": 1e6, "mil": 1e6, "million": 1e6,
		"b": 1e9, "bn": 1e9, "billion": 1e9,
	}

	bareAmountRE = regexp.MustCompile(`(?i)^\s*(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?\s*(?:billion|bn|b|million|mil|mn|m|thousand|k)?\s*[.!]?\s*$`)

	// Words that may sit next to an isolated amount without changing what it
	// counts.
	moneyFillers = map[string]bool{
		"about": true, "around": true, "approx": true, "approximately": true, "roughly": true,
		"budget": true, "is": true, "my": true, "our": true, "the": true, "it": true, "s": true,
		"up": true, "to": true, "max": true, "maximum": true, "at": true, "most": true,
		"between": true, "and": true, "or": true, "only": true, "just": true, "total": true,
		"under": true, "below": true, "over": true, "less": true, "more": true, "than": true,
		"plus": true, "range": true, "of": true, "a": true, "per": true,
	}
)

type amountMatch struct {
	value     float64
	magnitude float64
	separated bool
	digits    int
	start     int
	end       int
}

func findAmounts(text string) []amountMatch {
	var out []amountMatch
	for _, loc := range amountRE.FindAllStringSubmatchIndex(text, -1) {
		intPart := text[loc[2]:loc[3]]
		clean := strings.ReplaceAll(intPart, ",", "")
		f, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			continue
		}
		if loc[4] >= 0 {
			frac, err := strconv.ParseFloat("0."+text[loc[4]:loc[5]], 64)
			if err == nil {
				f += frac
			}
		}
		m := amountMatch{
			value:     f,
			separated: strings.Contains(intPart, ","),
			digits:    len(clean),
			start:     loc[0],
			end:       loc[1],
		}
		if loc[6] >= 0 {
			m.magnitude = magnitudes[strings.ToLower(text[loc[6]:loc[7]])]
		}
		out = append(out, m)
	}

	// "20-25 million" and "between 20 and 25 million" share the magnitude.
	for i := len(out) - 2; i >= 0; i-- {
		if out[i].magnitude == 0 && out[i+1].magnitude != 0 &&
			rangeRE.MatchString(text[out[i].end:out[i+1].start]) {
			out[i].magnitude = out[i+1].magnitude
		}
	}
	return out
}

func detectCurrency(text string) string {
	m := currencyRE.FindString(text)
	if m == "" {
		return ""
	}
	return currencyCodes[strings.ToLower(m)]
}

// ParseMoney normalizes an isolated budget value such as "₱25,000,000.00",
// "25 million pesos" or "2.5M". A bare number is accepted, but not a count of
// something else ("3 bedrooms"). The largest amount wins when a range is
// given. defaultCurrency applies when none is stated.
func ParseMoney(text, defaultCurrency string) (model.Money, bool) {
	if countsSomethingElse(text) {
		return model.Money{}, false
	}
	return parseMoney(text, defaultCurrency, true)
}

// isBareAmount reports whether the whole message is a number, optionally with
// a magnitude suffix ("25000000", "25M").
func isBareAmount(message string) bool {
	return bareAmountRE.MatchString(message)
}

// countsSomethingElse reports whether text carries words besides amounts,
// currencies and money fillers.
func countsSomethingElse(text string) bool {
	rest := amountRE.ReplaceAllString(text, " ")
	rest = currencyRE.ReplaceAllString(rest, " ")
	words := strings.FieldsFunc(strings.ToLower(rest), func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		if !moneyFillers[w] {
			return true
		}
	}
	return false
}

// FindMoney looks for a budget inside a free-form message. Unlike ParseMoney it
// needs a currency, a magnitude or thousands separators, so phone numbers and
// counts are not mistaken for budgets.
func FindMoney(message, defaultCurrency string) (model.Money, bool) {
	return parseMoney(message, defaultCurrency, false)
}

func parseMoney(text, defaultCurrency string, bare bool) (model.Money, bool) {
	currency := detectCurrency(text)
	var best float64
	for _, m := range findAmounts(text) {
		if !bare && currency == "" && m.magnitude == 0 && !m.separated {
			continue
		}
		if !bare && m.magnitude == 0 && !m.separated && m.digits >= 9 {
			// Long unseparated digit runs are phone numbers.
			continue
		}
		v := m.value
		if m.magnitude > 0 {
			v *= m.magnitude
		}
		if v > best {
			best = v
		}
	}
	if best <= 0 {
		return model.Money{}, false
	}
	if currency == "" {
		currency = defaultCurrency
	}
	return model.MoneyFromMajor(best, currency), true
}

var (
	timelineRE = regexp.MustCompile(`(?i)\b(\d+|an?|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|couple(?: of)?|few|several)\s*(?:(?:-|–|to)\s*(\d+)\s*)?(days?|weeks?|wks?|months?|mos?|years?|yrs?)\b`)
	nextRE     = regexp.MustCompile(`(?i)\bnext\s+(week|month|year)\b`)
	halfYearRE = regexp.MustCompile(`(?i)\bhalf\s+(?:a\s+)?year\b`)
	thisYearRE = regexp.MustCompile(`(?i)\b(?:this year|within the year|end of (?:the )?year)\b`)
	asapRE     = regexp.MustCompile(`(?i)\b(?:asap|immediately|right away|right now|urgently)\b`)

	wordNumbers = map[string]int{
		"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
		"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
		"couple": 2, "couple of": 2, "few": 3, "several": 3,
	}
)

// ParseTimeline normalizes a duration-to-action such as "3 months", "in 3-6
// months", "next year" or "asap". Ranges resolve to their upper bound.
func ParseTimeline(text string) (model.Timeline, bool) {
	if halfYearRE.MatchString(text) {
		return model.Timeline{Amount: 6, Unit: model.UnitMonth}, true
	}
	if m := timelineRE.FindStringSubmatch(text); m != nil {
		amount, ok := wordNumbers[strings.ToLower(m[1])]
		if !ok {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return model.Timeline{}, false
			}
			amount = n
		}
		if m[2] != "" {
			if upper, err := strconv.Atoi(m[2]); err == nil && upper > amount {
				amount = upper
			}
		}
		if amount <= 0 {
			return model.Timeline{}, false
		}
		return model.Timeline{Amount: amount, Unit: unitOf(m[3])}, true
	}
	if m := nextRE.FindStringSubmatch(text); m != nil {
		return model.Timeline{Amount: 1, Unit: unitOf(m[1])}, true
	}
	if thisYearRE.MatchString(text) {
		return model.Timeline{Amount: 1, Unit: model.UnitYear}, true
	}
	if asapRE.MatchString(text) {
		return model.Timeline{Amount: 1, Unit: model.UnitWeek}, true
	}
	return model.Timeline{}, false
}

func unitOf(s string) model.TimeUnit {
	s = strings.ToLower(s)
	switch {
	case strings.HasPrefix(s, "d"):
		return model.UnitDay
	case strings.HasPrefix(s, "w"):
		return model.UnitWeek
	case strings.HasPrefix(s, "y"):
		return model.UnitYear
	}
	return model.UnitMonth
}

var (
	groupAuthorityRE = regexp.MustCompile(`(?i)\b(?:group|board|committee|partners|shareholders|the company|our company|management|family decides|we all|whole family|several people)\b`)
	jointAuthorityRE = regexp.MustCompile(`(?i)\b(?:joint(?:ly)?|together|both of us|with my (?:wife|husband|spouse|partner|parents?)|my (?:wife|husband|spouse|partner) and i|(?:wife|husband|spouse|partner) and i|co-?decid\w*|we decide|we both|consult(?:ing)? (?:my|with))\b`)
	soleAuthorityRE  = regexp.MustCompile(`(?i)(?:\bsole\b|\bonly me\b|\bjust me\b|\bme alone\b|\bmyself\b|\bi decide\b|\bi(?:'m| am) the (?:one|only one|decision[- ]?maker|buyer)\b|\bi make (?:the|all the) decisions?\b|\bmy (?:own )?decision\b|\bi(?:'m| am) deciding\b|\bup to me\b)`)
)

// ParseAuthority maps colloquial phrasing to an authority level. Group and
// joint cues take precedence over sole cues.
func ParseAuthority(text string) (model.Authority, bool) {
	if a := model.Authority(strings.ToLower(strings.TrimSpace(text))); a.Valid() {
		return a, true
	}
	switch {
	case groupAuthorityRE.MatchString(text):
		return model.AuthorityGroup, true
	case jointAuthorityRE.MatchString(text):
		return model.AuthorityJoint, true
	case soleAuthorityRE.MatchString(text):
		return model.AuthoritySole, true
	}
	return "", false
}

var (
	needCategories = []struct {
		category string
		re       *regexp.Regexp
	}{
		{"investment", regexp.MustCompile(`(?i)\b(?:invest\w*|rental|rent (?:it )?out|income|flip\w*|resale|airbnb|passive)\b`)},
		{"business", regexp.MustCompile(`(?i)\b(?:business|office|commercial|shop|store|company|warehouse)\b`)},
		{"vacation", regexp.MustCompile(`(?i)\b(?:vacation|holiday|weekend|beach house|getaway)\b`)},
		{"retirement", regexp.MustCompile(`(?i)\bretire\w*\b`)},
		{"residence", regexp.MustCompile(`(?i)\b(?:residen\w*|reside|live in|to live|living|home|family|personal use|own use|move in)\b`)},
	}

	// Acknowledgements, greetings and hedges. A tag made only of these is not
	// a need.
	nonAnswerWords = map[string]bool{
		"ok": true, "okay": true, "k": true, "kk": true, "alright": true, "sure": true, "fine": true,
		"hi": true, "hello": true, "hey": true, "yo": true, "good": true, "morning": true, "afternoon": true, "evening": true,
		"lol": true, "haha": true, "hehe": true, "hmm": true, "hm": true, "um": true, "uh": true, "oh": true, "ah": true,
		"yes": true, "yeah": true, "yep": true, "no": true, "nope": true, "nah": true,
		"not": true, "yet": true, "maybe": true, "idk": true, "dunno": true, "don": true, "t": true,
		"know": true, "i": true, "really": true, "still": true, "thinking": true, "later": true, "unsure": true,
		"thanks": true, "thank": true, "you": true, "ty": true, "great": true, "cool": true, "nice": true,
		"wow": true, "wait": true, "sorry": true, "what": true, "huh": true, "so": true, "and": true, "the": true,
	}
)

const maxNeedLen = 64

// NeedCategory maps a stated need to one of the canonical categories
// ("residency" -> "residence"), or "" when none matches.
func NeedCategory(text string) string {
	for _, c := range needCategories {
		if c.re.MatchString(text) {
			return c.category
		}
	}
	return ""
}

// NormalizeNeed maps a stated need to a category tag. Known synonyms collapse
// to a canonical category; anything else becomes a lower-case tag. Text
// without letters, or made only of acknowledgements and hedges ("ok", "not
// sure yet"), yields "".
func NormalizeNeed(text string) string {
	if c := NeedCategory(text); c != "" {
		return c
	}

	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	tag := b.String()
	if !strings.ContainsFunc(tag, unicode.IsLetter) || isNonAnswer(tag) {
		return ""
	}
	if r := []rune(tag); len(r) > maxNeedLen {
		tag = strings.TrimSpace(string(r[:maxNeedLen]))
	}
	return tag
}

func isNonAnswer(tag string) bool {
	for _, w := range strings.Fields(tag) {
		if !nonAnswerWords[w] {
			return false
		}
	}
	return true
}

// IsNoise reports whether a message carries no letters or digits at all, such
// as emoji-only or punctuation-only input.
func IsNoise(message string) bool {
	for _, r := range message {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
