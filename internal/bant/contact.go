package bant

import (
	"regexp"
	"strings"
	"unicode"
)

// Contact is what a message revealed about how to reach the lead.
type Contact struct {
	Name  string
	Phone string
	Email string
}

// Empty reports whether nothing was found.
func (c Contact) Empty() bool {
	return c.Name == "" && c.Phone == "" && c.Email == ""
}

const (
	nameWordPattern   = `[\p{L}][\p{L}\p{M}'.-]*`
	namePhrasePattern = nameWordPattern + `(?:\s+` + nameWordPattern + `){0,3}`
	minPhoneDigits    = 7
	maxPhoneDigits    = 15
)

var (
	emailRE = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneRE = regexp.MustCompile(`\+?\d[\d\s().-]{5,}\d`)

	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)my name is\s+(` + namePhrasePattern + `)`),
		regexp.MustCompile(`(?i)name'?s\s+(` + namePhrasePattern + `)`),
		regexp.MustCompile(`(?i)this is\s+(` + namePhrasePattern + `)`),
		regexp.MustCompile(`(?i)call me\s+(` + namePhrasePattern + `)`),
		regexp.MustCompile(`(?i)\bi'?m\s+(` + namePhrasePattern + `)`),
		regexp.MustCompile(`(?i)\bi am\s+(` + namePhrasePattern + `)`),
	}

	nameTextNormalizer = strings.NewReplacer(
		"’", "'",
		"‘", "'",
		"′", "'",
	)

	// Words that end a name or show the phrase is not a name at all.
	nameStopWords = map[string]bool{
		"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
		"my": true, "is": true, "at": true, "on": true, "in": true, "of": true,
		"here": true, "interested": true, "looking": true, "not": true, "just": true,
		"fine": true, "good": true, "ok": true, "okay": true, "ready": true, "sure": true,
		"yes": true, "no": true, "so": true, "very": true, "still": true, "thinking": true,
		"planning": true, "sole": true, "only": true, "buying": true,
		"phone": true, "number": true, "email": true, "mobile": true, "cell": true,
		"thanks": true, "thank": true, "you": true, "hi": true, "hello": true,
		"reach": true, "contact": true, "me": true, "with": true,
		"great": true, "cool": true, "nice": true, "perfect": true, "awesome": true, "alright": true,
		"thx": true, "ty": true, "lol": true, "haha": true, "hmm": true, "wait": true, "sorry": true,
		"maybe": true, "later": true, "sounds": true, "noted": true, "got": true, "it": true,
	}
)

// ExtractContact finds an email, a phone number and a name in a message. Names
// come from introductions ("my name is ...") or, when a phone or email is
// present, from the short remainder of the message ("Samuel Jackson,
// 098124814122").
func ExtractContact(message string) Contact {
	text := nameTextNormalizer.Replace(message)
	var c Contact

	if m := emailRE.FindString(text); m != "" {
		c.Email = strings.ToLower(m)
	}
	rest := emailRE.ReplaceAllString(text, " ")

	for _, m := range phoneRE.FindAllString(rest, -1) {
		if p := normalizePhone(m); p != "" {
			c.Phone = p
			break
		}
	}
	rest = phoneRE.ReplaceAllString(rest, " ")

	for _, re := range namePatterns {
		if m := re.FindStringSubmatch(rest); m != nil {
			if name := cleanName(m[1]); name != "" {
				c.Name = name
				return c
			}
		}
	}

	if c.Phone != "" || c.Email != "" {
		c.Name = cleanName(rest)
	}
	return c
}

// ExtractName accepts a bare name reply such as "Samuel Jackson" when the
// conversation has just asked for one. Every word of the message must read as
// a name, so "Great thanks" yields "".
func ExtractName(message string) string {
	text := nameTextNormalizer.Replace(message)
	if emailRE.MatchString(text) || strings.ContainsAny(text, "0123456789?") {
		return ""
	}
	words, whole := nameWords(text)
	if !whole {
		return ""
	}
	return joinName(words)
}

func normalizePhone(s string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(s) {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimPrefix(b.String(), "+")
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return ""
	}
	return b.String()
}

// cleanName keeps up to four leading name words and rejects phrases that start
// with a stop word.
func cleanName(s string) string {
	words, _ := nameWords(s)
	return joinName(words)
}

// nameWords collects up to four leading name words. whole reports whether
// they cover the entire text.
func nameWords(s string) (words []string, whole bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == ':' || r == '!' || r == '/' || r == '|'
	})

	whole = true
	for _, f := range fields {
		f = strings.Trim(f, ".-'\"()")
		if f == "" {
			continue
		}
		if len(words) == 4 || nameStopWords[strings.ToLower(f)] || !isNameWord(f) {
			whole = false
			break
		}
		words = append(words, titleCase(f))
	}
	return words, whole
}

func joinName(words []string) string {
	if len(words) == 0 {
		return ""
	}
	if len(words) == 1 && len([]rune(words[0])) < 2 {
		return ""
	}
	return strings.Join(words, " ")
}

func isNameWord(s string) bool {
	for i, r := range s {
		if i == 0 && !unicode.IsLetter(r) {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.Is(unicode.Mn, r) && r != '\'' && r != '-' && r != '.' {
			return false
		}
	}
	return true
}

func titleCase(s string) string {
	r := []rune(strings.ToLower(s))
	capNext := true
	for i, c := range r {
		if capNext && unicode.IsLetter(c) {
			r[i] = unicode.ToUpper(c)
			capNext = false
		}
		if c == '-' || c == '\'' {
			capNext = true
		}
	}
	return string(r)
}
