package redaction

import (
	"context"
	"regexp"
	"strings"

	"github.com/feichai0017/document-intelligence/internal/models"
)

var (
	capitalisedWord = regexp.MustCompile(`\b[A-Z][a-z]+(?:[-'][A-Z]?[a-z]+)?\b`)
	honorific       = regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Miss|Dr|Prof|Sir|Madam)\.?\s+([A-Z][a-z]+(?:[-'][A-Z]?[a-z]+)?(?:\s+[A-Z][a-z]+(?:[-'][A-Z]?[a-z]+)?)?)\b`)
)

// commonGivenNames seeds the PERSON recogniser. Names that are also common
// English words (May, Will, Mark) are left out on purpose.
var commonGivenNames = []string{
	"aaron", "adam", "adrian", "aisha", "alan", "albert", "alex", "alexander", "alice", "alicia",
	"amanda", "amy", "andrea", "andrew", "angela", "anna", "anne", "anthony", "arthur", "barbara",
	"benjamin", "betty", "brandon", "brian", "carl", "carlos", "carol", "caroline", "catherine", "charles",
	"charlotte", "chris", "christina", "christine", "christopher", "claire", "daniel", "david", "deborah", "dennis",
	"diana", "donald", "donna", "dorothy", "edward", "elena", "elizabeth", "emily", "emma", "eric",
	"ethan", "fatima", "frank", "gary", "george", "grace", "gregory", "hannah", "harry", "helen",
	"henry", "ivan", "jack", "jacob", "james", "jane", "janet", "jason", "jeffrey", "jennifer",
	"jessica", "joan", "john", "jonathan", "jose", "joseph", "joshua", "juan", "julia", "julie",
	"karen", "katherine", "kenneth", "kevin", "kimberly", "laura", "linda", "lisa", "lucas", "luis",
	"margaret", "maria", "marie", "martha", "mary", "matthew", "michael", "michelle", "mohammed", "nancy",
	"nicholas", "olivia", "oliver", "pamela", "patricia", "paul", "peter", "rachel", "raymond", "rebecca",
	"richard", "robert", "ronald", "ruth", "samuel", "sandra", "sarah", "scott", "sharon", "sophia",
	"stephen", "steven", "susan", "thomas", "timothy", "victoria", "walter", "wei", "william", "yuki",
}

// NameRecognizer tags PERSON spans: an honorific followed by one or two
// capitalised words, or a known given name followed by one or two
// capitalised surnames.
type NameRecognizer struct {
	given map[string]bool
}

func NewNameRecognizer(extraGivenNames ...string) *NameRecognizer {
	given := make(map[string]bool, len(commonGivenNames)+len(extraGivenNames))
	for _, n := range commonGivenNames {
		given[n] = true
	}
	for _, n := range extraGivenNames {
		given[strings.ToLower(n)] = true
	}
	return &NameRecognizer{given: given}
}

func (r *NameRecognizer) Recognize(ctx context.Context, text string) ([]models.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var spans []models.Entity

	for _, loc := range honorific.FindAllStringSubmatchIndex(text, -1) {
		spans = append(spans, models.Entity{
			Type:  "PERSON",
			Start: loc[0],
			End:   loc[1],
			Score: 0.85,
			Text:  text[loc[0]:loc[1]],
		})
	}

	// group capitalised words separated by single spaces into runs
	words := capitalisedWord.FindAllStringIndex(text, -1)
	for i := 0; i < len(words); {
		j := i + 1
		for j < len(words) && isSingleSpace(text[words[j-1][1]:words[j][0]]) {
			j++
		}
		spans = append(spans, r.namesInRun(text, words[i:j])...)
		i = j
	}
	return spans, nil
}

// namesInRun finds given-name-led spans of two or three words in a run.
func (r *NameRecognizer) namesInRun(text string, run [][]int) []models.Entity {
	var spans []models.Entity
	for k := 0; k < len(run)-1; k++ {
		if !r.given[strings.ToLower(text[run[k][0]:run[k][1]])] {
			continue
		}
		last := k + 1
		if last+1 < len(run) && !r.given[strings.ToLower(text[run[last+1][0]:run[last+1][1]])] {
			last++
		}
		start, end := run[k][0], run[last][1]
		spans = append(spans, models.Entity{
			Type:  "PERSON",
			Start: start,
			End:   end,
			Score: 0.8,
			Text:  text[start:end],
		})
		k = last
	}
	return spans
}

func isSingleSpace(s string) bool {
	return s == " " || s == "\u00a0"
}
