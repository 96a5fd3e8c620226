package hunt

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Record represents a published hunt from the existing corpus
type Record struct {
	ID         string   `json:"id" yaml:"id"`
	Title      string   `json:"title,omitempty" yaml:"title"`
	Hypothesis string   `json:"hypothesis,omitempty" yaml:"hypothesis"`
	Tactic     string   `json:"tactic,omitempty" yaml:"tactic"`
	Tags       []string `json:"tags,omitempty" yaml:"tags"`
	Filepath   string   `json:"filepath,omitempty" yaml:"filepath"`
}

// Text returns the text used for comparison: the title when present,
// otherwise the hypothesis.
func (r Record) Text() string {
	if strings.TrimSpace(r.Title) != "" {
		return r.Title
	}
	return r.Hypothesis
}

// Tactics splits the declared tactic string on commas.
func (r Record) Tactics() []string {
	return SplitTactics(r.Tactic)
}

// Hash identifies the comparable content of a record.
func (r Record) Hash() string {
	h := sha256.New()
	h.Write([]byte(r.Text()))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(r.Tactic))))
	return hex.EncodeToString(h.Sum(nil))
}

// Candidate is a freshly generated hypothesis awaiting a uniqueness decision
type Candidate struct {
	Hypothesis string   `json:"hypothesis"`
	Tactic     string   `json:"tactic"`
	Tags       []string `json:"tags"`
}

// Record converts the candidate into a comparable record.
func (c Candidate) Record() Record {
	return Record{
		ID:         "candidate",
		Hypothesis: c.Hypothesis,
		Tactic:     c.Tactic,
		Tags:       c.Tags,
	}
}

// IsEmpty reports whether the candidate carries no hypothesis text.
func (c Candidate) IsEmpty() bool {
	return strings.TrimSpace(c.Hypothesis) == ""
}

// Validate checks the candidate before it is compared.
func (c Candidate) Validate() error {
	if c.IsEmpty() {
		return &ValidationError{Field: "hypothesis", Value: c.Hypothesis, Message: "hypothesis is empty"}
	}
	if strings.TrimSpace(c.Tactic) != "" {
		for _, part := range strings.Split(c.Tactic, ",") {
			if strings.TrimSpace(part) == "" {
				return &ValidationError{Field: "tactic", Value: c.Tactic, Message: "tactic list contains an empty entry"}
			}
		}
	}
	for _, tag := range c.Tags {
		if strings.TrimSpace(tag) == "" {
			return &ValidationError{Field: "tags", Value: strings.Join(c.Tags, ","), Message: "tag list contains an empty entry"}
		}
	}
	return nil
}

// SplitTactics splits a comma separated tactic list, dropping blanks.
func SplitTactics(tactic string) []string {
	var out []string
	for _, part := range strings.Split(tactic, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Fingerprint returns a content hash of an ordered corpus. Any change to a
// record's comparable fields, or to the ordering, changes the fingerprint.
func Fingerprint(records []Record) string {
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(len(records))))
	for _, r := range records {
		for _, field := range []string{r.ID, r.Title, r.Hypothesis, r.Tactic} {
			h.Write([]byte{0})
			h.Write([]byte(field))
		}
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(len(r.Tags))))
		for _, tag := range r.Tags {
			h.Write([]byte{0})
			h.Write([]byte(tag))
		}
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
