package segment

import (
	"errors"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type Mode string

const (
	ModeQuestionnaire Mode = "questionnaire"
	ModeAmbassadors   Mode = "ambassadors"
	ModeContacts      Mode = "contacts"
)

var ErrInvalidMode = errors.New("invalid_audience_mode")

// QuestionnaireFilter selects users by their onboarding answers. Empty
// slices mean "no constraint on this attribute".
type QuestionnaireFilter struct {
	Cities            []string `json:"cities,omitempty"`
	Neighborhoods     []string `json:"neighborhoods,omitempty"`
	Genders           []string `json:"genders,omitempty"`
	AgeBrackets       []string `json:"age_brackets,omitempty"`
	PrimaryConcerns   []string `json:"primary_concerns,omitempty"`
	SecondaryConcerns []string `json:"secondary_concerns,omitempty"`
}

func (f *QuestionnaireFilter) Empty() bool {
	if f == nil {
		return true
	}
	return len(f.Cities) == 0 &&
		len(f.Neighborhoods) == 0 &&
		len(f.Genders) == 0 &&
		len(f.AgeBrackets) == 0 &&
		len(f.PrimaryConcerns) == 0 &&
		len(f.SecondaryConcerns) == 0
}

// Audience is the tagged targeting variant stored on a message. Exactly
// one mode is active; the fields of the other modes are ignored.
type Audience struct {
	Mode Mode `json:"mode"`

	Questionnaire *QuestionnaireFilter `json:"questionnaire,omitempty"`

	// AmbassadorIDs narrows the ambassadors mode to a chosen subset.
	// Empty means every ambassador.
	AmbassadorIDs []snowflake.ID `json:"ambassador_ids,omitempty"`

	ContactIDs []snowflake.ID `json:"contact_ids,omitempty"`

	// ExpandNetwork widens each selected user to their full transitive
	// network. Applies to the ambassadors and contacts modes.
	ExpandNetwork bool `json:"expand_network,omitempty"`

	// Exclusions is free text, one raw phone number per line.
	Exclusions string `json:"exclusions,omitempty"`
}

func (a Audience) Validate() error {
	switch a.Mode {
	case ModeQuestionnaire, ModeAmbassadors, ModeContacts:
		return nil
	}
	return ErrInvalidMode
}

// ageBracket is an inclusive integer range parsed from "16-30" syntax.
type ageBracket struct {
	min, max int
}

func parseAgeBracket(raw string) (ageBracket, bool) {
	parts := strings.SplitN(strings.TrimSpace(raw), "-", 2)
	if len(parts) != 2 {
		return ageBracket{}, false
	}
	min, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return ageBracket{}, false
	}
	max, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return ageBracket{}, false
	}
	if min < 0 || max < min {
		return ageBracket{}, false
	}
	return ageBracket{min: min, max: max}, true
}

func (b ageBracket) contains(age int) bool {
	return age >= b.min && age <= b.max
}
