package segment

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tribewave/tribewave/internal/clock"
	"github.com/tribewave/tribewave/internal/directory/domain"
)

// Recipient is one row of the materialized audience snapshot.
type Recipient struct {
	ID   snowflake.ID `json:"id"`
	Name string       `json:"name"`
	JID  string       `json:"jid"`
}

// Resolver turns an Audience into a concrete recipient list. Resolution
// happens exactly once, at message creation; the resulting snapshot is
// what the dispatcher later sends to, regardless of how the directory
// changes in between.
type Resolver struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

func New(p Params) *Resolver {
	return &Resolver{
		db:    p.DB,
		log:   p.Log.Named("segment.resolver"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Resolve computes the recipient snapshot for an audience. Zero matches
// is a valid outcome, not an error.
func (r *Resolver) Resolve(ctx context.Context, audience Audience) ([]Recipient, error) {
	if err := audience.Validate(); err != nil {
		return nil, err
	}

	users, err := r.repo.ListAll(ctx, r.db)
	if err != nil {
		return nil, err
	}
	idx := newIndex(users)

	var base []*domain.User
	switch audience.Mode {
	case ModeQuestionnaire:
		base = r.matchQuestionnaire(users, audience.Questionnaire)
	case ModeAmbassadors:
		base = r.matchAmbassadors(idx, audience.AmbassadorIDs)
	case ModeContacts:
		base = idx.byIDs(audience.ContactIDs)
	}

	if audience.ExpandNetwork && audience.Mode != ModeQuestionnaire {
		base = idx.expand(base)
	}

	recipients := dedupe(base)
	recipients = applyExclusions(recipients, audience.Exclusions)
	return recipients, nil
}

func (r *Resolver) matchQuestionnaire(users []*domain.User, filter *QuestionnaireFilter) []*domain.User {
	if filter.Empty() {
		return nil
	}

	var brackets []ageBracket
	for _, raw := range filter.AgeBrackets {
		if b, ok := parseAgeBracket(raw); ok {
			brackets = append(brackets, b)
		}
	}
	ageFilterActive := len(filter.AgeBrackets) > 0
	now := r.clock.Now()

	var matched []*domain.User
	for _, u := range users {
		if !matchSet(filter.Cities, u.City) ||
			!matchSet(filter.Neighborhoods, u.Neighborhood) ||
			!matchSet(filter.Genders, u.Gender) ||
			!matchSet(filter.PrimaryConcerns, u.PrimaryConcern) ||
			!matchSet(filter.SecondaryConcerns, u.SecondaryConcern) {
			continue
		}
		if ageFilterActive {
			age, ok := u.Age(now)
			if !ok {
				// Missing or malformed birthdates drop out whenever an
				// age filter is active.
				continue
			}
			inBracket := false
			for _, b := range brackets {
				if b.contains(age) {
					inBracket = true
					break
				}
			}
			if !inBracket {
				continue
			}
		}
		matched = append(matched, u)
	}
	return matched
}

func (r *Resolver) matchAmbassadors(idx *index, ids []snowflake.ID) []*domain.User {
	if len(ids) > 0 {
		var chosen []*domain.User
		for _, u := range idx.byIDs(ids) {
			if u.Role == domain.RoleAmbassador {
				chosen = append(chosen, u)
			}
		}
		return chosen
	}

	var all []*domain.User
	for _, u := range idx.users {
		if u.Role != domain.RoleAmbassador {
			continue
		}
		if len(idx.children[u.Code]) == 0 {
			continue
		}
		all = append(all, u)
	}
	return all
}

func matchSet(set []string, value string) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if strings.EqualFold(strings.TrimSpace(s), value) {
			return true
		}
	}
	return false
}

// dedupe keeps the first occurrence per contact identifier and drops
// users without a derivable one.
func dedupe(users []*domain.User) []Recipient {
	seen := make(map[string]struct{}, len(users))
	recipients := make([]Recipient, 0, len(users))
	for _, u := range users {
		jid := u.JID
		if jid == "" {
			jid = domain.JIDFromPhone(u.Phone)
		}
		if jid == "" {
			continue
		}
		if _, dup := seen[jid]; dup {
			continue
		}
		seen[jid] = struct{}{}
		recipients = append(recipients, Recipient{ID: u.ID, Name: u.Name, JID: jid})
	}
	return recipients
}

// applyExclusions removes recipients whose identifier matches a line of
// the exclusion text. Lines are raw phone numbers in any formatting.
func applyExclusions(recipients []Recipient, exclusions string) []Recipient {
	if strings.TrimSpace(exclusions) == "" {
		return recipients
	}

	excluded := make(map[string]struct{})
	for _, line := range strings.Split(exclusions, "\n") {
		if jid := domain.JIDFromPhone(line); jid != "" {
			excluded[jid] = struct{}{}
		}
	}
	if len(excluded) == 0 {
		return recipients
	}

	kept := recipients[:0]
	for _, rec := range recipients {
		if _, drop := excluded[rec.JID]; drop {
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

// index is an in-memory view of the directory for one resolution pass.
type index struct {
	users    []*domain.User
	byID     map[snowflake.ID]*domain.User
	children map[string][]*domain.User
}

func newIndex(users []*domain.User) *index {
	idx := &index{
		users:    users,
		byID:     make(map[snowflake.ID]*domain.User, len(users)),
		children: make(map[string][]*domain.User),
	}
	for _, u := range users {
		idx.byID[u.ID] = u
		if u.InvitationCode != nil && *u.InvitationCode != "" {
			idx.children[*u.InvitationCode] = append(idx.children[*u.InvitationCode], u)
		}
	}
	return idx
}

func (idx *index) byIDs(ids []snowflake.ID) []*domain.User {
	var out []*domain.User
	for _, id := range ids {
		if u, ok := idx.byID[id]; ok {
			out = append(out, u)
		}
	}
	return out
}

// expand widens each base user to themselves plus every descendant. The
// visited set spans the whole batch, so shared downstream descendants
// appear once no matter how many base users reach them.
func (idx *index) expand(base []*domain.User) []*domain.User {
	visited := make(map[snowflake.ID]struct{}, len(base))
	var out []*domain.User
	var frontier []string

	for _, u := range base {
		if _, seen := visited[u.ID]; seen {
			continue
		}
		visited[u.ID] = struct{}{}
		out = append(out, u)
		if u.Code != "" {
			frontier = append(frontier, u.Code)
		}
	}

	for len(frontier) > 0 {
		var next []string
		for _, code := range frontier {
			for _, guest := range idx.children[code] {
				if _, seen := visited[guest.ID]; seen {
					continue
				}
				visited[guest.ID] = struct{}{}
				out = append(out, guest)
				if guest.Code != "" {
					next = append(next, guest.Code)
				}
			}
		}
		frontier = next
	}
	return out
}

var Module = fx.Module("segment.resolver",
	fx.Provide(New),
)
