// Package resolve decides whether a candidate entity is an existing
// registry entity, a new synonym of one, or a genuinely new entity.
package resolve

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/openaccesstools/oar/internal/match"
	"github.com/openaccesstools/oar/internal/normalize"
	"github.com/openaccesstools/oar/internal/registry"
)

// PublisherSuffix disambiguates a publisher whose name collides with the
// entity it publishes.
const PublisherSuffix = " (Publisher)"

// maxPublisherDepth bounds recursive publisher resolution. Resolving a
// journal's publisher may create the publisher, which has no publisher of
// its own, so the legitimate depth is two; anything deeper is a cycle in
// the input.
const maxPublisherDepth = 3

// Outcome is the decision taken for one candidate.
type Outcome string

const (
	UsedExisting   Outcome = "used-existing"
	CreatedSynonym Outcome = "created-synonym"
	CreatedPrimary Outcome = "created-primary"
)

// Resolution is the result of resolving one candidate: the record it ended
// up attached to and how.
type Resolution struct {
	Outcome Outcome `json:"outcome"`
	// Entity is the matched or newly created record. It may be a Synonym.
	Entity *registry.EntityRecord `json:"entity"`
	// PreferredID is the Primary entity id policies should attach to.
	PreferredID int64 `json:"preferred_id"`
}

// EnrichResult reports what an enrichment pass changed.
type EnrichResult struct {
	SynonymCreated bool
	Updated        map[string]any
}

// Resolver applies the synonym/homonym decision rules.
type Resolver struct {
	client  registry.Client
	matcher *match.Matcher
	log     *zap.Logger
}

// NewResolver builds a Resolver. A nil logger is replaced with a no-op one.
func NewResolver(client registry.Client, matcher *match.Matcher, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{client: client, matcher: matcher, log: log}
}

// Resolve matches the candidate and acts on the result: no write for an
// existing entity, one entity write for a new synonym or primary (plus an
// ASCII-transliterated synonym when the created name is non-ASCII).
func (r *Resolver) Resolve(ctx context.Context, c match.Candidate) (Resolution, error) {
	return r.resolve(ctx, c, 0)
}

func (r *Resolver) resolve(ctx context.Context, c match.Candidate, depth int) (Resolution, error) {
	res, err := r.matcher.Match(ctx, c)
	if err != nil {
		return Resolution{}, err
	}
	if !res.Found() {
		r.log.Debug("no match found, creating primary", zap.String("name", c.Name))
		return r.createPrimary(ctx, c, depth)
	}

	switch res.Channel {
	case match.ChannelISSN:
		return r.resolveISSNMatch(ctx, c, res.Record, depth)
	case match.ChannelName:
		return r.resolveNameMatch(ctx, c, res.Record, depth)
	default:
		return Resolution{}, registry.Contractf("unsupported match channel %q", res.Channel)
	}
}

// resolveISSNMatch handles a match found through an identifier. Equal
// names mean the same entity; otherwise the match's synonym family is
// scanned before a new synonym is written.
func (r *Resolver) resolveISSNMatch(ctx context.Context, c match.Candidate, mr *registry.EntityRecord, depth int) (Resolution, error) {
	mrName := normalize.MatchedName(mr.Name, c.Name, c.Publisher)
	candLower := strings.ToLower(strings.TrimSpace(c.Name))

	if mrName == candLower {
		r.log.Debug("issn and name both match, using existing entity",
			zap.String("name", c.Name), zap.Int64("id", mr.ID))
		return r.useExisting(mr)
	}

	family, err := r.client.Synonyms(ctx, mr.ID)
	if err != nil {
		return Resolution{}, fmt.Errorf("fetching synonyms of %d: %w", mr.ID, err)
	}
	decorated := strings.ToLower(fmt.Sprintf("%s (%s)", c.Name, c.Publisher))
	for i := range family {
		syn := strings.ToLower(family[i].Name)
		ownSuffix := "(" + strings.ToLower(string(family[i].Type)) + ")"
		stripped := strings.TrimSpace(strings.ReplaceAll(syn, ownSuffix, ""))
		if stripped == candLower || syn == decorated {
			r.log.Debug("candidate name already present as synonym",
				zap.String("name", c.Name), zap.String("synonym", family[i].Name))
			return r.useExisting(mr)
		}
	}

	r.log.Debug("issn match with unknown name, creating synonym",
		zap.String("name", c.Name), zap.String("matched", mr.Name))
	return r.createSynonymOf(ctx, c, mr, depth)
}

// resolveNameMatch handles a match found by name. Identifier evidence
// outranks the name: fully disjoint identifiers mean a homonym, any
// agreeing identifier means the same entity. With no identifier verdict,
// publisher and type comparisons decide.
func (r *Resolver) resolveNameMatch(ctx context.Context, c match.Candidate, mr *registry.EntityRecord, depth int) (Resolution, error) {
	mrName := normalize.MatchedName(mr.Name, c.Name, c.Publisher)
	candLower := strings.ToLower(strings.TrimSpace(c.Name))
	mrPublisher, err := r.parentName(ctx, mr)
	if err != nil {
		return Resolution{}, err
	}

	bothFull := c.ISSN != "" && c.EISSN != "" && mr.ISSN != "" && mr.EISSN != ""
	anyAgrees := identifierAgrees(c.ISSN, mr) || identifierAgrees(c.EISSN, mr)

	switch {
	case bothFull && !anyAgrees:
		// Same name, four disjoint identifiers: a homonym, not a match.
		r.log.Debug("identifiers fully disjoint, treating as distinct entity",
			zap.String("name", c.Name), zap.String("matched", mr.Name))
		if c.Publisher != "" && strings.EqualFold(c.Publisher, mrPublisher) {
			c = c.WithName(fmt.Sprintf("%s (%s)", c.Name, c.ISSN))
		}
		return r.createPrimary(ctx, c, depth)

	case hasIdentifier(c) && hasRecordIdentifier(mr) && anyAgrees:
		r.log.Debug("at least one identifier agrees, using existing entity",
			zap.String("name", c.Name), zap.Int64("id", mr.ID))
		return r.useExisting(mr)

	case mrPublisher == "" && mrName == candLower:
		if mr.Type == c.Type {
			return r.useExisting(mr)
		}
		// Same name, different kind of thing. The type suffix keeps the
		// two apart.
		return r.createPrimary(ctx, c.WithName(c.Name+c.TypeSuffix()), depth)

	case mrName == candLower:
		if c.Publisher != "" && strings.EqualFold(c.Publisher, mrPublisher) {
			return r.useExisting(mr)
		}
		if c.Type != mr.Type {
			return r.createPrimary(ctx, c.WithName(c.Name+c.TypeSuffix()), depth)
		}
		same, err := r.publishersShareEntity(ctx, c.Publisher, mrPublisher, depth)
		if err != nil {
			return Resolution{}, err
		}
		if same {
			r.log.Debug("publisher names resolve to the same entity, using existing",
				zap.String("name", c.Name))
			return r.useExisting(mr)
		}
		return r.createPrimary(ctx, c, depth)

	default:
		return r.createSynonymOf(ctx, c, mr, depth)
	}
}

func (r *Resolver) useExisting(mr *registry.EntityRecord) (Resolution, error) {
	preferred := mr.PreferredID()
	if preferred == 0 {
		return Resolution{}, registry.Contractf("entity %q has no preferred id", mr.Name)
	}
	return Resolution{Outcome: UsedExisting, Entity: mr, PreferredID: preferred}, nil
}

func (r *Resolver) createPrimary(ctx context.Context, c match.Candidate, depth int) (Resolution, error) {
	rec, err := r.createEntity(ctx, c, registry.Primary, 0, depth)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Outcome: CreatedPrimary, Entity: rec, PreferredID: rec.ID}, nil
}

func (r *Resolver) createSynonymOf(ctx context.Context, c match.Candidate, mr *registry.EntityRecord, depth int) (Resolution, error) {
	target := mr.ID
	if mr.NameStatus != registry.Primary {
		if mr.SynonymOfID == 0 {
			return Resolution{}, registry.Contractf(
				"%q is not a primary name but has no synonym target", mr.Name)
		}
		target = mr.SynonymOfID
	}
	rec, err := r.createEntity(ctx, c, registry.Synonym, target, depth)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Outcome: CreatedSynonym, Entity: rec, PreferredID: target}, nil
}

// createEntity performs the one entity write of a resolution: publisher
// resolution, homonym disambiguation, creation, and the ASCII-synonym side
// effect.
func (r *Resolver) createEntity(ctx context.Context, c match.Candidate, status registry.NameStatus, synonymOf int64, depth int) (*registry.EntityRecord, error) {
	publisher := c.Publisher
	if publisher != "" && strings.EqualFold(c.Name, publisher) {
		r.log.Warn("entity name identical to its publisher name, disambiguating publisher",
			zap.String("name", c.Name))
		publisher += PublisherSuffix
	}

	var parentID int64
	if publisher != "" {
		if depth+1 > maxPublisherDepth {
			return nil, registry.Contractf("publisher resolution for %q exceeded depth %d",
				c.Name, maxPublisherDepth)
		}
		pc := match.Candidate{Name: publisher, Type: registry.Publisher, SourceID: c.SourceID}
		pres, err := r.resolve(ctx, pc, depth+1)
		if err != nil {
			return nil, fmt.Errorf("resolving publisher %q: %w", publisher, err)
		}
		parentID = pres.PreferredID
	}

	name, err := r.disambiguateHomonym(ctx, c, publisher)
	if err != nil {
		return nil, err
	}

	rec := registry.EntityRecord{
		Name:        name,
		NameStatus:  status,
		Type:        c.Type,
		ISSN:        c.ISSN,
		EISSN:       c.EISSN,
		URL:         c.URL,
		ParentID:    parentID,
		SynonymOfID: synonymOf,
		SourceID:    c.SourceID,
	}
	created, err := r.client.CreateEntity(ctx, rec, false)
	if registry.IsDuplicateName(err) {
		// Ambiguous duplicate name tolerated: keep it, with a
		// disambiguating suffix from the registry.
		r.log.Warn("duplicate name on creation, retrying with forced suffix",
			zap.String("name", name))
		created, err = r.client.CreateEntity(ctx, rec, true)
	}
	if err != nil {
		return nil, fmt.Errorf("creating entity %q: %w", name, err)
	}
	r.log.Info("created entity",
		zap.String("name", created.Name),
		zap.String("status", string(created.NameStatus)),
		zap.String("type", string(created.Type)),
		zap.Int64("id", created.ID))

	if err := r.createASCIISynonym(ctx, created); err != nil {
		return nil, err
	}
	return created, nil
}

// disambiguateHomonym decorates the candidate name when a distinct entity
// already holds it exactly. A homonym of another type gets the type
// suffix, one of the same type gets the publisher name. With neither to
// append the ambiguity is tolerated and logged.
func (r *Resolver) disambiguateHomonym(ctx context.Context, c match.Candidate, publisher string) (string, error) {
	name := c.Name
	recs, err := r.client.LookupByName(ctx, name)
	if err != nil {
		return "", fmt.Errorf("checking for homonyms of %q: %w", name, err)
	}
	for i := range recs {
		if strings.EqualFold(recs[i].Name, name) {
			if recs[i].Type != c.Type {
				r.log.Debug("homonym of another type exists, appending type suffix",
					zap.String("name", name), zap.String("type", string(c.Type)))
				return name + c.TypeSuffix(), nil
			}
			if publisher != "" {
				r.log.Debug("homonym exists, appending publisher name",
					zap.String("name", name), zap.String("publisher", publisher))
				return fmt.Sprintf("%s (%s)", name, publisher), nil
			}
			r.log.Warn("homonym exists but publisher of new entity is unknown",
				zap.String("name", name))
			return name, nil
		}
	}
	return name, nil
}

// createASCIISynonym writes an ASCII-transliterated Synonym for a newly
// created entity whose name is not pure ASCII, so both spellings are
// independently matchable later.
func (r *Resolver) createASCIISynonym(ctx context.Context, created *registry.EntityRecord) error {
	if normalize.IsASCII(created.Name) {
		return nil
	}
	ascii := strings.TrimSpace(normalize.ASCIIFold(created.Name))
	if ascii == "" || strings.EqualFold(ascii, created.Name) {
		return nil
	}
	target := created.SynonymOfID
	if target == 0 {
		target = created.ID
	}
	syn := registry.EntityRecord{
		Name:        ascii,
		NameStatus:  registry.Synonym,
		Type:        created.Type,
		ISSN:        created.ISSN,
		EISSN:       created.EISSN,
		URL:         created.URL,
		ParentID:    created.ParentID,
		SynonymOfID: target,
		SourceID:    created.SourceID,
	}
	_, err := r.client.CreateEntity(ctx, syn, false)
	if registry.IsDuplicateName(err) {
		r.log.Debug("ascii synonym already exists", zap.String("name", ascii))
		return nil
	}
	if err != nil {
		return fmt.Errorf("creating ascii synonym %q: %w", ascii, err)
	}
	r.log.Info("created ascii synonym",
		zap.String("name", ascii), zap.Int64("synonym_of", target))
	return nil
}

// publishersShareEntity reports whether two publisher names resolve to the
// same Primary publisher entity. Unmatched or distinct publishers count as
// not shared.
func (r *Resolver) publishersShareEntity(ctx context.Context, a, b string, depth int) (bool, error) {
	if a == "" || b == "" {
		return false, nil
	}
	aPref, err := r.matchPublisher(ctx, a)
	if err != nil {
		return false, err
	}
	bPref, err := r.matchPublisher(ctx, b)
	if err != nil {
		return false, err
	}
	if aPref == 0 || bPref == 0 {
		r.log.Debug("could not match at least one publisher",
			zap.String("a", a), zap.String("b", b))
		return false, nil
	}
	return aPref == bPref, nil
}

// matchPublisher finds the preferred id of an existing publisher entity by
// name, without creating anything. Zero means no match.
func (r *Resolver) matchPublisher(ctx context.Context, name string) (int64, error) {
	res, err := r.matcher.Match(ctx, match.Candidate{Name: name, Type: registry.Publisher})
	if err != nil {
		return 0, err
	}
	if !res.Found() {
		return 0, nil
	}
	return res.Record.PreferredID(), nil
}

// parentName returns the name of the matched record's publisher, or "".
func (r *Resolver) parentName(ctx context.Context, mr *registry.EntityRecord) (string, error) {
	if mr.ParentID == 0 {
		return "", nil
	}
	parent, err := r.client.LookupByID(ctx, mr.ParentID)
	if err == registry.ErrNotFound {
		return "", registry.Contractf("entity %q references missing parent %d", mr.Name, mr.ParentID)
	}
	if err != nil {
		return "", fmt.Errorf("fetching parent %d: %w", mr.ParentID, err)
	}
	return parent.Name, nil
}

// identifierAgrees reports whether the given candidate identifier equals
// either identifier of the record.
func identifierAgrees(id string, mr *registry.EntityRecord) bool {
	return id != "" && (id == mr.ISSN || id == mr.EISSN)
}

func hasIdentifier(c match.Candidate) bool {
	return c.ISSN != "" || c.EISSN != ""
}

func hasRecordIdentifier(mr *registry.EntityRecord) bool {
	return mr.ISSN != "" || mr.EISSN != ""
}
