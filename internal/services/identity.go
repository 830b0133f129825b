package services

import (
	"context"
	"errors"
	"time"

	"fieldops-backend/internal/models"

	gocache "github.com/patrickmn/go-cache"
)

// TeamFinder is the roster lookup port. Implementations return
// ErrRecordNotFound when no roster entry matches.
type TeamFinder interface {
	FindByLegacyID(ctx context.Context, tenantID, legacyID string) (*models.Team, error)
	FindByID(ctx context.Context, tenantID, id string) (*models.Team, error)
}

// CanonicalTeam is a resolved team reference: the single storage key every
// location/route/availability record must use, plus the roster entry.
type CanonicalTeam struct {
	Key  string
	Team *models.Team
}

// IdentityResolver maps a team reference (legacy external id, internal id,
// or roster storage key) to the one canonical key. Legacy id wins when
// present so records migrated from the old system never fragment under two
// different keys.
type IdentityResolver struct {
	teams TeamFinder
	cache *gocache.Cache
}

// NewIdentityResolver creates a resolver with a short-lived lookup cache
func NewIdentityResolver(teams TeamFinder) *IdentityResolver {
	return &IdentityResolver{
		teams: teams,
		cache: gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// Resolve returns the canonical team for a tenant-scoped reference.
// Resolution order: legacy id first, then internal id. Returns
// ErrTeamNotFound when neither matches.
func (r *IdentityResolver) Resolve(ctx context.Context, tenantID, teamRef string) (*CanonicalTeam, error) {
	if teamRef == "" {
		return nil, ErrTeamNotFound
	}

	cacheKey := tenantID + "/" + teamRef
	if cached, ok := r.cache.Get(cacheKey); ok {
		return cached.(*CanonicalTeam), nil
	}

	team, err := r.teams.FindByLegacyID(ctx, tenantID, teamRef)
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			return nil, err
		}
		team, err = r.teams.FindByID(ctx, tenantID, teamRef)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return nil, ErrTeamNotFound
			}
			return nil, err
		}
	}

	ct := &CanonicalTeam{Key: team.CanonicalKey(), Team: team}
	r.cache.Set(cacheKey, ct, gocache.DefaultExpiration)
	return ct, nil
}

// CandidateKeys returns every key this team may have been stored under:
// the canonical key, the internal id, and the original reference string.
// Aggregate queries match any of them to tolerate historically inconsistent
// rows written before key normalization.
func (r *IdentityResolver) CandidateKeys(ct *CanonicalTeam, teamRef string) []string {
	seen := map[string]bool{}
	keys := []string{}
	for _, k := range []string{ct.Key, ct.Team.ID, teamRef} {
		if k != "" && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// Invalidate drops a cached resolution after a roster write
func (r *IdentityResolver) Invalidate(tenantID, teamRef string) {
	r.cache.Delete(tenantID + "/" + teamRef)
}
