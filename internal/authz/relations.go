package authz

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/funnelforge/funnelforge/internal/cache"
	"github.com/funnelforge/funnelforge/internal/db/models"
)

// membershipRelation is the cached projection of one membership together
// with its role assignments. The JSON shape is shared with other processes
// reading the members cache.
type membershipRelation struct {
	MemberID       string              `json:"memberId"`
	OrganizationID string              `json:"organizationId"`
	Owner          bool                `json:"owner"`
	Status         models.MemberStatus `json:"status"`
	RoleIDs        []string            `json:"roleIds"`
}

// relations returns the user's membership graph cache-first. The entry is
// dropped by the invalidator whenever the graph changes.
func (g *Guard) relations(ctx context.Context, userID string) ([]membershipRelation, error) {
	cacheKey := "relations:" + userID

	payload, hit, err := g.cache.Get(ctx, cache.OriginMembers, cacheKey)
	if err != nil {
		return nil, err
	}

	if hit {
		var rels []membershipRelation
		if err := json.Unmarshal(payload, &rels); err == nil {
			return rels, nil
		}
		// corrupt payload, recompute
	}

	memberships, err := g.store.ListMembershipsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	rels := make([]membershipRelation, 0, len(memberships))

	for _, membership := range memberships {
		roles, err := g.store.ListRolesByMembership(ctx, membership.ID)
		if err != nil {
			return nil, err
		}

		roleIDs := make([]string, 0, len(roles))
		for _, role := range roles {
			roleIDs = append(roleIDs, role.ID)
		}

		rels = append(rels, membershipRelation{
			MemberID:       membership.ID,
			OrganizationID: membership.OrganizationID,
			Owner:          membership.Owner,
			Status:         membership.Status,
			RoleIDs:        roleIDs,
		})
	}

	payload, err = json.Marshal(rels)
	if err != nil {
		return nil, err
	}

	if err := g.cache.Set(ctx, cache.OriginMembers, cacheKey, payload, 0); err != nil {
		log.Warn().Err(err).Str("origin", "index").Str("user", userID).
			Msg("failed to cache membership relations")
	}

	return rels, nil
}
