package authz

import (
	"context"

	"github.com/neomorfeo/rehome/internal/domain"
)

// Compile-time check: Policy implements domain.Authorizer.
var _ domain.Authorizer = (*Policy)(nil)

// Policy answers capability checks from listing ownership, application
// authorship and a fixed set of moderator ids.
type Policy struct {
	moderators map[string]struct{}
}

// NewPolicy creates a policy treating the given actor ids as moderators.
func NewPolicy(moderatorIDs []string) *Policy {
	m := make(map[string]struct{}, len(moderatorIDs))
	for _, id := range moderatorIDs {
		if id != "" {
			m[id] = struct{}{}
		}
	}
	return &Policy{moderators: m}
}

// CanAct reports whether actorID holds role on resource. The empty actor
// holds no role.
func (p *Policy) CanAct(_ context.Context, actorID string, role domain.Role, res domain.Resource) bool {
	if actorID == "" {
		return false
	}

	switch role {
	case domain.RoleNone:
		return true
	case domain.RoleModerator:
		_, ok := p.moderators[actorID]
		return ok
	case domain.RoleOwner:
		return res.Listing != nil && res.Listing.OwnerID == actorID
	case domain.RoleApplicant:
		if res.Application != nil {
			return res.Application.ApplicantID == actorID
		}
		// Prospective applicant: anyone but the owner.
		return res.Listing != nil && res.Listing.OwnerID != actorID
	}
	return false
}
