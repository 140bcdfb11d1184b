package adapter

import "context"

// RoleEffector grants and revokes community roles. Both calls must be
// idempotent: granting a held role or revoking an absent one succeeds.
// Errors wrapping domain.ErrEffectorPermanent are not worth retrying.
type RoleEffector interface {
	Grant(ctx context.Context, communityID, memberID, roleID string) error
	Revoke(ctx context.Context, communityID, memberID, roleID string) error
}
