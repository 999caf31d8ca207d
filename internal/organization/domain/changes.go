package domain

// MembershipChanges is the diff of a loaded aggregate's membership
// collection since load. It is produced by PullMembershipChanges as an
// owned value: the internal tracker is cleared in the same call, so a
// diff can only be consumed once.
type MembershipChanges struct {
	Created []*Membership
	Updated []*Membership
	Deleted []*Membership
}

func (c MembershipChanges) Empty() bool {
	return len(c.Created) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0
}
