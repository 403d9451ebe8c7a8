package domain

// Normalize merges a raw bundle into a render-safe view model.
//
// It never fails: a missing bounty yields an empty body, a missing assignee
// yields the empty Assignee (or a pubkey-only one when the bounty still
// references somebody), a missing organization yields the zero Organization
// and a missing owner yields an empty person. The owner always gets an empty
// non-nil Wanteds slice.
func Normalize(raw RawBountyBundle) ViewModel {
	var vm ViewModel

	if raw.Bounty != nil {
		vm.Body.Bounty = raw.Bounty.Clone()
	}

	switch {
	case raw.Assignee != nil:
		vm.Body.Assignee = Assignee{Person: raw.Assignee.Clone()}
	case vm.Body.AssigneeID != "":
		vm.Body.Assignee = Assignee{Person: Person{PubKey: vm.Body.AssigneeID}}
	}

	if raw.Organization != nil {
		vm.Organization = raw.Organization.Clone()
	}

	if raw.Owner != nil {
		vm.Person.Person = raw.Owner.Clone()
	} else if vm.Body.OwnerID != "" {
		vm.Person.Person = Person{PubKey: vm.Body.OwnerID}
	}
	vm.Person.Wanteds = []Bounty{}

	return vm
}

// NormalizeAll normalizes a page, skipping nothing.
func NormalizeAll(raws []RawBountyBundle) []ViewModel {
	out := make([]ViewModel, 0, len(raws))
	for _, raw := range raws {
		out = append(out, Normalize(raw))
	}
	return out
}
