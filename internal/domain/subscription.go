package domain

import "slices"

// Subscription is one (target, kind, subscriber) row of the registry.
type Subscription struct {
	UID          string     `json:"uid"`
	Username     string     `json:"username"`
	Kind         SourceKind `json:"kind"`
	SubscriberID string     `json:"subscriber_id"`
	Categories   []Category `json:"categories"`
	Tags         []string   `json:"tags"`
	Enabled      bool       `json:"enabled"`
}

// Subscriber is the per-destination filter attached to a watched target.
type Subscriber struct {
	ID         string
	Categories []Category
	Tags       []string
}

func (s Subscriber) WantsCategory(c Category) bool {
	return slices.Contains(s.Categories, c)
}

// Unit groups every enabled subscriber of one (kind, target) pair.
type Unit struct {
	Kind        SourceKind
	Target      string
	Subscribers []Subscriber
}

// GroupSubscriptions folds enabled subscriptions into units, keeping the
// order in which targets first appear.
func GroupSubscriptions(subs []Subscription) []Unit {
	type key struct {
		kind   SourceKind
		target string
	}
	index := make(map[key]int)
	var units []Unit
	for _, sub := range subs {
		if !sub.Enabled {
			continue
		}
		k := key{sub.Kind, sub.UID}
		i, ok := index[k]
		if !ok {
			i = len(units)
			index[k] = i
			units = append(units, Unit{Kind: sub.Kind, Target: sub.UID})
		}
		units[i].Subscribers = append(units[i].Subscribers, Subscriber{
			ID:         sub.SubscriberID,
			Categories: sub.Categories,
			Tags:       sub.Tags,
		})
	}
	return units
}

// FilterUnits returns the units of the given kind.
func FilterUnits(units []Unit, kind SourceKind) []Unit {
	var out []Unit
	for _, u := range units {
		if u.Kind == kind {
			out = append(out, u)
		}
	}
	return out
}
