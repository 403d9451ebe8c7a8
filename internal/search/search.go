// Package search filters and ranks bounty view models and people.
// Everything here is pure: inputs are never mutated.
package search

import (
	"strings"

	"github.com/MrSnakeDoc/bountyboard/internal/domain"
)

// Search filters items by tags and ranks them by query.
//
// An empty query with no tags returns items itself. Tags use AND semantics
// against the bounty's coding languages and are applied before ranking.
// Inline "#tag" tokens in query are added to tags.
func Search(items []domain.ViewModel, query string, tags []string) []domain.ViewModel {
	q := ParseQuery(query)
	q.Tags = append(cleanTags(tags), q.Tags...)
	if q.Empty() {
		return items
	}

	filtered := make([]domain.ViewModel, 0, len(items))
	for _, item := range items {
		if hasAllTags(item.Body.CodingLanguages, q.Tags) {
			filtered = append(filtered, item)
		}
	}
	if len(q.Fragments) == 0 {
		return filtered
	}

	ranked := Rank(filtered, q)
	out := make([]domain.ViewModel, len(ranked))
	for i, c := range ranked {
		out[i] = c.Item
	}
	return out
}

// Rank scores bounties against q. Tags on q are not applied here.
func Rank(items []domain.ViewModel, q Query) []Candidate[domain.ViewModel] {
	return rank(items, q, bountyFields)
}

// People ranks people by alias, languages, and description.
func People(people []domain.Person, query string) []domain.Person {
	q := ParseQuery(query)
	if len(q.Fragments) == 0 {
		return people
	}

	ranked := rank(people, q, personFields)
	out := make([]domain.Person, len(ranked))
	for i, c := range ranked {
		out[i] = c.Item
	}
	return out
}

func bountyFields(vm domain.ViewModel) []field {
	return []field{
		{text: vm.Body.Title, weight: WeightTitle},
		{text: strings.Join(vm.Body.CodingLanguages, " "), weight: WeightTags},
		{text: vm.Body.Category, weight: WeightCategory},
		{text: vm.Body.Description, weight: WeightDescription},
	}
}

func personFields(p domain.Person) []field {
	return []field{
		{text: p.Alias, weight: WeightTitle},
		{text: strings.Join(p.CodingLanguages, " "), weight: WeightTags},
		{text: p.Description, weight: WeightDescription},
	}
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		if t != "" {
			out = append(out, strings.ToLower(t))
		}
	}
	return out
}

func hasAllTags(langs, tags []string) bool {
	for _, tag := range tags {
		found := false
		for _, l := range langs {
			if strings.EqualFold(strings.TrimSpace(l), tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
