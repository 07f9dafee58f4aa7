package checklist

import "sort"

var sectionRanks = map[string]int{
	"metadata":     0,
	"architecture": 1,
	"model":        2,
	"api":          3,
	"governance":   4,
}

// SectionRank orders known sections first; every other section ranks after them.
func SectionRank(section string) int {
	if r, ok := sectionRanks[section]; ok {
		return r
	}
	return len(sectionRanks)
}

func (s *state) order() { Sort(s.items) }

// Sort orders items by (section rank, section, severity, lineage_id, id).
func Sort(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if ra, rb := SectionRank(a.Section), SectionRank(b.Section); ra != rb {
			return ra < rb
		}
		if a.Section != b.Section {
			return a.Section < b.Section
		}
		if sa, sb := SeverityRank(a.Severity), SeverityRank(b.Severity); sa != sb {
			return sa < sb
		}
		if a.LineageID != b.LineageID {
			return a.LineageID < b.LineageID
		}
		return a.ID < b.ID
	})
}
