package checklist

// inferFromProse adds one low-confidence item per requirement that no
// spec-originated item binds.
func (s *state) inferFromProse() {
	existing := len(s.items)
	for _, req := range s.in.Requirements {
		bound := false
		for i := 0; i < existing; i++ {
			if Binds(s.items[i], req) {
				bound = true
				break
			}
		}
		if bound {
			continue
		}
		section := ""
		if req.Structured {
			section = s.sectionOf(req.Ptr)
		}
		s.items = append(s.items, NewInferred(req, section))
	}
}
