package vellum

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// debugFields summarizes the evaluation state for debug logging.
func (s *State) debugFields() logrus.Fields {
	names := make([]string, 0, len(s.scope))
	for name := range s.scope {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := logrus.Fields{
		"template": s.name,
		"depth":    s.depth,
		"bindings": names,
		"written":  s.out.Len(),
	}
	if s.fuel != nil {
		fields["fuel_consumed"] = s.fuel.consumedFuel()
		fields["fuel_remaining"] = s.fuel.remainingFuel()
	}
	return fields
}
