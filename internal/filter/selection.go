package filter

import (
	"encoding/json"
	"fmt"
)

// AllLabel is the display label of the ALL option.
const AllLabel = "ALL"

// Selection is the value held at one filter level: nothing, every category
// (ALL), or one specific category. ALL is a distinct variant so it can never
// collide with a real category value.
type Selection struct {
	all   bool
	value string
	set   bool
}

// None is the empty selection, used when a level has no options at all.
var None = Selection{}

// All selects every category at a level.
func All() Selection { return Selection{all: true, set: true} }

// Value selects one category.
func Value(v string) Selection { return Selection{value: v, set: true} }

// IsNone reports whether nothing is selected.
func (s Selection) IsNone() bool { return !s.set }

// IsAll reports whether the selection is the ALL option.
func (s Selection) IsAll() bool { return s.set && s.all }

// Category returns the selected category and true when s is a Value.
func (s Selection) Category() (string, bool) {
	if !s.set || s.all {
		return "", false
	}
	return s.value, true
}

// Matches reports whether a record value passes this selection.
// ALL matches everything; None matches nothing.
func (s Selection) Matches(v string) bool {
	if !s.set {
		return false
	}
	return s.all || s.value == v
}

// Label is the display text of the selection.
func (s Selection) Label() string {
	switch {
	case !s.set:
		return ""
	case s.all:
		return AllLabel
	default:
		return s.value
	}
}

func (s Selection) String() string {
	switch {
	case !s.set:
		return "none"
	case s.all:
		return "all"
	default:
		return fmt.Sprintf("value(%q)", s.value)
	}
}

type selectionJSON struct {
	All   bool    `json:"all,omitempty"`
	Value *string `json:"value,omitempty"`
}

// MarshalJSON encodes ALL as {"all":true}, a category as {"value":"..."} and
// None as null.
func (s Selection) MarshalJSON() ([]byte, error) {
	switch {
	case !s.set:
		return []byte("null"), nil
	case s.all:
		return json.Marshal(selectionJSON{All: true})
	default:
		v := s.value
		return json.Marshal(selectionJSON{Value: &v})
	}
}

// UnmarshalJSON is the inverse of MarshalJSON. An object with both fields set is rejected.
func (s *Selection) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = None
		return nil
	}
	var raw selectionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.All && raw.Value != nil:
		return fmt.Errorf("selection: both all and value set")
	case raw.All:
		*s = All()
	case raw.Value != nil:
		*s = Value(*raw.Value)
	default:
		*s = None
	}
	return nil
}

// Options is an ordered option list for one level.
type Options []Selection

// Contains reports whether sel is one of the options. None is never contained.
func (o Options) Contains(sel Selection) bool {
	if sel.IsNone() {
		return false
	}
	for _, opt := range o {
		if opt == sel {
			return true
		}
	}
	return false
}

// Labels returns the display labels in option order.
func (o Options) Labels() []string {
	out := make([]string, len(o))
	for i, opt := range o {
		out[i] = opt.Label()
	}
	return out
}

// Repair returns the selection to hold after the option list of a level has
// been recomputed: current if it is still an option, else fallback if that is
// an option, else the first option, else None.
func Repair(current Selection, options Options, fallback Selection) Selection {
	if options.Contains(current) {
		return current
	}
	if options.Contains(fallback) {
		return fallback
	}
	if len(options) > 0 {
		return options[0]
	}
	return None
}
