package domain

// OtherIndustry is assigned when no vertical predicate matches.
const OtherIndustry = "Other"

// Vertical is a business category defined by a tag predicate. A POI belongs to
// the vertical when every predicate key is present with exactly the given value.
type Vertical struct {
	Name      string            `yaml:"name" json:"name"`
	Predicate map[string]string `yaml:"tags" json:"tags"`
}

// Matches reports whether every predicate pair equals the corresponding tag.
func (v Vertical) Matches(tags Tags) bool {
	if len(v.Predicate) == 0 {
		return false
	}
	for k, want := range v.Predicate {
		got, ok := tags[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// DefaultVerticals returns the built-in vertical table in declaration order.
func DefaultVerticals() []Vertical {
	return []Vertical{
		{Name: "Plumbing", Predicate: map[string]string{"craft": "plumber"}},
		{Name: "Cafe", Predicate: map[string]string{"amenity": "cafe"}},
		{Name: "Pet Grooming", Predicate: map[string]string{"shop": "pet"}},
		{Name: "Medical Clinic", Predicate: map[string]string{"amenity": "clinic"}},
		{Name: "Specialty Retail", Predicate: map[string]string{"shop": "electronics"}},
	}
}

// Classify returns the name of the first matching vertical, or OtherIndustry.
func Classify(verticals []Vertical, tags Tags) string {
	for _, v := range verticals {
		if v.Matches(tags) {
			return v.Name
		}
	}
	return OtherIndustry
}

// SelectVerticals resolves vertical names against the table, preserving table
// order. Unknown names are reported in the second return value.
func SelectVerticals(table []Vertical, names []string) ([]Vertical, []string) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	selected := make([]Vertical, 0, len(names))
	for _, v := range table {
		if want[v.Name] {
			selected = append(selected, v)
			delete(want, v.Name)
		}
	}
	var unknown []string
	for _, n := range names {
		if want[n] {
			unknown = append(unknown, n)
			delete(want, n)
		}
	}
	return selected, unknown
}
