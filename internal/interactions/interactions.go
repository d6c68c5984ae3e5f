// Package interactions checks a list of medication names for known
// interactions, age restrictions and safer alternatives.
//
// The production lookup lives in a backend service; this package defines the
// contract and ships a small static table so the scan output can be checked
// end to end.
package interactions

import (
	"sort"
	"strings"

	"github.com/ironsheep/medscan-mcp/internal/extract"
)

// Severity grades an interaction.
type Severity string

const (
	Minor    Severity = "minor"
	Moderate Severity = "moderate"
	Major    Severity = "major"
)

func (s Severity) rank() int {
	switch s {
	case Major:
		return 3
	case Moderate:
		return 2
	case Minor:
		return 1
	}
	return 0
}

// Interaction is a known problem between two medications.
type Interaction struct {
	First       string   `json:"first"`
	Second      string   `json:"second"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// AgeWarning flags a medication not recommended below MinAge years.
type AgeWarning struct {
	Medication string `json:"medication"`
	MinAge     int    `json:"min_age"`
	Message    string `json:"message"`
}

// Alternative suggests substitutes for a medication involved in a warning.
type Alternative struct {
	Medication  string   `json:"medication"`
	Suggestions []string `json:"suggestions"`
}

// Report is the result of a check. Slices are never nil.
type Report struct {
	Medications  []string      `json:"medications"`
	Unknown      []string      `json:"unknown"`
	Interactions []Interaction `json:"interactions"`
	AgeWarnings  []AgeWarning  `json:"age_warnings"`
	Alternatives []Alternative `json:"alternatives"`
	Safe         bool          `json:"safe"`
}

// Checker looks up interactions for a patient. An age of zero or less means
// unknown and skips age checks.
type Checker interface {
	Check(medications []string, age int) Report
}

type pairRule struct {
	severity    Severity
	description string
}

type ageRule struct {
	minAge  int
	message string
}

// StaticTable is an in-memory Checker keyed by folded ingredient names.
type StaticTable struct {
	brands       map[string]string
	pairs        map[[2]string]pairRule
	ages         map[string]ageRule
	alternatives map[string][]string
}

// NewStaticTable returns the built-in table.
func NewStaticTable() *StaticTable {
	t := &StaticTable{
		brands:       make(map[string]string),
		pairs:        make(map[[2]string]pairRule),
		ages:         make(map[string]ageRule),
		alternatives: make(map[string][]string),
	}

	for brand, ingredient := range map[string]string{
		"panadol":   "paracetamol",
		"tylenol":   "paracetamol",
		"adol":      "paracetamol",
		"بانادول":   "paracetamol",
		"catafast":  "diclofenac",
		"cataflam":  "diclofenac",
		"voltaren":  "diclofenac",
		"فولتارين":  "diclofenac",
		"brufen":    "ibuprofen",
		"advil":     "ibuprofen",
		"nurofen":   "ibuprofen",
		"بروفين":    "ibuprofen",
		"aspirin":   "aspirin",
		"aspocid":   "aspirin",
		"اسبرين":    "aspirin",
		"coumadin":  "warfarin",
		"marevan":   "warfarin",
		"augmentin": "amoxicillin",
		"nexium":    "esomeprazole",
		"plavix":    "clopidogrel",
		"zithromax": "azithromycin",
	} {
		t.brands[extract.Fold(brand)] = ingredient
	}

	t.addPair("ibuprofen", "aspirin", Moderate, "Ibuprofen can reduce the heart-protective effect of low-dose aspirin and adds stomach bleeding risk.")
	t.addPair("diclofenac", "ibuprofen", Major, "Two NSAIDs taken together raise the risk of stomach bleeding and kidney injury.")
	t.addPair("diclofenac", "aspirin", Major, "Combining NSAIDs with aspirin raises the risk of stomach bleeding.")
	t.addPair("warfarin", "aspirin", Major, "Aspirin increases the bleeding risk of warfarin.")
	t.addPair("warfarin", "ibuprofen", Major, "NSAIDs increase the bleeding risk of warfarin.")
	t.addPair("warfarin", "diclofenac", Major, "NSAIDs increase the bleeding risk of warfarin.")
	t.addPair("warfarin", "paracetamol", Minor, "Regular paracetamol use may raise INR; monitor when used for more than a few days.")
	t.addPair("warfarin", "azithromycin", Moderate, "Azithromycin may increase the effect of warfarin.")
	t.addPair("clopidogrel", "esomeprazole", Moderate, "Esomeprazole can reduce the activation of clopidogrel.")
	t.addPair("clopidogrel", "aspirin", Moderate, "Dual antiplatelet therapy increases bleeding risk; use only as prescribed.")

	t.ages["aspirin"] = ageRule{16, "Aspirin is not recommended under 16 because of the risk of Reye's syndrome."}
	t.ages["diclofenac"] = ageRule{14, "Diclofenac is not recommended for children under 14."}
	t.ages["esomeprazole"] = ageRule{12, "Esomeprazole tablets are not recommended under 12 without medical advice."}

	t.alternatives["ibuprofen"] = []string{"paracetamol"}
	t.alternatives["diclofenac"] = []string{"paracetamol"}
	t.alternatives["aspirin"] = []string{"paracetamol"}
	t.alternatives["esomeprazole"] = []string{"famotidine"}
	return t
}

func (t *StaticTable) addPair(a, b string, sev Severity, desc string) {
	t.pairs[pairKey(a, b)] = pairRule{severity: sev, description: desc}
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// Ingredient resolves a brand or ingredient name to the table's ingredient
// key, or "" when unknown.
func (t *StaticTable) Ingredient(name string) string {
	key := extract.Fold(extract.Normalize(name))
	if key == "" {
		return ""
	}
	if ing, ok := t.brands[key]; ok {
		return ing
	}
	for _, ing := range t.brands {
		if ing == key {
			return ing
		}
	}
	// Multi-word names: "Panadol Extra" resolves through its first word.
	if first, _, ok := strings.Cut(key, " "); ok {
		if ing, ok := t.brands[first]; ok {
			return ing
		}
	}
	return ""
}

// Check implements Checker.
func (t *StaticTable) Check(medications []string, age int) Report {
	r := Report{
		Medications:  []string{},
		Unknown:      []string{},
		Interactions: []Interaction{},
		AgeWarnings:  []AgeWarning{},
		Alternatives: []Alternative{},
	}

	type entry struct{ name, ingredient string }
	var known []entry
	seen := make(map[string]bool)
	for _, m := range extract.DropPlaceholders(medications) {
		m = strings.TrimSpace(m)
		key := extract.Fold(m)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		r.Medications = append(r.Medications, m)
		ing := t.Ingredient(m)
		if ing == "" {
			r.Unknown = append(r.Unknown, m)
			continue
		}
		known = append(known, entry{m, ing})
	}

	flagged := make(map[string]string)
	for i := 0; i < len(known); i++ {
		for j := i + 1; j < len(known); j++ {
			a, b := known[i], known[j]
			if a.ingredient == b.ingredient {
				r.Interactions = append(r.Interactions, Interaction{
					First: a.name, Second: b.name, Severity: Major,
					Description: "Both contain " + a.ingredient + "; taking them together risks an overdose.",
				})
				flagged[a.ingredient] = a.name
				continue
			}
			rule, ok := t.pairs[pairKey(a.ingredient, b.ingredient)]
			if !ok {
				continue
			}
			r.Interactions = append(r.Interactions, Interaction{
				First: a.name, Second: b.name, Severity: rule.severity, Description: rule.description,
			})
			if rule.severity.rank() >= Moderate.rank() {
				flagged[a.ingredient] = a.name
				flagged[b.ingredient] = b.name
			}
		}
	}

	if age > 0 {
		for _, e := range known {
			if rule, ok := t.ages[e.ingredient]; ok && age < rule.minAge {
				r.AgeWarnings = append(r.AgeWarnings, AgeWarning{Medication: e.name, MinAge: rule.minAge, Message: rule.message})
				flagged[e.ingredient] = e.name
			}
		}
	}

	ingredients := make([]string, 0, len(flagged))
	for ing := range flagged {
		ingredients = append(ingredients, ing)
	}
	sort.Strings(ingredients)
	for _, ing := range ingredients {
		if alts := t.alternatives[ing]; len(alts) > 0 {
			r.Alternatives = append(r.Alternatives, Alternative{Medication: flagged[ing], Suggestions: alts})
		}
	}

	sort.SliceStable(r.Interactions, func(i, j int) bool {
		return r.Interactions[i].Severity.rank() > r.Interactions[j].Severity.rank()
	})
	r.Safe = len(r.Interactions) == 0 && len(r.AgeWarnings) == 0
	return r
}
