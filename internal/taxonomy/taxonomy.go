// Package taxonomy holds the controlled vocabularies requests are checked
// against: climate risks, French administrative levels and the planning
// documents and datasets published at each level.
package taxonomy

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Version identifies the risk list embedded in prompts and reports.
const Version = "2024.1"

// Category groups risks.
type Category string

const (
	AcutePhysical   Category = "Risques physiques aigus"
	ChronicPhysical Category = "Risques physiques chroniques"
	Environmental   Category = "Risques environnementaux"
)

// Risk is one taxonomy term.
type Risk struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
}

var risks = []Risk{
	{"Inondation", AcutePhysical},
	{"Feu de forêt", AcutePhysical},
	{"Événements cycloniques (tempêtes)", AcutePhysical},
	{"Tremblement de terre", AcutePhysical},
	{"Sécheresse", AcutePhysical},
	{"Vague de chaleur", AcutePhysical},
	{"Retrait-gonflement des argiles", ChronicPhysical},
	{"Érosion du littoral", ChronicPhysical},
	{"Élévation du niveau de la mer", ChronicPhysical},
	{"Perte d’enneigement", ChronicPhysical},
	{"Stress hydrique", Environmental},
	{"Perte de biodiversité", Environmental},
	{"Pollution de l’air, des sols, de l’eau", Environmental},
	{"Gestion des déchets", Environmental},
}

var categories = []Category{AcutePhysical, ChronicPhysical, Environmental}

// aliases map folded spellings the model commonly produces onto a term.
var aliases = map[string]string{
	"inondations":           "Inondation",
	"crue":                  "Inondation",
	"crues":                 "Inondation",
	"feux de foret":         "Feu de forêt",
	"incendie":              "Feu de forêt",
	"incendies":             "Feu de forêt",
	"tempete":               "Événements cycloniques (tempêtes)",
	"tempetes":              "Événements cycloniques (tempêtes)",
	"cyclone":               "Événements cycloniques (tempêtes)",
	"seisme":                "Tremblement de terre",
	"canicule":              "Vague de chaleur",
	"vagues de chaleur":     "Vague de chaleur",
	"argiles":               "Retrait-gonflement des argiles",
	"erosion cotiere":       "Érosion du littoral",
	"submersion marine":     "Élévation du niveau de la mer",
	"pollution de l'air":    "Pollution de l’air, des sols, de l’eau",
	"pollution des sols":    "Pollution de l’air, des sols, de l’eau",
	"pollution de l'eau":    "Pollution de l’air, des sols, de l’eau",
	"pollution":             "Pollution de l’air, des sols, de l’eau",
	"dechets":               "Gestion des déchets",
	"biodiversite":          "Perte de biodiversité",
	"manque d'eau":          "Stress hydrique",
	"penurie d'eau":         "Stress hydrique",
	"perte d'enneigement":   "Perte d’enneigement",
	"risques climatiques":   "",
	"tous les risques":      "",
	"risques":               "",
	"risques naturels":      "",
	"risques environnement": "",
}

// Risks returns the taxonomy in its canonical order.
func Risks() []Risk { return append([]Risk(nil), risks...) }

// Categories returns the three categories in canonical order.
func Categories() []Category { return append([]Category(nil), categories...) }

// InCategory lists the risk names of c.
func InCategory(c Category) []string {
	var out []string
	for _, r := range risks {
		if r.Category == c {
			out = append(out, r.Name)
		}
	}
	return out
}

// riskPrefixes are stripped before matching ("risques d'inondation").
var riskPrefixes = []string{
	"risques de ", "risque de ", "risques d'", "risque d'",
	"risques du ", "risque du ", "risques des ", "risque des ",
}

// aliasKeys lists the specific aliases longest first so containment
// matching is deterministic.
var aliasKeys = func() []string {
	var keys []string
	for k, v := range aliases {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// Resolve maps a free-form term onto a canonical risk name or category name.
// Generic terms ("risques climatiques") resolve to the empty string with
// ok=true, meaning every risk. A leading "risque(s) de", plurals, extra
// qualifiers ("inondations urbaines") and small spelling slips are tolerated.
func Resolve(term string) (string, bool) {
	key := Fold(term)
	if key == "" {
		return "", false
	}
	if name, ok := lookup(key); ok {
		return name, true
	}
	stripped := key
	for _, p := range riskPrefixes {
		if rest := strings.TrimPrefix(key, p); rest != key && rest != "" {
			stripped = rest
			break
		}
	}
	candidates := []string{stripped, singular(stripped)}
	for _, c := range candidates {
		if name, ok := lookup(c); ok {
			return name, true
		}
	}
	for _, c := range candidates {
		if name, ok := containing(c); ok {
			return name, true
		}
	}
	best, bestDist := "", 3
	for _, r := range risks {
		folded := Fold(r.Name)
		if len(folded) < 8 {
			continue
		}
		for _, c := range candidates {
			if d := levenshtein.ComputeDistance(c, folded); d < bestDist {
				best, bestDist = r.Name, d
			}
		}
	}
	return best, best != ""
}

func lookup(key string) (string, bool) {
	for _, r := range risks {
		if Fold(r.Name) == key {
			return r.Name, true
		}
	}
	for _, c := range categories {
		if Fold(string(c)) == key || strings.TrimPrefix(Fold(string(c)), "risques ") == key {
			return string(c), true
		}
	}
	name, ok := aliases[key]
	return name, ok
}

// singular drops a trailing s or x from every word longer than three letters.
func singular(key string) string {
	words := strings.Fields(key)
	for i, w := range words {
		if len(w) > 3 && (strings.HasSuffix(w, "s") || strings.HasSuffix(w, "x")) {
			words[i] = w[:len(w)-1]
		}
	}
	return strings.Join(words, " ")
}

// containing finds a risk name, then a specific alias, that appears as whole
// words inside key.
func containing(key string) (string, bool) {
	padded := " " + key + " "
	for _, r := range risks {
		if strings.Contains(padded, " "+Fold(r.Name)+" ") {
			return r.Name, true
		}
	}
	for _, k := range aliasKeys {
		if strings.Contains(padded, " "+k+" ") {
			return aliases[k], true
		}
	}
	return "", false
}

// Normalize resolves every term, drops unknown ones and removes duplicates.
// A generic term anywhere in the list yields an empty result, meaning all
// risks. The second return value reports whether any term was recognised.
func Normalize(terms []string) ([]string, bool) {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	recognised := false
	all := false
	for _, term := range terms {
		name, ok := Resolve(term)
		if !ok {
			continue
		}
		recognised = true
		if name == "" {
			all = true
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if all {
		return []string{}, recognised
	}
	return out, recognised
}

// Expand turns category names into their member risks; an empty list
// expands to the whole taxonomy.
func Expand(names []string) []string {
	if len(names) == 0 {
		out := make([]string, 0, len(risks))
		for _, r := range risks {
			out = append(out, r.Name)
		}
		return out
	}
	seen := make(map[string]struct{})
	var out []string
	add := func(n string) {
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	for _, n := range names {
		if members := InCategory(Category(n)); len(members) > 0 {
			for _, m := range members {
				add(m)
			}
			continue
		}
		add(n)
	}
	return out
}

var folder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases s, strips accents, unifies apostrophes and collapses spaces.
func Fold(s string) string {
	out, _, err := transform.String(folder, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(out)
	out = strings.NewReplacer("’", "'", "‘", "'", "-", " ", "_", " ").Replace(out)
	return strings.Join(strings.Fields(out), " ")
}
