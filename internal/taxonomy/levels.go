package taxonomy

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AdminLevel is the French administrative granularity of a place.
type AdminLevel string

const (
	Commune     AdminLevel = "commune"
	Groupement  AdminLevel = "groupement de communes"
	Departement AdminLevel = "département"
	Region      AdminLevel = "région"
)

// AdminLevels lists the enumeration from finest to coarsest.
func AdminLevels() []AdminLevel { return []AdminLevel{Commune, Groupement, Departement, Region} }

var levelAliases = map[string]AdminLevel{
	"commune":                          Commune,
	"communes":                         Commune,
	"ville":                            Commune,
	"municipalite":                     Commune,
	"arrondissement":                   Commune,
	"groupement de communes":           Groupement,
	"groupement":                       Groupement,
	"intercommunalite":                 Groupement,
	"epci":                             Groupement,
	"metropole":                        Groupement,
	"communaute de communes":           Groupement,
	"communaute d'agglomeration":       Groupement,
	"communaute urbaine":               Groupement,
	"etablissement public territorial": Groupement,
	"departement":                      Departement,
	"departements":                     Departement,
	"region":                           Region,
	"regions":                          Region,
}

// ParseAdminLevel maps model output onto the enumeration; case and accents
// are ignored.
func ParseAdminLevel(s string) (AdminLevel, bool) {
	level, ok := levelAliases[Fold(s)]
	return level, ok
}

// UnmarshalJSON accepts any spelling ParseAdminLevel understands.
func (l *AdminLevel) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		*l = ""
		return nil
	}
	level, ok := ParseAdminLevel(raw)
	if !ok {
		return fmt.Errorf("unknown administrative level %q", raw)
	}
	*l = level
	return nil
}

// DocType is a planning document published by local authorities.
type DocType struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

var documents = map[AdminLevel][]DocType{
	Commune: {
		{"DICRIM", "Document d'information communal sur les risques majeurs"},
		{"PCS", "Plan communal de sauvegarde"},
		{"PLU", "Plan local d'urbanisme"},
		{"PPRN", "Plan de prévention des risques naturels"},
	},
	Groupement: {
		{"PCAET", "Plan climat-air-énergie territorial"},
		{"PLUi", "Plan local d'urbanisme intercommunal"},
		{"SCoT", "Schéma de cohérence territoriale"},
		{"PAPI", "Programme d'actions de prévention des inondations"},
	},
	Departement: {
		{"DDRM", "Dossier départemental des risques majeurs"},
		{"PPRI", "Plan de prévention du risque inondation"},
		{"PDPFCI", "Plan départemental de protection des forêts contre l'incendie"},
	},
	Region: {
		{"SRADDET", "Schéma régional d'aménagement, de développement durable et d'égalité des territoires"},
		{"SRCAE", "Schéma régional climat air énergie"},
		{"PRSE", "Plan régional santé environnement"},
	},
}

// Documents returns the canonical document types for level.
func Documents(level AdminLevel) []DocType {
	return append([]DocType(nil), documents[level]...)
}

// DocumentCodes returns the codes of Documents(level).
func DocumentCodes(level AdminLevel) []string {
	docs := documents[level]
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Code)
	}
	return out
}

// DocumentLabel returns the long label of code, or code itself.
func DocumentLabel(code string) string {
	for _, docs := range documents {
		for _, d := range docs {
			if strings.EqualFold(d.Code, code) {
				return d.Label
			}
		}
	}
	return code
}

// DataSource is a dataset usable for visualisation.
type DataSource struct {
	ID      string       `json:"id"`
	Label   string       `json:"label"`
	Levels  []AdminLevel `json:"levels"`
	Columns []string     `json:"columns"`
}

// CatNatSource is the Géorisques register of natural disaster decrees.
const CatNatSource = "georisques_catnat"

var dataSources = []DataSource{
	{
		ID:      CatNatSource,
		Label:   "Arrêtés de catastrophe naturelle (Géorisques GASPAR)",
		Levels:  []AdminLevel{Commune, Groupement, Departement, Region},
		Columns: []string{"libelle_risque_jo", "annee_debut_evt", "libelle_commune"},
	},
}

// DataSources returns the datasets usable at level; an empty level returns all.
func DataSources(level AdminLevel) []DataSource {
	var out []DataSource
	for _, ds := range dataSources {
		if level == "" {
			out = append(out, ds)
			continue
		}
		for _, l := range ds.Levels {
			if l == level {
				out = append(out, ds)
				break
			}
		}
	}
	return out
}

// DataSourceByID looks a dataset up.
func DataSourceByID(id string) (DataSource, bool) {
	for _, ds := range dataSources {
		if ds.ID == id {
			return ds, true
		}
	}
	return DataSource{}, false
}
