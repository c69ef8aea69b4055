package taxonomy

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestTaxonomyShape(t *testing.T) {
	if got := len(Risks()); got != 14 {
		t.Fatalf("expected 14 risks, got %d", got)
	}
	counts := map[Category]int{}
	for _, r := range Risks() {
		counts[r.Category]++
	}
	if counts[AcutePhysical] != 6 || counts[ChronicPhysical] != 4 || counts[Environmental] != 4 {
		t.Fatalf("unexpected category split: %v", counts)
	}
}

func TestResolve(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Inondation", "Inondation", true},
		{"inondation", "Inondation", true},
		{"INONDATIONS", "Inondation", true},
		{"secheresse", "Sécheresse", true},
		{"Pollution de l'air", "Pollution de l’air, des sols, de l’eau", true},
		{"retrait gonflement des argiles", "Retrait-gonflement des argiles", true},
		{"Risques physiques aigus", string(AcutePhysical), true},
		{"risques environnementaux", string(Environmental), true},
		{"canicule", "Vague de chaleur", true},
		{"stress hydriqe", "Stress hydrique", true},
		{"risques climatiques", "", true},
		{"Risque d'inondation", "Inondation", true},
		{"Risques d’inondation", "Inondation", true},
		{"risques de crues", "Inondation", true},
		{"Canicules", "Vague de chaleur", true},
		{"Séismes", "Tremblement de terre", true},
		{"Inondations urbaines", "Inondation", true},
		{"vagues de chaleur extrêmes", "Vague de chaleur", true},
		{"feux de forêts", "Feu de forêt", true},
		{"risque de tourisme", "", false},
		{"urbanisation", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := Resolve(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("Resolve(%q) = %q,%v want %q,%v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNormalizeDropsUnknownAndDuplicates(t *testing.T) {
	got, ok := Normalize([]string{"Inondation", "crues", "tourisme", "Sécheresse"})
	if !ok || !reflect.DeepEqual(got, []string{"Inondation", "Sécheresse"}) {
		t.Fatalf("Normalize = %v,%v", got, ok)
	}
	got, ok = Normalize([]string{"Inondation", "risques climatiques"})
	if !ok || len(got) != 0 {
		t.Fatalf("generic term should mean all risks, got %v,%v", got, ok)
	}
	if _, ok := Normalize([]string{"tourisme"}); ok {
		t.Fatalf("nothing recognised should report false")
	}
}

func TestExpand(t *testing.T) {
	if got := Expand(nil); len(got) != 14 {
		t.Fatalf("empty expands to whole taxonomy, got %d", len(got))
	}
	got := Expand([]string{string(ChronicPhysical), "Inondation", "Érosion du littoral"})
	if len(got) != 5 || got[4] != "Inondation" {
		t.Fatalf("Expand = %v", got)
	}
}

func TestParseAdminLevel(t *testing.T) {
	cases := map[string]AdminLevel{
		"commune":                Commune,
		"Ville":                  Commune,
		"groupement de communes": Groupement,
		"Métropole":              Groupement,
		"EPCI":                   Groupement,
		"département":            Departement,
		"DEPARTEMENT":            Departement,
		"Région":                 Region,
	}
	for in, want := range cases {
		got, ok := ParseAdminLevel(in)
		if !ok || got != want {
			t.Fatalf("ParseAdminLevel(%q) = %q,%v", in, got, ok)
		}
	}
	if _, ok := ParseAdminLevel("pays"); ok {
		t.Fatalf("pays is not an admin level")
	}
}

func TestAdminLevelUnmarshal(t *testing.T) {
	var v struct {
		Level AdminLevel `json:"niv_admin"`
	}
	if err := json.Unmarshal([]byte(`{"niv_admin": "Métropole"}`), &v); err != nil || v.Level != Groupement {
		t.Fatalf("got %q err %v", v.Level, err)
	}
	if err := json.Unmarshal([]byte(`{"niv_admin": "continent"}`), &v); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestCatalogs(t *testing.T) {
	for _, level := range AdminLevels() {
		if len(Documents(level)) == 0 {
			t.Fatalf("no documents for %s", level)
		}
		if len(DataSources(level)) == 0 {
			t.Fatalf("no data sources for %s", level)
		}
	}
	if got := DocumentCodes(Commune); !reflect.DeepEqual(got, []string{"DICRIM", "PCS", "PLU", "PPRN"}) {
		t.Fatalf("commune documents = %v", got)
	}
	if DocumentLabel("dicrim") == "dicrim" {
		t.Fatalf("label lookup should ignore case")
	}
	if _, ok := DataSourceByID(CatNatSource); !ok {
		t.Fatalf("catnat source missing")
	}
}
