package validator

import (
	"github.com/mohammad-safakhou/climarisk/internal/prompts"
	"github.com/mohammad-safakhou/climarisk/internal/taxonomy"
)

// DefaultExamples are the few-shot decisions embedded in the prompt.
func DefaultExamples() []prompts.ValidationExample {
	return []prompts.ValidationExample{
		{
			Request: "Quels sont les plans d'adaptation de la region Provence-Alpes-Côte d'Azur face aux vague de chaleur et ala sécheresse ?",
			Result: UserRequestValidation{
				Valid:      true,
				Message:    "Quels sont les plans d'adaptation de la région Provence-Alpes-Côte d'Azur face aux vagues de chaleur et à la sécheresse ?",
				Risks:      []string{"Vague de chaleur", "Sécheresse"},
				Locations:  []string{"Provence-Alpes-Côte d'Azur"},
				AdminLevel: taxonomy.Region,
			},
		},
		{
			Request: "Comment la France gère-t-elle le stress hydrique ?",
			Result: Rejected("La requête mentionne un risque environnemental (stress hydrique), mais ne précise pas de lieu en France. " +
				"Veuillez spécifier un lieu comme une commune, un département ou une région. " +
				"Par exemple : 'Comment la région Occitanie gère-t-elle le stress hydrique ?'"),
		},
		{
			Request: "Quels sont les projets d'urbanisation prévus à Lyon ?",
			Result: Rejected("La requête mentionne un lieu en France (Lyon, commune) mais ne fait référence à aucun risque environnemental. " +
				"Veuillez inclure un risque environnemental pertinent. " +
				"Par exemple : 'Quels sont les projets d'urbanisation prévus à Lyon pour faire face aux risques d'inondation ?'"),
		},
		{
			Request: "Quelles sont les mesures prises contre les inondtaions à Paris, Bordeaux et Lyon ?",
			Result: UserRequestValidation{
				Valid:      true,
				Message:    "Quelles sont les mesures prises contre les inondations à Paris, Bordeaux et Lyon ?",
				Risks:      []string{"Inondation"},
				Locations:  []string{"Paris", "Bordeaux", "Lyon"},
				AdminLevel: taxonomy.Commune,
			},
		},
		{
			Request: "Comment la métropole de Lyon s'adapte-t-elle à la pollution de l'air ?",
			Result: UserRequestValidation{
				Valid:      true,
				Message:    "Comment la métropole de Lyon s'adapte-t-elle à la pollution de l'air ?",
				Risks:      []string{"Pollution de l’air, des sols, de l’eau"},
				Locations:  []string{"Métropole de Lyon"},
				AdminLevel: taxonomy.Groupement,
			},
		},
	}
}
