package scoring

import "strings"

// concept is a canonical key and the variants that signal it. Tables are
// ordered slices because several lookups stop at the first hit.
type concept struct {
	key      string
	variants []string
}

var medicalSynonyms = []concept{
	{"diabetes", []string{"prameha", "madhumeha", "diabetic", "hyperglycemia"}},
	{"fever", []string{"jwara", "pyrexia", "febrile", "hyperthermia"}},
	{"pain", []string{"vedana", "ruja", "shula", "ache", "aching"}},
	{"asthma", []string{"shwasa", "tamaka", "breathing", "dyspnea"}},
	{"gastric", []string{"amlapitta", "acid", "stomach", "gastritis"}},
	{"paralysis", []string{"pakshaghata", "ardita", "hemiplegia", "weakness"}},
	{"skin", []string{"kushtha", "dermal", "cutaneous", "rash"}},
	{"joint", []string{"sandhigata", "arthritis", "articular", "knee"}},
	{"heart", []string{"hridaya", "cardiac", "cardiovascular", "chest"}},
}

var traditionalSystems = []concept{
	{"Ayurveda", []string{"Ayurveda", "Ayurvedic", "Sanskrit", "Vedic"}},
	{"Unani", []string{"Unani", "Yunani", "Greek", "Arabic"}},
	{"Siddha", []string{"Siddha", "Tamil"}},
	{"TCM", []string{"TCM", "Chinese", "Traditional Chinese"}},
	{"Homeopathy", []string{"Homeopathy", "Homeopathic"}},
	{"Mixed", []string{"Mixed", "Combined", "Integrated"}},
}

var therapeuticAreas = []concept{
	{"General", []string{"general", "common", "basic", "routine", "standard"}},
	{"Metabolic", []string{"diabetes", "metabolism", "prameha", "madhumeha", "sugar", "energy"}},
	{"Endocrine", []string{"hormone", "gland", "thyroid", "diabetes", "metabolic"}},
	{"Respiratory", []string{"cough", "asthma", "breathing", "kasa", "shwasa", "lung", "chest"}},
	{"Digestive", []string{"digestion", "stomach", "gastric", "agni", "ajirna", "intestine", "bowel"}},
	{"Neurological", []string{"mind", "brain", "nervous", "manas", "unmada", "mental", "nerve"}},
	{"Cardiovascular", []string{"heart", "blood", "circulation", "hridaya", "rakta", "cardiac", "vascular"}},
	{"Musculoskeletal", []string{"joint", "bone", "muscle", "asthi", "mamsa", "arthritis", "skeletal"}},
	{"Dermatological", []string{"skin", "kushtha", "dermal", "rash", "eczema", "dermatitis"}},
	{"Reproductive", []string{"reproductive", "fertility", "pregnancy", "menstrual", "sexual"}},
	{"Urinary", []string{"kidney", "urine", "bladder", "urinary", "nephro"}},
	{"Infectious", []string{"infection", "viral", "bacterial", "fever", "jwara"}},
}

var diseaseConcepts = []concept{
	{"diabetes", []string{"diabetes", "mellitus", "hyperglycemia", "diabetic", "prameha"}},
	{"hypertension", []string{"hypertension", "blood pressure", "hypertensive", "high blood"}},
	{"asthma", []string{"asthma", "bronchial", "respiratory", "breathing", "shwasa"}},
	{"arthritis", []string{"arthritis", "joint", "inflammatory", "arthritic", "sandhigata"}},
	{"depression", []string{"depression", "depressive", "mood", "mental", "unmada"}},
	{"fever", []string{"fever", "pyrexia", "febrile", "hyperthermia", "jwara"}},
	{"pain", []string{"pain", "ache", "painful", "analges", "vedana"}},
	{"infection", []string{"infection", "infectious", "bacterial", "viral", "sepsis"}},
	{"inflammation", []string{"inflammation", "inflammatory", "inflamed", "swelling"}},
	{"gastric", []string{"gastric", "stomach", "gastritis", "dyspepsia", "amlapitta"}},
}

// consistencyAreas is keyed by the exact therapeutic area label a TM2
// record carries, so it is a map rather than an ordered table.
var consistencyAreas = map[string][]string{
	"General":         {"general", "unspecified", "other", "nos"},
	"Digestive":       {"gastro", "intestinal", "digestive", "stomach", "bowel"},
	"Respiratory":     {"respiratory", "lung", "bronch", "pulmonary", "breathing"},
	"Cardiovascular":  {"cardio", "heart", "vascular", "blood", "circulation"},
	"Neurological":    {"neuro", "brain", "nerve", "mental", "psychiatric"},
	"Musculoskeletal": {"musculo", "bone", "joint", "muscle", "skeletal"},
	"Dermatological":  {"skin", "dermat", "cutaneous", "epidermal"},
	"Endocrine":       {"endocrine", "hormone", "metabolic", "gland", "diabetes"},
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
