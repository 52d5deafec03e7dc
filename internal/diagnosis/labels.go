// Package diagnosis holds the closed set of skin conditions the classifier
// can report and maps probability vectors onto them.
package diagnosis

// Label is one of the diagnostic classes, in model output order.
type Label string

const (
	ActinicKeratosis         Label = "actinic_keratosis"
	AtopicDermatitis         Label = "atopic_dermatitis"
	BenignKeratosis          Label = "benign_keratosis"
	Dermatofibroma           Label = "dermatofibroma"
	MelanocyticNevus         Label = "melanocytic_nevus"
	Melanoma                 Label = "melanoma"
	SquamousCellCarcinoma    Label = "squamous_cell_carcinoma"
	TineaRingwormCandidiasis Label = "tinea_ringworm_candidiasis"
	VascularLesion           Label = "vascular_lesion"
)

// NumClasses is the width of the model output.
const NumClasses = 9

// labels is indexed by model output position. Never reorder.
var labels = [NumClasses]Label{
	ActinicKeratosis,
	AtopicDermatitis,
	BenignKeratosis,
	Dermatofibroma,
	MelanocyticNevus,
	Melanoma,
	SquamousCellCarcinoma,
	TineaRingwormCandidiasis,
	VascularLesion,
}

// FallbackRecommendation is returned for a label outside the table.
const FallbackRecommendation = "Consult a dermatologist."

var recommendations = map[Label]string{
	ActinicKeratosis:         "Protect skin from the sun, use prescribed creams, and visit a dermatologist regularly.",
	AtopicDermatitis:         "Use mild skincare products, avoid allergens, and keep skin hydrated.",
	BenignKeratosis:          "Typically harmless. Consult a doctor if they become irritated.",
	Dermatofibroma:           "Usually harmless, but if it changes or becomes painful, see a dermatologist.",
	MelanocyticNevus:         "Monitor for any changes in shape, color, or size.",
	Melanoma:                 "Consult a dermatologist immediately. Early detection is key!",
	SquamousCellCarcinoma:    "Seek medical treatment immediately. Early treatment is crucial.",
	TineaRingwormCandidiasis: "Use antifungal creams and keep the area dry.",
	VascularLesion:           "Consult a dermatologist for appropriate treatment options.",
}

// Labels returns the labels in model output order.
func Labels() []Label {
	out := make([]Label, NumClasses)
	copy(out, labels[:])
	return out
}

// LabelAt returns the label for output position i.
func LabelAt(i int) (Label, bool) {
	if i < 0 || i >= NumClasses {
		return "", false
	}
	return labels[i], true
}

// ParseLabel returns the Label named s.
func ParseLabel(s string) (Label, bool) {
	l := Label(s)
	return l, l.Valid()
}

// Valid reports whether l belongs to the enumeration.
func (l Label) Valid() bool {
	_, ok := recommendations[l]
	return ok
}

func (l Label) String() string { return string(l) }

// Recommendation returns the advice text for l, or FallbackRecommendation.
func (l Label) Recommendation() string {
	if text, ok := recommendations[l]; ok {
		return text
	}
	return FallbackRecommendation
}

// Entry pairs a label with its advice.
type Entry struct {
	Label          Label  `json:"label"`
	Recommendation string `json:"recommendation"`
}

// Table returns every label with its recommendation, in output order.
func Table() []Entry {
	out := make([]Entry, 0, NumClasses)
	for _, l := range labels {
		out = append(out, Entry{Label: l, Recommendation: l.Recommendation()})
	}
	return out
}
