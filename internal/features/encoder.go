package features

import (
	"sort"

	"github.com/Veraticus/redistrict-impact/internal/model"
)

// Vocabulary label-encodes a categorical column. Classes stay sorted so
// encoding is a binary search and safe for concurrent readers.
type Vocabulary struct {
	Classes []string `json:"classes"`
}

// NewVocabulary builds a sorted vocabulary of distinct non-empty values.
func NewVocabulary(values map[string]struct{}) Vocabulary {
	classes := make([]string, 0, len(values))
	for v := range values {
		if v != "" {
			classes = append(classes, v)
		}
	}
	sort.Strings(classes)
	return Vocabulary{Classes: classes}
}

// Encode returns the class index, or -1 for values unseen at fit time.
func (v Vocabulary) Encode(value string) int {
	i := sort.SearchStrings(v.Classes, value)
	if i < len(v.Classes) && v.Classes[i] == value && value != "" {
		return i
	}
	return -1
}

// Encoders holds the categorical vocabularies fitted on the training population.
type Encoders struct {
	County     Vocabulary `json:"county"`
	City       Vocabulary `json:"city"`
	AgeBracket Vocabulary `json:"age_bracket"`
}

// EncoderFitter collects categorical values across chunks.
type EncoderFitter struct {
	county     map[string]struct{}
	city       map[string]struct{}
	ageBracket map[string]struct{}
}

// NewEncoderFitter creates an empty fitter.
func NewEncoderFitter() *EncoderFitter {
	return &EncoderFitter{
		county:     make(map[string]struct{}),
		city:       make(map[string]struct{}),
		ageBracket: make(map[string]struct{}),
	}
}

// Observe records v's categorical values.
func (f *EncoderFitter) Observe(v *model.Voter) {
	f.county[v.County] = struct{}{}
	f.city[v.City] = struct{}{}
	if v.HasAge() {
		f.ageBracket[string(v.AgeBracket)] = struct{}{}
	}
}

// Encoders freezes the observed values into vocabularies.
func (f *EncoderFitter) Encoders() *Encoders {
	return &Encoders{
		County:     NewVocabulary(f.county),
		City:       NewVocabulary(f.city),
		AgeBracket: NewVocabulary(f.ageBracket),
	}
}

// FitEncoders fits vocabularies over voters in one pass.
func FitEncoders(voters []model.Voter) *Encoders {
	f := NewEncoderFitter()
	for i := range voters {
		f.Observe(&voters[i])
	}
	return f.Encoders()
}
