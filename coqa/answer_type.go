package coqa

import "fmt"

// AnswerType categorizes how an answer relates to its source passage.
type AnswerType int

const (
	AnswerUnknown AnswerType = iota
	AnswerSpan
	AnswerYesNo
	AnswerFluency
	AnswerCounting
	AnswerMultipleChoice
)

// Yes/no/generative head labels.
const (
	YNGYes        int32 = 0
	YNGNo         int32 = 1
	YNGGenerative int32 = 2
)

var answerTypeNames = map[AnswerType]string{
	AnswerUnknown:        "unknown",
	AnswerSpan:           "span",
	AnswerYesNo:          "yes_no",
	AnswerFluency:        "fluency",
	AnswerCounting:       "counting",
	AnswerMultipleChoice: "multiple_choice",
}

func (a AnswerType) String() string {
	if name, ok := answerTypeNames[a]; ok {
		return name
	}
	return fmt.Sprintf("answer_type(%d)", int(a))
}

func (a AnswerType) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AnswerType) UnmarshalText(text []byte) error {
	parsed, err := ParseAnswerType(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func ParseAnswerType(s string) (AnswerType, error) {
	for typ, name := range answerTypeNames {
		if name == s {
			return typ, nil
		}
	}
	return AnswerUnknown, fmt.Errorf("unknown answer type %q", s)
}

// AnswerTypes lists the answer types in declaration order, optionally
// without the unknown placeholder.
func AnswerTypes(includeUnknown bool) []AnswerType {
	types := []AnswerType{AnswerSpan, AnswerYesNo, AnswerFluency, AnswerCounting, AnswerMultipleChoice}
	if includeUnknown {
		return append([]AnswerType{AnswerUnknown}, types...)
	}
	return types
}
