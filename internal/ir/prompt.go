package ir

// Prompt is a read-only view of one question as it would be displayed.
type Prompt struct {
	Index    FormIndex
	Name     string
	Kind     QuestionKind
	Label    string // ${name} references already substituted
	Hint     string
	Answer   Value
	Choices  []Choice // after choice filtering
	Required bool
	ReadOnly bool
	// Dynamic marks questions whose choices come from external storage.
	Dynamic bool
}
