package sql

// Condition requires a field of a document to equal a value
type Condition struct {
	Field string
	Value string
}

// Conditions is a conjunction of conditions. An empty
// list matches every document.
type Conditions []Condition

// Match returns true if doc satisfies every condition
func (conditions Conditions) Match(doc Document) bool {
	for _, condition := range conditions {
		value, ok := doc[condition.Field]

		if !ok || value != condition.Value {
			return false
		}
	}

	return true
}

// ID returns the record ID the conditions pin down, if any
func (conditions Conditions) ID() (string, bool) {
	for _, condition := range conditions {
		if condition.Field == FieldID {
			return condition.Value, true
		}
	}

	return "", false
}
