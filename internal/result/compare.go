package result

// Comparator decides whether two error messages of the same kind agree.
type Comparator func(leader, validator string) bool

// ExactMessage agrees only on identical messages.
func ExactMessage(leader, validator string) bool {
	return leader == validator
}

// AlwaysAgree treats any two messages as agreeing.
func AlwaysAgree(string, string) bool {
	return true
}
