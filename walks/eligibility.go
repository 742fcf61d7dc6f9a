package walks

// CanBook is the Eligibility Gate: a dog may be booked only once its
// assessment approved it or when it never needed one. A false result is not
// an error; CreateWalk turns it into ErrDogNotEligible.
func CanBook(dog Dog) bool {
	switch dog.AssessmentStatus {
	case AssessmentApproved, AssessmentNotRequired:
		return true
	}
	return false
}
