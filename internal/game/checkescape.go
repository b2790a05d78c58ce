package game

// MaxCheckAttempts is the number of consecutive dead cards a side in check
// may draw before losing.
const MaxCheckAttempts = 5

// trackCheckEscape applies one draw to the attempt counter and reports
// whether the budget is exhausted.
func trackCheckEscape(attempts int, inCheck, playable bool) (int, bool) {
	if !inCheck {
		return 0, false
	}
	if playable {
		return attempts, false
	}
	attempts = min(attempts+1, MaxCheckAttempts)
	return attempts, attempts == MaxCheckAttempts
}
