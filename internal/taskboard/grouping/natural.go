package grouping

// naturalLess compares strings with embedded integers numerically, so that
// task_2 orders before task_10. Digit runs are compared by value (shorter
// run of equal value wins to keep the ordering total), everything else
// byte-wise.
func naturalLess(a, b string) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if isDigit(a[i]) && isDigit(b[j]) {
			iStart, jStart := i, j
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			for j < len(b) && isDigit(b[j]) {
				j++
			}
			aRun := trimLeadingZeros(a[iStart:i])
			bRun := trimLeadingZeros(b[jStart:j])
			if len(aRun) != len(bRun) {
				return len(aRun) < len(bRun)
			}
			if aRun != bRun {
				return aRun < bRun
			}
			continue
		}
		if a[i] != b[j] {
			return a[i] < b[j]
		}
		i++
		j++
	}
	return len(a)-i < len(b)-j
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func trimLeadingZeros(s string) string {
	for len(s) > 1 && s[0] == '0' {
		s = s[1:]
	}
	return s
}
