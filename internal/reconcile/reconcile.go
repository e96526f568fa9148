// Package reconcile decides whether a freshly fetched first page proves the
// cached mirror is still valid, and patches the mirror when it does.
package reconcile

// MinWindow is the shortest overlap accepted as proof that the cached first
// page reappears inside the new one.
const MinWindow = 3

// Result of comparing a new first page against the cached one.
type Result struct {
	Hit    bool `json:"hit"`
	Offset int  `json:"offset"`
	Width  int  `json:"width"`
}

// Reconcile scans offsets in the new page from the front, and at each offset
// tries the widest window first, looking for a run that equals the head of
// the cached page. The first match wins.
func Reconcile(newIDs, cachedIDs []string) Result {
	n, m := len(newIDs), len(cachedIDs)
	if n < MinWindow || m < MinWindow {
		return Result{}
	}

	for i := 0; i < n; i++ {
		for w := n - i; w >= MinWindow; w-- {
			if w > m {
				continue
			}
			if equal(newIDs[i:i+w], cachedIDs[:w]) {
				return Result{Hit: true, Offset: i, Width: w}
			}
		}
	}
	return Result{}
}

func equal(a, b []string) bool {
	for k := range a {
		if a[k] != b[k] {
			return false
		}
	}
	return true
}
