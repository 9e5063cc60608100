package store

type lru struct{}

func (lru) Select(candidates []*Entry) (string, bool) {
	var victim *Entry
	for _, e := range candidates {
		if victim == nil || older(e.LastAccessedAt, e.Key, victim.LastAccessedAt, victim.Key) {
			victim = e
		}
	}
	if victim == nil {
		return "", false
	}
	return victim.Key, true
}

func (lru) OnAccess(*Entry) {}
func (lru) OnInsert(*Entry) {}
