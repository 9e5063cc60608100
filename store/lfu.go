package store

type lfu struct{}

func (lfu) Select(candidates []*Entry) (string, bool) {
	var victim *Entry
	for _, e := range candidates {
		switch {
		case victim == nil:
			victim = e
		case e.AccessCount < victim.AccessCount:
			victim = e
		case e.AccessCount == victim.AccessCount &&
			older(e.LastAccessedAt, e.Key, victim.LastAccessedAt, victim.Key):
			victim = e
		}
	}
	if victim == nil {
		return "", false
	}
	return victim.Key, true
}

func (lfu) OnAccess(*Entry) {}
func (lfu) OnInsert(*Entry) {}
