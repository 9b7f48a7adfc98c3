package types

import "time"

// Session is the single per-user dialog record. It is overwritten in
// place on every transition and expires after the store TTL of
// inactivity; unsaved answers in Context are lost with it.
type Session struct {
	UserID     int64             `json:"user_id"`
	ChatID     int64             `json:"chat_id"`
	EmployeeID string            `json:"employee_id"`
	IsAdmin    bool              `json:"is_admin"`
	State      DialogState       `json:"state"`
	Context    map[string]string `json:"context,omitempty"`
	Selection  *SelectionSet     `json:"selection,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func (s *Session) SetContext(key, value string) {
	if s.Context == nil {
		s.Context = make(map[string]string)
	}
	s.Context[key] = value
}

func (s *Session) ContextValue(key string) string {
	if s.Context == nil {
		return ""
	}
	return s.Context[key]
}

func (s *Session) ClearFlow() {
	s.Context = nil
	s.Selection = nil
}

// SelectionSet backs the admin multi-select flow: an ordered candidate
// list, the chosen subset and the current page of the keyboard.
type SelectionSet struct {
	Candidates []string        `json:"candidates"`
	Selected   map[string]bool `json:"selected"`
	Page       int             `json:"page"`
}

func NewSelectionSet(candidates []string) *SelectionSet {
	return &SelectionSet{
		Candidates: candidates,
		Selected:   make(map[string]bool),
	}
}

func (s *SelectionSet) Toggle(id string) {
	if s.Selected == nil {
		s.Selected = make(map[string]bool)
	}
	if s.Selected[id] {
		delete(s.Selected, id)
	} else {
		s.Selected[id] = true
	}
}

func (s *SelectionSet) SelectAll() {
	if s.Selected == nil {
		s.Selected = make(map[string]bool)
	}
	for _, id := range s.Candidates {
		s.Selected[id] = true
	}
}

// SelectedIDs returns the chosen ids in candidate order, so dispatch
// accounting stays deterministic.
func (s *SelectionSet) SelectedIDs() []string {
	out := make([]string, 0, len(s.Selected))
	for _, id := range s.Candidates {
		if s.Selected[id] {
			out = append(out, id)
		}
	}
	return out
}
