package models

import "time"

// SessionInfo describes an editing session.
type SessionInfo struct {
	ID           string    `json:"id"`
	ItemCount    int       `json:"itemCount"`
	EdgeCount    int       `json:"edgeCount"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessed time.Time `json:"lastAccessed"`
}

// ParseResult is the reply of the natural-language item parser. Exactly one of
// Item or Message is set.
type ParseResult struct {
	Item        map[string]any `json:"item,omitempty"`
	Explanation string         `json:"explanation,omitempty"`
	Message     string         `json:"message,omitempty"`
}

// IsItem reports whether the reply describes an item to add.
func (p *ParseResult) IsItem() bool {
	return p != nil && len(p.Item) > 0
}
