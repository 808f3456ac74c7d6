package domain

// Target represents a harvesting task
type Target struct {
	Source      string
	Count       int
	Destination string
}

// Record is the unit of harvested data. Rating 0 means the source gave no usable rating.
type Record struct {
	ID         string `json:"id"`
	Author     string `json:"author"`
	Avatar     string `json:"avatar,omitempty"`
	Text       string `json:"text"`
	Rating     int    `json:"rating"`
	Date       string `json:"date"`
	Engagement int    `json:"engagement"`
	// Source is the target the record was harvested for, used to scope resume
	// when targets share a destination.
	Source string `json:"source,omitempty"`
}

// Rating bounds accepted by the normalizer.
const (
	MinRating = 1
	MaxRating = 5
)
