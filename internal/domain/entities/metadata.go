package entities

// TokenMetadata holds the off-chain description of a wiki page token
type TokenMetadata struct {
	ID       TokenID `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"imageUrl"`
}

// PageURL returns the Wikipedia page the token represents
func (m TokenMetadata) PageURL() string {
	return "https://en.wikipedia.org/?curid=" + m.ID.String()
}
