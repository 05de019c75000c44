package commands

// CreateBookCommand registers a title in the catalog.
type CreateBookCommand struct {
	ISBN            string  `json:"isbn"`
	Title           string  `json:"title"`
	Author          string  `json:"author"`
	PublicationYear int     `json:"publicationYear"`
	Publisher       string  `json:"publisher"`
	Price           float64 `json:"price"`

	// UserID is the acting user, carried into event metadata.
	UserID string `json:"-"`
}

// UpdateBookCommand patches catalog fields; nil fields are untouched.
type UpdateBookCommand struct {
	BookID          string   `json:"-"`
	Title           *string  `json:"title,omitempty"`
	Author          *string  `json:"author,omitempty"`
	PublicationYear *int     `json:"publicationYear,omitempty"`
	Publisher       *string  `json:"publisher,omitempty"`
	Price           *float64 `json:"price,omitempty"`

	UserID string `json:"-"`
}

// DeleteBookCommand tombstones a catalog entry.
type DeleteBookCommand struct {
	BookID string `json:"-"`
	UserID string `json:"-"`
}
