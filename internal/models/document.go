package models

// Document is a tenant document stored in a partition.
// IDs are scoped to the partition holding the document.
type Document struct {
	ID   string
	Body map[string]any
}
