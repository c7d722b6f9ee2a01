package model

// Category is one operator-configured spending category. The category
// vocabulary is an open set loaded at runtime, not a compiled enum.
type Category struct {
	Key         string // stable identifier stored on movements
	Name        string // display name
	Description string // guidance passed to the classifier
}
