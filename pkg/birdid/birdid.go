// Package birdid holds the domain types shared by the bird sound
// identification pipeline: species classes, ranked predictions, the
// optional geographic context and the error taxonomy.
//
// # Classes
//
// A [Class] maps a dense, 0-based model output index to a species:
//
//	Index 0 → {ID: "blackbird", Name: "Common Blackbird", ScientificName: "Turdus merula"}
//
// The index is the position in the model's probability vector, so a
// [ClassList] must contain every index from 0 to len-1 exactly once.
//
// # Errors
//
// Every package in this module wraps one of the sentinel errors below so
// callers can branch with errors.Is regardless of which stage failed.
package birdid

import (
	"fmt"
	"strings"
)

// Class is one species the classifier can output.
type Class struct {
	ID             string `json:"id" yaml:"id" msgpack:"id"`
	Name           string `json:"name" yaml:"name" msgpack:"name"`
	ScientificName string `json:"scientificName" yaml:"scientific_name" msgpack:"scientific_name"`
	Index          int    `json:"classIndex" yaml:"class_index" msgpack:"class_index"`
}

// ClassList is an ordered list of classes addressed by model output index.
type ClassList []Class

// NewClassList assigns dense indices to the given species in order.
func NewClassList(species []Class) ClassList {
	out := make(ClassList, len(species))
	for i, s := range species {
		s.Index = i
		out[i] = s
	}
	return out
}

// Validate reports an error wrapping ErrPrecondition unless the indices
// form the dense range [0, len).
func (l ClassList) Validate() error {
	seen := make([]bool, len(l))
	for _, c := range l {
		if c.Index < 0 || c.Index >= len(l) {
			return fmt.Errorf("birdid: class %q index %d out of range [0,%d): %w", c.ID, c.Index, len(l), ErrPrecondition)
		}
		if seen[c.Index] {
			return fmt.Errorf("birdid: duplicate class index %d: %w", c.Index, ErrPrecondition)
		}
		seen[c.Index] = true
	}
	return nil
}

// ByIndex returns the class at the given model output index.
func (l ClassList) ByIndex(i int) (Class, bool) {
	if i >= 0 && i < len(l) && l[i].Index == i {
		return l[i], true
	}
	for _, c := range l {
		if c.Index == i {
			return c, true
		}
	}
	return Class{}, false
}

// ByID returns the class with the given identifier.
func (l ClassList) ByID(id string) (Class, bool) {
	for _, c := range l {
		if c.ID == id {
			return c, true
		}
	}
	return Class{}, false
}

// Names returns display names ordered by class index.
func (l ClassList) Names() []string {
	names := make([]string, len(l))
	for _, c := range l {
		if c.Index >= 0 && c.Index < len(names) {
			names[c.Index] = c.Name
		}
	}
	return names
}

// ParseLabel converts a pretrained-model label of the form
// "Scientific name_Common Name" into a class at the given index.
// Missing parts become "Unknown".
func ParseLabel(label string, index int) Class {
	parts := strings.Split(label, "_")
	sci := strings.TrimSpace(parts[0])
	if sci == "" {
		sci = "Unknown"
	}
	common := strings.TrimSpace(strings.Join(parts[1:], " "))
	if common == "" {
		common = "Unknown"
	}
	return Class{
		ID:             label,
		Name:           common,
		ScientificName: sci,
		Index:          index,
	}
}

// ClassesFromLabels parses an ordered label list with [ParseLabel].
func ClassesFromLabels(labels []string) ClassList {
	out := make(ClassList, len(labels))
	for i, l := range labels {
		out[i] = ParseLabel(l, i)
	}
	return out
}

// Search returns up to limit classes whose ID, name or scientific name
// contains q (case-insensitive), in index order.
func (l ClassList) Search(q string, limit int) ClassList {
	q = strings.ToLower(q)
	var out ClassList
	for _, c := range l {
		if limit > 0 && len(out) >= limit {
			break
		}
		if strings.Contains(strings.ToLower(c.ID), q) ||
			strings.Contains(strings.ToLower(c.Name), q) ||
			strings.Contains(strings.ToLower(c.ScientificName), q) {
			out = append(out, c)
		}
	}
	return out
}
