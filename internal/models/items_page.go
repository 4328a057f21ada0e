package models

import (
	"encoding/json"
	"fmt"
)

// ColumnValue is one dynamically typed column record of an upstream item
type ColumnValue map[string]interface{}

// Text returns the "text" field when it is present and a string
func (c ColumnValue) Text() (string, bool) {
	raw, ok := c["text"]
	if !ok {
		return "", false
	}
	text, ok := raw.(string)
	return text, ok
}

// ID returns the "id" field when it is present and a string
func (c ColumnValue) ID() (string, bool) {
	raw, ok := c["id"]
	if !ok {
		return "", false
	}
	id, ok := raw.(string)
	return id, ok
}

// RawItem is an untrusted item from the upstream record store. A nil
// ColumnValues means the field was absent (or null); an empty slice means it
// was present with no columns.
type RawItem struct {
	Name         *string       `json:"name,omitempty"`
	ID           *string       `json:"id,omitempty"`
	ColumnValues []ColumnValue `json:"column_values,omitempty"`
}

// RawItemsPage is one page of items from the upstream record store
type RawItemsPage struct {
	Items []RawItem `json:"items"`
}

// ItemsPageFromJSONB decodes an items page out of a stored JSONB payload
func ItemsPageFromJSONB(payload JSONB) (*RawItemsPage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal items page payload: %w", err)
	}

	var page RawItemsPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("failed to decode items page: %w", err)
	}
	return &page, nil
}

// ToJSONB converts the page into a JSONB value for storage
func (p *RawItemsPage) ToJSONB() (JSONB, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal items page: %w", err)
	}

	var payload JSONB
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to convert items page: %w", err)
	}
	return payload, nil
}
