package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/checkfox/go_lead_adapter/internal/config"
	"github.com/checkfox/go_lead_adapter/internal/models"
)

// NamePolicy decides how a free-text item name becomes the lead name
type NamePolicy string

const (
	// NamePolicyFirstToken keeps the first whitespace-delimited token
	NamePolicyFirstToken NamePolicy = "first_token"
	// NamePolicyFullName keeps the whole name, trimmed
	NamePolicyFullName NamePolicy = "full_name"
)

// ParseNamePolicy resolves a configured policy name. Empty input selects
// NamePolicyFirstToken.
func ParseNamePolicy(s string) (NamePolicy, error) {
	switch NamePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", NamePolicyFirstToken:
		return NamePolicyFirstToken, nil
	case NamePolicyFullName:
		return NamePolicyFullName, nil
	default:
		return "", fmt.Errorf("unknown name policy %q", s)
	}
}

// Apply derives the lead name. The result is empty when name holds no
// non-whitespace characters.
func (p NamePolicy) Apply(name string) string {
	if p == NamePolicyFullName {
		return strings.TrimSpace(name)
	}
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// PhoneColumnSelector picks the column that holds the phone number
type PhoneColumnSelector interface {
	SelectPhoneColumn(columns []models.ColumnValue) (models.ColumnValue, bool)
}

// ContainsOneSelector selects the first column whose "text" value contains
// the character "1". Upstream boards carry no stable column ids, so this is a
// heuristic: any earlier text column containing a "1" (a street number, a
// date) wins over the phone column. Columns whose text is missing or not a
// string are treated as empty and never match.
type ContainsOneSelector struct{}

// SelectPhoneColumn implements PhoneColumnSelector
func (ContainsOneSelector) SelectPhoneColumn(columns []models.ColumnValue) (models.ColumnValue, bool) {
	for _, column := range columns {
		text, _ := column.Text()
		if strings.Contains(text, "1") {
			return column, true
		}
	}
	return nil, false
}

// ColumnIDSelector selects the first column whose "id" equals ID
type ColumnIDSelector struct {
	ID string
}

// SelectPhoneColumn implements PhoneColumnSelector
func (s ColumnIDSelector) SelectPhoneColumn(columns []models.ColumnValue) (models.ColumnValue, bool) {
	for _, column := range columns {
		if id, ok := column.ID(); ok && id == s.ID {
			return column, true
		}
	}
	return nil, false
}

// Extractor builds validated lead details out of upstream items. It holds no
// mutable state and is safe for concurrent use.
type Extractor struct {
	namePolicy NamePolicy
	selector   PhoneColumnSelector
}

// NewExtractor creates an Extractor. A nil selector falls back to
// ContainsOneSelector and an empty policy to NamePolicyFirstToken.
func NewExtractor(policy NamePolicy, selector PhoneColumnSelector) *Extractor {
	if policy == "" {
		policy = NamePolicyFirstToken
	}
	if selector == nil {
		selector = ContainsOneSelector{}
	}
	return &Extractor{namePolicy: policy, selector: selector}
}

// NewExtractorFromConfig creates an Extractor from the extraction settings.
// A configured phone column id selects ColumnIDSelector.
func NewExtractorFromConfig(cfg config.ExtractionConfig) (*Extractor, error) {
	policy, err := ParseNamePolicy(cfg.NamePolicy)
	if err != nil {
		return nil, err
	}

	var selector PhoneColumnSelector = ContainsOneSelector{}
	if id := strings.TrimSpace(cfg.PhoneColumnID); id != "" {
		selector = ColumnIDSelector{ID: id}
	}
	return NewExtractor(policy, selector), nil
}

// NamePolicy returns the policy the extractor applies to item names
func (e *Extractor) NamePolicy() NamePolicy {
	return e.namePolicy
}

// BuildLead normalizes the phone number, applies the name policy and
// validates the result. An invalid phone number is always reported with the
// caller's raw input.
func (e *Extractor) BuildLead(name, rawPhone string) (*models.LeadDetails, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	lead, err := models.NewLeadDetails(e.namePolicy.Apply(name), phone)
	if errors.Is(err, models.ErrInvalidPhoneNumber) {
		return nil, models.NewInvalidPhoneNumberError(rawPhone)
	}
	return lead, err
}

// ExtractFromPage builds lead details from the first item of the page. Each
// failure names the field that was missing: items, name, column_values,
// phone_number or text.
func (e *Extractor) ExtractFromPage(page *models.RawItemsPage) (*models.LeadDetails, error) {
	if page == nil || len(page.Items) == 0 {
		return nil, models.NewDataFieldNotFoundError("items")
	}
	item := page.Items[0]

	if item.Name == nil {
		return nil, models.NewDataFieldNotFoundError("name")
	}
	if item.ColumnValues == nil {
		return nil, models.NewDataFieldNotFoundError("column_values")
	}

	column, ok := e.selector.SelectPhoneColumn(item.ColumnValues)
	if !ok {
		return nil, models.NewDataFieldNotFoundError("phone_number")
	}
	text, ok := column.Text()
	if !ok {
		return nil, models.NewDataFieldNotFoundError("text")
	}

	return e.BuildLead(*item.Name, text)
}
