package service

import (
	"regexp"
	"strings"

	"sengine/internal/models"
)

// TemplateService renders personalization tokens in outbound message bodies.
type TemplateService struct{}

// NewTemplateService creates a new template service
func NewTemplateService() *TemplateService {
	return &TemplateService{}
}

// tokenPattern matches [token] and {token} variants, case-insensitive.
var tokenPattern = regexp.MustCompile(`(?i)[\[{](first|name|phone|email|campaign)[\]}]`)

// Render substitutes personalization tokens with contact and campaign data.
// Unknown placeholders pass through untouched. The rendered body is trimmed.
func (s *TemplateService) Render(body string, contact *models.Contact, campaignName string) string {
	if body == "" {
		return ""
	}

	rendered := tokenPattern.ReplaceAllStringFunc(body, func(match string) string {
		token := strings.ToLower(match[1 : len(match)-1])
		switch token {
		case "first":
			if contact != nil && contact.FirstName != nil {
				return *contact.FirstName
			}
			return ""
		case "name":
			if contact != nil {
				return contact.FullName()
			}
			return ""
		case "phone":
			if contact != nil {
				return contact.Phone
			}
			return ""
		case "email":
			if contact != nil && contact.Email != nil {
				return *contact.Email
			}
			return ""
		case "campaign":
			return campaignName
		}
		return match
	})

	return strings.TrimSpace(rendered)
}

// Placeholders extracts the personalization tokens present in a body.
func (s *TemplateService) Placeholders(body string) []string {
	return tokenPattern.FindAllString(body, -1)
}
