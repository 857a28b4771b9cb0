package classifyticket

import (
	"strings"

	"helpdesk-workers/internal/models"
)

type keywordRule struct {
	category models.Category
	keywords []string
}

// keywordRules is evaluated top to bottom; the first rule with a hit wins.
var keywordRules = []keywordRule{
	{models.CategoryIT, []string{
		"vpn", "password", "login", "computer", "laptop", "software", "network", "email",
		"internet", "wifi", "technical", "mouse", "keyboard", "monitor", "printer",
	}},
	{models.CategoryHR, []string{
		"leave", "sick", "vacation", "maternity", "paternity", "human resources",
		"employment", "resignation", "appraisal",
	}},
	{models.CategoryFinance, []string{
		"salary", "payroll", "reimbursement", "expense", "payment", "finance", "tax",
		"bonus", "overtime", "receipt",
	}},
	{models.CategoryAdmin, []string{
		"holiday calendar", "hardware", "equipment", "office supplies", "supplies",
		"meeting room", "room booking", "facility", "administration", "calendar",
	}},
}

// MatchKeywords returns the first category whose keywords occur in text,
// ignoring case, or Other when none do.
func MatchKeywords(text string) models.Category {
	lower := strings.ToLower(text)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return models.CategoryOther
}
