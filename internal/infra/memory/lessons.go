package memory

import "github.com/4-gent/phisherman/internal/domain"

// DefaultTopics returns the built-in phishing-awareness lesson content used
// when no Postgres topic source is configured.
func DefaultTopics() map[string]domain.Topic {
	return map[string]domain.Topic{
		"suspicious_link": {
			ID:    "suspicious_link",
			Title: "Identifying Suspicious Links",
			Questions: []domain.Question{
				{Text: "What should you do before clicking a suspicious link?", Options: []string{"hover", "click", "ignore"}, AnswerIndex: 0},
				{Text: "Misspelled domains are a warning sign?", Options: []string{"true", "false", "maybe"}, AnswerIndex: 0},
				{Text: "Shortened URLs are always safe?", Options: []string{"yes", "no", "sometimes"}, AnswerIndex: 1},
				{Text: "IP addresses in links are suspicious?", Options: []string{"yes", "no", "rarely"}, AnswerIndex: 0},
				{Text: "Always verify links through official channels?", Options: []string{"yes", "no", "optional"}, AnswerIndex: 0},
				{Text: "HTTP links are safer than HTTPS?", Options: []string{"yes", "no", "same"}, AnswerIndex: 1},
				{Text: "Links in unexpected emails need verification?", Options: []string{"yes", "no", "maybe"}, AnswerIndex: 0},
				{Text: "Similar-looking domains are safe?", Options: []string{"yes", "no", "usually"}, AnswerIndex: 1},
				{Text: "Type important URLs directly instead of clicking?", Options: []string{"yes", "no", "depends"}, AnswerIndex: 0},
				{Text: "When in doubt, verify the sender?", Options: []string{"yes", "no", "optional"}, AnswerIndex: 0},
			},
		},
		"abnormal_email": {
			ID:    "abnormal_email",
			Title: "Recognizing Abnormal Email Patterns",
			Questions: []domain.Question{
				{Text: "Sender address should match display name?", Options: []string{"yes", "no", "maybe"}, AnswerIndex: 0},
				{Text: "Poor grammar in professional emails is normal?", Options: []string{"yes", "no", "sometimes"}, AnswerIndex: 1},
				{Text: "Generic greetings are suspicious?", Options: []string{"yes", "no", "rarely"}, AnswerIndex: 0},
				{Text: "Inconsistent branding is a red flag?", Options: []string{"yes", "no", "maybe"}, AnswerIndex: 0},
				{Text: "Unexpected urgent emails need verification?", Options: []string{"yes", "no", "optional"}, AnswerIndex: 0},
				{Text: "Reply-to address differences are normal?", Options: []string{"yes", "no", "sometimes"}, AnswerIndex: 1},
				{Text: "Check email headers for routing info?", Options: []string{"yes", "no", "optional"}, AnswerIndex: 0},
				{Text: "Report suspicious emails to IT security?", Options: []string{"yes", "no", "maybe"}, AnswerIndex: 0},
				{Text: "Contact sender through alternative channels?", Options: []string{"yes", "no", "depends"}, AnswerIndex: 0},
				{Text: "Unusual timing is suspicious?", Options: []string{"yes", "no", "rarely"}, AnswerIndex: 0},
			},
		},
		"random_email_address": {
			ID:    "random_email_address",
			Title: "Dealing with Suspicious Email Addresses",
			Questions: []domain.Question{
				{Text: "Random character combinations are suspicious?", Options: []string{"yes", "no", "maybe"}, AnswerIndex: 0},
				{Text: "Personal emails claiming to be businesses are safe?", Options: []string{"yes", "no", "sometimes"}, AnswerIndex: 1},
				{Text: "Similar-looking domains need verification?", Options: []string{"yes", "no", "optional"}, AnswerIndex: 0},
				{Text: "Business emails from free services are normal?", Options: []string{"yes", "no", "rarely"}, AnswerIndex: 1},
				{Text: "Check organization's official website for addresses?", Options: []string{"yes", "no", "optional"}, AnswerIndex: 0},
				{Text: "Misspelled domains are safe?", Options: []string{"yes", "no", "sometimes"}, AnswerIndex: 1},
				{Text: "Numbers before @ symbol in business emails are normal?", Options: []string{"yes", "no", "rarely"}, AnswerIndex: 1},
				{Text: "Never respond to unverified addresses?", Options: []string{"yes", "no", "maybe"}, AnswerIndex: 0},
				{Text: "Report suspicious addresses to email providers?", Options: []string{"yes", "no", "optional"}, AnswerIndex: 0},
				{Text: "When unsure, contact through official website?", Options: []string{"yes", "no", "depends"}, AnswerIndex: 0},
			},
		},
	}
}
