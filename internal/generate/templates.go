package generate

import "github.com/dmhud/dmhud/internal/campaign"

// RiffTemplate describes one speculative detail slot a card type offers.
// Key addresses the card's riff map, Label names it in prompts and on the
// dashboard, Prompt is the generation instruction fragment.
type RiffTemplate struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Prompt string `json:"prompt"`
}

// riffTemplates is the fixed per-type template catalog.
var riffTemplates = map[campaign.CardType][]RiffTemplate{
	campaign.CardCharacter: {
		{Key: "fullName", Label: "Full Name", Prompt: "a fitting full name"},
		{Key: "appearance", Label: "Appearance", Prompt: "a brief physical description"},
		{Key: "voice", Label: "Voice", Prompt: "their voice quality or accent"},
		{Key: "secret", Label: "Secret", Prompt: "a hidden motivation"},
	},
	campaign.CardLocation: {
		{Key: "atmosphere", Label: "Atmosphere", Prompt: "the mood of this place"},
		{Key: "sounds", Label: "Sounds", Prompt: "what sounds can be heard"},
		{Key: "notable", Label: "Notable Feature", Prompt: "a distinctive feature"},
	},
	campaign.CardItem: {
		{Key: "origin", Label: "Origin", Prompt: "where this came from"},
		{Key: "property", Label: "Hidden Property", Prompt: "a secret property"},
	},
	campaign.CardEnemy: {
		{Key: "distinguishing", Label: "Distinguishing", Prompt: "what makes this one distinct"},
		{Key: "tactics", Label: "Tactics", Prompt: "how they fight"},
		{Key: "weakness", Label: "Weakness", Prompt: "a vulnerability"},
	},
	campaign.CardPlot: {
		{Key: "twist", Label: "Twist", Prompt: "an unexpected development"},
		{Key: "connection", Label: "Connection", Prompt: "how this connects elsewhere"},
	},
}

// TemplatesFor returns the riff templates available for a card type. Types
// without a catalog entry (and unknown types) return nil.
func TemplatesFor(t campaign.CardType) []RiffTemplate {
	return riffTemplates[t]
}

// TemplateFor looks up a single template by card type and key.
func TemplateFor(t campaign.CardType, key string) (RiffTemplate, bool) {
	for _, tpl := range riffTemplates[t] {
		if tpl.Key == key {
			return tpl, true
		}
	}
	return RiffTemplate{}, false
}
