// Package settings is the user-facing configuration the enrichment
// pipeline reads on every decision: whether enrichment is on, what to send
// the service, and whether demo mode is active.
//
// The values live in a small SQLite database that the settings UI (or the
// control API) writes. Store keeps an in-memory snapshot, reloads it when
// another connection commits, and notifies subscribers of every change.
package settings

// Settings is the recognised option set.
type Settings struct {
	ExtensionEnabled bool   `json:"extensionEnabled"`
	TemplateID       string `json:"templateId"`
	EnableWebSearch  bool   `json:"enableWebSearch"`
	DemoMode         bool   `json:"demoMode"`
}

// Defaults is what a fresh store holds.
func Defaults() Settings {
	return Settings{ExtensionEnabled: true}
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	ExtensionEnabled *bool   `json:"extensionEnabled,omitempty"`
	TemplateID       *string `json:"templateId,omitempty"`
	EnableWebSearch  *bool   `json:"enableWebSearch,omitempty"`
	DemoMode         *bool   `json:"demoMode,omitempty"`
}

// Apply returns s with p applied.
func (p Patch) Apply(s Settings) Settings {
	if p.ExtensionEnabled != nil {
		s.ExtensionEnabled = *p.ExtensionEnabled
	}
	if p.TemplateID != nil {
		s.TemplateID = *p.TemplateID
	}
	if p.EnableWebSearch != nil {
		s.EnableWebSearch = *p.EnableWebSearch
	}
	if p.DemoMode != nil {
		s.DemoMode = *p.DemoMode
	}
	return s
}

// Empty reports whether p changes nothing.
func (p Patch) Empty() bool {
	return p.ExtensionEnabled == nil && p.TemplateID == nil && p.EnableWebSearch == nil && p.DemoMode == nil
}

// Static is a fixed Source, for callers that have no store.
type Static Settings

// Get implements Source.
func (s Static) Get() Settings { return Settings(s) }

// Source is anything that yields the current settings.
type Source interface {
	Get() Settings
}
