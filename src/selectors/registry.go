package selectors

import (
	"sync"
)

// Role names a semantic element of the chat composer.
type Role string

const (
	RoleStop   Role = "stop"
	RoleSend   Role = "send"
	RoleVoice  Role = "voice"
	RoleUpload Role = "upload"
)

// DefaultEditor is the contenteditable surface of the composer.
const DefaultEditor = `.ProseMirror[contenteditable="true"]`

// Chains returns the built-in selector chains. The first entry of each
// chain is the stable data-testid; the rest tolerate markup drift.
func Chains() map[Role][]string {
	return map[Role][]string{
		RoleStop: {
			`button[data-testid="stop-button"]`,
			`button[aria-label*="停止"]`,
			`button[aria-label*="Stop"]`,
			`button:has(svg rect[width="10"][height="10"])`,
			`button#composer-submit-button[aria-label*="停止"]`,
		},
		RoleSend: {
			`button[data-testid="send-button"]`,
			`button[aria-label*="发送"]`,
			`button[aria-label*="Send"]`,
			`button:has(svg path[d*="14.9993V5.41334"])`,
			`button#composer-submit-button[aria-label*="发送"]`,
			`button#composer-submit-button[aria-label*="Send"]`,
		},
		RoleVoice: {
			`button[data-testid="composer-speech-button"]`,
			`button[aria-label*="语音"]`,
			`button[aria-label*="Voice"]`,
			`button[aria-label*="启动语音模式"]`,
		},
		RoleUpload: {
			`[data-testid*="upload"]`,
			`[class*="upload"]`,
			`[class*="attachment"]`,
			`[data-testid*="file"]`,
			`[class*="file-upload"]`,
			`[class*="image-upload"]`,
			`[data-testid*="image"]`,
			`[class*="progress"]`,
			`[class*="loading"]`,
			`[class*="uploading"]`,
		},
	}
}

// Registry holds the ordered selector chains per role. It is safe for
// concurrent use; Resolve always returns a copy.
type Registry struct {
	mu     sync.RWMutex
	chains map[Role][]string
	editor string
}

// New returns a registry seeded with the built-in chains.
func New() *Registry {
	return &Registry{chains: Chains(), editor: DefaultEditor}
}

// Resolve returns the ordered chain for role. Unknown roles yield nil.
func (r *Registry) Resolve(role Role) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain := r.chains[role]
	if len(chain) == 0 {
		return nil
	}
	out := make([]string, len(chain))
	copy(out, chain)
	return out
}

// Editor returns the selector of the editable surface.
func (r *Registry) Editor() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.editor
}

// SetEditor replaces the editor selector. Empty values are ignored.
func (r *Registry) SetEditor(sel string) {
	if sel == "" {
		return
	}
	r.mu.Lock()
	r.editor = sel
	r.mu.Unlock()
}

// Set replaces the chain for role.
func (r *Registry) Set(role Role, chain []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[role] = compact(chain)
}

// Prepend adds selectors ahead of the current chain, giving them priority.
func (r *Registry) Prepend(role Role, sels ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[role] = compact(append(append([]string{}, sels...), r.chains[role]...))
}

// Append adds fallback selectors after the current chain.
func (r *Registry) Append(role Role, sels ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chains[role] = compact(append(append([]string{}, r.chains[role]...), sels...))
}

// Roles lists the roles that currently have a chain.
func (r *Registry) Roles() []Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roles := make([]Role, 0, len(r.chains))
	for _, role := range []Role{RoleStop, RoleSend, RoleVoice, RoleUpload} {
		if len(r.chains[role]) > 0 {
			roles = append(roles, role)
		}
	}
	return roles
}

// compact drops empty and duplicate selectors, keeping first occurrence order.
func compact(chain []string) []string {
	seen := make(map[string]struct{}, len(chain))
	out := make([]string, 0, len(chain))
	for _, s := range chain {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
