package schema

import "strings"

// SyncConfigKey is the reserved key of the sync configuration in the
// configuration collection.
const SyncConfigKey = "sync"

// SyncConfig identifies the remote document and the credential used to write it.
type SyncConfig struct {
	DocumentID string `json:"documentId"`
	Credential string `json:"credential"`
}

// RecordKey always returns the reserved key; there is one config per store.
func (c *SyncConfig) RecordKey() string {
	return SyncConfigKey
}

// Enabled reports whether both fields are present. An incomplete
// configuration disables sync.
func (c SyncConfig) Enabled() bool {
	return strings.TrimSpace(c.DocumentID) != "" && strings.TrimSpace(c.Credential) != ""
}

// Redacted returns a copy safe to print or serve.
func (c SyncConfig) Redacted() SyncConfig {
	out := SyncConfig{DocumentID: c.DocumentID}
	if c.Credential != "" {
		n := len(c.Credential)
		if n > 4 {
			out.Credential = strings.Repeat("*", n-4) + c.Credential[n-4:]
		} else {
			out.Credential = strings.Repeat("*", n)
		}
	}
	return out
}
