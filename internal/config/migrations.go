package config

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/statuscord/internal/migrate"
)

func init() {
	migrate.Config.Register(migrate.Migration{
		Version:     2,
		Description: "replace discord.app_id with named identities",
		Upgrade:     upgradeToIdentities,
	})
}

// upgradeToIdentities moves the single [discord] app_id into
// [identities.apps] under the default identity. Unrelated keys pass through.
func upgradeToIdentities(data []byte) ([]byte, error) {
	doc := map[string]any{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse v1 config: %w", err)
	}

	appID := DefaultAppID
	if d, ok := doc["discord"].(map[string]any); ok {
		if id, ok := d["app_id"].(string); ok && id != "" {
			appID = id
		}
		delete(doc, "discord")
	}

	doc["identities"] = map[string]any{
		"default": DefaultIdentity,
		"apps":    map[string]any{DefaultIdentity: appID},
	}
	doc["version"] = 2

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, fmt.Errorf("encode v2 config: %w", err)
	}
	return buf.Bytes(), nil
}
