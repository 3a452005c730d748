// Package ruleset loads and validates resource-type schemas: the rule
// set that resources (pkg/resources) are instances of.
package ruleset

import (
	"encoding/json"
	"fmt"

	"github.com/ocfcluster/rgmd/pkg/config"
	"github.com/ocfcluster/rgmd/pkg/rgerr"
	"github.com/ocfcluster/rgmd/pkg/types"
)

const rulesPath = "/cluster/rm/rules"

// doc mirrors the JSON encoding of one rule in the configuration
// store. Field names match types.Rule; kept separate so the wire
// format can evolve independently of the in-memory type.
type doc struct {
	TypeName      string   `json:"type_name"`
	RequiredAttrs []string `json:"required_attrs"`
	OptionalAttrs []string `json:"optional_attrs"`
	ChildTypes    []string `json:"child_types"`
	IsRoot        bool     `json:"is_root"`
}

// Load reads and validates the rule set at "/cluster/rm/rules",
// returning it keyed by type name. A missing path yields an empty,
// valid rule set rather than an error.
func Load(store config.Store) (map[string]*types.Rule, error) {
	raw, found, err := store.Get(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rulesPath, err)
	}
	if !found {
		return map[string]*types.Rule{}, nil
	}

	var docs []doc
	if err := json.Unmarshal([]byte(raw), &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w: %v", rulesPath, rgerr.ErrConfig, err)
	}

	rules := make(map[string]*types.Rule, len(docs))
	for _, d := range docs {
		if d.TypeName == "" {
			return nil, fmt.Errorf("rule with empty type_name: %w", rgerr.ErrConfig)
		}
		if _, dup := rules[d.TypeName]; dup {
			return nil, fmt.Errorf("duplicate rule type_name %q: %w", d.TypeName, rgerr.ErrConfig)
		}
		rules[d.TypeName] = &types.Rule{
			TypeName:      d.TypeName,
			RequiredAttrs: d.RequiredAttrs,
			OptionalAttrs: d.OptionalAttrs,
			ChildTypes:    d.ChildTypes,
			IsRoot:        d.IsRoot,
		}
	}

	for _, r := range rules {
		for _, child := range r.ChildTypes {
			if _, ok := rules[child]; !ok {
				return nil, fmt.Errorf("rule %q declares unknown child type %q: %w", r.TypeName, child, rgerr.ErrConfig)
			}
		}
	}

	return rules, nil
}
