// Package domains loads failover domains: named, optionally ordered
// and/or restricted sets of cluster members eligible to run a group.
package domains

import (
	"encoding/json"
	"fmt"

	"github.com/ocfcluster/rgmd/pkg/config"
	"github.com/ocfcluster/rgmd/pkg/rgerr"
	"github.com/ocfcluster/rgmd/pkg/types"
)

const domainsPath = "/cluster/rm/failoverdomains"

type doc struct {
	Name       string              `json:"name"`
	Ordered    bool                `json:"ordered"`
	Restricted bool                `json:"restricted"`
	Members    []types.DomainMember `json:"members"`
}

// Load reads and validates "/cluster/rm/failoverdomains", returning
// the domain set keyed by name.
func Load(store config.Store) (map[string]*types.Domain, error) {
	raw, found, err := store.Get(domainsPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", domainsPath, err)
	}
	if !found {
		return map[string]*types.Domain{}, nil
	}

	var docs []doc
	if err := json.Unmarshal([]byte(raw), &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w: %v", domainsPath, rgerr.ErrConfig, err)
	}

	domains := make(map[string]*types.Domain, len(docs))
	for _, d := range docs {
		if d.Name == "" {
			return nil, fmt.Errorf("failover domain with empty name: %w", rgerr.ErrConfig)
		}
		if _, dup := domains[d.Name]; dup {
			return nil, fmt.Errorf("duplicate failover domain %q: %w", d.Name, rgerr.ErrConfig)
		}
		seen := make(map[uint64]bool, len(d.Members))
		for _, m := range d.Members {
			if seen[m.NodeID] {
				return nil, fmt.Errorf("failover domain %q lists node %d more than once: %w", d.Name, m.NodeID, rgerr.ErrConfig)
			}
			seen[m.NodeID] = true
		}
		domains[d.Name] = &types.Domain{
			Name:       d.Name,
			Ordered:    d.Ordered,
			Restricted: d.Restricted,
			Members:    d.Members,
		}
	}

	return domains, nil
}
