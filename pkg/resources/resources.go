// Package resources loads resource instances and links them into
// per-group dependency trees.
package resources

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ocfcluster/rgmd/pkg/config"
	"github.com/ocfcluster/rgmd/pkg/rgerr"
	"github.com/ocfcluster/rgmd/pkg/types"
)

const resourcesPath = "/cluster/rm/resources"

// doc mirrors the JSON encoding of one resource instance. ParentKey is
// the primary key (first attr's value) of the resource's parent in
// its tree, or "" if this resource is a tree root.
type doc struct {
	RuleName  string       `json:"rule_name"`
	Attrs     []types.Attr `json:"attrs"`
	ParentKey string       `json:"parent_key"`
}

// Result is the output of Load: the flat resource set keyed by
// primary key, and the forest of per-group trees built from it.
type Result struct {
	Resources map[string]*types.Resource
	Roots     []*types.Node
}

// Load reads "/cluster/rm/resources", validates each instance against
// rules, and links them into trees. rules must already be loaded
// (pkg/ruleset).
func Load(store config.Store, rules map[string]*types.Rule) (*Result, error) {
	raw, found, err := store.Get(resourcesPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", resourcesPath, err)
	}
	if !found {
		return &Result{Resources: map[string]*types.Resource{}}, nil
	}

	var docs []doc
	if err := json.Unmarshal([]byte(raw), &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w: %v", resourcesPath, rgerr.ErrConfig, err)
	}

	resources := make(map[string]*types.Resource, len(docs))
	nodes := make(map[string]*types.Node, len(docs))
	parentOf := make(map[string]string, len(docs))

	for _, d := range docs {
		rule, ok := rules[d.RuleName]
		if !ok {
			return nil, fmt.Errorf("resource references unknown rule %q: %w", d.RuleName, rgerr.ErrConfig)
		}
		res := &types.Resource{RuleName: d.RuleName, Attrs: d.Attrs}
		name := res.Name()
		if name == "" {
			return nil, fmt.Errorf("resource of type %q has no primary key attribute: %w", d.RuleName, rgerr.ErrConfig)
		}
		if _, dup := resources[name]; dup {
			return nil, fmt.Errorf("duplicate resource name %q: %w", name, rgerr.ErrConfig)
		}
		for _, a := range d.Attrs {
			if !rule.KnowsAttr(a.Name) && a.Name != d.Attrs[0].Name {
				return nil, fmt.Errorf("resource %q: rule %q does not declare attribute %q: %w", name, d.RuleName, a.Name, rgerr.ErrConfig)
			}
		}
		for _, req := range rule.RequiredAttrs {
			if _, present := res.Attr(req); !present {
				return nil, fmt.Errorf("resource %q missing required attribute %q: %w", name, req, rgerr.ErrConfig)
			}
		}
		if d.ParentKey == "" && !rule.IsRoot {
			return nil, fmt.Errorf("resource %q of non-root type %q declares no parent: %w", name, d.RuleName, rgerr.ErrConfig)
		}

		resources[name] = res
		nodes[name] = &types.Node{Resource: res}
		parentOf[name] = d.ParentKey
	}

	var roots []*types.Node
	for name, node := range nodes {
		parentKey := parentOf[name]
		if parentKey == "" {
			roots = append(roots, node)
			continue
		}
		parentNode, ok := nodes[parentKey]
		if !ok {
			return nil, fmt.Errorf("resource %q declares unknown parent %q: %w", name, parentKey, rgerr.ErrConfig)
		}
		parentRule := rules[parentNode.Resource.RuleName]
		if parentRule.ChildIndex(node.Resource.RuleName) < 0 {
			return nil, fmt.Errorf("resource %q of type %q is not a permitted child of %q (type %q): %w",
				name, node.Resource.RuleName, parentKey, parentNode.Resource.RuleName, rgerr.ErrConfig)
		}
		parentNode.Children = append(parentNode.Children, node)
	}

	for _, node := range nodes {
		if len(node.Children) == 0 {
			continue
		}
		rule := rules[node.Resource.RuleName]
		sort.SliceStable(node.Children, func(i, j int) bool {
			return rule.ChildIndex(node.Children[i].Resource.RuleName) < rule.ChildIndex(node.Children[j].Resource.RuleName)
		})
	}

	reached := make(map[string]bool, len(nodes))
	var mark func(n *types.Node)
	mark = func(n *types.Node) {
		name := n.Resource.Name()
		if reached[name] {
			return
		}
		reached[name] = true
		for _, c := range n.Children {
			mark(c)
		}
	}
	for _, r := range roots {
		mark(r)
	}
	for name := range nodes {
		if !reached[name] {
			return nil, fmt.Errorf("resource %q is unreachable from any tree root (cycle in parent links): %w", name, rgerr.ErrConfig)
		}
	}

	sort.SliceStable(roots, func(i, j int) bool {
		return roots[i].Resource.Name() < roots[j].Resource.Name()
	})

	return &Result{Resources: resources, Roots: roots}, nil
}
