package resources

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ocfcluster/rgmd/pkg/rgerr"
	"github.com/ocfcluster/rgmd/pkg/types"
)

type mapStore map[string]string

func (s mapStore) Get(path string) (string, bool, error) {
	v, ok := s[path]
	return v, ok, nil
}
func (s mapStore) GetVersion() (int64, error) { return 1, nil }
func (s mapStore) Close() error               { return nil }

func testRules() map[string]*types.Rule {
	return map[string]*types.Rule{
		"service": {TypeName: "service", ChildTypes: []string{"ip", "fs"}, IsRoot: true},
		"ip":      {TypeName: "ip", RequiredAttrs: []string{"address"}},
		"fs":      {TypeName: "fs", RequiredAttrs: []string{"device"}},
	}
}

func TestLoadBuildsTreeInRuleOrder(t *testing.T) {
	// Children declared fs-before-ip in the store; the tree must come
	// out ip-before-fs, the order the service rule declares.
	store := mapStore{resourcesPath: `[
		{"rule_name":"service","attrs":[{"Name":"name","Value":"svc_a"}]},
		{"rule_name":"fs","attrs":[{"Name":"name","Value":"svc_a_fs"},{"Name":"device","Value":"/dev/sda1"}],"parent_key":"svc_a"},
		{"rule_name":"ip","attrs":[{"Name":"name","Value":"svc_a_ip"},{"Name":"address","Value":"10.0.0.1"}],"parent_key":"svc_a"}
	]`}

	result, err := Load(store, testRules())
	require.NoError(t, err)
	require.Len(t, result.Roots, 1)

	root := result.Roots[0]
	require.Equal(t, "svc_a", root.Resource.Name())
	require.Len(t, root.Children, 2)
	require.Equal(t, "ip", root.Children[0].Resource.RuleName)
	require.Equal(t, "fs", root.Children[1].Resource.RuleName)
}

func TestLoadRejectsMissingRequiredAttr(t *testing.T) {
	store := mapStore{resourcesPath: `[
		{"rule_name":"service","attrs":[{"Name":"name","Value":"svc_a"}]},
		{"rule_name":"ip","attrs":[{"Name":"name","Value":"svc_a_ip"}],"parent_key":"svc_a"}
	]`}

	_, err := Load(store, testRules())
	require.ErrorIs(t, err, rgerr.ErrConfig)
}

func TestLoadRejectsUnknownRule(t *testing.T) {
	store := mapStore{resourcesPath: `[
		{"rule_name":"ghost","attrs":[{"Name":"name","Value":"x"}]}
	]`}

	_, err := Load(store, testRules())
	require.ErrorIs(t, err, rgerr.ErrConfig)
}

func TestLoadRejectsImpermissibleChild(t *testing.T) {
	store := mapStore{resourcesPath: `[
		{"rule_name":"service","attrs":[{"Name":"name","Value":"svc_a"}]},
		{"rule_name":"ip","attrs":[{"Name":"name","Value":"ip_a"},{"Name":"address","Value":"10.0.0.1"}],"parent_key":"svc_a"},
		{"rule_name":"fs","attrs":[{"Name":"name","Value":"fs_a"},{"Name":"device","Value":"/dev/sda1"}],"parent_key":"ip_a"}
	]`}

	_, err := Load(store, testRules())
	require.ErrorIs(t, err, rgerr.ErrConfig)
}

func TestLoadRejectsParentCycle(t *testing.T) {
	// Two non-root resources naming each other as parent never reach a
	// root, which the reachability check rejects.
	rules := map[string]*types.Rule{
		"ip": {TypeName: "ip", RequiredAttrs: []string{"address"}, ChildTypes: []string{"ip"}},
	}
	store := mapStore{resourcesPath: `[
		{"rule_name":"ip","attrs":[{"Name":"name","Value":"a"},{"Name":"address","Value":"1"}],"parent_key":"b"},
		{"rule_name":"ip","attrs":[{"Name":"name","Value":"b"},{"Name":"address","Value":"2"}],"parent_key":"a"}
	]`}

	_, err := Load(store, rules)
	require.ErrorIs(t, err, rgerr.ErrConfig)
}

func TestLoadRejectsDuplicateResourceName(t *testing.T) {
	store := mapStore{resourcesPath: `[
		{"rule_name":"service","attrs":[{"Name":"name","Value":"svc_a"}]},
		{"rule_name":"service","attrs":[{"Name":"name","Value":"svc_a"}]}
	]`}

	_, err := Load(store, testRules())
	require.ErrorIs(t, err, rgerr.ErrConfig)
}

func TestLoadRejectsNonRootWithoutParent(t *testing.T) {
	store := mapStore{resourcesPath: `[
		{"rule_name":"ip","attrs":[{"Name":"name","Value":"lonely"},{"Name":"address","Value":"10.0.0.1"}]}
	]`}

	_, err := Load(store, testRules())
	require.ErrorIs(t, err, rgerr.ErrConfig)
}
