package ruleset

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ocfcluster/rgmd/pkg/rgerr"
)

type mapStore map[string]string

func (s mapStore) Get(path string) (string, bool, error) {
	v, ok := s[path]
	return v, ok, nil
}
func (s mapStore) GetVersion() (int64, error) { return 1, nil }
func (s mapStore) Close() error               { return nil }

func TestLoadMissingPathYieldsEmptyRuleSet(t *testing.T) {
	rules, err := Load(mapStore{})
	require.NoError(t, err)
	require.Empty(t, rules)
}

func TestLoadValidRules(t *testing.T) {
	store := mapStore{rulesPath: `[
		{"type_name":"service","optional_attrs":["domain"],"child_types":["ip","fs"],"is_root":true},
		{"type_name":"ip","required_attrs":["address"]},
		{"type_name":"fs","required_attrs":["device"],"optional_attrs":["options"]}
	]`}

	rules, err := Load(store)
	require.NoError(t, err)
	require.Len(t, rules, 3)

	svc := rules["service"]
	require.True(t, svc.IsRoot)
	require.Equal(t, []string{"ip", "fs"}, svc.ChildTypes)
	require.Equal(t, 0, svc.ChildIndex("ip"))
	require.Equal(t, 1, svc.ChildIndex("fs"))
	require.Equal(t, -1, svc.ChildIndex("service"))

	fs := rules["fs"]
	require.True(t, fs.KnowsAttr("device"))
	require.True(t, fs.KnowsAttr("options"))
	require.False(t, fs.KnowsAttr("address"))
}

func TestLoadRejectsUnknownChildType(t *testing.T) {
	store := mapStore{rulesPath: `[
		{"type_name":"service","child_types":["ghost"],"is_root":true}
	]`}

	_, err := Load(store)
	require.ErrorIs(t, err, rgerr.ErrConfig)
}

func TestLoadRejectsDuplicateTypeName(t *testing.T) {
	store := mapStore{rulesPath: `[
		{"type_name":"service","is_root":true},
		{"type_name":"service","is_root":true}
	]`}

	_, err := Load(store)
	require.ErrorIs(t, err, rgerr.ErrConfig)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	store := mapStore{rulesPath: `{not json`}
	_, err := Load(store)
	require.ErrorIs(t, err, rgerr.ErrConfig)
}
