package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	pkgquery "github.com/sheetql/sheetql/pkg/query"
)

func TestParseCondition(t *testing.T) {
	tests := []struct {
		raw  string
		want pkgquery.Condition
	}{
		{raw: "role=admin", want: pkgquery.Condition{Column: "role", Operator: pkgquery.OpEqual, Value: "admin"}},
		{raw: "role==admin", want: pkgquery.Condition{Column: "role", Operator: pkgquery.OpEqual, Value: "admin"}},
		{raw: "role!=admin", want: pkgquery.Condition{Column: "role", Operator: pkgquery.OpNotEqual, Value: "admin"}},
		{raw: "role<>admin", want: pkgquery.Condition{Column: "role", Operator: pkgquery.OpNotEqual, Value: "admin"}},
		{raw: "age>=30", want: pkgquery.Condition{Column: "age", Operator: pkgquery.OpGreaterEqual, Value: "30"}},
		{raw: "age<=30", want: pkgquery.Condition{Column: "age", Operator: pkgquery.OpLessEqual, Value: "30"}},
		{raw: "age>30", want: pkgquery.Condition{Column: "age", Operator: pkgquery.OpGreater, Value: "30"}},
		{raw: "age<30", want: pkgquery.Condition{Column: "age", Operator: pkgquery.OpLess, Value: "30"}},
		{raw: "note=", want: pkgquery.Condition{Column: "note", Operator: pkgquery.OpEqual, Value: ""}},
		{raw: "url=http://example.com", want: pkgquery.Condition{Column: "url", Operator: pkgquery.OpEqual, Value: "http://example.com"}},
		{raw: "name:like:a%", want: pkgquery.Condition{Column: "name", Operator: pkgquery.OpLike, Value: "a%"}},
		{raw: "name:contains:nn", want: pkgquery.Condition{Column: "name", Operator: pkgquery.OpContains, Value: "nn"}},
		{raw: "time:like:10:%", want: pkgquery.Condition{Column: "time", Operator: pkgquery.OpLike, Value: "10:%"}},
		{raw: "status:in:a, b", want: pkgquery.Condition{Column: "status", Operator: pkgquery.OpIn, Value: []string{"a", "b"}}},
		{raw: "status:NOTIN:a", want: pkgquery.Condition{Column: "status", Operator: pkgquery.OpNotIn, Value: []string{"a"}}},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseCondition(tc.raw)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestParseConditionErrors(t *testing.T) {
	for _, raw := range []string{"", "role", "=admin", " =admin", "name:unknown"} {
		_, err := ParseCondition(raw)
		require.Error(t, err, raw)
	}
}

func TestRelationSpecs(t *testing.T) {
	specs, err := relationSpecs("department, posts.comments, posts.author")
	require.NoError(t, err)
	require.Len(t, specs, 2)
	require.Equal(t, "department", specs[0].String())
	require.Equal(t, "posts{comments,author}", specs[1].String())

	_, err = relationSpecs("posts..comments")
	require.ErrorContains(t, err, "invalid --with")
}
