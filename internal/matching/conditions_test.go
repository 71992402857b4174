package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtserve/virtserve/pkg/virt"
)

func TestEvaluateConditions(t *testing.T) {
	req := testRequest()
	match := virt.Condition{Source: virt.SourceHeader, Field: "X-Tenant", Operator: virt.OpEquals, Value: "acme"}
	miss := virt.Condition{Source: virt.SourceHeader, Field: "X-Tenant", Operator: virt.OpEquals, Value: "other"}

	assert.True(t, EvaluateConditions(nil, virt.LogicAnd, req, virt.ProtocolREST))
	assert.True(t, EvaluateConditions([]virt.Condition{match, match}, virt.LogicAnd, req, virt.ProtocolREST))
	assert.False(t, EvaluateConditions([]virt.Condition{match, miss}, virt.LogicAnd, req, virt.ProtocolREST))
	assert.True(t, EvaluateConditions([]virt.Condition{match, miss}, virt.LogicOr, req, virt.ProtocolREST))
	assert.False(t, EvaluateConditions([]virt.Condition{miss, miss}, virt.LogicOr, req, virt.ProtocolREST))

	// unknown mode behaves as AND
	assert.False(t, EvaluateConditions([]virt.Condition{match, miss}, virt.LogicMode("xor"), req, virt.ProtocolREST))
}

func TestDecodeConditions(t *testing.T) {
	conds, ok := DecodeConditions(`[{"source":"header","field":"X","operator":"equals","value":"1"}]`)
	require.True(t, ok)
	require.Len(t, conds, 1)
	assert.Equal(t, virt.SourceHeader, conds[0].Source)

	conds, ok = DecodeConditions("")
	assert.True(t, ok)
	assert.Empty(t, conds)

	conds, ok = DecodeConditions(`{broken`)
	assert.False(t, ok)
	assert.Empty(t, conds)
}

func TestDecodeHeaders(t *testing.T) {
	headers, ok := DecodeHeaders(`{"Content-Type":"text/plain"}`)
	require.True(t, ok)
	assert.Equal(t, "text/plain", headers["Content-Type"])

	headers, ok = DecodeHeaders("")
	assert.True(t, ok)
	assert.Empty(t, headers)

	headers, ok = DecodeHeaders(`[1,2]`)
	assert.False(t, ok)
	assert.Empty(t, headers)
}
