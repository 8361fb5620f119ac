package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avlsec/solanalyzer/report"
)

func TestJSONFormatterFormat(t *testing.T) {
	findings := []report.Finding{
		{Variable: "owner", DefNode: "Assignment_0", DefFunc: "setOwner", UseNode: "FunctionCall_2", UseFunc: "withdraw", Severity: report.SeverityHigh},
	}

	var buf bytes.Buffer
	f := NewJSONFormatterWithWriter(&buf)
	require.NoError(t, f.Format(findings, ScanInfo{Target: "contract.sol", Version: "test"}))

	assert.Contains(t, buf.String(), `"variable": "owner"`)
	assert.Contains(t, buf.String(), `"total": 1`)
}

func TestJSONFormatterEmpty(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatterWithWriter(&buf)
	require.NoError(t, f.Format(nil, ScanInfo{}))
	assert.Contains(t, buf.String(), `"total": 0`)
}
