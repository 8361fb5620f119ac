package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteInjectsBALOnce(t *testing.T) {
	source := "contract Bank {\n    mapping(address => uint) public balances;\n}"
	result := Rewrite(source)

	assert.Contains(t, result.Source, "uint public BAL = 100;")

	again := Rewrite(result.Source)
	assert.Equal(t, 1, countOccurrences(again.Source, "uint public BAL = 100;"))
}

func TestRewriteScalarizesMapping(t *testing.T) {
	source := "contract Bank {\n    mapping(address => uint) public balances;\n}"
	result := Rewrite(source)

	require.Len(t, result.Mappings, 1)
	assert.Equal(t, "balances", result.Mappings[0].Name)
	assert.Equal(t, "uint", result.Mappings[0].ValueType)
	assert.NotContains(t, result.Source, "mapping(")
	assert.Contains(t, result.Source, "uint balances = 40;")
}

func TestRewriteMappingAccessBecomesScalarName(t *testing.T) {
	source := "contract Bank {\n    mapping(address => uint) public balances;\n    function f() public { balances[msg.sender] = 1; }\n}"
	result := Rewrite(source)

	assert.NotContains(t, result.Source, "balances[msg.sender]")
	assert.Contains(t, result.Source, "balances = 1;")
}

func TestRewriteIsIdempotent(t *testing.T) {
	source := `contract Bank {
    mapping(address => uint) public balances;
    function withdraw(uint amount) public {
        require(msg.sender.call.value(amount)());
        balances[msg.sender] -= amount;
    }
}`
	once := Rewrite(source)
	twice := Rewrite(once.Source)

	assert.Equal(t, once.Source, twice.Source)
}

func TestRewriteCanonicalizesRequireCallValue(t *testing.T) {
	source := "contract Bank {\n    mapping(address => uint) public balances;\n    function withdraw(uint amount) public {\n    require(msg.sender.call.value(amount)());\n}\n}"
	result := Rewrite(source)

	assert.Contains(t, result.Source, "if (BAL > 0 && balances >= amount)")
	assert.Contains(t, result.Source, "BAL = BAL - amount;")
	assert.NotContains(t, result.Source, "call.value")
}

func TestRewriteCanonicalizesRequireCallValueWithoutMapping(t *testing.T) {
	source := "function withdraw(uint amount) public {\n    require(msg.sender.call.value(amount)());\n}"
	result := Rewrite(source)

	assert.Contains(t, result.Source, "if (BAL > 0) {")
	assert.Contains(t, result.Source, "BAL = BAL - amount;")
	assert.NotContains(t, result.Source, "call.value")
}

func TestRewriteCanonicalizesSendAndTransfer(t *testing.T) {
	sendSrc := "function f() public {\n    msg.sender.send(amount);\n}"
	sendOut := Rewrite(sendSrc).Source
	assert.Contains(t, sendOut, "BAL = BAL - amount;")
	assert.NotContains(t, sendOut, ".send(")

	transferSrc := "function f() public {\n    msg.sender.transfer(amount);\n}"
	transferOut := Rewrite(transferSrc).Source
	assert.Contains(t, transferOut, "BAL = BAL - amount;")
	assert.NotContains(t, transferOut, ".transfer(")
}

// Scenario D (spec.md §8): mapping(address => uint) balances; function
// w(uint v) public { msg.sender.transfer(v); } rewrites balances to a
// scalar initialized to 40, and the transfer to the canonical guarded
// decrement against that scalar.
func TestScenarioD_MappingAndTransferRewrite(t *testing.T) {
	source := "contract Bank {\n    mapping(address => uint) balances;\n    function w(uint v) public {\n        msg.sender.transfer(v);\n    }\n}"
	result := Rewrite(source)

	require.Len(t, result.Mappings, 1)
	assert.Equal(t, "balances", result.Mappings[0].Name)
	assert.Contains(t, result.Source, "uint balances = 40;")
	assert.Contains(t, result.Source, "if (BAL > 0 && balances >= v) { BAL = BAL - v; }")
}

func TestRewriteCanonicalizesTokenBalanceAssignment(t *testing.T) {
	source := "function f() public {\n    bal = token.balanceOf(this);\n}"
	result := Rewrite(source)

	assert.NotContains(t, result.Source, "bal = token.balanceOf(this);")
	assert.Contains(t, result.Source, "uint simulated_token_balance = 60;")
	assert.Contains(t, result.Source, "bal = simulated_token_balance;")

	twice := Rewrite(result.Source)
	assert.Equal(t, result.Source, twice.Source)
}

func TestRewriteCanonicalizesNegatedCallElsePattern(t *testing.T) {
	source := "contract Bank {\n    mapping(address => uint) public balances;\n    function withdraw(uint amount) public {\n    if (!msg.sender.call.value(amount)()) { failed = true; } else { ok = true; }\n}\n}"
	result := Rewrite(source)

	assert.Contains(t, result.Source, "if (BAL > 0 && balances >= amount)")
	assert.Contains(t, result.Source, "BAL = BAL - amount;")
	assert.Contains(t, result.Source, "ok = true;")
	assert.Contains(t, result.Source, "else { failed = true; }")
	assert.NotContains(t, result.Source, "call.value")

	twice := Rewrite(result.Source)
	assert.Equal(t, result.Source, twice.Source)
}

func TestDefaultForType(t *testing.T) {
	assert.Equal(t, "false", defaultForType("bool"))
	assert.Equal(t, `"default"`, defaultForType("string"))
	assert.Equal(t, "address(0)", defaultForType("address"))
	assert.Equal(t, "40", defaultForType("uint256"))
	assert.Equal(t, "40", defaultForType("int128"))
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
			i += len(sub) - 1
		}
	}
	return count
}
