package lexer

import (
	"testing"
)

// kinds filters out whitespace and returns just the token kinds.
func kinds(t *testing.T, src string) []Kind {
	t.Helper()
	tokens, err := Tokenize(src, 1)
	if err != nil {
		t.Fatalf("tokenize %q: %v", src, err)
	}
	var out []Kind
	for _, tok := range tokens {
		if tok.Kind != TokenWhitespace {
			out = append(out, tok.Kind)
		}
	}
	return out
}

func TestTokenizeSimpleVar(t *testing.T) {
	tokens, err := Tokenize("name", 1)
	if err != nil {
		t.Fatalf("tokenize error: %v", err)
	}
	if len(tokens) != 1 {
		t.Fatalf("expected 1 token, got %d", len(tokens))
	}
	if tokens[0].Kind != TokenVar || tokens[0].Value != "name" {
		t.Errorf("expected Var(name), got %v", tokens[0])
	}
}

func TestTokenizeDottedPath(t *testing.T) {
	tokens, err := Tokenize("user.profile.name", 1)
	if err != nil {
		t.Fatalf("tokenize error: %v", err)
	}
	if len(tokens) != 1 {
		t.Fatalf("expected a single path token, got %d: %v", len(tokens), tokens)
	}
	if tokens[0].Kind != TokenVar || tokens[0].Value != "user.profile.name" {
		t.Errorf("expected Var(user.profile.name), got %v", tokens[0])
	}
}

func TestTokenizeStrings(t *testing.T) {
	for _, tc := range []struct {
		src  string
		want string
	}{
		{`"hello"`, "hello"},
		{`'hello'`, "hello"},
		{`"it's"`, "it's"},
		{`"a\nb"`, "a\nb"},
		{`"say \"hi\""`, `say "hi"`},
	} {
		tokens, err := Tokenize(tc.src, 1)
		if err != nil {
			t.Fatalf("tokenize %q: %v", tc.src, err)
		}
		if tokens[0].Kind != TokenString || tokens[0].Value != tc.want {
			t.Errorf("%q: expected String(%q), got %v", tc.src, tc.want, tokens[0])
		}
	}
}

func TestTokenizeUnterminatedString(t *testing.T) {
	_, err := Tokenize(`"oops`, 3)
	if err == nil {
		t.Fatal("expected an error")
	}
	le, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if le.Line != 3 {
		t.Errorf("expected line 3, got %d", le.Line)
	}
}

func TestTokenizeNumbers(t *testing.T) {
	for _, tc := range []struct {
		src  string
		want string
	}{
		{"42", "42"},
		{"1.5", "1.5"},
		{"-2", "-2"},
	} {
		tokens, err := Tokenize(tc.src, 1)
		if err != nil {
			t.Fatalf("tokenize %q: %v", tc.src, err)
		}
		if tokens[0].Kind != TokenNumber || tokens[0].Value != tc.want {
			t.Errorf("%q: expected Number(%q), got %v", tc.src, tc.want, tokens[0])
		}
	}
}

func TestMinusIsSubtractionAfterOperand(t *testing.T) {
	tokens, err := Tokenize("a -2", 1)
	if err != nil {
		t.Fatalf("tokenize error: %v", err)
	}
	var nonWS []Token
	for _, tok := range tokens {
		if tok.Kind != TokenWhitespace {
			nonWS = append(nonWS, tok)
		}
	}
	if len(nonWS) != 3 {
		t.Fatalf("expected var, operator, number; got %v", nonWS)
	}
	if nonWS[1].Kind != TokenOperator || nonWS[1].Value != "-" {
		t.Errorf("expected Operator(-), got %v", nonWS[1])
	}
	if nonWS[2].Kind != TokenNumber || nonWS[2].Value != "2" {
		t.Errorf("expected Number(2), got %v", nonWS[2])
	}
}

func TestMinusBindsToNumberInOperandPosition(t *testing.T) {
	tokens, err := Tokenize("a + -2", 1)
	if err != nil {
		t.Fatalf("tokenize error: %v", err)
	}
	var last Token
	for _, tok := range tokens {
		if tok.Kind != TokenWhitespace {
			last = tok
		}
	}
	if last.Kind != TokenNumber || last.Value != "-2" {
		t.Errorf("expected Number(-2), got %v", last)
	}
}

func TestKeywordOperators(t *testing.T) {
	tokens, err := Tokenize("a and b or not c in d", 1)
	if err != nil {
		t.Fatalf("tokenize error: %v", err)
	}
	var got []Token
	for _, tok := range tokens {
		if tok.Kind == TokenLogic || tok.Kind == TokenNot {
			got = append(got, tok)
		}
	}
	want := []Token{
		{Kind: TokenLogic, Value: "&&", Line: 1},
		{Kind: TokenLogic, Value: "||", Line: 1},
		{Kind: TokenNot, Value: "!", Line: 1},
		{Kind: TokenLogic, Value: "in", Line: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d operator tokens, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestBooleans(t *testing.T) {
	got := kinds(t, "true false")
	if len(got) != 2 || got[0] != TokenBool || got[1] != TokenBool {
		t.Errorf("expected two Bool tokens, got %v", got)
	}
}

func TestFilterTokens(t *testing.T) {
	tokens, err := Tokenize("name|upper", 1)
	if err != nil {
		t.Fatalf("tokenize error: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %v", tokens)
	}
	if tokens[1].Kind != TokenFilterEmpty || tokens[1].Value != "upper" {
		t.Errorf("expected FilterEmpty(upper), got %v", tokens[1])
	}

	tokens, err = Tokenize("name|join(', ')", 1)
	if err != nil {
		t.Fatalf("tokenize error: %v", err)
	}
	if tokens[1].Kind != TokenFilter || tokens[1].Value != "join" {
		t.Errorf("expected Filter(join), got %v", tokens[1])
	}
}

func TestDoublePipeIsOr(t *testing.T) {
	tokens, err := Tokenize("a || b", 1)
	if err != nil {
		t.Fatalf("tokenize error: %v", err)
	}
	var found bool
	for _, tok := range tokens {
		if tok.Kind == TokenLogic && tok.Value == "||" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Logic(||) in %v", tokens)
	}
}

func TestFilterMissingName(t *testing.T) {
	if _, err := Tokenize("a|", 1); err == nil {
		t.Error("expected an error for a dangling pipe")
	}
	if _, err := Tokenize("a| 2", 1); err == nil {
		t.Error("expected an error for a pipe without a name")
	}
}

func TestFunctionTokens(t *testing.T) {
	tokens, err := Tokenize("fn(1)", 1)
	if err != nil {
		t.Fatalf("tokenize error: %v", err)
	}
	if tokens[0].Kind != TokenFunction || tokens[0].Value != "fn" {
		t.Errorf("expected Function(fn), got %v", tokens[0])
	}

	tokens, err = Tokenize("fn()", 1)
	if err != nil {
		t.Fatalf("tokenize error: %v", err)
	}
	if tokens[0].Kind != TokenFunctionEmpty || tokens[0].Value != "fn" {
		t.Errorf("expected FunctionEmpty(fn), got %v", tokens[0])
	}
}

func TestMethodCallOnPath(t *testing.T) {
	tokens, err := Tokenize("user.name.toUpper()", 1)
	if err != nil {
		t.Fatalf("tokenize error: %v", err)
	}
	if tokens[0].Kind != TokenFunctionEmpty || tokens[0].Value != "user.name.toUpper" {
		t.Errorf("expected FunctionEmpty(user.name.toUpper), got %v", tokens[0])
	}
}

func TestDotKeyAfterBracket(t *testing.T) {
	got := kinds(t, "items[0].name")
	want := []Kind{TokenVar, TokenBracketOpen, TokenNumber, TokenBracketClose, TokenDotKey}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestComparisonOperators(t *testing.T) {
	for _, src := range []string{"a == b", "a != b", "a <= b", "a >= b", "a < b", "a > b"} {
		got := kinds(t, src)
		if len(got) != 3 || got[1] != TokenLogic {
			t.Errorf("%q: expected Var Logic Var, got %v", src, got)
		}
	}
}

func TestObjectLiteralTokens(t *testing.T) {
	got := kinds(t, "{one: 1, two: 2}")
	want := []Kind{
		TokenBraceOpen, TokenVar, TokenColon, TokenNumber, TokenComma,
		TokenVar, TokenColon, TokenNumber, TokenBraceClose,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestLineTracking(t *testing.T) {
	tokens, err := Tokenize("a\n+ b", 4)
	if err != nil {
		t.Fatalf("tokenize error: %v", err)
	}
	var plus *Token
	for i := range tokens {
		if tokens[i].Kind == TokenOperator {
			plus = &tokens[i]
		}
	}
	if plus == nil || plus.Line != 5 {
		t.Errorf("expected the operator on line 5, got %v", plus)
	}
}

func TestUnexpectedCharacter(t *testing.T) {
	if _, err := Tokenize("a @ b", 1); err == nil {
		t.Error("expected an error for @")
	}
}
