package tool

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"agentd/internal/domain"
)

// CalcTool evaluates basic arithmetic expressions. Pure: no side effects.
type CalcTool struct{}

func NewCalcTool() *CalcTool { return &CalcTool{} }

func (t *CalcTool) Name() string { return "calc" }

func (t *CalcTool) Description() string {
	return "Evaluate an arithmetic expression with + - * / and parentheses, e.g. '2 * (3 + 4)'."
}

func (t *CalcTool) Schema() map[string]any {
	return Parameters(
		map[string]Param{
			"expression": {Type: "string", Description: "Arithmetic expression to evaluate"},
		},
		[]string{"expression"},
	)
}

func (t *CalcTool) Risk() domain.RiskClass { return domain.RiskPure }

func (t *CalcTool) Execute(_ context.Context, args map[string]any) (string, error) {
	expr := strings.TrimSpace(ArgString(args, "expression"))
	if expr == "" {
		return "", fmt.Errorf("missing argument: expression")
	}
	p := &exprParser{input: expr}
	value, err := p.parseExpr()
	if err != nil {
		return "", err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return "", fmt.Errorf("unexpected character %q at position %d", p.input[p.pos], p.pos)
	}
	return strconv.FormatFloat(value, 'f', -1, 64), nil
}

// exprParser is a recursive-descent parser for + - * / and parentheses.
type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.input) {
			return left, nil
		}
		op := p.input[p.pos]
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.input) {
			return left, nil
		}
		op := p.input[p.pos]
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++
		right, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			left *= right
		} else {
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		}
	}
}

func (p *exprParser) parseFactor() (float64, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0, fmt.Errorf("unexpected end of expression")
	}
	if p.input[p.pos] == '(' {
		p.pos++
		value, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return value, nil
	}
	if p.input[p.pos] == '-' {
		p.pos++
		value, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		return -value, nil
	}
	start := p.pos
	for p.pos < len(p.input) && (p.input[p.pos] >= '0' && p.input[p.pos] <= '9' || p.input[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected number at position %d", start)
	}
	value, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", p.input[start:p.pos])
	}
	return value, nil
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}
