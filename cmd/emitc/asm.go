// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/probeum/emitcore/pkg/frontend"
	"github.com/probeum/emitcore/pkg/symbol"
)

// asmUnit is the Go-native analogue of the original's `pasm-file` raw
// assembly mode: one sub per "sub ... endsub" block, each instruction
// line giving an opcode number and a space-separated operand list.
//
// Operand forms:
//
//	r<N>       register N, int class
//	sr<N>      register N, string class
//	i<N>       integer constant literal N
//	s"text"    string constant literal
//	<name>:    label definition (must be its own line)
//	b<name>    branch operand referencing a label
//
// Labels must be defined before any branch referencing them, a one-pass
// limitation of this demo parser — pkg/label itself has no such
// restriction.
func parseAsm(r io.Reader) ([]*frontend.Unit, error) {
	scanner := bufio.NewScanner(r)
	var units []*frontend.Unit
	var current *frontend.Unit
	labels := map[string]*symbol.Symbol{}
	line := 0

	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		switch {
		case strings.HasPrefix(text, "sub "):
			current = &frontend.Unit{Name: strings.TrimSpace(strings.TrimPrefix(text, "sub "))}
			labels = map[string]*symbol.Symbol{}

		case text == "endsub":
			if current == nil {
				return nil, fmt.Errorf("asm:%d: endsub without matching sub", line)
			}
			units = append(units, current)
			current = nil

		case strings.HasSuffix(text, ":"):
			if current == nil {
				return nil, fmt.Errorf("asm:%d: label outside sub", line)
			}
			name := strings.TrimSuffix(text, ":")
			sym := symbol.New(name, symbol.KindLabel, symbol.ClassConstant)
			labels[name] = sym
			current.Instructions = append(current.Instructions, frontend.Instruction{
				HasOpnum: true, IsLabel: true, LabelSym: sym, Line: line,
			})

		default:
			if current == nil {
				return nil, fmt.Errorf("asm:%d: instruction outside sub", line)
			}
			inst, err := parseInstruction(text, labels, line)
			if err != nil {
				return nil, err
			}
			current.Instructions = append(current.Instructions, inst)
		}
	}
	if current != nil {
		return nil, fmt.Errorf("asm: unterminated sub %q", current.Name)
	}
	return units, scanner.Err()
}

func parseInstruction(text string, labels map[string]*symbol.Symbol, line int) (frontend.Instruction, error) {
	fields := strings.Fields(text)
	opnum, err := strconv.Atoi(fields[0])
	if err != nil {
		return frontend.Instruction{}, fmt.Errorf("asm:%d: bad opcode %q: %w", line, fields[0], err)
	}

	inst := frontend.Instruction{HasOpnum: true, Opnum: opnum, Line: line}
	inst.Opsize = 1 + len(fields) - 1

	for _, tok := range fields[1:] {
		op, isBranch, err := parseOperand(tok, labels)
		if err != nil {
			return frontend.Instruction{}, fmt.Errorf("asm:%d: %w", line, err)
		}
		if isBranch {
			inst.IsBranch = true
		}
		inst.Operands = append(inst.Operands, op)
	}
	return inst, nil
}

func parseOperand(tok string, labels map[string]*symbol.Symbol) (frontend.Operand, bool, error) {
	switch {
	case strings.HasPrefix(tok, "sr"):
		n, err := strconv.Atoi(tok[2:])
		if err != nil {
			return frontend.Operand{}, false, fmt.Errorf("bad string register %q: %w", tok, err)
		}
		sym := symbol.New(tok, symbol.KindString, symbol.ClassString)
		if err := sym.SetRegister(n); err != nil {
			return frontend.Operand{}, false, err
		}
		return frontend.Operand{Kind: frontend.OperandRegister, Sym: sym}, false, nil

	case strings.HasPrefix(tok, "r"):
		n, err := strconv.Atoi(tok[1:])
		if err != nil {
			return frontend.Operand{}, false, fmt.Errorf("bad register %q: %w", tok, err)
		}
		sym := symbol.New(tok, symbol.KindInteger, symbol.ClassInt)
		if err := sym.SetRegister(n); err != nil {
			return frontend.Operand{}, false, err
		}
		return frontend.Operand{Kind: frontend.OperandRegister, Sym: sym}, false, nil

	case strings.HasPrefix(tok, "i"):
		sym := symbol.New(tok[1:], symbol.KindInteger, symbol.ClassConstant)
		return frontend.Operand{Kind: frontend.OperandIntConst, Sym: sym}, false, nil

	case strings.HasPrefix(tok, `s"`):
		sym := symbol.New(tok[1:], symbol.KindString, symbol.ClassConstant)
		return frontend.Operand{Kind: frontend.OperandStringConst, Sym: sym}, false, nil

	case strings.HasPrefix(tok, "b"):
		name := tok[1:]
		sym, ok := labels[name]
		if !ok {
			return frontend.Operand{}, false, fmt.Errorf("branch to undefined label %q", name)
		}
		return frontend.Operand{Kind: frontend.OperandLabel, Sym: sym}, true, nil

	default:
		return frontend.Operand{}, false, fmt.Errorf("unrecognised operand %q", tok)
	}
}
