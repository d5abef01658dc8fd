package classfile

import (
	"fmt"
	"strings"
)

// Kind discriminates the Type tree produced by the descriptor/signature
// parser (C2). The parser is purely syntactic: it builds this tree but
// never resolves an Object kind's class name to a Klass.
type Kind int

const (
	KindByte Kind = iota
	KindChar
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindBoolean
	KindVoid
	KindObject
	KindArray
	KindTypeVariable
)

// Type is one node of a parsed descriptor or generic signature.
type Type struct {
	Kind Kind

	// KindObject: internal-form class name, e.g. "java/lang/List".
	ClassName string
	// KindObject: generic type arguments, e.g. <TK;> in List<K>. Nil
	// unless the signature (not the plain descriptor) supplied them.
	TypeArgs []Type

	// KindArray: the element type one dimension down.
	Elem *Type

	// KindTypeVariable: the type-parameter name, e.g. "T".
	VarName string
}

func (t Type) String() string {
	switch t.Kind {
	case KindByte:
		return "byte"
	case KindChar:
		return "char"
	case KindShort:
		return "short"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindBoolean:
		return "boolean"
	case KindVoid:
		return "void"
	case KindTypeVariable:
		return t.VarName
	case KindArray:
		return t.Elem.String() + "[]"
	case KindObject:
		return t.ClassName
	}
	return "?"
}

// IsCategory2 reports whether a value of this type occupies two stack
// or local-variable slots (long, double).
func (t Type) IsCategory2() bool {
	return t.Kind == KindLong || t.Kind == KindDouble
}

// MethodSignature is a parsed method descriptor or generic method
// signature: the argument types in order, and the return type.
type MethodSignature struct {
	TypeParams []TypeParam // from a generic signature; empty for a plain descriptor
	Args       []Type
	Return     Type
}

// TypeParam is one <Name:Bound> entry of a generic signature.
type TypeParam struct {
	Name  string
	Bound Type
}

// ClassSignature is a parsed generic class signature: the (possibly
// generic) superclass and the implemented interfaces.
type ClassSignature struct {
	TypeParams []TypeParam
	Super      Type
	Interfaces []Type
}

// ParseFieldDescriptor parses a single field/value type descriptor, e.g.
// "I", "[Ljava/lang/String;", "Ljava/lang/Object;".
func ParseFieldDescriptor(desc string) (Type, error) {
	t, rest, err := parseType(desc)
	if err != nil {
		return Type{}, err
	}
	if rest != "" {
		return Type{}, fmt.Errorf("trailing data in field descriptor %q: %q", desc, rest)
	}
	return t, nil
}

// ParseMethodDescriptor parses a plain (non-generic) method descriptor,
// e.g. "(IJ)V" or "([Ljava/lang/String;)V".
func ParseMethodDescriptor(desc string) (*MethodSignature, error) {
	if len(desc) == 0 || desc[0] != '(' {
		return nil, fmt.Errorf("method descriptor must start with '(': %q", desc)
	}
	rest := desc[1:]
	var args []Type
	for len(rest) > 0 && rest[0] != ')' {
		t, r, err := parseType(rest)
		if err != nil {
			return nil, fmt.Errorf("parsing method descriptor %q: %w", desc, err)
		}
		args = append(args, t)
		rest = r
	}
	if len(rest) == 0 {
		return nil, fmt.Errorf("method descriptor %q missing ')'", desc)
	}
	rest = rest[1:] // skip ')'

	var ret Type
	if rest == "V" {
		ret = Type{Kind: KindVoid}
	} else {
		t, r, err := parseType(rest)
		if err != nil {
			return nil, fmt.Errorf("parsing return type of %q: %w", desc, err)
		}
		if r != "" {
			return nil, fmt.Errorf("trailing data after return type in %q: %q", desc, r)
		}
		ret = t
	}

	return &MethodSignature{Args: args, Return: ret}, nil
}

// parseType parses one type off the front of s, returning the remainder.
func parseType(s string) (Type, string, error) {
	if len(s) == 0 {
		return Type{}, "", fmt.Errorf("empty type descriptor")
	}
	switch s[0] {
	case 'B':
		return Type{Kind: KindByte}, s[1:], nil
	case 'C':
		return Type{Kind: KindChar}, s[1:], nil
	case 'D':
		return Type{Kind: KindDouble}, s[1:], nil
	case 'F':
		return Type{Kind: KindFloat}, s[1:], nil
	case 'I':
		return Type{Kind: KindInt}, s[1:], nil
	case 'J':
		return Type{Kind: KindLong}, s[1:], nil
	case 'S':
		return Type{Kind: KindShort}, s[1:], nil
	case 'Z':
		return Type{Kind: KindBoolean}, s[1:], nil
	case 'V':
		return Type{Kind: KindVoid}, s[1:], nil
	case 'L':
		end := strings.IndexByte(s, ';')
		if end < 0 {
			return Type{}, "", fmt.Errorf("unterminated class type in %q", s)
		}
		return Type{Kind: KindObject, ClassName: s[1:end]}, s[end+1:], nil
	case '[':
		elem, rest, err := parseType(s[1:])
		if err != nil {
			return Type{}, "", err
		}
		return Type{Kind: KindArray, Elem: &elem}, rest, nil
	default:
		return Type{}, "", fmt.Errorf("illegal type descriptor char %q in %q", s[0], s)
	}
}

// ParseMethodSignature parses a JVMS §4.7.9.1 generic method signature,
// e.g. "<T:Ljava/lang/Object;>(TT;)TT;". Falls back to the plain
// method-descriptor grammar for arguments/return that carry no generics.
func ParseMethodSignature(sig string) (*MethodSignature, error) {
	rest := sig
	var typeParams []TypeParam
	if strings.HasPrefix(rest, "<") {
		tp, r, err := parseTypeParams(rest)
		if err != nil {
			return nil, fmt.Errorf("parsing type parameters of %q: %w", sig, err)
		}
		typeParams = tp
		rest = r
	}
	if len(rest) == 0 || rest[0] != '(' {
		return nil, fmt.Errorf("method signature must have '(' after type params: %q", sig)
	}
	rest = rest[1:]
	var args []Type
	for len(rest) > 0 && rest[0] != ')' {
		t, r, err := parseSigType(rest)
		if err != nil {
			return nil, fmt.Errorf("parsing method signature %q: %w", sig, err)
		}
		args = append(args, t)
		rest = r
	}
	if len(rest) == 0 {
		return nil, fmt.Errorf("method signature %q missing ')'", sig)
	}
	rest = rest[1:]

	var ret Type
	if strings.HasPrefix(rest, "V") {
		ret = Type{Kind: KindVoid}
		rest = rest[1:]
	} else {
		t, r, err := parseSigType(rest)
		if err != nil {
			return nil, fmt.Errorf("parsing return type of %q: %w", sig, err)
		}
		ret = t
		rest = r
	}
	// Throws clauses (^Lxxx;) may follow; this core does not need them.
	_ = rest

	return &MethodSignature{TypeParams: typeParams, Args: args, Return: ret}, nil
}

// ParseClassSignature parses a JVMS §4.7.9.1 generic class signature,
// e.g. "<K:Ljava/lang/Object;>Ljava/lang/Object;Ljava/util/Map<TK;TK;>;".
func ParseClassSignature(sig string) (*ClassSignature, error) {
	rest := sig
	var typeParams []TypeParam
	if strings.HasPrefix(rest, "<") {
		tp, r, err := parseTypeParams(rest)
		if err != nil {
			return nil, fmt.Errorf("parsing type parameters of %q: %w", sig, err)
		}
		typeParams = tp
		rest = r
	}
	super, rest, err := parseSigType(rest)
	if err != nil {
		return nil, fmt.Errorf("parsing superclass of %q: %w", sig, err)
	}
	var ifaces []Type
	for len(rest) > 0 {
		t, r, err := parseSigType(rest)
		if err != nil {
			return nil, fmt.Errorf("parsing interface of %q: %w", sig, err)
		}
		ifaces = append(ifaces, t)
		rest = r
	}
	return &ClassSignature{TypeParams: typeParams, Super: super, Interfaces: ifaces}, nil
}

func parseTypeParams(s string) ([]TypeParam, string, error) {
	if len(s) == 0 || s[0] != '<' {
		return nil, s, fmt.Errorf("expected '<' at %q", s)
	}
	rest := s[1:]
	var params []TypeParam
	for len(rest) > 0 && rest[0] != '>' {
		colon := strings.IndexByte(rest, ':')
		if colon < 0 {
			return nil, "", fmt.Errorf("malformed type parameter in %q", s)
		}
		name := rest[:colon]
		rest = rest[colon+1:]
		// A class bound may be empty when only interface bounds follow
		// (":Lfoo;:Lbar;" form); an empty class bound is skipped.
		var bound Type
		if len(rest) > 0 && rest[0] != ':' {
			b, r, err := parseSigType(rest)
			if err != nil {
				return nil, "", fmt.Errorf("parsing bound of %q: %w", name, err)
			}
			bound = b
			rest = r
		}
		for len(rest) > 0 && rest[0] == ':' {
			_, r, err := parseSigType(rest[1:])
			if err != nil {
				return nil, "", fmt.Errorf("parsing interface bound of %q: %w", name, err)
			}
			rest = r
		}
		params = append(params, TypeParam{Name: name, Bound: bound})
	}
	if len(rest) == 0 {
		return nil, "", fmt.Errorf("unterminated type parameters in %q", s)
	}
	return params, rest[1:], nil
}

// parseSigType parses one type off the front of s under the generics-aware
// grammar (adds type variables and parameterized types to parseType).
func parseSigType(s string) (Type, string, error) {
	if len(s) == 0 {
		return Type{}, "", fmt.Errorf("empty signature type")
	}
	switch s[0] {
	case 'T':
		end := strings.IndexByte(s, ';')
		if end < 0 {
			return Type{}, "", fmt.Errorf("unterminated type variable in %q", s)
		}
		return Type{Kind: KindTypeVariable, VarName: s[1:end]}, s[end+1:], nil
	case 'L':
		return parseClassTypeSignature(s)
	case '[':
		elem, rest, err := parseSigType(s[1:])
		if err != nil {
			return Type{}, "", err
		}
		return Type{Kind: KindArray, Elem: &elem}, rest, nil
	default:
		return parseType(s)
	}
}

// parseClassTypeSignature parses "Lpkg/Name<Targs>.Inner<...>;" forms.
// Inner-class suffixes (after '.') are folded into the same ClassName for
// simplicity; generic args of the outermost segment are kept.
func parseClassTypeSignature(s string) (Type, string, error) {
	i := 1
	nameStart := i
	for i < len(s) && s[i] != ';' && s[i] != '<' && s[i] != '.' {
		i++
	}
	className := s[nameStart:i]
	var typeArgs []Type
	if i < len(s) && s[i] == '<' {
		i++ // consume '<'
		for i < len(s) && s[i] != '>' {
			if s[i] == '*' { // unbounded wildcard
				typeArgs = append(typeArgs, Type{Kind: KindObject, ClassName: "java/lang/Object"})
				i++
				continue
			}
			if s[i] == '+' || s[i] == '-' { // bounded wildcard
				i++
			}
			t, rest, err := parseSigType(s[i:])
			if err != nil {
				return Type{}, "", err
			}
			typeArgs = append(typeArgs, t)
			i = len(s) - len(rest)
		}
		if i >= len(s) {
			return Type{}, "", fmt.Errorf("unterminated type arguments in %q", s)
		}
		i++ // consume '>'
	}
	// Skip any ".Inner<...>" suffixes.
	for i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] != ';' && s[i] != '<' && s[i] != '.' {
			i++
		}
		if i < len(s) && s[i] == '<' {
			depth := 1
			i++
			for i < len(s) && depth > 0 {
				if s[i] == '<' {
					depth++
				} else if s[i] == '>' {
					depth--
				}
				i++
			}
		}
	}
	if i >= len(s) || s[i] != ';' {
		return Type{}, "", fmt.Errorf("unterminated class type signature in %q", s)
	}
	return Type{Kind: KindObject, ClassName: className, TypeArgs: typeArgs}, s[i+1:], nil
}
