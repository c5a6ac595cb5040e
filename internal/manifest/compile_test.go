package manifest

import (
	"errors"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const calcSrc = `
package calc

interfaces: "com.example.Calc": {
	methods: {
		Add: {
			args: [{name: "a", type: "i"}, {name: "b", type: "i"}]
			returns: [{name: "sum", type: "i"}]
			impl: "sum"
		}
		Echo: {
			args: [{name: "text", type: "s"}]
			returns: [{name: "text", type: "s"}]
			impl: "echo"
		}
		Version: {
			returns: [{name: "version", type: "s"}, {name: "build", type: "u"}]
			impl:  "const"
			reply: ["1.0", 7]
		}
		Explode: {
			impl: "fail"
			error: {name: "com.example.Calc.Error.Boom", message: "boom"}
		}
		Poke: {
			args: [{name: "what", type: "s"}]
			impl:   "emit"
			signal: "Poked"
		}
	}
	signals: Poked: args: [{name: "what", type: "s"}]
	properties: {
		Precision: {type: "u", access: "readwrite", value: 2}
		Label: {type: "s", access: "read", value: "calc", emits_changed: false}
		Secret: {type: "s", access: "write", value: ""}
	}
}

interfaces: "com.example.Memory": methods: Clear: impl: "const"

objects: {
	"/calc": interfaces: ["com.example.Calc", "com.example.Memory"]
	"/calc/memory": interfaces: ["com.example.Memory"]
	"/": {}
}
`

func TestCompile_Calc(t *testing.T) {
	m, errs := CompileString("calc.cue", calcSrc)
	require.Empty(t, errs)

	require.Len(t, m.Interfaces, 2)
	calc, ok := m.Interface("com.example.Calc")
	require.True(t, ok)

	var names []string
	for _, meth := range calc.Methods {
		names = append(names, meth.Name)
	}
	assert.Equal(t, []string{"Add", "Echo", "Version", "Explode", "Poke"}, names, "declaration order")

	add, ok := calc.Method("Add")
	require.True(t, ok)
	assert.Equal(t, []Arg{{"a", "i"}, {"b", "i"}}, add.Args)
	assert.Equal(t, "ii", Signature(add.Args))
	assert.Equal(t, ImplSum, add.Impl)

	version, _ := calc.Method("Version")
	assert.Equal(t, []any{"1.0", int64(7)}, version.Reply)

	explode, _ := calc.Method("Explode")
	assert.Equal(t, &ErrorReply{Name: "com.example.Calc.Error.Boom", Message: "boom"}, explode.Error)

	poke, _ := calc.Method("Poke")
	assert.Equal(t, "Poked", poke.Signal)

	require.Len(t, calc.Properties, 3)
	assert.Equal(t, Property{Name: "Precision", Type: "u", Access: AccessReadWrite, Value: int64(2), EmitsChanged: true}, calc.Properties[0])
	assert.False(t, calc.Properties[1].EmitsChanged)
	assert.False(t, calc.Properties[1].Writable())
	assert.False(t, calc.Properties[2].Readable())

	require.Len(t, m.Objects, 3)
	assert.Equal(t, "/", m.Objects[0].Path)
	assert.Empty(t, m.Objects[0].Interfaces)
	assert.Equal(t, Object{Path: "/calc", Interfaces: []string{"com.example.Calc", "com.example.Memory"}}, m.Objects[1])
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
		msg  string
	}{
		{
			name: "empty",
			src:  `package x`,
			code: ErrCodeEmpty,
		},
		{
			name: "single element interface name",
			src:  `interfaces: Calc: methods: M: impl: "echo"`,
			code: ErrCodeInterfaceName,
		},
		{
			name: "reserved interface",
			src:  `interfaces: "org.freedesktop.DBus.Properties": {}`,
			code: ErrCodeInterfaceName,
			msg:  "provided by the dispatcher",
		},
		{
			name: "bad method name",
			src:  `interfaces: "a.b": methods: "2fast": impl: "echo"`,
			code: ErrCodeMemberName,
		},
		{
			name: "multi type arg",
			src:  `interfaces: "a.b": methods: M: {args: [{name: "x", type: "ii"}], impl: "echo"}`,
			code: ErrCodeType,
			msg:  "single complete type",
		},
		{
			name: "struct arg",
			src:  `interfaces: "a.b": methods: M: {args: [{type: "(is)"}], returns: [{type: "(is)"}], impl: "echo"}`,
			code: ErrCodeType,
			msg:  "struct",
		},
		{
			name: "unknown impl",
			src:  `interfaces: "a.b": methods: M: impl: "teleport"`,
			code: ErrCodeImpl,
			msg:  "unknown impl",
		},
		{
			name: "echo mismatch",
			src:  `interfaces: "a.b": methods: M: {args: [{type: "s"}], impl: "echo"}`,
			code: ErrCodeImpl,
			msg:  "must equal args",
		},
		{
			name: "sum of strings",
			src:  `interfaces: "a.b": methods: M: {args: [{name: "s", type: "s"}], returns: [{type: "i"}], impl: "sum"}`,
			code: ErrCodeImpl,
			msg:  "non-integer",
		},
		{
			name: "const reply mismatch",
			src:  `interfaces: "a.b": methods: M: {returns: [{type: "i"}], impl: "const", reply: ["x"]}`,
			code: ErrCodeImpl,
		},
		{
			name: "reply on non const",
			src:  `interfaces: "a.b": methods: M: {impl: "echo", reply: []}`,
			code: ErrCodeImpl,
			msg:  "only used by impl",
		},
		{
			name: "emit unknown signal",
			src:  `interfaces: "a.b": methods: M: {impl: "emit", signal: "Nope"}`,
			code: ErrCodeImpl,
			msg:  "not declared",
		},
		{
			name: "emit arg mismatch",
			src: `interfaces: "a.b": {
				signals: S: args: [{type: "i"}]
				methods: M: {args: [{type: "s"}], impl: "emit", signal: "S"}
			}`,
			code: ErrCodeImpl,
			msg:  "must equal method args",
		},
		{
			name: "bad error name",
			src:  `interfaces: "a.b": methods: M: {impl: "fail", error: name: "Boom"}`,
			code: ErrCodeImpl,
			msg:  "invalid error name",
		},
		{
			name: "bad access",
			src:  `interfaces: "a.b": properties: P: {type: "s", access: "rw", value: ""}`,
			code: ErrCodeProperty,
		},
		{
			name: "property value mismatch",
			src:  `interfaces: "a.b": properties: P: {type: "y", access: "read", value: 300}`,
			code: ErrCodeProperty,
			msg:  "out of range",
		},
		{
			name: "missing property value",
			src:  `interfaces: "a.b": properties: P: {type: "s", access: "read"}`,
			code: ErrCodeProperty,
			msg:  "value is required",
		},
		{
			name: "bad object path",
			src:  `objects: "/a//b": {}`,
			code: ErrCodeObject,
			msg:  "invalid object path",
		},
		{
			name: "undeclared interface",
			src:  `objects: "/a": interfaces: ["x.y"]`,
			code: ErrCodeObject,
			msg:  "not declared",
		},
		{
			name: "duplicate interface on object",
			src: `interfaces: "a.b": {}
			objects: "/a": interfaces: ["a.b", "a.b"]`,
			code: ErrCodeObject,
			msg:  "listed twice",
		},
		{
			name: "missing impl",
			src:  `interfaces: "a.b": methods: M: args: []`,
			code: ErrCodeGeneric,
			msg:  "impl is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := CompileString("test.cue", tt.src)
			require.NotEmpty(t, errs)

			var le *LoadError
			require.True(t, errors.As(errs[0], &le), "got %T", errs[0])
			assert.Equal(t, tt.code, le.Code, le.Error())
			if tt.msg != "" {
				assert.Contains(t, le.Error(), tt.msg)
			}
		})
	}
}

func TestCompile_CollectsAllErrors(t *testing.T) {
	m, errs := CompileString("test.cue", `
		interfaces: "a.b": methods: {
			One: impl: "nope"
			Two: impl: "echo"
			Three: impl: "nope"
		}
	`)
	assert.Len(t, errs, 2)
	require.NotNil(t, m)
	assert.Empty(t, m.Interfaces, "an interface with errors is left out")
}

func TestCompile_ErrorsCarryPositions(t *testing.T) {
	_, errs := CompileString("pos.cue", "interfaces: \"a.b\": methods: M: impl: \"nope\"\n")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "pos.cue:1:")
}

func TestCompile_CUEError(t *testing.T) {
	_, errs := CompileString("bad.cue", `x: 1 & 2`)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "conflicting values")
}

func TestToGo(t *testing.T) {
	v := cuecontext.New().CompileString(`{
		n: null
		b: true
		s: "x"
		i: 42
		f: 1.5
		l: [1, "a"]
		o: {k: [false]}
	}`)
	require.NoError(t, v.Err())

	got, err := toGo(v)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"n": nil,
		"b": true,
		"s": "x",
		"i": int64(42),
		"f": 1.5,
		"l": []any{int64(1), "a"},
		"o": map[string]any{"k": []any{false}},
	}, got)

	_, err = toGo(cuecontext.New().CompileString(`int`))
	assert.Error(t, err)
}

func TestNames(t *testing.T) {
	assert.True(t, validDottedName("com.example.Calc"))
	assert.True(t, validDottedName("a._b2"))
	assert.False(t, validDottedName("single"))
	assert.False(t, validDottedName("a..b"))
	assert.False(t, validDottedName("a.2b"))
	assert.False(t, validDottedName("a.b-c"))

	assert.True(t, validMemberName("Get_All2"))
	assert.False(t, validMemberName(""))
	assert.False(t, validMemberName("a.b"))
}
