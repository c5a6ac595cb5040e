package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registryWith(ifaces ...*ifaceDesc) *Registry {
	r := &Registry{}
	for _, d := range ifaces {
		r.push(d)
	}
	return r
}

func descWithMethods(name string, methods ...string) *ifaceDesc {
	d := newIfaceDesc(name, nil)
	for _, m := range methods {
		d.addMethod(m, nil, nil, func(ctx *Context, _ *Crossroads) *Context { return ctx })
	}
	return d
}

func TestRegistry_FindToken(t *testing.T) {
	r := registryWith(
		descWithMethods("a.One", "Ping", "Only"),
		descWithMethods("a.Two", "Ping"),
		descWithMethods("a.Three"),
	)

	tests := []struct {
		name    string
		iface   string
		method  string
		ids     []int
		want    int
		errName string
	}{
		{name: "named", iface: "a.Two", method: "Ping", ids: []int{0, 1}, want: 1},
		{name: "named but not on object", iface: "a.Two", method: "Ping", ids: []int{0, 2}, errName: ErrNameUnknownInterface},
		{name: "named does not check method", iface: "a.Three", method: "Nope", ids: []int{2}, want: 2},
		{name: "omitted unique", method: "Only", ids: []int{0, 1, 2}, want: 0},
		{name: "omitted ambiguous", method: "Ping", ids: []int{0, 1}, errName: ErrNameUnknownMethod},
		{name: "omitted none", method: "Missing", ids: []int{0, 1}, errName: ErrNameUnknownMethod},
		{name: "omitted ignores tombstones and strays", method: "Ping", ids: []int{1, 7}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.FindToken(tt.iface, tt.method, tt.ids)
			if tt.errName != "" {
				require.Error(t, err)
				assert.Equal(t, tt.errName, AsMethodError(err).Name)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry_CheckoutLooksAbsent(t *testing.T) {
	r := registryWith(descWithMethods("a.One", "Ping"))

	co, err := r.takeMethod(0, "Ping")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.One.Ping"}, r.CheckedOut())

	_, err = r.takeMethod(0, "Ping")
	assert.True(t, IsUnknownMethod(err))

	r.giveMethod(co)
	assert.Empty(t, r.CheckedOut())

	_, err = r.takeMethod(0, "Ping")
	assert.NoError(t, err)
}

func TestRegistry_GiveAfterRemovalIsDiscarded(t *testing.T) {
	r := registryWith(descWithMethods("a.One", "Ping"))

	co, err := r.takeMethod(0, "Ping")
	require.NoError(t, err)
	require.True(t, r.remove(0))

	assert.NotPanics(t, func() { r.giveMethod(co) })
	_, ok := r.Name(0)
	assert.False(t, ok)
	assert.False(t, r.remove(0))
}

func TestRegistry_GiveAfterSlotReplacedIsDiscarded(t *testing.T) {
	r := registryWith(descWithMethods("a.One", "Ping"))
	co, err := r.takeMethod(0, "Ping")
	require.NoError(t, err)

	replacement := &methodSlot{handler: func(ctx *Context, _ *Crossroads) *Context { return nil }}
	r.get(0).methods["Ping"] = replacement
	r.giveMethod(co)

	assert.Same(t, replacement, r.get(0).methods["Ping"])
	assert.Nil(t, co.slot.handler)
}

func TestRegistry_HasProperties(t *testing.T) {
	cr := newTestCrossroads()
	plain := Register[calc](cr, "a.Plain", nil)
	props := Register(cr, "a.Props", func(b *IfaceBuilder[calc]) {
		b.Property("X", "i")
	})

	assert.False(t, cr.Registry().HasProperties(plain.ID()))
	assert.True(t, cr.Registry().HasProperties(props.ID()))
	assert.False(t, cr.Registry().HasProperties(PropertiesID))
	assert.False(t, cr.Registry().HasProperties(99))
}

func TestRegister_ReservedIDs(t *testing.T) {
	cr := newTestCrossroads()
	name, ok := cr.Registry().Name(Introspectable[calc]().ID())
	require.True(t, ok)
	assert.Equal(t, IntrospectableName, name)
	name, ok = cr.Registry().Name(Properties[note]().ID())
	require.True(t, ok)
	assert.Equal(t, PropertiesName, name)

	tok := Register[calc](cr, "a.First", nil)
	assert.Equal(t, 2, tok.ID())
}

func TestRegister_DuplicatesPanic(t *testing.T) {
	cr := newTestCrossroads()
	assert.Panics(t, func() {
		Register(cr, "a.Dup", func(b *IfaceBuilder[calc]) {
			b.MethodRaw("M", nil, nil, nil)
			b.MethodRaw("M", nil, nil, nil)
		})
	})
	assert.Panics(t, func() {
		Register(cr, "a.DupProp", func(b *IfaceBuilder[calc]) {
			b.Property("P", "s")
			b.Property("P", "s")
		})
	})
	assert.Panics(t, func() { Args("odd") })
}
