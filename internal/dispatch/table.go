package dispatch

import (
	"slices"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/google/btree"
)

// object is one entry of the object table. data always holds a *T for the
// payload type T the object was inserted with.
type object struct {
	ifaces map[int]struct{}
	data   any
}

func (o *object) ids() []int {
	out := make([]int, 0, len(o.ifaces))
	for id := range o.ifaces {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

type tableEntry struct {
	path dbus.ObjectPath
	obj  *object
}

func lessEntry(a, b tableEntry) bool { return a.path < b.path }

// objectTable is the path-ordered object store.
type objectTable struct {
	tree *btree.BTreeG[tableEntry]
}

func newObjectTable() *objectTable {
	return &objectTable{tree: btree.NewG(16, lessEntry)}
}

func (t *objectTable) get(path dbus.ObjectPath) (*object, bool) {
	e, ok := t.tree.Get(tableEntry{path: path})
	if !ok {
		return nil, false
	}
	return e.obj, true
}

// put replaces any object at path wholesale.
func (t *objectTable) put(path dbus.ObjectPath, obj *object) {
	t.tree.ReplaceOrInsert(tableEntry{path: path, obj: obj})
}

func (t *objectTable) remove(path dbus.ObjectPath) bool {
	_, ok := t.tree.Delete(tableEntry{path: path})
	return ok
}

func (t *objectTable) paths() []dbus.ObjectPath {
	out := make([]dbus.ObjectPath, 0, t.tree.Len())
	t.tree.Ascend(func(e tableEntry) bool {
		out = append(out, e.path)
		return true
	})
	return out
}

// descendants returns, for every object strictly below path, the remainder
// after "path/". Remainders of deeper objects still contain '/'.
//
// The scan starts right after path and stops at the first key that is not a
// descendant; this is only correct because '/' sorts below every other
// character valid in an object path.
func (t *objectTable) descendants(path dbus.ObjectPath) []string {
	prefix := string(path) + "/"
	if path == "/" {
		prefix = "/"
	}
	var out []string
	t.tree.AscendGreaterOrEqual(tableEntry{path: path}, func(e tableEntry) bool {
		if e.path == path {
			return true
		}
		rest, ok := strings.CutPrefix(string(e.path), prefix)
		if !ok || rest == "" {
			return false
		}
		out = append(out, rest)
		return true
	})
	return out
}
