package memfs

import (
	"io"
	"sort"
	"strings"
	"time"

	"github.com/example/ntfsbridge/pkg/blockdev"
	"github.com/example/ntfsbridge/pkg/ntfs"
)

type node struct {
	num      uint64
	name     string
	dir      bool
	parent   *node
	children map[string]*node
	off      int64 // data extent start on device
	cap      int64 // data extent capacity
	size     int64
	attr     ntfs.FileAttr
	created  time.Time
	modified time.Time
	accessed time.Time
	dirty    bool
}

// Volume implements ntfs.Volume. Callers serialize access.
type Volume struct {
	eng      *Engine
	device   string
	dev      *blockdev.Shim
	st       *fsState
	readOnly bool
	open     map[uint64]*object
}

func (v *Volume) Serial() uint64 { return v.st.serial }
func (v *Volume) Label() string  { return v.st.label }
func (v *Volume) ReadOnly() bool { return v.readOnly }

func (v *Volume) Relabel(label string) error {
	if v.readOnly {
		return &ntfs.FSError{Op: "relabel", Err: ntfs.ErrReadOnly}
	}
	if len(label) > maxLabel {
		return &ntfs.FSError{Op: "relabel", Err: ntfs.ErrNameTooLong}
	}
	v.st.label = label
	return v.flushSuper()
}

func (v *Volume) FreeSpace() (uint64, error) {
	free := v.dev.Size() - v.st.dataEnd
	if free < 0 {
		free = 0
	}
	return uint64(free), nil
}

func (v *Volume) Unmount() error {
	if len(v.open) > 0 {
		return &ntfs.FSError{Op: "unmount", Path: v.device, Err: ntfs.ErrBusy}
	}
	if !v.readOnly {
		if err := v.flushSuper(); err != nil {
			return err
		}
		if err := v.dev.Sync(); err != nil {
			return err
		}
	}
	v.eng.release(v.device)
	return nil
}

func (v *Volume) flushSuper() error {
	if v.readOnly {
		return nil
	}
	return writeSuper(v.dev, &superblock{
		serial:  v.st.serial,
		label:   v.st.label,
		dataEnd: v.st.dataEnd,
	})
}

// acquire opens n, enforcing the single-open rule.
func (v *Volume) acquire(op string, n *node) (*object, error) {
	if _, live := v.open[n.num]; live {
		return nil, &ntfs.FSError{Op: op, Path: n.name, Err: ntfs.ErrBusy}
	}
	o := &object{vol: v, n: n}
	v.open[n.num] = o
	return o, nil
}

func (v *Volume) release(o *object) {
	delete(v.open, o.n.num)
	o.closed = true
}

func (v *Volume) Resolve(base ntfs.Object, rel string) (ntfs.Object, error) {
	cur := v.st.root
	if base != nil {
		bo, ok := base.(*object)
		if !ok || bo.closed || bo.vol != v {
			return nil, &ntfs.FSError{Op: "resolve", Path: rel, Err: ntfs.ErrInvalid}
		}
		cur = bo.n
	}
	if rel == "" {
		return v.acquire("resolve", cur)
	}
	parts := strings.Split(rel, "/")
	for i, part := range parts {
		if !cur.dir {
			return nil, &ntfs.FSError{Op: "resolve", Path: rel, Err: ntfs.ErrNotDir}
		}
		if len(part) > ntfs.MaxNameLength {
			return nil, &ntfs.FSError{Op: "resolve", Path: rel, Err: ntfs.ErrNameTooLong}
		}
		// Intermediate components are opened transiently during the
		// walk, so a path that crosses an already-open directory fails
		// with ErrBusy. Resolving from the nearest open ancestor avoids
		// this.
		if i > 0 {
			if _, live := v.open[cur.num]; live {
				return nil, &ntfs.FSError{Op: "resolve", Path: rel, Err: ntfs.ErrBusy}
			}
		}
		child, ok := cur.children[part]
		if !ok {
			return nil, &ntfs.FSError{Op: "resolve", Path: rel, Err: ntfs.ErrNotExist}
		}
		cur = child
	}
	cur.accessed = time.Now()
	return v.acquire("resolve", cur)
}

func (v *Volume) OpenByNumber(number uint64) (ntfs.Object, error) {
	n, ok := v.st.nodes[ntfs.MREF(number)]
	if !ok {
		return nil, &ntfs.FSError{Op: "open", Err: ntfs.ErrNotExist}
	}
	return v.acquire("open", n)
}

func (v *Volume) Create(parent ntfs.Object, name string, dir bool) (ntfs.Object, error) {
	po, ok := parent.(*object)
	if !ok || po.closed || po.vol != v {
		return nil, &ntfs.FSError{Op: "create", Path: name, Err: ntfs.ErrInvalid}
	}
	if v.readOnly {
		return nil, &ntfs.FSError{Op: "create", Path: name, Err: ntfs.ErrReadOnly}
	}
	if !po.n.dir {
		return nil, &ntfs.FSError{Op: "create", Path: name, Err: ntfs.ErrNotDir}
	}
	if name == "" || strings.ContainsRune(name, '/') {
		return nil, &ntfs.FSError{Op: "create", Path: name, Err: ntfs.ErrInvalid}
	}
	if len(name) > ntfs.MaxNameLength {
		return nil, &ntfs.FSError{Op: "create", Path: name, Err: ntfs.ErrNameTooLong}
	}
	if _, exists := po.n.children[name]; exists {
		return nil, &ntfs.FSError{Op: "create", Path: name, Err: ntfs.ErrExist}
	}
	now := time.Now()
	n := &node{
		num:      v.st.next,
		name:     name,
		dir:      dir,
		parent:   po.n,
		created:  now,
		modified: now,
		accessed: now,
		dirty:    true,
	}
	if dir {
		n.children = make(map[string]*node)
	} else {
		n.attr = ntfs.AttrArchive
	}
	v.st.next++
	v.st.nodes[n.num] = n
	po.n.children[name] = n
	po.n.dirty = true
	po.n.modified = now
	return v.acquire("create", n)
}

func (v *Volume) Delete(parent, obj ntfs.Object, name string) error {
	po, pok := parent.(*object)
	co, cok := obj.(*object)
	if !pok || !cok || po.closed || co.closed || po.vol != v || co.vol != v {
		if pok && !po.closed {
			v.release(po)
		}
		if cok && !co.closed {
			v.release(co)
		}
		return &ntfs.FSError{Op: "delete", Path: name, Err: ntfs.ErrInvalid}
	}
	var err error
	switch {
	case v.readOnly:
		err = ntfs.ErrReadOnly
	case !po.n.dir:
		err = ntfs.ErrNotDir
	case po.n.children[name] != co.n:
		err = ntfs.ErrNotExist
	case co.n.dir && len(co.n.children) > 0:
		err = ntfs.ErrNotEmpty
	}
	if err == nil {
		delete(po.n.children, name)
		delete(v.st.nodes, co.n.num)
		co.n.parent = nil
		po.n.dirty = true
		po.n.modified = time.Now()
	}
	// Both handles are consumed regardless of outcome. The child goes
	// without writeback; the parent close carries the index update back.
	v.release(co)
	cerr := v.closeInternal(po)
	if err == nil {
		err = cerr
	}
	if err != nil {
		if _, ok := err.(*ntfs.FSError); ok {
			return err
		}
		return &ntfs.FSError{Op: "delete", Path: name, Err: err}
	}
	return nil
}

// closeInternal releases o and, when its node is dirty, performs the
// metadata writeback. Writeback reopens the node's parent by number and
// fails if that parent is currently open. It does not recurse further.
func (v *Volume) closeInternal(o *object) error {
	if o.closed {
		return &ntfs.FSError{Op: "close", Path: o.n.name, Err: ntfs.ErrInvalid}
	}
	v.release(o)
	if !o.n.dirty {
		return nil
	}
	// The root directory is kept resident, so writing back one of its
	// immediate children never reopens it.
	if p := o.n.parent; p != nil && p.num != ntfs.RootObject {
		if _, live := v.open[p.num]; live {
			return &ntfs.FSError{Op: "close", Path: o.n.name, Err: ntfs.ErrBusy}
		}
		p.accessed = time.Now()
	}
	o.n.dirty = false
	return v.flushSuper()
}

// alloc makes sure n's extent can hold at least need bytes, moving the
// data to a larger extent at the end of the data area when necessary. The
// allocator is append-only; space is reclaimed only by a reformat.
func (v *Volume) alloc(n *node, need int64) error {
	if need <= n.cap {
		return nil
	}
	newCap := (need + extentUnit - 1) / extentUnit * extentUnit
	off := v.st.dataEnd
	if off+newCap > v.dev.Size() {
		return &ntfs.FSError{Op: "write", Path: n.name, Err: ntfs.ErrNoSpace}
	}
	v.st.dataEnd = off + newCap
	if n.size > 0 {
		buf := make([]byte, n.size)
		if _, err := v.dev.ReadAt(buf, n.off); err != nil {
			return err
		}
		if _, err := v.dev.WriteAt(buf, off); err != nil {
			return err
		}
	}
	n.off = off
	n.cap = newCap
	return nil
}

type object struct {
	vol    *Volume
	n      *node
	closed bool
}

func (o *object) Number() uint64 { return o.n.num }
func (o *object) IsDir() bool    { return o.n.dir }
func (o *object) Dirty() bool    { return o.n.dirty }
func (o *object) Size() uint64   { return uint64(o.n.size) }

func (o *object) Info() (ntfs.ObjectInfo, error) {
	if o.closed {
		return ntfs.ObjectInfo{}, &ntfs.FSError{Op: "stat", Path: o.n.name, Err: ntfs.ErrInvalid}
	}
	return ntfs.ObjectInfo{
		Number:    o.n.num,
		Dir:       o.n.dir,
		Size:      uint64(o.n.size),
		Allocated: uint64(o.n.cap),
		Attr:      o.n.attr,
		Created:   o.n.created,
		Accessed:  o.n.accessed,
		Modified:  o.n.modified,
	}, nil
}

func (o *object) ReadAt(p []byte, off int64) (int, error) {
	if o.closed {
		return 0, &ntfs.FSError{Op: "read", Path: o.n.name, Err: ntfs.ErrInvalid}
	}
	if o.n.dir {
		return 0, &ntfs.FSError{Op: "read", Path: o.n.name, Err: ntfs.ErrIsDir}
	}
	if off < 0 {
		return 0, &ntfs.FSError{Op: "read", Path: o.n.name, Err: ntfs.ErrInvalid}
	}
	if off >= o.n.size {
		return 0, io.EOF
	}
	if off+int64(len(p)) > o.n.size {
		p = p[:o.n.size-off]
	}
	n, err := o.vol.dev.ReadAt(p, o.n.off+off)
	o.n.accessed = time.Now()
	return n, err
}

func (o *object) WriteAt(p []byte, off int64) (int, error) {
	if o.closed {
		return 0, &ntfs.FSError{Op: "write", Path: o.n.name, Err: ntfs.ErrInvalid}
	}
	if o.n.dir {
		return 0, &ntfs.FSError{Op: "write", Path: o.n.name, Err: ntfs.ErrIsDir}
	}
	if o.vol.readOnly {
		return 0, &ntfs.FSError{Op: "write", Path: o.n.name, Err: ntfs.ErrReadOnly}
	}
	if off < 0 {
		return 0, &ntfs.FSError{Op: "write", Path: o.n.name, Err: ntfs.ErrInvalid}
	}
	if err := o.vol.alloc(o.n, off+int64(len(p))); err != nil {
		return 0, err
	}
	if off > o.n.size {
		zero := make([]byte, off-o.n.size)
		if _, err := o.vol.dev.WriteAt(zero, o.n.off+o.n.size); err != nil {
			return 0, err
		}
	}
	n, err := o.vol.dev.WriteAt(p, o.n.off+off)
	if end := off + int64(n); end > o.n.size {
		o.n.size = end
	}
	o.n.modified = time.Now()
	o.n.dirty = true
	return n, err
}

func (o *object) Truncate(size uint64) error {
	if o.closed {
		return &ntfs.FSError{Op: "truncate", Path: o.n.name, Err: ntfs.ErrInvalid}
	}
	if o.n.dir {
		return &ntfs.FSError{Op: "truncate", Path: o.n.name, Err: ntfs.ErrIsDir}
	}
	if o.vol.readOnly {
		return &ntfs.FSError{Op: "truncate", Path: o.n.name, Err: ntfs.ErrReadOnly}
	}
	if err := o.vol.alloc(o.n, int64(size)); err != nil {
		return err
	}
	if int64(size) > o.n.size {
		zero := make([]byte, int64(size)-o.n.size)
		if _, err := o.vol.dev.WriteAt(zero, o.n.off+o.n.size); err != nil {
			return err
		}
	}
	o.n.size = int64(size)
	o.n.modified = time.Now()
	o.n.dirty = true
	return nil
}

func (o *object) Flush() error {
	if o.closed {
		return &ntfs.FSError{Op: "flush", Path: o.n.name, Err: ntfs.ErrInvalid}
	}
	if o.vol.readOnly {
		return nil
	}
	return o.vol.dev.Sync()
}

func (o *object) Close() error {
	return o.vol.closeInternal(o)
}

func (o *object) ReadDir(pos *int64, visit ntfs.DirVisitor) error {
	if o.closed {
		return &ntfs.FSError{Op: "readdir", Path: o.n.name, Err: ntfs.ErrInvalid}
	}
	if !o.n.dir {
		return &ntfs.FSError{Op: "readdir", Path: o.n.name, Err: ntfs.ErrNotDir}
	}
	names := make([]string, 0, len(o.n.children))
	for name := range o.n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	for i := int(*pos); i < len(names); i++ {
		child := o.n.children[names[i]]
		if err := visit(names[i], int64(i), child.num, child.dir); err != nil {
			return err
		}
		*pos = int64(i + 1)
	}
	o.n.accessed = time.Now()
	return nil
}
