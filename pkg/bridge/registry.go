package bridge

// openList is the per-volume table of open file instances. The engine
// forbids two live objects for the same on-disk record, so every path or
// number resolution consults this table before touching the engine.
type openList struct {
	files []*File
}

func (l *openList) add(f *File) {
	l.files = append(l.files, f)
}

// remove drops f from the table. Removing a file that is not present is a
// no-op, so teardown paths can call it unconditionally.
func (l *openList) remove(f *File) {
	for i, g := range l.files {
		if g == f {
			l.files = append(l.files[:i], l.files[i+1:]...)
			return
		}
	}
}

// byPath returns the open instance at path, if any. The volume root
// matches "", "/" and its own stored path.
func (l *openList) byPath(path string) *File {
	for _, f := range l.files {
		if f.isRoot && (path == "" || path == "/") {
			return f
		}
		if f.path == path {
			return f
		}
	}
	return nil
}

// byNumber returns the open instance holding the object with the given
// number, skipping instances whose object is temporarily detached.
func (l *openList) byNumber(num uint64) *File {
	for _, f := range l.files {
		if f.obj != nil && f.num == num {
			return f
		}
	}
	return nil
}

// parentOf returns the open instance of f's parent directory, if any.
func (l *openList) parentOf(f *File) *File {
	if f.isRoot {
		return nil
	}
	p := l.byPath(parentPath(f.path))
	if p == f {
		return nil
	}
	return p
}

func (l *openList) len() int { return len(l.files) }
