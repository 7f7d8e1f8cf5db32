package notmuch

import (
	"runtime"
	"time"
)

// Directory is a directory recorded in the index, used to decide which parts
// of the mail root need rescanning.
type Directory struct {
	derived
}

func newDirectory(ptr handle, r *root, owner *refcell) *Directory {
	d := &Directory{}
	d.init(ptr, r, retain(d, owner))
	return d
}

// Mtime returns the modification time stored for the directory. The zero
// time means none was stored.
func (d *Directory) Mtime() (time.Time, error) {
	defer runtime.KeepAlive(d)
	if err := d.check("directory get mtime"); err != nil {
		return time.Time{}, err
	}
	secs := native.directoryGetMtime(d.ptr)
	if secs == 0 {
		return time.Time{}, nil
	}
	return time.Unix(secs, 0), nil
}

// SetMtime stores mtime for the directory. Callers should store the mtime
// they observed before scanning the directory, and only after every file in
// it has been indexed.
func (d *Directory) SetMtime(mtime time.Time) error {
	defer runtime.KeepAlive(d)
	const op = "directory set mtime"
	if err := d.check(op); err != nil {
		return err
	}
	return d.root.statusError(op, native.directorySetMtime(d.ptr, mtime.Unix()))
}

// ChildFiles lists the names of the indexed files directly inside d.
func (d *Directory) ChildFiles() (*Filenames, error) {
	defer runtime.KeepAlive(d)
	const op = "directory child files"
	if err := d.check(op); err != nil {
		return nil, err
	}
	ptr := native.directoryChildFiles(d.ptr)
	if ptr == nil {
		return nil, statusError(op, StatusXapianException, native.databaseStatusString(d.root.ptr()))
	}
	return newFilenames(ptr, d.root, d.owner()), nil
}

// ChildDirectories lists the names of the indexed directories directly inside d.
func (d *Directory) ChildDirectories() (*Filenames, error) {
	defer runtime.KeepAlive(d)
	const op = "directory child directories"
	if err := d.check(op); err != nil {
		return nil, err
	}
	ptr := native.directoryChildDirectories(d.ptr)
	if ptr == nil {
		return nil, statusError(op, StatusXapianException, native.databaseStatusString(d.root.ptr()))
	}
	return newFilenames(ptr, d.root, d.owner()), nil
}

// Delete removes the directory record from the index and destroys d. Files
// and subdirectories are not removed.
func (d *Directory) Delete() error {
	defer runtime.KeepAlive(d)
	const op = "directory delete"
	if err := d.check(op); err != nil {
		return err
	}
	err := d.root.statusError(op, native.directoryDelete(d.ptr))
	if err == nil {
		d.release()
	}
	return err
}

// Destroy releases d.
func (d *Directory) Destroy() {
	d.release()
}
