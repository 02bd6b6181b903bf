package mimetree

// UnsupportedSubtypeError reports that a multipart container uses a
// subtype the render engine rejects (digest, parallel, or anything else
// outside the supported set). It is raised when assembling or previewing
// reaches such a container, not at parse time, so that other branches of
// the same mailing can still be inspected.
type UnsupportedSubtypeError struct {
	Name string
}

func (e *UnsupportedSubtypeError) Error() string {
	return "multipart/" + e.Name + " is not supported"
}
