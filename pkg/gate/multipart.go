package gate

import (
	"errors"
	"mime/multipart"
	"net/http"
)

// MaxMultipartMemory bounds the in-memory part of a parsed upload;
// larger files spill to temporary files.
const MaxMultipartMemory = 32 << 20

// MultipartFiles lists the files uploaded under field, or under every field
// when field is empty. The form is parsed once per request.
func MultipartFiles(field string) FilesFunc {
	return func(r *http.Request) ([]FileInfo, error) {
		headers, err := fileHeaders(r, field)
		if err != nil {
			return nil, err
		}
		out := make([]FileInfo, 0, len(headers))
		for _, fh := range headers {
			out = append(out, FileInfo{Name: fh.Filename, Size: fh.Size})
		}
		return out, nil
	}
}

// FileCount counts the files uploaded under field.
func FileCount(field string) AmountFunc {
	return func(r *http.Request) (int64, error) {
		headers, err := fileHeaders(r, field)
		if err != nil {
			return 0, err
		}
		return int64(len(headers)), nil
	}
}

// TotalFileBytes sums the sizes of the files uploaded under field.
func TotalFileBytes(field string) AmountFunc {
	return func(r *http.Request) (int64, error) {
		headers, err := fileHeaders(r, field)
		if err != nil {
			return 0, err
		}
		var total int64
		for _, fh := range headers {
			total += fh.Size
		}
		return total, nil
	}
}

// Constant requests a fixed amount.
func Constant(n int64) AmountFunc {
	return func(*http.Request) (int64, error) {
		return n, nil
	}
}

func fileHeaders(r *http.Request, field string) ([]*multipart.FileHeader, error) {
	if r == nil {
		return nil, ErrMultipartRead
	}
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(MaxMultipartMemory); err != nil {
			return nil, errors.Join(ErrMultipartRead, err)
		}
	}
	if field != "" {
		return r.MultipartForm.File[field], nil
	}
	var all []*multipart.FileHeader
	for _, headers := range r.MultipartForm.File {
		all = append(all, headers...)
	}
	return all, nil
}
