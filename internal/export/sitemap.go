package export

import "io"

// WriteSitemap writes a rendered sitemap document to path.
func WriteSitemap(path, document string, stdout io.Writer) error {
	return writeTo(path, stdout, func(w io.Writer) error {
		_, err := io.WriteString(w, document)
		return err
	})
}
