package output

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strings"
)

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

type urlset struct {
	XMLName xml.Name     `xml:"urlset"`
	NS      string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc string `xml:"loc"`
}

// WriteSitemap writes root/sitemap.xml listing baseURL+path for every path,
// in the given order.
func WriteSitemap(root, baseURL string, paths []string) (string, error) {
	base := strings.TrimRight(baseURL, "/")
	set := urlset{NS: sitemapNS, URLs: make([]sitemapURL, 0, len(paths))}
	for _, p := range paths {
		loc := base + p
		if p == "/" {
			loc = base + "/"
		}
		set.URLs = append(set.URLs, sitemapURL{Loc: loc})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		return "", fmt.Errorf("output: encode sitemap: %w", err)
	}
	buf.WriteByte('\n')

	dst := filepath.Join(root, "sitemap.xml")
	if err := WriteFileAtomic(dst, buf.Bytes()); err != nil {
		return "", fmt.Errorf("output: write sitemap: %w", err)
	}
	return dst, nil
}
