// Package images finds products that point at different renditions of the same vendor
// image and rewrites them to one canonical URL.
package images

import (
	"context"
	"net/url"
	"path"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"metal-catalog-service/internal/domain"
)

// sizeSuffix matches the rendition marker vendors append to file names:
// "-300x300", "_150x150", "-thumb", "_small", "-medium", "_large".
// Two-digit pairs such as "40x20" are product dimensions and are kept.
var sizeSuffix = regexp.MustCompile(`(?i)[-_](\d{3,4}x\d{3,4}|thumb|thumbnail|small|medium|large)$`)

// CanonicalKey reduces an image URL to the identity shared by all of its renditions.
// Scheme, query and fragment are dropped, the host is lower-cased and one rendition suffix
// is stripped from the file name. Input without a host is returned trimmed.
func CanonicalKey(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	dir, file := path.Split(u.EscapedPath())
	ext := path.Ext(file)
	base := strings.TrimSuffix(file, ext)
	if stripped := sizeSuffix.ReplaceAllString(base, ""); stripped != "" {
		base = stripped
	}
	return strings.ToLower(u.Host) + dir + base + strings.ToLower(ext)
}

// isCanonical reports whether a URL's file name carries no rendition suffix.
func isCanonical(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	file := path.Base(u.Path)
	return !sizeSuffix.MatchString(strings.TrimSuffix(file, path.Ext(file)))
}

// Rewrite moves one product to its group's canonical URL.
type Rewrite struct {
	ProductID int64  `json:"product_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// Group is a set of product images that resolve to the same canonical key.
type Group struct {
	Key       string                `json:"key"`
	Canonical string                `json:"canonical"`
	Images    []domain.ProductImage `json:"images"`
}

// Report is the outcome of one deduplication pass.
type Report struct {
	Scanned  int       `json:"scanned"`
	Unique   int       `json:"unique"`
	Groups   []Group   `json:"groups"`
	Rewrites []Rewrite `json:"rewrites"`
}

// Deduplicate groups refs by canonical key and plans rewrites for every product whose
// URL differs from its group's canonical URL. The canonical URL is the first one without a
// rendition suffix, or the first one seen if every URL has a suffix.
func Deduplicate(refs []domain.ProductImage) Report {
	report := Report{Scanned: len(refs)}
	index := make(map[string]int)

	for _, ref := range refs {
		if strings.TrimSpace(ref.URL) == "" {
			continue
		}
		key := CanonicalKey(ref.URL)
		i, ok := index[key]
		if !ok {
			i = len(report.Groups)
			index[key] = i
			report.Groups = append(report.Groups, Group{Key: key, Canonical: ref.URL})
		}
		g := &report.Groups[i]
		if ok && !isCanonical(g.Canonical) && isCanonical(ref.URL) {
			g.Canonical = ref.URL
		}
		g.Images = append(g.Images, ref)
	}
	report.Unique = len(report.Groups)

	for _, g := range report.Groups {
		for _, img := range g.Images {
			if img.URL != g.Canonical {
				report.Rewrites = append(report.Rewrites, Rewrite{ProductID: img.ProductID, From: img.URL, To: g.Canonical})
			}
		}
	}
	return report
}

// Writer persists a product's image URL.
type Writer interface {
	UpdateProductImage(ctx context.Context, productID int64, url string) error
}

// ApplyResult counts the writes of one Apply call.
type ApplyResult struct {
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
}

// Apply writes every planned rewrite. Failures are logged and skipped.
func Apply(ctx context.Context, w Writer, report Report, log *zap.SugaredLogger) ApplyResult {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	var res ApplyResult
	for _, rw := range report.Rewrites {
		if err := w.UpdateProductImage(ctx, rw.ProductID, rw.To); err != nil {
			log.Errorw("product image rewrite failed", "product_id", rw.ProductID, "to", rw.To, "error", err)
			res.Failed++
			continue
		}
		res.Applied++
	}
	log.Infow("product image rewrites applied", "applied", res.Applied, "failed", res.Failed)
	return res
}
