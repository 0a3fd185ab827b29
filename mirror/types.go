package mirror

// SourceKind identifies where an asset reference was discovered.
type SourceKind string

const (
	// KindDOMAttr is a reference found in a DOM attribute (src, href,
	// lazy-load variants).
	KindDOMAttr SourceKind = "dom-attr"
	// KindInlineStyle is a url() reference found in an inline <style> block.
	KindInlineStyle SourceKind = "inline-style"
	// KindCSSFile is a url() or @import reference found in a mirrored .css
	// file on disk.
	KindCSSFile SourceKind = "css-file"
)

// AssetReference is a raw reference string as discovered by scanning.
// It is immutable after creation and consumed exactly once by the Resolver.
type AssetReference struct {
	Raw  string
	Kind SourceKind
	// OriginFile is the mirror-relative path of the .css file the reference
	// was found in. Only set for KindCSSFile; relative references are
	// resolved against this file's directory, not against the page URL.
	OriginFile string
}

// ResolvedAsset is the deterministic resolution of an AssetReference against
// the run's origin and public directory.
type ResolvedAsset struct {
	// FetchURL is the absolute URL to download from. It keeps any query
	// string the reference carried.
	FetchURL string
	// LocalPath is the absolute filesystem destination. It never carries a
	// query string and is always a descendant of the public directory.
	LocalPath string
}
