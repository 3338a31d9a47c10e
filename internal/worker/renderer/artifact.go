package renderer

import (
	"net/url"
	"strings"

	contracts "renderbridge/internal/contracts/renderserver"
)

// ResolveArtifact builds the /view URL for ref on the server at baseURL. It
// reports false when ref has no filename.
func ResolveArtifact(baseURL string, ref contracts.ArtifactReference) (string, bool) {
	if ref.Filename == "" {
		return "", false
	}
	q := url.Values{
		"filename":  {ref.Filename},
		"subfolder": {ref.Subfolder},
		"type":      {ref.Kind()},
	}
	return strings.TrimRight(baseURL, "/") + "/view?" + q.Encode(), true
}

// ResolveArtifacts resolves refs in order, dropping temp artifacts and refs
// without a filename.
func ResolveArtifacts(baseURL string, refs []contracts.ArtifactReference) []string {
	urls := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.IsTemp() {
			continue
		}
		if u, ok := ResolveArtifact(baseURL, ref); ok {
			urls = append(urls, u)
		}
	}
	return urls
}
