package imagesearch

import (
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
)

// MaxVisits bounds the nodes inspected in one search document.
const MaxVisits = 2000

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true,
	".gif": true, ".bmp": true, ".avif": true,
}

var imagePathTokens = []string{"image", "thumbnail", "thumb", "poster", "photo", "icon"}

// URLCandidate is an absolute http(s) URL found in a document and the key path
// that led to it.
type URLCandidate struct {
	URL     string
	KeyPath string
}

// LikelyImage reports whether the URL path ends in an image extension or the
// key path names an image-ish field.
func (c URLCandidate) LikelyImage() bool {
	if u, err := url.Parse(c.URL); err == nil {
		if imageExts[strings.ToLower(path.Ext(u.Path))] {
			return true
		}
	}
	kp := strings.ToLower(c.KeyPath)
	for _, tok := range imagePathTokens {
		if strings.Contains(kp, tok) {
			return true
		}
	}
	return false
}

// CollectURLs walks root depth-first in document order and returns every
// absolute http(s) string with the number of nodes visited. The walk stops
// after limit nodes; truncated is set then.
func CollectURLs(root Node, limit int) (out []URLCandidate, visits int, truncated bool) {
	type frame struct {
		node Node
		path string
	}
	stack := []frame{{node: root}}
	for len(stack) > 0 {
		if visits >= limit {
			return out, visits, true
		}
		visits++
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch f.node.Kind {
		case StringNode:
			if isAbsoluteHTTP(f.node.Str) {
				out = append(out, URLCandidate{URL: strings.TrimSpace(f.node.Str), KeyPath: f.path})
			}
		case SequenceNode:
			for i := len(f.node.Items) - 1; i >= 0; i-- {
				stack = append(stack, frame{node: f.node.Items[i], path: f.path + "[" + strconv.Itoa(i) + "]"})
			}
		case MappingNode:
			for i := len(f.node.Fields) - 1; i >= 0; i-- {
				fl := f.node.Fields[i]
				p := fl.Key
				if f.path != "" {
					p = f.path + "." + fl.Key
				}
				stack = append(stack, frame{node: fl.Value, path: p})
			}
		}
	}
	return out, visits, false
}

// RankCandidates orders candidates: likely images first, then key paths
// mentioning "image", then "thumbnail", then shorter key paths.
func RankCandidates(cs []URLCandidate) []URLCandidate {
	out := append([]URLCandidate(nil), cs...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if la, lb := a.LikelyImage(), b.LikelyImage(); la != lb {
			return la
		}
		ka, kb := strings.ToLower(a.KeyPath), strings.ToLower(b.KeyPath)
		if ia, ib := strings.Contains(ka, "image"), strings.Contains(kb, "image"); ia != ib {
			return ia
		}
		if ta, tb := strings.Contains(ka, "thumbnail"), strings.Contains(kb, "thumbnail"); ta != tb {
			return ta
		}
		return len(a.KeyPath) < len(b.KeyPath)
	})
	return out
}

// PickImageURL returns the best likely-image URL inside one search result.
func PickImageURL(entry Node) (string, bool) {
	cs, _, _ := CollectURLs(entry, MaxVisits)
	return pickLikely(cs)
}

func pickLikely(cs []URLCandidate) (string, bool) {
	for _, c := range RankCandidates(cs) {
		if c.LikelyImage() {
			return c.URL, true
		}
	}
	return "", false
}

func isAbsoluteHTTP(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " \n\t") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
