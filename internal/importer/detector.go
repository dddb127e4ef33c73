package importer

import (
	"bytes"
	"mime"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// feedType はフィードの種類（RSS/Atom）を表す。
type feedType string

const (
	feedTypeRSS  feedType = "rss"
	feedTypeAtom feedType = "atom"
)

// feedCandidate はHTMLから検出されたフィード候補を表す。
type feedCandidate struct {
	URL      string
	FeedType feedType
	Title    string
}

// feedContentTypes はフィードとして認識するContent-Typeのリスト。
var feedContentTypes = []string{
	"application/rss+xml",
	"application/atom+xml",
}

// xmlContentTypes はXMLとして認識するContent-Type（ボディ解析が必要）。
var xmlContentTypes = []string{
	"text/xml",
	"application/xml",
}

// mediaTypeOf はContent-Typeからcharset等のパラメータを除いたメディアタイプを返す。
func mediaTypeOf(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return strings.ToLower(mediaType)
}

// isDirectFeed はContent-Typeとボディからレスポンスがフィードそのものかを判定する。
func isDirectFeed(contentType string, body []byte) bool {
	mediaType := mediaTypeOf(contentType)

	for _, feedCT := range feedContentTypes {
		if mediaType == feedCT {
			return true
		}
	}

	isXML := false
	for _, xmlCT := range xmlContentTypes {
		if mediaType == xmlCT {
			isXML = true
			break
		}
	}
	if !isXML || len(body) == 0 {
		return false
	}

	return isRSSOrAtomXML(body)
}

// isHTML はContent-TypeがHTMLかを判定する。
func isHTML(contentType string) bool {
	return strings.Contains(mediaTypeOf(contentType), "html")
}

// isRSSOrAtomXML はボディの先頭4KBからRSS/Atomのルート要素を探す。
func isRSSOrAtomXML(body []byte) bool {
	checkSize := 4096
	if len(body) < checkSize {
		checkSize = len(body)
	}
	prefix := strings.ToLower(string(body[:checkSize]))

	if strings.Contains(prefix, "<rss") || strings.Contains(prefix, "<rdf:rdf") {
		return true
	}
	return strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom")
}

// parseFeedLinksFromHTML はHTMLのheadからrel="alternate"のRSS/Atomリンクを抽出する。
// 相対URLはbaseURLを基準に解決する。
func parseFeedLinksFromHTML(htmlBody []byte, baseURL string) []feedCandidate {
	var candidates []feedCandidate

	baseU, err := url.Parse(baseURL)
	if err != nil {
		return candidates
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))
	inHead := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return candidates

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tagName := string(tn)

			if tagName == "head" {
				inHead = true
				continue
			}
			if tagName == "body" {
				return candidates
			}
			if !inHead || tagName != "link" || !hasAttr {
				continue
			}

			var rel, linkType, href, title string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					linkType = strings.ToLower(string(val))
				case "href":
					href = string(val)
				case "title":
					title = string(val)
				}
				if !more {
					break
				}
			}

			if !hasRel(rel, "alternate") || href == "" {
				continue
			}

			var ft feedType
			switch linkType {
			case "application/rss+xml":
				ft = feedTypeRSS
			case "application/atom+xml":
				ft = feedTypeAtom
			default:
				continue
			}

			resolved := resolveURL(baseU, href)
			if resolved == "" {
				continue
			}

			candidates = append(candidates, feedCandidate{URL: resolved, FeedType: ft, Title: title})

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "head" {
				return candidates
			}
		}
	}
}

// hasRel はスペース区切りのrel属性にtokenが含まれるかを判定する。
func hasRel(rel, token string) bool {
	for _, r := range strings.Fields(rel) {
		if r == token {
			return true
		}
	}
	return false
}

// resolveURL は相対URLをベースURLを基準に絶対URLに解決する。
func resolveURL(base *url.URL, rawRef string) string {
	ref, err := url.Parse(rawRef)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// selectBestFeed は候補から取り込むフィードを1件選ぶ。
// 優先順位: 同一ホスト > Atom > RSS > 先頭
func selectBestFeed(candidates []feedCandidate, pageURL string) *feedCandidate {
	if len(candidates) == 0 {
		return nil
	}

	pageHost := extractHost(pageURL)

	bestIdx := 0
	bestScore := -1
	for i, c := range candidates {
		score := 0
		if extractHost(c.URL) == pageHost {
			score += 100
		}
		if c.FeedType == feedTypeAtom {
			score += 10
		}
		// 同点の場合は先に出現した候補を残す
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	return &candidates[bestIdx]
}

// extractHost はURLからホスト名を抽出する。
func extractHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
