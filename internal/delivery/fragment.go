package delivery

import (
	"strings"

	"golang.org/x/net/html"
)

// strippedTags はメール本文から丸ごと取り除く要素。
// メールクライアントで動作しない、または配信文脈で不要なもの。
var strippedTags = map[string]bool{
	"script": true,
	"style":  true,
	"form":   true,
}

// EmailSafeFragment は完成済みHTMLドキュメントからメール埋め込み用の
// フラグメントを抽出する。script/style/form要素を除去し、
// body要素の子ノードのみをレンダリングして返す。
// パースに失敗した場合は入力をそのまま返す（net/htmlは寛容なため実質発生しない）。
func EmailSafeFragment(doc string) string {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return doc
	}

	body := findElement(root, "body")
	if body == nil {
		return doc
	}

	stripDisallowed(body)

	var b strings.Builder
	for child := body.FirstChild; child != nil; child = child.NextSibling {
		if err := html.Render(&b, child); err != nil {
			return doc
		}
	}
	return strings.TrimSpace(b.String())
}

// findElement はノード木から指定タグの最初の要素を深さ優先で探す。
func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findElement(child, tag); found != nil {
			return found
		}
	}
	return nil
}

// stripDisallowed は除去対象の子孫要素をノード木から切り離す。
func stripDisallowed(n *html.Node) {
	child := n.FirstChild
	for child != nil {
		next := child.NextSibling
		if child.Type == html.ElementNode && strippedTags[child.Data] {
			n.RemoveChild(child)
		} else {
			stripDisallowed(child)
		}
		child = next
	}
}
