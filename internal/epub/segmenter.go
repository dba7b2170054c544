package epub

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TranslationClass 标记译文节点的 class，重跑时据此跳过已有译文
const TranslationClass = "et-translation"

// 作为翻译单元的块级标签
var blockTags = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "td": true, "th": true, "blockquote": true, "figcaption": true,
	"dt": true, "dd": true,
}

// 整体跳过的标签，内容不翻译
var verbatimTags = map[string]bool{
	"pre": true, "code": true, "script": true, "style": true,
}

var blockSelector = "p, h1, h2, h3, h4, h5, h6, li, td, th, blockquote, figcaption, dt, dd"

// Unit 一个可翻译的文本块
type Unit struct {
	Ordinal   int                // 章内文档序
	Selection *goquery.Selection // 对应的 DOM 节点
	RawMarkup string             // 原始内部标记（含内联标签）
	PlainText string             // 纯文本内容，用于判断是否需要翻译
}

// ExtractUnits 按文档顺序提取章节中的可翻译单元。
// 只取最外层块级节点，跳过 pre/code/script/style 内部及已有译文标记的节点；
// 对同一文档重复调用得到相同结果，不修改 DOM。
func ExtractUnits(doc *goquery.Document) []*Unit {
	var units []*Unit

	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		if s.HasClass(TranslationClass) {
			return
		}
		if hasAncestorIn(s, verbatimTags) || hasAncestorIn(s, blockTags) {
			return
		}

		raw, err := s.Html()
		if err != nil {
			return
		}

		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}

		units = append(units, &Unit{
			Ordinal:   len(units),
			Selection: s,
			RawMarkup: raw,
			PlainText: text,
		})
	})

	return units
}

func hasAncestorIn(s *goquery.Selection, tags map[string]bool) bool {
	for p := s.Parent(); p.Length() > 0; p = p.Parent() {
		name := goquery.NodeName(p)
		if tags[name] {
			return true
		}
		if name == "body" || name == "html" {
			return false
		}
	}
	return false
}
