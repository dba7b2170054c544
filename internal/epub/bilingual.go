package epub

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// InsertTranslation 在原文节点之后插入译文节点：
// 同名标签，复制原属性（id 除外，避免文档内重复），class 追加 et-translation，
// lang 设为目标语言。原文节点不做任何改动。
func InsertTranslation(unit *Unit, translatedMarkup, targetLang string) {
	sel := unit.Selection
	node := sel.Get(0)
	if node == nil {
		return
	}

	var sb strings.Builder
	sb.WriteByte('<')
	sb.WriteString(node.Data)

	classes := []string{TranslationClass}
	for _, a := range node.Attr {
		switch a.Key {
		case "id":
			continue
		case "class":
			classes = append(strings.Fields(a.Val), TranslationClass)
			continue
		case "lang", "xml:lang":
			continue
		}
		fmt.Fprintf(&sb, ` %s="%s"`, a.Key, html.EscapeString(a.Val))
	}
	fmt.Fprintf(&sb, ` class="%s" lang="%s">`, strings.Join(classes, " "), html.EscapeString(targetLang))
	sb.WriteString(translatedMarkup)
	sb.WriteString("</" + node.Data + ">")

	sel.AfterHtml(sb.String())
}

// StylesheetName 注入的双语样式表文件名
const StylesheetName = "et-translation.css"

// Stylesheet 译文节点的样式
const Stylesheet = `/* epubtrans bilingual styles */
.et-translation {
    color: #2563eb;
    font-size: 0.95em;
    font-weight: normal;
    margin-top: 0.1em;
    margin-bottom: 0.6em;
    text-indent: 0;
    opacity: 0.9;
}
`

// InjectStylesheet 在章节 head 中注入样式表链接，已存在时不重复注入
func InjectStylesheet(doc *goquery.Document, href string) {
	head := doc.Find("head").First()
	if head.Length() == 0 {
		return
	}

	exists := false
	head.Find(`link[rel="stylesheet"]`).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("href"); ok && strings.Contains(v, StylesheetName) {
			exists = true
		}
	})
	if exists {
		return
	}

	head.AppendHtml(fmt.Sprintf(`<link rel="stylesheet" type="text/css" href="%s"/>`, html.EscapeString(href)))
}

// StylesheetHref 计算从章节到样式表（与 OPF 同目录）的相对路径
func StylesheetHref(sectionPath, opfDir string) string {
	secDir := dirOf(sectionPath)
	if secDir == opfDir {
		return StylesheetName
	}

	prefix := ""
	d := secDir
	for d != opfDir && d != "" {
		prefix += "../"
		d = dirOf(d)
	}
	if d != opfDir {
		// 章节不在 OPF 目录下，退回同目录引用
		return StylesheetName
	}
	return prefix + StylesheetName
}

func dirOf(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return ""
	}
	return p[:i]
}

// Serialize 把修改后的章节 DOM 序列化回字节。
// goquery 的 HTML5 序列化会丢掉 XML 声明，这里按原文补回，保持 XHTML 阅读器兼容。
func Serialize(doc *goquery.Document, original []byte) ([]byte, error) {
	rendered, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("序列化章节失败: %w", err)
	}

	out := []byte(rendered)
	if decl := xmlDeclaration(original); decl != nil && !bytes.HasPrefix(bytes.TrimLeft(out, " \t\r\n"), []byte("<?xml")) {
		out = append(append(decl, '\n'), out...)
	}
	return out, nil
}

func xmlDeclaration(content []byte) []byte {
	trimmed := bytes.TrimLeft(content, " \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte("<?xml")) {
		return nil
	}
	end := bytes.Index(trimmed, []byte("?>"))
	if end < 0 {
		return nil
	}
	return trimmed[:end+2]
}
